// Package cloudlog takes care of setting up a Google Cloud logger.
package cloudlog

import (
	"context"
	"log"
	"sync"

	logging "cloud.google.com/go/logging"
)

var (
	// Logger is an already set up instance of *log.Logger. It is nil until Init succeeds.
	Logger *log.Logger

	mu      sync.RWMutex
	client  *logging.Client
	working bool
)

// Init creates the Cloud Logging client for projectID and routes every call in this package
// to the named log as well as to the standard logger. Logging keeps working locally when
// Init fails.
func Init(ctx context.Context, projectID, logName string) error {
	c, err := logging.NewClient(ctx, projectID)
	if err != nil {
		log.Printf("Failed to create logging client: %v", err)
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	client = c
	Logger = c.Logger(logName).StandardLogger(logging.Info)
	working = true
	return nil
}

// Close flushes pending entries and detaches from Cloud Logging.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	Logger = nil
	working = false
	return err
}

func remote() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !working {
		return nil
	}
	return Logger
}

// Print is a proxy for Logger.Print
func Print(v ...interface{}) {
	log.Print(v...)
	if l := remote(); l != nil {
		l.Print(v...)
	}
}

// Println is a proxy for Logger.Println
func Println(v ...interface{}) {
	log.Println(v...)
	if l := remote(); l != nil {
		l.Println(v...)
	}
}

// Printf is a proxy for Logger.Printf
func Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
	if l := remote(); l != nil {
		l.Printf(format, v...)
	}
}

// Fatal is a proxy for Logger.Fatal
func Fatal(v ...interface{}) {
	if l := remote(); l != nil {
		l.Print(v...)
		Close()
	}
	log.Fatal(v...)
}

// Fatalf is a proxy for Logger.Fatalf
func Fatalf(format string, v ...interface{}) {
	if l := remote(); l != nil {
		l.Printf(format, v...)
		Close()
	}
	log.Fatalf(format, v...)
}

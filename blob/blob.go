// Package blob is the Blob Store: binary object storage with progress reporting uploads and
// durable download URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Code is a backend native upload failure code.
type Code string

const (
	// CodeUnauthorized means the caller may not write the object.
	CodeUnauthorized Code = "storage/unauthorized"
	// CodeCanceled means the transfer was aborted before completion.
	CodeCanceled Code = "storage/canceled"
	// CodeUnknown covers every other failure.
	CodeUnknown Code = "storage/unknown"
)

// Error is a failed blob operation.
type Error struct {
	Code Code
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Code, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf gives the Code carried by err, CodeUnknown when err is not a blob error.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	return CodeUnknown
}

// Metadata is stored alongside the object.
type Metadata struct {
	ContentType string
	Custom      map[string]string
}

// Progress is a snapshot of a running transfer. Paused is set while the backend holds the
// transfer, e.g. between retried chunks.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
	Paused           bool
}

// ProgressFunc receives transfer snapshots in order. It must not block.
type ProgressFunc func(Progress)

// Store uploads and removes objects.
type Store interface {
	// Upload writes size bytes from r to path and returns the download URL once the object is
	// durable. A cancelled ctx aborts the transfer with CodeCanceled.
	Upload(ctx context.Context, path string, r io.Reader, size int64, meta Metadata, onProgress ProgressFunc) (string, error)
	Delete(ctx context.Context, path string) error
	Close() error
}

// wrap turns err into an *Error, using code unless ctx was cancelled.
func wrap(ctx context.Context, path string, code Code, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		code = CodeCanceled
	}
	return &Error{Code: code, Path: path, Err: err}
}

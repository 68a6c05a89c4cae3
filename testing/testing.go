// Package testing holds in-memory implementations of the three backend contracts so that
// gateway components can be tested without network access, plus a Firestore emulator client.
package testing

import (
	"context"
	"errors"
	"os"

	log "igstore/cloudlog"
	"igstore/storage"
)

// EmulatorHostEnv is the variable the Firestore client library reads the emulator address from.
const EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// ErrNoEmulator is returned when no Firestore emulator is configured.
var ErrNoEmulator = errors.New(EmulatorHostEnv + " is not set")

// NewFirestoreTestStore creates a Document Store for testing. It requires a local Firestore
// emulator to be running on the user's machine.
func NewFirestoreTestStore(ctx context.Context) (*storage.Firestore, error) {
	if os.Getenv(EmulatorHostEnv) == "" {
		return nil, ErrNoEmulator
	}
	store, err := storage.NewFirestore(ctx, "test")
	if err != nil {
		log.Printf("firestore.NewClient err: %v", err)
		return nil, err
	}
	return store, nil
}

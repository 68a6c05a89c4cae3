// Package access decides which identities may read or mutate gallery items and profiles.
package access

import (
	log "igstore/cloudlog"
	"igstore/collections"
)

const (
	opRead   = "READ"
	opWrite  = "WRITE"
	opDelete = "DELETE"
)

// Authorizer defines methods for verifying a user's rights over stored documents.
type Authorizer interface {
	CanRead(userID string, item *collections.GalleryItem) bool
	CanEdit(userID string, item *collections.GalleryItem) bool
	CanDelete(userID string, item *collections.GalleryItem) bool
	CanEditProfile(userID string, profileID string) bool
}

// ownerAuthorizer grants mutation to the owning profile only. Galleries are public, so any
// caller, signed in or not, can read.
type ownerAuthorizer struct{}

// OwnerOnly gives the authorizer used by the gateway.
func OwnerOnly() Authorizer {
	return ownerAuthorizer{}
}

func (ownerAuthorizer) verifyAccess(userID string, ownerID string, op string) bool {
	switch op {
	case opRead:
		return true
	case opWrite, opDelete:
		return userID != "" && userID == ownerID
	default:
		log.Printf("Unsupported operation: %s", op)
	}
	return false
}

func (a ownerAuthorizer) CanRead(userID string, item *collections.GalleryItem) bool {
	return item != nil && a.verifyAccess(userID, item.UserID(), opRead)
}

func (a ownerAuthorizer) CanEdit(userID string, item *collections.GalleryItem) bool {
	return item != nil && a.verifyAccess(userID, item.UserID(), opWrite)
}

func (a ownerAuthorizer) CanDelete(userID string, item *collections.GalleryItem) bool {
	return item != nil && a.verifyAccess(userID, item.UserID(), opDelete)
}

func (a ownerAuthorizer) CanEditProfile(userID string, profileID string) bool {
	return a.verifyAccess(userID, profileID, opWrite)
}

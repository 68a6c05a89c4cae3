// Package collections contains data structures relating to Firestore collections and their entry
// structures, as well as the identity record the gateway hands to callers.
package collections

import (
	"time"

	"igstore/fieldkeys"
)

// Ref addresses a document by collection and id. Document stores translate it into their
// native reference type.
type Ref struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// UserRef gives the reference to the profile document of identity id.
func UserRef(id string) Ref {
	return Ref{Collection: fieldkeys.UsersCollection, ID: id}
}

// UserIdentity is the identity backend's record of an account. Only the identity client
// creates or mutates it.
type UserIdentity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`

	// IDToken is the credential issued on the last authentication. Never serialized.
	IDToken string `json:"-"`
}

// UserProfile is the application level user document stored in the users collection.
// Its ID always equals the owning UserIdentity ID.
type UserProfile struct {
	ID           string    `json:"id" firestore:"id"`
	Name         string    `json:"name" firestore:"name"`
	Email        string    `json:"email" firestore:"email"`
	PhoneNumber  string    `json:"phoneNumber" firestore:"phoneNumber"`
	PhotoURL     string    `json:"photoURL" firestore:"photoURL"`
	SignUpMethod string    `json:"signUpMethod" firestore:"signUpMethod"`
	Deleted      bool      `json:"deleted" firestore:"deleted"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Fields gives the document representation of p.
func (p *UserProfile) Fields() map[string]interface{} {
	return map[string]interface{}{
		fieldkeys.IDKey:           p.ID,
		fieldkeys.NameKey:         p.Name,
		fieldkeys.EmailKey:        p.Email,
		fieldkeys.PhoneNumberKey:  p.PhoneNumber,
		fieldkeys.PhotoURLKey:     p.PhotoURL,
		fieldkeys.SignUpMethodKey: p.SignUpMethod,
		fieldkeys.DeletedKey:      p.Deleted,
		fieldkeys.CreatedAtKey:    p.CreatedAt,
		fieldkeys.UpdatedAtKey:    p.UpdatedAt,
	}
}

// ProfileFromFields reads a profile document. The document id wins over a missing id field.
func ProfileFromFields(id string, data map[string]interface{}) *UserProfile {
	p := &UserProfile{
		ID:           stringField(data, fieldkeys.IDKey),
		Name:         stringField(data, fieldkeys.NameKey),
		Email:        stringField(data, fieldkeys.EmailKey),
		PhoneNumber:  stringField(data, fieldkeys.PhoneNumberKey),
		PhotoURL:     stringField(data, fieldkeys.PhotoURLKey),
		SignUpMethod: stringField(data, fieldkeys.SignUpMethodKey),
		Deleted:      boolField(data, fieldkeys.DeletedKey),
		CreatedAt:    timeField(data, fieldkeys.CreatedAtKey),
		UpdatedAt:    timeField(data, fieldkeys.UpdatedAtKey),
	}
	if p.ID == "" {
		p.ID = id
	}
	return p
}

// GalleryItem references an uploaded media asset owned by a profile. Img is only ever set to
// the URL of a completed upload.
type GalleryItem struct {
	ID          string    `json:"id" firestore:"-"`
	Img         string    `json:"img" firestore:"img"`
	User        Ref       `json:"-" firestore:"user"`
	Title       string    `json:"title" firestore:"title"`
	Description string    `json:"description,omitempty" firestore:"description"`
	Path        string    `json:"-" firestore:"path"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// UserID is the id of the owning profile.
func (g *GalleryItem) UserID() string {
	return g.User.ID
}

// Fields gives the document representation of g. An empty description is stored as null.
func (g *GalleryItem) Fields() map[string]interface{} {
	var description interface{}
	if g.Description != "" {
		description = g.Description
	}
	return map[string]interface{}{
		fieldkeys.ImgKey:         g.Img,
		fieldkeys.UserKey:        g.User,
		fieldkeys.TitleKey:       g.Title,
		fieldkeys.DescriptionKey: description,
		fieldkeys.PathKey:        g.Path,
		fieldkeys.CreatedAtKey:   g.CreatedAt,
		fieldkeys.UpdatedAtKey:   g.UpdatedAt,
	}
}

// GalleryItemFromFields reads a gallery document.
func GalleryItemFromFields(id string, data map[string]interface{}) *GalleryItem {
	item := &GalleryItem{
		ID:          id,
		Img:         stringField(data, fieldkeys.ImgKey),
		Title:       stringField(data, fieldkeys.TitleKey),
		Description: stringField(data, fieldkeys.DescriptionKey),
		Path:        stringField(data, fieldkeys.PathKey),
		CreatedAt:   timeField(data, fieldkeys.CreatedAtKey),
		UpdatedAt:   timeField(data, fieldkeys.UpdatedAtKey),
	}
	if ref, ok := data[fieldkeys.UserKey].(Ref); ok {
		item.User = ref
	}
	return item
}

// GalleryItemView is what clients receive: the owner is flattened to its id.
type GalleryItemView struct {
	*GalleryItem
	UserID string `json:"user"`
}

// View flattens g for clients.
func (g *GalleryItem) View() GalleryItemView {
	return GalleryItemView{GalleryItem: g, UserID: g.User.ID}
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func boolField(data map[string]interface{}, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func timeField(data map[string]interface{}, key string) time.Time {
	switch v := data[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

// Package profile is the Profile Store: CRUD over the per-user profile documents, keyed by
// identity id, with e-mail uniqueness enforced before any mutation.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"igstore/access"
	log "igstore/cloudlog"
	"igstore/collections"
	"igstore/fieldkeys"
	"igstore/gaterr"
	"igstore/identity"
	"igstore/media"
	"igstore/storage"
	"igstore/validation"
)

// PhotoUploader stores a profile photo and returns its durable URL.
type PhotoUploader interface {
	UploadProfilePhoto(ctx context.Context, userID string, photo media.Asset, opts ...media.UploadOption) (string, error)
}

// EditForm is the input of Edit. A nil or empty Photo keeps the current photo.
type EditForm struct {
	Name  string       `json:"name" validate:"required"`
	Email string       `json:"email" validate:"required,email"`
	Photo *media.Asset `json:"photoURL" validate:"-"`
}

// Store is constructed once per process.
type Store struct {
	docs    storage.Store
	ident   *identity.Client
	photos  PhotoUploader
	auth    access.Authorizer
	timeout time.Duration
	now     func() time.Time
}

// New wires a Store. Every document call is bounded by timeout.
func New(docs storage.Store, ident *identity.Client, photos PhotoUploader, timeout time.Duration) *Store {
	return &Store{
		docs:    docs,
		ident:   ident,
		photos:  photos,
		auth:    access.OwnerOnly(),
		timeout: timeout,
		now:     time.Now,
	}
}

// GetByID reads the profile of identity id. A missing profile is a NotFound error.
func (s *Store) GetByID(ctx context.Context, id string) (*collections.UserProfile, error) {
	const op = "profile.GetByID"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc, err := s.docs.Get(ctx, fieldkeys.UsersCollection, id)
	if errors.Is(err, storage.ErrNoDocument) {
		return nil, gaterr.E(gaterr.NotFound, op, err)
	}
	if err != nil {
		log.Printf("%s %s: %v", op, id, err)
		return nil, gaterr.Classify(op, err)
	}
	return collections.ProfileFromFields(doc.ID, doc.Data), nil
}

// GetByEmail finds the profile registered with email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*collections.UserProfile, error) {
	const op = "profile.GetByEmail"
	docs, err := s.byEmail(ctx, op, email)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, gaterr.E(gaterr.NotFound, op, fmt.Errorf("no profile with email %s", email))
	}
	return collections.ProfileFromFields(docs[0].ID, docs[0].Data), nil
}

// EmailExists reports whether any profile uses email.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	docs, err := s.byEmail(ctx, "profile.EmailExists", email)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// Create writes p under its id, replacing any previous document.
func (s *Store) Create(ctx context.Context, p *collections.UserProfile) error {
	const op = "profile.Create"
	if p.ID == "" {
		return gaterr.Invalid(op, map[string][]string{"id": {"Id can't be blank"}})
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.docs.Set(ctx, fieldkeys.UsersCollection, p.ID, p.Fields()); err != nil {
		log.Printf("%s %s: %v", op, p.ID, err)
		return gaterr.Classify(op, err)
	}
	return nil
}

// Edit applies form to the authenticated user's profile. current may be nil, in which case the
// stored profile is read first. The steps run in order and stop at the first failure: validation,
// e-mail uniqueness, photo upload, identity update, document update.
func (s *Store) Edit(ctx context.Context, form EditForm, current *collections.UserProfile, opts ...media.UploadOption) (*collections.UserProfile, error) {
	const op = "profile.Edit"
	id := s.ident.Current()
	if id == nil {
		return nil, gaterr.E(gaterr.NotAuthenticated, op, nil)
	}
	if errs := validation.Validate(form); errs != nil {
		return nil, gaterr.Invalid(op, errs)
	}
	if current == nil {
		var err error
		if current, err = s.GetByID(ctx, id.ID); err != nil {
			return nil, err
		}
	}
	if !s.auth.CanEditProfile(id.ID, current.ID) {
		return nil, gaterr.E(gaterr.PermissionDenied, op, nil)
	}

	if form.Email != current.Email {
		taken, err := s.EmailExists(ctx, form.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, DuplicateEmail(op)
		}
	}

	photoURL := current.PhotoURL
	if form.Photo != nil && len(form.Photo.Data) > 0 {
		url, err := s.photos.UploadProfilePhoto(ctx, id.ID, *form.Photo, opts...)
		if err != nil {
			return nil, err
		}
		photoURL = url
	}

	fields := identity.ProfileFields{DisplayName: &form.Name, PhotoURL: &photoURL}
	if form.Email != id.Email {
		fields.Email = &form.Email
	}
	if _, err := s.ident.UpdateProfileFields(ctx, fields); err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = form.Name
	updated.Email = form.Email
	updated.PhotoURL = photoURL
	updated.UpdatedAt = s.now()

	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.docs.Update(uctx, fieldkeys.UsersCollection, current.ID, map[string]interface{}{
		fieldkeys.NameKey:      updated.Name,
		fieldkeys.EmailKey:     updated.Email,
		fieldkeys.PhotoURLKey:  updated.PhotoURL,
		fieldkeys.UpdatedAtKey: updated.UpdatedAt,
	})
	if err != nil {
		log.Printf("%s %s: identity updated but document update failed: %v", op, current.ID, err)
		if errors.Is(err, storage.ErrNoDocument) {
			return nil, gaterr.E(gaterr.Consistency, op, err)
		}
		return nil, gaterr.Classify(op, err)
	}
	return &updated, nil
}

// Delete removes the profile document of id. Deleting a missing profile succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "profile.Delete"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.docs.Delete(ctx, fieldkeys.UsersCollection, id); err != nil {
		log.Printf("%s %s: %v", op, id, err)
		return gaterr.Classify(op, err)
	}
	return nil
}

// DuplicateEmail is the error of a form whose e-mail belongs to another profile.
func DuplicateEmail(op string) error {
	return &gaterr.Error{
		Kind:   gaterr.DuplicateEmail,
		Op:     op,
		Fields: map[string][]string{fieldkeys.EmailKey: {"Email already exist"}},
	}
}

func (s *Store) byEmail(ctx context.Context, op, email string) ([]*storage.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	docs, err := s.docs.Query(ctx, fieldkeys.UsersCollection,
		[]storage.Filter{{Path: fieldkeys.EmailKey, Op: "==", Value: email}}, nil)
	if err != nil {
		log.Printf("%s %s: %v", op, email, err)
		return nil, gaterr.Classify(op, err)
	}
	return docs, nil
}

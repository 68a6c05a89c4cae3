// Package media is the Media Gateway. It uploads binary assets to the Blob Store through an
// UploadTask state machine and keeps the gallery documents that reference them.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"igstore/access"
	"igstore/blob"
	log "igstore/cloudlog"
	"igstore/collections"
	"igstore/fieldkeys"
	"igstore/gaterr"
	"igstore/identity"
	"igstore/remotejob"
	"igstore/storage"
	"igstore/validation"

	"github.com/google/uuid"
)

// Asset is a binary upload and its declared content type.
type Asset struct {
	Data        []byte
	ContentType string
}

// GalleryForm is the input of StoreGalleryItem.
type GalleryForm struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Img         []byte `json:"img" validate:"min=1"`
	ContentType string `json:"contentType"`
}

// GalleryEdit changes the caption of a gallery item. Nil fields are left untouched.
type GalleryEdit struct {
	Title       *string `json:"title" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, e remotejob.Event)
}

// Options tune a Gateway. Zero values are replaced with defaults.
type Options struct {
	BackendTimeout time.Duration
	UploadTimeout  time.Duration
	Authorizer     access.Authorizer
	Events         Publisher
	// Observer sees the progress of every upload, in addition to per call observers.
	Observer ProgressFunc
}

const (
	defaultBackendTimeout = 15 * time.Second
	defaultUploadTimeout  = 5 * time.Minute
)

// Gateway is constructed once per process.
type Gateway struct {
	blobs    blob.Store
	docs     storage.Store
	ident    *identity.Client
	opts     Options
	inflight inflight
	now      func() time.Time
}

// New wires a Gateway to its backends.
func New(blobs blob.Store, docs storage.Store, ident *identity.Client, opts Options) *Gateway {
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = defaultBackendTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = defaultUploadTimeout
	}
	if opts.Authorizer == nil {
		opts.Authorizer = access.OwnerOnly()
	}
	return &Gateway{
		blobs: blobs,
		docs:  docs,
		ident: ident,
		opts:  opts,
		now:   time.Now,
	}
}

// UploadOption configures a single upload.
type UploadOption func(*uploadConfig)

type uploadConfig struct {
	observers []ProgressFunc
}

// WithProgress observes the upload's progress events.
func WithProgress(fn ProgressFunc) UploadOption {
	return func(c *uploadConfig) {
		c.observers = append(c.observers, fn)
	}
}

// Upload stores asset at path and returns its durable download URL. The path is caller
// constructed; a concurrent upload to the same path is performed anyway and the last write wins.
// Failures are gaterr Upload errors wrapping an *UploadError.
func (g *Gateway) Upload(ctx context.Context, asset Asset, path string, opts ...UploadOption) (string, error) {
	const op = "media.Upload"
	if len(asset.Data) == 0 {
		return "", gaterr.Invalid(op, map[string][]string{"img": {"Img can't be blank"}})
	}
	cfg := &uploadConfig{}
	if g.opts.Observer != nil {
		cfg.observers = append(cfg.observers, g.opts.Observer)
	}
	for _, o := range opts {
		o(cfg)
	}
	contentType := asset.ContentType
	if contentType == "" {
		contentType = fieldkeys.DefaultContentType
	}

	if g.inflight.acquire(path) {
		log.Printf("upload collision on %s, last write wins", path)
	}
	defer g.inflight.release(path)

	ctx, cancel := context.WithTimeout(ctx, g.opts.UploadTimeout)
	defer cancel()

	size := int64(len(asset.Data))
	task := newUploadTask(path, size, cfg.observers)
	task.start()
	url, err := g.blobs.Upload(ctx, path, bytes.NewReader(asset.Data), size, blob.Metadata{ContentType: contentType}, task.progress)
	if err != nil {
		ue := &UploadError{Code: uploadCode(err), Path: path, Err: err}
		task.fail(ue.Code)
		log.Printf("%s %s failed: %v", op, path, err)
		return "", gaterr.E(gaterr.Upload, op, ue)
	}
	task.succeed(url)
	return url, nil
}

// UploadProfilePhoto stores the photo of userID at its fixed profile photo path.
func (g *Gateway) UploadProfilePhoto(ctx context.Context, userID string, photo Asset, opts ...UploadOption) (string, error) {
	return g.Upload(ctx, photo, fieldkeys.ProfilePhotoPrefix+userID, opts...)
}

// StoreGalleryItem uploads the form's image for the authenticated user and then records it in
// the gallery. No document is written unless the upload completed.
func (g *Gateway) StoreGalleryItem(ctx context.Context, form GalleryForm, opts ...UploadOption) (*collections.GalleryItem, error) {
	const op = "media.StoreGalleryItem"
	current := g.ident.Current()
	if current == nil {
		return nil, gaterr.E(gaterr.NotAuthenticated, op, nil)
	}
	if errs := validation.Validate(form); errs != nil {
		return nil, gaterr.Invalid(op, errs)
	}
	if err := g.requireProfile(ctx, op, current.ID); err != nil {
		return nil, err
	}

	now := g.now()
	path := fmt.Sprintf("%s%d%s-%s", fieldkeys.GalleryPhotoPrefix, now.UnixNano(), current.ID, uuid.New().String())
	url, err := g.Upload(ctx, Asset{Data: form.Img, ContentType: form.ContentType}, path, opts...)
	if err != nil {
		return nil, err
	}

	item := &collections.GalleryItem{
		Img:         url,
		User:        collections.UserRef(current.ID),
		Title:       form.Title,
		Description: form.Description,
		Path:        path,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	id, err := g.docs.Add(bctx, fieldkeys.GalleryCollection, item.Fields())
	if err != nil {
		log.Printf("%s: storing document for %s failed: %v", op, path, err)
		if derr := g.removeBlob(path); derr != nil {
			log.Printf("%s: removing orphaned blob %s failed: %v", op, path, derr)
		}
		return nil, gaterr.Classify(op, err)
	}
	item.ID = id

	g.publish(ctx, remotejob.Event{Type: remotejob.GalleryItemCreated, UserID: current.ID, ItemID: id, Path: path, At: now})
	return item, nil
}

// ListGalleryItems gives the items of profileID, newest first. An empty slice with a nil error
// means the profile has no items.
func (g *Gateway) ListGalleryItems(ctx context.Context, profileID string) ([]*collections.GalleryItem, error) {
	const op = "media.ListGalleryItems"
	ctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	docs, err := g.docs.Query(ctx, fieldkeys.GalleryCollection,
		[]storage.Filter{{Path: fieldkeys.UserKey, Op: "==", Value: collections.UserRef(profileID)}},
		&storage.Order{Path: fieldkeys.CreatedAtKey, Direction: storage.Desc})
	if err != nil {
		log.Printf("%s %s: %v", op, profileID, err)
		return nil, gaterr.Classify(op, err)
	}
	items := make([]*collections.GalleryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, collections.GalleryItemFromFields(doc.ID, doc.Data))
	}
	return items, nil
}

// GetGalleryItem reads a single item.
func (g *Gateway) GetGalleryItem(ctx context.Context, id string) (*collections.GalleryItem, error) {
	const op = "media.GetGalleryItem"
	ctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	doc, err := g.docs.Get(ctx, fieldkeys.GalleryCollection, id)
	if errors.Is(err, storage.ErrNoDocument) {
		return nil, gaterr.E(gaterr.NotFound, op, err)
	}
	if err != nil {
		log.Printf("%s %s: %v", op, id, err)
		return nil, gaterr.Classify(op, err)
	}
	return collections.GalleryItemFromFields(doc.ID, doc.Data), nil
}

// UpdateGalleryItem changes the caption of an item owned by the authenticated user.
func (g *Gateway) UpdateGalleryItem(ctx context.Context, id string, edit GalleryEdit) (*collections.GalleryItem, error) {
	const op = "media.UpdateGalleryItem"
	current := g.ident.Current()
	if current == nil {
		return nil, gaterr.E(gaterr.NotAuthenticated, op, nil)
	}
	if errs := validation.Validate(edit); errs != nil {
		return nil, gaterr.Invalid(op, errs)
	}
	item, err := g.GetGalleryItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.opts.Authorizer.CanEdit(current.ID, item) {
		return nil, gaterr.E(gaterr.PermissionDenied, op, nil)
	}

	fields := map[string]interface{}{}
	if edit.Title != nil {
		item.Title = *edit.Title
		fields[fieldkeys.TitleKey] = item.Title
	}
	if edit.Description != nil {
		item.Description = *edit.Description
		fields[fieldkeys.DescriptionKey] = item.Fields()[fieldkeys.DescriptionKey]
	}
	if len(fields) == 0 {
		return item, nil
	}
	item.UpdatedAt = g.now()
	fields[fieldkeys.UpdatedAtKey] = item.UpdatedAt

	ctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	if err := g.docs.Update(ctx, fieldkeys.GalleryCollection, id, fields); err != nil {
		log.Printf("%s %s: %v", op, id, err)
		if errors.Is(err, storage.ErrNoDocument) {
			return nil, gaterr.E(gaterr.NotFound, op, err)
		}
		return nil, gaterr.Classify(op, err)
	}
	return item, nil
}

// DeleteGalleryItem removes an item owned by the authenticated user together with its blob.
func (g *Gateway) DeleteGalleryItem(ctx context.Context, id string) error {
	const op = "media.DeleteGalleryItem"
	current := g.ident.Current()
	if current == nil {
		return gaterr.E(gaterr.NotAuthenticated, op, nil)
	}
	item, err := g.GetGalleryItem(ctx, id)
	if err != nil {
		return err
	}
	if !g.opts.Authorizer.CanDelete(current.ID, item) {
		return gaterr.E(gaterr.PermissionDenied, op, nil)
	}

	bctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	if err := g.docs.Delete(bctx, fieldkeys.GalleryCollection, id); err != nil {
		log.Printf("%s %s: %v", op, id, err)
		return gaterr.Classify(op, err)
	}
	if item.Path != "" {
		if err := g.removeBlob(item.Path); err != nil {
			log.Printf("%s: removing blob %s failed: %v", op, item.Path, err)
		}
	}
	g.publish(ctx, remotejob.Event{Type: remotejob.GalleryItemDeleted, UserID: current.ID, ItemID: id, Path: item.Path})
	return nil
}

func (g *Gateway) requireProfile(ctx context.Context, op, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.BackendTimeout)
	defer cancel()
	ok, err := storage.Exists(ctx, g.docs, fieldkeys.UsersCollection, userID)
	if err != nil {
		log.Printf("%s: profile lookup for %s failed: %v", op, userID, err)
		return gaterr.Classify(op, err)
	}
	if !ok {
		return gaterr.E(gaterr.Consistency, op, fmt.Errorf("no profile for identity %s", userID))
	}
	return nil
}

// removeBlob deletes an orphaned upload. It runs on its own deadline since the request context
// may already be done.
func (g *Gateway) removeBlob(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.BackendTimeout)
	defer cancel()
	return g.blobs.Delete(ctx, path)
}

func (g *Gateway) publish(ctx context.Context, e remotejob.Event) {
	if g.opts.Events != nil {
		g.opts.Events.Publish(ctx, e)
	}
}

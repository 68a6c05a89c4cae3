package media_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"igstore/blob"
	"igstore/collections"
	"igstore/fieldkeys"
	"igstore/gaterr"
	"igstore/identity"
	"igstore/media"
	"igstore/remotejob"
	testutils "igstore/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []remotejob.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e remotejob.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []remotejob.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]remotejob.Event(nil), p.events...)
}

type fixture struct {
	gateway *media.Gateway
	docs    *testutils.MemoryStore
	blobs   *testutils.FakeBlobStore
	ident   *identity.Client
	events  *recordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		docs:   testutils.NewMemoryStore(),
		blobs:  testutils.NewFakeBlobStore(),
		ident:  identity.NewClient(testutils.NewFakeIdentity(), time.Second),
		events: &recordingPublisher{},
	}
	f.gateway = media.New(f.blobs, f.docs, f.ident, media.Options{Events: f.events})
	return f
}

// signIn creates an account with a profile document and returns its id.
func (f *fixture) signIn(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.ident.Create(ctx, email, "secret1")
	require.NoError(t, err)
	profile := &collections.UserProfile{ID: id.ID, Email: email}
	require.NoError(t, f.docs.Set(ctx, fieldkeys.UsersCollection, id.ID, profile.Fields()))
	return id.ID
}

func TestUploadProgress(t *testing.T) {
	f := newFixture()
	var events []media.Event

	url, err := f.gateway.Upload(context.Background(), media.Asset{Data: []byte("0123456789")}, "images/a",
		media.WithProgress(func(e media.Event) { events = append(events, e) }))
	require.NoError(t, err)
	assert.Equal(t, testutils.URL("images/a"), url)

	require.NotEmpty(t, events)
	assert.Equal(t, media.Running, events[0].State)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent, "progress went backwards at %d", i)
		assert.LessOrEqual(t, events[i].Percent, 100.0)
	}
	last := events[len(events)-1]
	assert.Equal(t, media.Success, last.State)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, url, last.URL)
	assert.Equal(t, int64(10), last.BytesTransferred)

	obj, ok := f.blobs.Object("images/a")
	require.True(t, ok)
	assert.Equal(t, fieldkeys.DefaultContentType, obj.Meta.ContentType)
}

func TestUploadPauseAndResume(t *testing.T) {
	f := newFixture()
	f.blobs.Gate = make(chan struct{})
	var events []media.Event

	_, err := f.gateway.Upload(context.Background(), media.Asset{Data: []byte("0123456789")}, "images/p",
		media.WithProgress(func(e media.Event) {
			events = append(events, e)
			if e.State == media.Paused {
				close(f.blobs.Gate)
			}
		}))
	require.NoError(t, err)

	var states []media.State
	for i, e := range events {
		if i == 0 || e.State != events[i-1].State {
			states = append(states, e.State)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, e.Percent, events[i-1].Percent, "progress went backwards at %d", i)
		}
		if e.State == media.Paused {
			assert.Equal(t, 40.0, e.Percent)
		}
	}
	assert.Equal(t, []media.State{media.Running, media.Paused, media.Running, media.Success}, states)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name string
		code blob.Code
		want media.UploadCode
	}{
		{"unauthorized", blob.CodeUnauthorized, media.PermissionDenied},
		{"unknown", blob.CodeUnknown, media.UnknownFailure},
		{"canceled by backend", blob.CodeCanceled, media.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.blobs.FailWith(tt.code)
			var last media.Event

			_, err := f.gateway.Upload(context.Background(), media.Asset{Data: []byte("x")}, "p",
				media.WithProgress(func(e media.Event) { last = e }))
			assert.True(t, errors.Is(err, gaterr.ErrUpload))
			assert.Equal(t, tt.want, media.UploadCodeOf(err))
			assert.Equal(t, media.Failed, last.State)
			assert.Equal(t, string(tt.want), last.Code)
		})
	}
}

func TestUploadCanceledByCaller(t *testing.T) {
	f := newFixture()
	f.blobs.Gate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.gateway.Upload(ctx, media.Asset{Data: []byte("0123456789")}, "p",
		media.WithProgress(func(e media.Event) {
			if e.BytesTransferred > 0 {
				cancel()
			}
		}))
	assert.Equal(t, media.Canceled, media.UploadCodeOf(err))
	_, stored := f.blobs.Object("p")
	assert.False(t, stored)
}

func TestUploadRejectsEmptyAsset(t *testing.T) {
	f := newFixture()
	_, err := f.gateway.Upload(context.Background(), media.Asset{}, "p")
	assert.True(t, errors.Is(err, gaterr.ErrValidation))
	assert.Equal(t, 0, f.blobs.Uploads())
}

func TestConcurrentUploadsToSamePath(t *testing.T) {
	f := newFixture()
	f.blobs.Gate = make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, data := range []string{"first", "second"} {
		wg.Add(1)
		go func(i int, data string) {
			defer wg.Done()
			_, errs[i] = f.gateway.Upload(context.Background(), media.Asset{Data: []byte(data)}, "same")
		}(i, data)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.blobs.Gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 2, f.blobs.Uploads())
	obj, ok := f.blobs.Object("same")
	require.True(t, ok)
	assert.Contains(t, []string{"first", "second"}, string(obj.Data))
}

func TestUploadProfilePhoto(t *testing.T) {
	f := newFixture()
	url, err := f.gateway.UploadProfilePhoto(context.Background(), "uid1", media.Asset{Data: []byte("jpg"), ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, testutils.URL("images/usersPhotoUrls/uid1"), url)
	obj, _ := f.blobs.Object("images/usersPhotoUrls/uid1")
	assert.Equal(t, "image/png", obj.Meta.ContentType)
}

func TestStoreGalleryItemUnauthenticated(t *testing.T) {
	f := newFixture()
	_, err := f.gateway.StoreGalleryItem(context.Background(), media.GalleryForm{Title: "t", Img: []byte("img")})

	assert.True(t, errors.Is(err, gaterr.ErrNotAuthenticated))
	assert.Equal(t, 0, f.docs.Count(fieldkeys.GalleryCollection))
	assert.Equal(t, 0, f.blobs.Uploads())
}

func TestStoreGalleryItem(t *testing.T) {
	f := newFixture()
	uid := f.signIn(t, "ada@x.com")
	ctx := context.Background()
	var percents []float64

	item, err := f.gateway.StoreGalleryItem(ctx, media.GalleryForm{Title: "t", Img: []byte("image bytes")},
		media.WithProgress(func(e media.Event) { percents = append(percents, e.Percent) }))
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, uid, item.UserID())
	assert.True(t, strings.HasPrefix(item.Path, fieldkeys.GalleryPhotoPrefix))
	assert.Contains(t, item.Path, uid)
	assert.Equal(t, testutils.URL(item.Path), item.Img)
	assert.Equal(t, 100.0, percents[len(percents)-1])

	stored, err := f.gateway.GetGalleryItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Img, stored.Img)
	assert.Equal(t, "t", stored.Title)
	assert.Equal(t, "", stored.Description)
	assert.Equal(t, collections.UserRef(uid), stored.User)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, remotejob.GalleryItemCreated, events[0].Type)
	assert.Equal(t, item.ID, events[0].ItemID)
}

func TestStoreGalleryItemValidation(t *testing.T) {
	f := newFixture()
	f.signIn(t, "ada@x.com")

	_, err := f.gateway.StoreGalleryItem(context.Background(), media.GalleryForm{})
	var gerr *gaterr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gaterr.Validation, gerr.Kind)
	assert.Contains(t, gerr.Fields, "title")
	assert.Contains(t, gerr.Fields, "img")
	assert.Equal(t, 0, f.blobs.Uploads())
}

func TestStoreGalleryItemRequiresProfile(t *testing.T) {
	f := newFixture()
	_, err := f.ident.Create(context.Background(), "ghost@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.gateway.StoreGalleryItem(context.Background(), media.GalleryForm{Title: "t", Img: []byte("img")})
	assert.True(t, errors.Is(err, gaterr.ErrConsistency))
	assert.Equal(t, 0, f.blobs.Uploads())
}

func TestStoreGalleryItemRemovesBlobWhenDocumentFails(t *testing.T) {
	f := newFixture()
	f.signIn(t, "ada@x.com")
	f.docs.SetError("Add", errors.New("unavailable"))

	_, err := f.gateway.StoreGalleryItem(context.Background(), media.GalleryForm{Title: "t", Img: []byte("img")})
	require.Error(t, err)
	assert.Equal(t, 1, f.blobs.Uploads())
	assert.Equal(t, 0, f.docs.Count(fieldkeys.GalleryCollection))
	assert.Empty(t, f.events.Events())
}

// cancelOnAdd cancels the caller's request while the gallery document is being written.
type cancelOnAdd struct {
	*testutils.MemoryStore
	cancel context.CancelFunc
}

func (s *cancelOnAdd) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	s.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestStoreGalleryItemRemovesBlobWhenRequestIsCanceled(t *testing.T) {
	f := newFixture()
	f.signIn(t, "ada@x.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway = media.New(f.blobs, &cancelOnAdd{MemoryStore: f.docs, cancel: cancel}, f.ident, media.Options{Events: f.events})

	_, err := f.gateway.StoreGalleryItem(ctx, media.GalleryForm{Title: "t", Img: []byte("img")})
	require.Error(t, err)
	assert.Equal(t, 1, f.blobs.Uploads())
	assert.Equal(t, 0, f.blobs.Objects(), "uploaded blob left behind")
	assert.Equal(t, 0, f.docs.Count(fieldkeys.GalleryCollection))
	assert.Empty(t, f.events.Events())
}

func TestListGalleryItemsNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"t1", "t3", "t2"} {
		created := t1
		switch title {
		case "t2":
			created = t1.Add(time.Hour)
		case "t3":
			created = t1.Add(2 * time.Hour)
		}
		item := &collections.GalleryItem{Title: title, User: collections.UserRef("ada"), CreatedAt: created}
		_, err := f.docs.Add(ctx, fieldkeys.GalleryCollection, item.Fields())
		require.NoError(t, err, "item %d", i)
	}
	other := &collections.GalleryItem{Title: "other", User: collections.UserRef("bob"), CreatedAt: t1}
	_, err := f.docs.Add(ctx, fieldkeys.GalleryCollection, other.Fields())
	require.NoError(t, err)

	items, err := f.gateway.ListGalleryItems(ctx, "ada")
	require.NoError(t, err)
	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{"t3", "t2", "t1"}, titles)

	empty, err := f.gateway.ListGalleryItems(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	f.docs.SetError("Query", errors.New("unreachable"))
	_, err = f.gateway.ListGalleryItems(ctx, "ada")
	assert.Error(t, err)
}

func TestUpdateAndDeleteGalleryItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.signIn(t, "ada@x.com")
	item, err := f.gateway.StoreGalleryItem(ctx, media.GalleryForm{Title: "t", Description: "d", Img: []byte("img")})
	require.NoError(t, err)

	title, description := "new title", ""
	updated, err := f.gateway.UpdateGalleryItem(ctx, item.ID, media.GalleryEdit{Title: &title, Description: &description})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "", updated.Description)
	assert.True(t, !updated.UpdatedAt.Before(item.UpdatedAt))

	empty := ""
	_, err = f.gateway.UpdateGalleryItem(ctx, item.ID, media.GalleryEdit{Title: &empty})
	assert.True(t, errors.Is(err, gaterr.ErrValidation))

	// Another user may read but not mutate.
	f.ident.SignOut()
	f.signIn(t, "bob@x.com")
	_, err = f.gateway.UpdateGalleryItem(ctx, item.ID, media.GalleryEdit{Title: &title})
	assert.True(t, errors.Is(err, gaterr.ErrPermissionDenied))
	assert.True(t, errors.Is(f.gateway.DeleteGalleryItem(ctx, item.ID), gaterr.ErrPermissionDenied))

	f.ident.SignOut()
	_, err = f.ident.Authenticate(ctx, "ada@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.gateway.DeleteGalleryItem(ctx, item.ID))

	_, err = f.gateway.GetGalleryItem(ctx, item.ID)
	assert.True(t, errors.Is(err, gaterr.ErrNotFound))
	_, stored := f.blobs.Object(item.Path)
	assert.False(t, stored)
	events := f.events.Events()
	assert.Equal(t, remotejob.GalleryItemDeleted, events[len(events)-1].Type)
}

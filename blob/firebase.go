package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "igstore/cloudlog"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// downloadTokenKey is the object metadata key Firebase Storage reads download tokens from.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// Firebase stores objects in the Firebase Storage bucket with resumable, chunked uploads.
type Firebase struct {
	bucket     *gcs.BucketHandle
	bucketName string
	chunkSize  int
	urlBase    string
}

// NewFirebase opens bucketName through the Firebase App. chunkSize is the resumable chunk size
// and therefore the progress granularity; urlBase is the download host.
func NewFirebase(ctx context.Context, app *firebase.App, bucketName string, chunkSize int, urlBase string) (*Firebase, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate Firebase Storage failed: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketName, err)
	}
	return &Firebase{
		bucket:     bucket,
		bucketName: bucketName,
		chunkSize:  chunkSize,
		urlBase:    strings.TrimRight(urlBase, "/"),
	}, nil
}

func (f *Firebase) Upload(ctx context.Context, path string, r io.Reader, size int64, meta Metadata, onProgress ProgressFunc) (string, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	token := uuid.New().String()
	w := f.bucket.Object(path).NewWriter(wctx)
	w.ChunkSize = f.chunkSize
	w.ContentType = meta.ContentType
	w.Metadata = map[string]string{downloadTokenKey: token}
	for k, v := range meta.Custom {
		w.Metadata[k] = v
	}
	if onProgress != nil {
		w.ProgressFunc = func(sent int64) {
			onProgress(Progress{BytesTransferred: sent, TotalBytes: size})
		}
	}

	if _, err := io.Copy(w, r); err != nil {
		// Cancelling before Close aborts the resumable session instead of finalizing a partial object.
		cancel()
		w.Close()
		return "", wrap(ctx, path, codeFor(err), err)
	}
	if err := w.Close(); err != nil {
		log.Printf("upload %s failed: %v", path, err)
		return "", wrap(ctx, path, codeFor(err), err)
	}
	return f.downloadURL(path, token), nil
}

func (f *Firebase) Delete(ctx context.Context, path string) error {
	err := f.bucket.Object(path).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return wrap(ctx, path, codeFor(err), err)
}

// Close is a no-op; the Firebase App owns the underlying client.
func (f *Firebase) Close() error {
	return nil
}

func (f *Firebase) downloadURL(path, token string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media&token=%s", f.urlBase, f.bucketName, url.PathEscape(path), token)
}

func codeFor(err error) Code {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return CodeUnauthorized
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	return CodeUnknown
}

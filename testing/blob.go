package testing

import (
	"context"
	"errors"
	"io"
	"sync"

	"igstore/blob"
)

// Object is an uploaded blob.
type Object struct {
	Data []byte
	Meta blob.Metadata
}

// FakeBlobStore is a blob.Store in memory. Uploads read the source in ChunkSize pieces and
// report progress after each one.
type FakeBlobStore struct {
	ChunkSize int
	// Gate, when set, holds every upload after its first chunk until it is closed or the
	// upload's context ends. The held upload reports itself paused, then running again.
	Gate chan struct{}

	mu      sync.Mutex
	objects map[string]Object
	failure blob.Code
	uploads int
}

// NewFakeBlobStore returns an empty store reporting progress every 4 bytes.
func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{ChunkSize: 4, objects: map[string]Object{}}
}

// FailWith makes every subsequent upload fail with code. An empty code clears the failure.
func (s *FakeBlobStore) FailWith(code blob.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = code
}

// Object gives the blob stored at path.
func (s *FakeBlobStore) Object(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[path]
	return o, ok
}

// Objects counts the blobs currently stored.
func (s *FakeBlobStore) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Uploads counts completed uploads.
func (s *FakeBlobStore) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// URL is the download URL FakeBlobStore returns for path.
func URL(path string) string {
	return "mem://" + path
}

func (s *FakeBlobStore) Upload(ctx context.Context, path string, r io.Reader, size int64, meta blob.Metadata, onProgress blob.ProgressFunc) (string, error) {
	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()
	if failure != "" {
		return "", &blob.Error{Code: failure, Path: path, Err: errors.New("injected failure")}
	}

	var (
		data  []byte
		buf   = make([]byte, s.ChunkSize)
		first = true
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", &blob.Error{Code: blob.CodeCanceled, Path: path, Err: err}
		}
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if onProgress != nil {
				onProgress(blob.Progress{BytesTransferred: int64(len(data)), TotalBytes: size})
			}
			if first && s.Gate != nil {
				first = false
				if onProgress != nil {
					onProgress(blob.Progress{BytesTransferred: int64(len(data)), TotalBytes: size, Paused: true})
				}
				select {
				case <-s.Gate:
				case <-ctx.Done():
					return "", &blob.Error{Code: blob.CodeCanceled, Path: path, Err: ctx.Err()}
				}
				if onProgress != nil {
					onProgress(blob.Progress{BytesTransferred: int64(len(data)), TotalBytes: size})
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &blob.Error{Code: blob.CodeUnknown, Path: path, Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{Data: data, Meta: meta}
	s.uploads++
	return URL(path), nil
}

func (s *FakeBlobStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return &blob.Error{Code: blob.CodeCanceled, Path: path, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

func (s *FakeBlobStore) Close() error {
	return nil
}

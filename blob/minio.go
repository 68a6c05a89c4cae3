package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	log "igstore/cloudlog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ClientMinio is the subset of *minio.Client the store uses.
type ClientMinio interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// publicReadPolicy lets anonymous clients GET every object of the bucket.
const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// Minio stores objects in an S3 compatible bucket with public read access. Download URLs are
// plain object URLs and never expire.
type Minio struct {
	bucketName string
	baseURL    string
	client     ClientMinio
}

// NewMinio creates a new Minio store instance and opens bucketName for anonymous reads.
// publicURL is the host clients download from; empty means the endpoint itself.
func NewMinio(ctx context.Context, endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool, publicURL string) (*Minio, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		log.Printf("can not create minio client for %s: %v", endpoint, err)
		return nil, fmt.Errorf("failed to create Minio S3 client: %w", err)
	}
	// The bucket may already be public and the key may lack policy rights.
	if err := minioClient.SetBucketPolicy(ctx, bucketName, fmt.Sprintf(publicReadPolicy, bucketName)); err != nil {
		log.Printf("set public read policy on %s failed: %v", bucketName, err)
	}
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + endpoint
	}
	return NewMinioFromClient(minioClient, bucketName, publicURL), nil
}

// NewMinioFromClient wraps an existing client. baseURL is the download host.
func NewMinioFromClient(client ClientMinio, bucketName, baseURL string) *Minio {
	return &Minio{bucketName: bucketName, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (m *Minio) Upload(ctx context.Context, path string, r io.Reader, size int64, meta Metadata, onProgress ProgressFunc) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: meta.Custom,
	}
	if onProgress != nil {
		opts.Progress = &progressReader{total: size, fn: onProgress}
	}
	if _, err := m.client.PutObject(ctx, m.bucketName, path, r, size, opts); err != nil {
		log.Printf("upload %s failed: %v", path, err)
		return "", wrap(ctx, path, minioCode(err), err)
	}
	return m.objectURL(path), nil
}

func (m *Minio) objectURL(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return m.baseURL + "/" + url.PathEscape(m.bucketName) + "/" + strings.Join(segments, "/")
}

func (m *Minio) Delete(ctx context.Context, path string) error {
	err := m.client.RemoveObject(ctx, m.bucketName, path, minio.RemoveObjectOptions{})
	if err != nil {
		log.Printf("remove %s/%s failed: %v", m.bucketName, path, err)
	}
	return wrap(ctx, path, minioCode(err), err)
}

func (m *Minio) Close() error {
	return nil
}

func minioCode(err error) Code {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden {
		return CodeUnauthorized
	}
	return CodeUnknown
}

// progressReader is handed to minio as PutObjectOptions.Progress; minio reads from it as many
// bytes as it has sent.
type progressReader struct {
	mu    sync.Mutex
	total int64
	sent  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.sent += int64(len(b))
	snapshot := Progress{BytesTransferred: p.sent, TotalBytes: p.total}
	p.mu.Unlock()
	p.fn(snapshot)
	return len(b), nil
}

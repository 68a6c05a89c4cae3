package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMinioClient struct {
	mock.Mock
}

func (m *MockMinioClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	// Simulate the SDK draining the source and reporting each part through opts.Progress.
	if args.Error(1) == nil && opts.Progress != nil {
		buf := make([]byte, 4)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				io.CopyN(io.Discard, opts.Progress, int64(n))
			}
			if err != nil {
				break
			}
		}
	}
	return minio.UploadInfo{Size: objectSize}, args.Error(1)
}

func (m *MockMinioClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func TestMinioUpload(t *testing.T) {
	client := new(MockMinioClient)
	store := NewMinioFromClient(client, "mockBucket", "https://minio.local/")
	content := []byte("Hello, World!")

	client.On("PutObject", mock.Anything, "mockBucket", "images/a", mock.Anything, int64(len(content)), mock.Anything).
		Return(minio.UploadInfo{}, nil)

	var progress []Progress
	got, err := store.Upload(context.Background(), "images/a", bytes.NewReader(content), int64(len(content)),
		Metadata{ContentType: "image/jpeg"}, func(p Progress) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/mockBucket/images/a", got)
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, int64(len(content)), last.BytesTransferred)
	assert.Equal(t, int64(len(content)), last.TotalBytes)
	client.AssertExpectations(t)
}

func TestMinioObjectURLDoesNotExpire(t *testing.T) {
	store := NewMinioFromClient(new(MockMinioClient), "igstore", "http://localhost:9000")

	got := store.objectURL("images/users_photo_gallery/1uid-a b")
	assert.Equal(t, "http://localhost:9000/igstore/images/users_photo_gallery/1uid-a%20b", got)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Empty(t, u.RawQuery, "object URL carries a signature or expiry")
}

func TestMinioUploadMapsErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		ctx  func() context.Context
		want Code
	}{
		{
			name: "access denied",
			err:  minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden},
			ctx:  context.Background,
			want: CodeUnauthorized,
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			want: CodeCanceled,
		},
		{
			name: "other",
			err:  errors.New("connection reset"),
			ctx:  context.Background,
			want: CodeUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := new(MockMinioClient)
			client.On("PutObject", mock.Anything, "b", "p", mock.Anything, int64(1), mock.Anything).
				Return(minio.UploadInfo{}, tc.err)
			store := NewMinioFromClient(client, "b", "http://localhost:9000")

			_, err := store.Upload(tc.ctx(), "p", bytes.NewReader([]byte{1}), 1, Metadata{}, nil)
			require.Error(t, err)
			assert.Equal(t, tc.want, CodeOf(err))
		})
	}
}

func TestMinioDelete(t *testing.T) {
	client := new(MockMinioClient)
	client.On("RemoveObject", mock.Anything, "b", "p", mock.Anything).Return(nil)
	store := NewMinioFromClient(client, "b", "http://localhost:9000")

	assert.NoError(t, store.Delete(context.Background(), "p"))
	client.AssertExpectations(t)
}

func TestFirebaseDownloadURL(t *testing.T) {
	f := &Firebase{bucketName: "demo.appspot.com", urlBase: "https://firebasestorage.googleapis.com"}

	got := f.downloadURL("images/users_photo_gallery/1uid", "tok")
	assert.Equal(t,
		"https://firebasestorage.googleapis.com/v0/b/demo.appspot.com/o/images%2Fusers_photo_gallery%2F1uid?alt=media&token=tok",
		got)
}

// Package config reads the gateway settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	// BlobFirebase stores blobs in the Firebase Storage bucket of the project.
	BlobFirebase = "firebase"
	// BlobMinio stores blobs in an S3 compatible MinIO bucket.
	BlobMinio = "minio"
)

type (
	Properties struct {
		Firebase FirebaseProperties   `envPrefix:"FIREBASE_"`
		Blob     BlobProperties       `envPrefix:"BLOB_"`
		Minio    MinioProperties      `envPrefix:"MINIO_"`
		PubSub   PubSubProperties     `envPrefix:"PUBSUB_"`
		Log      LogProperties        `envPrefix:"LOG_"`
		Server   HttpServerProperties `envPrefix:"HTTP_"`
		Timeout  TimeoutProperties    `envPrefix:"TIMEOUT_"`
	}

	FirebaseProperties struct {
		ProjectID       string `env:"PROJECT_ID" envDefault:"ig-store"`
		APIKey          string `env:"API_KEY"`
		CredentialsFile string `env:"CREDENTIALS_FILE"`
		StorageBucket   string `env:"STORAGE_BUCKET"`
	}

	BlobProperties struct {
		Backend string `env:"BACKEND" envDefault:"firebase"`
		// ChunkSize is the resumable upload chunk size in bytes. Progress is reported once per chunk.
		ChunkSize int `env:"CHUNK_SIZE" envDefault:"262144"`
		// DownloadURLBase is the host that serves Firebase Storage download URLs.
		DownloadURLBase string `env:"DOWNLOAD_URL_BASE" envDefault:"https://firebasestorage.googleapis.com"`
	}

	MinioProperties struct {
		Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"igstore"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
		// PublicURL is the host clients download objects from. Defaults to the endpoint.
		PublicURL string `env:"PUBLIC_URL"`
	}

	PubSubProperties struct {
		// Topic receives gallery and account events. Publishing is disabled when empty.
		Topic string `env:"TOPIC"`
	}

	LogProperties struct {
		Project string `env:"PROJECT"`
		Name    string `env:"NAME" envDefault:"igstore_gateway"`
	}

	HttpServerProperties struct {
		// Addr defaults to loopback: the gateway holds a single session for one local client.
		Addr            string        `env:"ADDR" envDefault:"127.0.0.1:8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"0s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
		AllowOrigin     string        `env:"ALLOW_ORIGIN" envDefault:"http://localhost:3000"`
		// MaxUploadBytes bounds multipart bodies on upload endpoints.
		MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`
	}

	TimeoutProperties struct {
		// Backend bounds every identity and document call.
		Backend time.Duration `env:"BACKEND" envDefault:"15s"`
		// Upload bounds a single blob transfer.
		Upload time.Duration `env:"UPLOAD" envDefault:"5m"`
	}
)

// Load reads an optional .env file and then parses the environment into Properties.
func Load() (*Properties, error) {
	// A missing .env file is the normal production case.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads Properties from the current environment only.
func Parse() (*Properties, error) {
	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (p *Properties) validate() error {
	switch p.Blob.Backend {
	case BlobFirebase, BlobMinio:
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", p.Blob.Backend)
	}
	if p.Blob.ChunkSize < 0 {
		return fmt.Errorf("BLOB_CHUNK_SIZE must not be negative, got %d", p.Blob.ChunkSize)
	}
	if p.Timeout.Backend <= 0 || p.Timeout.Upload <= 0 {
		return fmt.Errorf("timeouts must be positive (backend %s, upload %s)", p.Timeout.Backend, p.Timeout.Upload)
	}
	if p.Log.Project == "" {
		p.Log.Project = p.Firebase.ProjectID
	}
	if p.Firebase.StorageBucket == "" {
		p.Firebase.StorageBucket = p.Firebase.ProjectID + ".appspot.com"
	}
	return nil
}

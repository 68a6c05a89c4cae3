package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"igstore/blob"
	log "igstore/cloudlog"
	"igstore/config"
	"igstore/httpapi"
	"igstore/identity"
	"igstore/media"
	"igstore/profile"
	"igstore/remotejob"
	"igstore/session"
	"igstore/storage"
	"igstore/stream"

	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	if err := log.Init(ctx, cfg.Log.Project, cfg.Log.Name); err != nil {
		log.Printf("cloud logging disabled: %v", err)
	}
	defer log.Close()

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		StorageBucket: cfg.Firebase.StorageBucket,
	}, opts...)
	if err != nil {
		log.Fatalf("firebase app: %v", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalf("firestore: %v", err)
	}
	docs := storage.NewFirestoreFromClient(firestoreClient)
	defer docs.Close()

	blobs, err := newBlobStore(ctx, cfg, app)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	defer blobs.Close()

	backend, err := identity.NewFirebase(ctx, app, cfg.Firebase.APIKey)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	ident := identity.NewClient(backend, cfg.Timeout.Backend)
	defer ident.Close()

	events, err := remotejob.NewPublisher(ctx, cfg.Firebase.ProjectID, cfg.PubSub.Topic, opts...)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer events.Close()

	var orchestrator *session.Orchestrator
	hub := stream.NewHub(func() session.Status { return orchestrator.Status() })

	gallery := media.New(blobs, docs, ident, media.Options{
		BackendTimeout: cfg.Timeout.Backend,
		UploadTimeout:  cfg.Timeout.Upload,
		Events:         events,
		Observer:       hub.UploadProgress,
	})
	profiles := profile.New(docs, ident, gallery, cfg.Timeout.Backend)
	orchestrator = session.New(ident, profiles, events)
	orchestrator.OnChange(hub.SessionChanged)
	orchestrator.Start()
	defer orchestrator.Shutdown()

	go hub.Run()
	defer hub.Close()

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.New(orchestrator, profiles, gallery, httpapi.Options{
			AllowOrigin:    cfg.Server.AllowOrigin,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			Events:         hub.Handler(cfg.Server.AllowOrigin),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Print("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("Starting server at: http://%s", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server: %v", err)
		return
	}
	<-done
}

func newBlobStore(ctx context.Context, cfg *config.Properties, app *firebase.App) (blob.Store, error) {
	if cfg.Blob.Backend == config.BlobMinio {
		return blob.NewMinio(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.Minio.Bucket, cfg.Minio.UseSSL, cfg.Minio.PublicURL)
	}
	return blob.NewFirebase(ctx, app, cfg.Firebase.StorageBucket, cfg.Blob.ChunkSize, cfg.Blob.DownloadURLBase)
}

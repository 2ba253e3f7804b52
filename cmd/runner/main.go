package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/richvergo/subtract-sub005"
	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/internal/server"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/log"
	"github.com/richvergo/subtract-sub005/pkg/util/call"
)

type runner struct {
	cfg         *config.Config
	redis       *store.RedisStore
	badger      *store.BadgerRunStore
	runs        store.RunStore
	workflows   store.WorkflowSource
	credentials store.CredentialStore
	artifacts   *artifact.BlobStore
	hub         *events.Hub
	engine      *engine.Engine
	apiServer   *server.Server
	httpServer  *http.Server
}

var (
	ErrCreateRunStore      = errors.New("failed to create run store")
	ErrCreateCredentials   = errors.New("failed to create credential store")
	ErrCreateArtifactStore = errors.New("failed to create artifact store")
	ErrNoSecretSource      = errors.New("sealed credentials require redis")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	r := &runner{cfg: cfg}
	r.setupLogging()

	if err := r.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (r *runner) run() error {
	defer r.closeStores()

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	err := call.Perform(ctx,
		r.initializeStores,
		call.Plain(r.initializeCredentials),
		r.initializeArtifacts,
		call.Plain(r.initializeEngine),
	)
	if err != nil {
		return err
	}
	r.startServer()

	<-ctx.Done()
	r.shutdown()
	return nil
}

func (r *runner) setupLogging() {
	level := log.ParseLevel(r.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Workflow runner starting",
		slog.String("log_level", r.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("store_backend", r.cfg.StoreBackend),
		slog.String("redis_addr", r.cfg.Redis.Addr),
		slog.Int("redis_db", r.cfg.Redis.DB),
		slog.String("badger_path", r.cfg.BadgerPath),
		slog.String("workflow_dir", r.cfg.WorkflowDir),
		slog.String("artifact_bucket", r.cfg.ArtifactBucketURL),
		slog.String("api_host", r.cfg.APIHost),
		slog.Int("api_port", r.cfg.APIPort))
}

func (r *runner) initializeStores(ctx context.Context) error {
	var err error

	switch r.cfg.StoreBackend {
	case config.BackendBadger:
		r.badger, err = store.NewBadgerRunStore(r.cfg.BadgerPath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateRunStore, err)
		}
		r.runs = r.badger
		r.workflows = store.NewMemoryStore()
	default:
		r.redis, err = store.NewRedisStore(ctx,
			store.RedisConfig{
				Addr:     r.cfg.Redis.Addr,
				Password: r.cfg.Redis.Password,
				Prefix:   r.cfg.Redis.Prefix,
				DB:       r.cfg.Redis.DB,
			},
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateRunStore, err)
		}
		r.runs = r.redis
		r.workflows = r.redis
	}

	if r.cfg.WorkflowDir != "" {
		r.workflows = store.NewDirSource(r.cfg.WorkflowDir)
	}
	return nil
}

func (r *runner) initializeCredentials() error {
	if r.cfg.CredentialsKey == "" {
		slog.Warn("No credentials key configured, login workflows will fail")
		return nil
	}
	if r.redis == nil {
		return fmt.Errorf("%w: %w", ErrCreateCredentials, ErrNoSecretSource)
	}

	key, err := r.cfg.CredentialsKeyBytes()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateCredentials, err)
	}
	creds, err := store.NewSealedCredentials(r.redis, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateCredentials, err)
	}
	r.credentials = creds
	return nil
}

func (r *runner) initializeArtifacts(ctx context.Context) error {
	var err error
	r.artifacts, err = artifact.NewBlobStore(ctx,
		r.cfg.ArtifactBucketURL, r.cfg.ArtifactBaseURL,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateArtifactStore, err)
	}
	return nil
}

func (r *runner) initializeEngine() error {
	r.hub = events.NewHub()
	r.engine = engine.New(r.cfg, engine.Dependencies{
		Workflows:   r.workflows,
		Runs:        r.runs,
		Credentials: r.credentials,
		Artifacts:   r.artifacts,
		Targets:     target.NewChromeProvider(r.cfg.BrowserRemoteURL),
		Events:      r.hub,
	})
	return nil
}

func (r *runner) startServer() {
	r.apiServer = server.NewServer(r.engine, r.hub, r.artifacts)
	mux := r.apiServer.SetupRoutes()

	r.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", r.cfg.APIHost, r.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", r.httpServer.Addr))
		err := r.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (r *runner) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), r.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := r.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	r.apiServer.CloseWebSockets()
	r.hub.Close()

	slog.Info("Server exited")
}

func (r *runner) closeStores() {
	if r.artifacts != nil {
		_ = r.artifacts.Close()
	}
	if r.badger != nil {
		_ = r.badger.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

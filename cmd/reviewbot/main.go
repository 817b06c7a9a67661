package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/analysis"
	githubadapter "github.com/ericfisherdev/reviewbot/internal/adapter/driven/github"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/objectstore"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/paper"
	redisadapter "github.com/ericfisherdev/reviewbot/internal/adapter/driven/redis"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/registry"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/services"
	sqliteadapter "github.com/ericfisherdev/reviewbot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/typeset"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/venueapi"
	"github.com/ericfisherdev/reviewbot/internal/adapter/driven/workspace"
	httphandler "github.com/ericfisherdev/reviewbot/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/reviewbot/internal/adapter/driving/web"
	"github.com/ericfisherdev/reviewbot/internal/application"
	"github.com/ericfisherdev/reviewbot/internal/config"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"bot", cfg.BotName,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"venues_file", cfg.VenuesFile,
		"workers", cfg.Workers,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the job queue database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	schemaVersion, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", schemaVersion)

	// 5. Create the GitHub client and check the token.
	ghClient := githubadapter.NewClient(cfg.GitHubToken)
	login, err := ghClient.AuthenticatedUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("github client created", "login", login)

	// 6. Build the venue snapshot.
	venues := application.NewVenueRegistry(config.VenueFile(cfg.VenuesFile), ghClient, slog.Default())
	if err := venues.Refresh(ctx); err != nil {
		return err
	}

	// 7. Wire the remaining driven adapters. Redis and the object store are optional.
	queue := sqliteadapter.NewJobRepo(db)
	locks := application.NewIssueLocks()

	var deduper driven.DeliveryDeduper
	if cfg.RedisURL != "" {
		d, err := redisadapter.NewDeduper(cfg.RedisURL, cfg.DedupeTTL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := d.Close(); closeErr != nil {
				slog.Error("error closing redis client", "error", closeErr)
			}
		}()
		deduper = d
		slog.Info("delivery deduplication enabled")
	}

	var store driven.ArtifactStore
	if cfg.HasObjectStore() {
		s, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			LinkTTL:   cfg.PreviewLinkTTL,
		})
		if err != nil {
			return err
		}
		store = s
		slog.Info("preview uploads enabled", "bucket", cfg.S3Bucket)
	}

	venueAPI := venueapi.NewClient(cfg.HTTPTimeout)
	validator := application.NewReferenceValidator(
		registry.NewDOIResolver(registry.DefaultDOIBaseURL, cfg.HTTPTimeout),
		registry.NewCrossref(registry.DefaultCrossrefBaseURL, cfg.CrossrefMailto, cfg.HTTPTimeout),
		slog.Default(),
	)

	// 8. Create the dispatcher and the job workers.
	dispatcher := application.NewDispatcher(
		cfg.BotName,
		venues,
		ghClient,
		queue,
		venueAPI,
		locks,
		application.WebhookRetryPolicy,
		slog.Default(),
	)

	jobs := application.NewJobs(application.JobDeps{
		Bot:        cfg.BotName,
		Venues:     venues,
		Tracker:    ghClient,
		Workspace:  workspace.NewGit(cfg.GitHubToken),
		Typesetter: typeset.NewPandoc(cfg.PandocBinary, cfg.ResourcesDir, cfg.CompileTimeout),
		Inspector:  paper.NewInspector(),
		Analyzer:   analysis.NewAnalyzer(),
		Validator:  validator,
		Publisher:  application.NewArtifactPublisher(ghClient, application.DefaultRetryPolicy, slog.Default()),
		VenueAPI:   venueAPI,
		Builds:     services.NewBookBuilder(cfg.BuildToken, cfg.ServiceTimeout),
		Archives:   services.NewArchiver(cfg.ArchiveToken, cfg.ServiceTimeout),
		Store:      store,
		Locks:      locks,
		Policy:     application.DefaultRetryPolicy,
		WorkRoot:   cfg.WorkRoot,
		Logger:     slog.Default(),
	})

	orchestrator := application.NewOrchestrator(
		queue,
		ghClient,
		jobs.Handlers(),
		locks,
		cfg.Workers,
		cfg.PollInterval,
		slog.Default(),
	)
	if err := orchestrator.Recover(ctx); err != nil {
		return err
	}

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		orchestrator.Start(ctx)
	}()

	// 9. Create HTTP handlers and register routes.
	previews := application.NewPreviewService(queue, venues, slog.Default())
	apiHandler := httphandler.NewHandler(
		dispatcher,
		venues,
		queue,
		previews,
		deduper,
		httphandler.Secrets{WebhookSecret: cfg.WebhookSecret, AdminToken: cfg.AdminToken},
		slog.Default(),
	)
	webHandler := webhandler.NewHandler(queue, previews, venues, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default(), func(mux *http.ServeMux) {
		webhandler.RegisterRoutes(mux, webHandler)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 10. Log startup complete.
	slog.Info("reviewbot started",
		"listen_addr", cfg.ListenAddr,
		"venues", venues.Len(),
		"workers", cfg.Workers,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Stop accepting webhooks, then wait for in-flight jobs. Jobs still
	// running when the process exits are failed by Recover on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	workers.Wait()

	// 13. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

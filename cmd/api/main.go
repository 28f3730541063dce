package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/extractor"
	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API service", "port", cfg.Server.Port)

	if cfg.Session.Secret == "" {
		slog.Error("session secret is required (FG_SESSION_SECRET)")
		os.Exit(1)
	}

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(context.Background(), cfg.Extractor.Dimension); err != nil {
		slog.Error("init schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// Embedding extractor
	var ext extractor.Extractor
	switch cfg.Extractor.Mode {
	case "local":
		ort.SetSharedLibraryPath(getONNXLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			slog.Error("init onnx runtime", "error", err)
			os.Exit(1)
		}
		defer ort.DestroyEnvironment()

		local, err := extractor.NewLocal(cfg.Extractor)
		if err != nil {
			slog.Error("init local extractor", "error", err)
			os.Exit(1)
		}
		defer local.Close()
		ext = local
		slog.Info("local extractor ready", "models_dir", cfg.Extractor.ModelsDir)
	default:
		ext = extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Dimension, cfg.Extractor.Timeout)
		slog.Info("remote extractor configured", "url", cfg.Extractor.URL)
	}

	issuer := session.NewIssuer(cfg.Session.Secret, cfg.Session.Lifetime)
	cookies := session.Cookies{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure}

	svc := faceauth.NewService(db, ext, issuer, minioStore, producer, faceauth.Options{
		Threshold:      cfg.Matching.Threshold,
		Dimension:      cfg.Extractor.Dimension,
		ExtractTimeout: cfg.Extractor.Timeout,
		MaxImages:      cfg.Ingest.MaxImages,
		MaxImageBytes:  cfg.Ingest.MaxImageBytes,
	})

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Re-broadcast auth events to the admin live feed
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeLive(ctx, "api-live", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.AuthEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return err
		}
		hub.BroadcastEvent(&dto.WSEvent{
			Type: ev.Type,
			Data: handlers.AuthEventResponse(ev),
		})
		return nil
	})
	if err != nil {
		slog.Warn("start live event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		AdminAPIKey: cfg.Server.AdminAPIKey,
		DB:          db,
		MinIO:       minioStore,
		Producer:    producer,
		Hub:         hub,
		Service:     svc,
		Cookies:     cookies,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

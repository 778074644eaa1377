package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pliu/smartaid/internal/ai"
	"github.com/pliu/smartaid/internal/config"
	"github.com/pliu/smartaid/internal/handlers"
	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/storage"
	"github.com/pliu/smartaid/internal/store/sqlstore"
	"github.com/pliu/smartaid/internal/ws"
)

var configPath = flag.String("config", "", "path to a YAML config file")

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.InsecureSessionSecret() {
		logging.Warn().Msg("SESSION_SECRET is not set, session cookies are signed with the public development key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped")
	}
	logging.Info().Msg("Server stopped")
}

// run starts the HTTP server, the chat hub and the Redis relay, and returns
// once ctx is cancelled and they have all stopped.
func run(ctx context.Context, cfg config.Config) error {
	store, err := sqlstore.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	aiService, err := newAIService(cfg, store)
	if err != nil {
		return err
	}
	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	broker, err := newBroker(gctx, cfg, g)
	if err != nil {
		return err
	}
	hub := ws.NewHub(store, broker)
	g.Go(func() error { return hub.Run(gctx) })

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg, store, aiService, objects, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logging.Info().Str("addr", cfg.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newAIService returns a nil service when no API key is configured; the
// endpoints that need it then answer with the missing credential error.
func newAIService(cfg config.Config, store *sqlstore.SQLStore) (handlers.AIService, error) {
	client, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.AITimeout)
	if errors.Is(err, ai.ErrMissingCredential) {
		logging.Warn().Msg("GEMINI_API_KEY is not set, AI features are disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return ai.NewGateway(client, store, ai.Options{
		ChatModel:     cfg.ChatModel,
		DocumentModel: cfg.DocumentModel,
		Timeout:       cfg.AITimeout,
	}), nil
}

func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		m := cfg.MinIO
		objects, err := storage.NewMinioStore(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		return objects, nil
	default:
		objects, err := storage.NewLocalStore(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("open storage dir: %w", err)
		}
		return objects, nil
	}
}

// newBroker uses Redis fan-out when REDIS_ADDR is set so several instances
// can serve the same groups; the relay runs in g.
func newBroker(ctx context.Context, cfg config.Config, g *errgroup.Group) (ws.Broker, error) {
	if cfg.RedisAddr == "" {
		return ws.NewLocalBroker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	broker := ws.NewRedisBroker(client)
	if err := broker.Start(ctx); err != nil {
		client.Close()
		return nil, err
	}
	g.Go(func() error {
		defer client.Close()
		return broker.Run(ctx)
	})
	logging.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis chat broker")
	return broker, nil
}

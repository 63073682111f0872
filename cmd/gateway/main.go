// Command gateway runs the Streaming Gateway: it mints signed HLS playlist
// URLs and serves (rewriting as needed) the underlying manifests and media
// segments out of the object store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/laurikarhu/streamcdn/internal/audit"
	"github.com/laurikarhu/streamcdn/internal/config"
	"github.com/laurikarhu/streamcdn/internal/gateway"
	"github.com/laurikarhu/streamcdn/internal/httpmw"
	"github.com/laurikarhu/streamcdn/internal/metrics"
	"github.com/laurikarhu/streamcdn/internal/objectstore"
	"github.com/laurikarhu/streamcdn/internal/ratelimit"
	"github.com/laurikarhu/streamcdn/internal/security"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("base_url", cfg.URLBase()).
		Str("minio_bucket", cfg.MinioBucket).
		Msg("starting streaming gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := objectstore.NewS3Reader(ctx, objectstore.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseTLS:    cfg.MinioUseTLS,
		Region:    cfg.MinioRegion,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object store")
	}

	auditStore, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("mint audit disabled: failed to connect to postgres")
		auditStore = nil
	} else {
		defer auditStore.Close()
		log.Info().Msg("connected to postgres for mint audit")
	}

	redisClient, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("refresh rate limit falling back to local-only: failed to connect to redis")
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info().Msg("connected to redis for refresh rate limiting")
	}
	limiter := ratelimit.New(redisClient, cfg.RefreshRateLimitPerIP, cfg.RefreshRateLimitWindow, cfg.RefreshLocalBurst)

	signer := security.NewSigner(cfg.SigningSecret)

	originHandler := gateway.NewOriginHandler(signer, store, cfg.PlaylistTTL, cfg.SegmentTTL)
	metadataHandler := gateway.NewMetadataHandler(signer, cfg.URLBase(), cfg.PlaylistTTL, cfg.AvailableBitrates, auditStore, limiter)

	registry := metrics.NewGatewayRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /origin/{resource_path...}", originHandler.ServeHTTP)
	mux.HandleFunc("GET /api/stream/{track_id}", metadataHandler.Get)
	mux.HandleFunc("POST /api/stream/refresh", metadataHandler.Refresh)

	handler := httpmw.Recovery(httpmw.WithRequestID(httpmw.Logging(registry, mux)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway forced to shutdown")
	}
	cancel()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("gateway server exited with error")
	}
	log.Info().Msg("gateway exited")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

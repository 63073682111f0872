// Command edge runs the CDN Edge: a caching reverse proxy in front of the
// Streaming Gateway's signed-URL origin endpoint.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/laurikarhu/streamcdn/internal/config"
	"github.com/laurikarhu/streamcdn/internal/edge"
	"github.com/laurikarhu/streamcdn/internal/edgecache"
	"github.com/laurikarhu/streamcdn/internal/httpmw"
	"github.com/laurikarhu/streamcdn/internal/metrics"
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
		Str("origin_base_url", cfg.OriginBaseURL).
		Int("edge_cache_max_size", cfg.EdgeCacheMaxSize).
		Msg("starting cdn edge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := metrics.NewEdgeRegistry()

	cache := edgecache.New(cfg.EdgeCacheMaxSize)
	// Eviction-time instrumentation is limited to a lock-free counter
	// increment — the callback runs inside Cache.Set's locked section, and
	// Cache.Stats() would deadlock on the same mutex.
	cache.OnEvict(func(_ *edgecache.Entry) {
		registry.CacheEvictions.Inc()
	})

	// One long-lived client with a pooling transport, per the process's
	// HTTP client lifecycle contract: 30s total timeout, 10s dial timeout,
	// redirects followed.
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ttl := edge.TTLPolicy{
		PlaylistTTL: cfg.EdgeCachePlaylistTTL,
		SegmentTTL:  cfg.EdgeCacheSegmentTTL,
		StaticTTL:   cfg.EdgeCacheStaticTTL,
	}
	proxy := edge.NewProxy(cache, cfg.OriginBaseURL, ttl, client, registry)
	metadataProxy := edge.NewMetadataProxy(cfg.OriginAPIBaseURL, client)
	introspection := edge.NewIntrospection(cache)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /origin/{resource_path...}", proxy.ServeHTTP)
	mux.HandleFunc("GET /api/stream/{track_id}", metadataProxy.Forward)
	mux.HandleFunc("POST /api/stream/refresh", metadataProxy.Forward)
	mux.HandleFunc("GET /stats", introspection.Stats)
	mux.HandleFunc("GET /cache/entries", introspection.Entries)
	mux.HandleFunc("GET /cache/entries/{id}", introspection.EntryByKey)
	mux.HandleFunc("GET /cache/summary", introspection.Summary)

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
		log.Info().Str("addr", server.Addr).Msg("edge listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logCacheStatsPeriodically(gCtx, cache)
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down edge")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("edge forced to shutdown")
	}
	cancel()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("edge server exited with error")
	}
	log.Info().Msg("edge exited")
}

// logCacheStatsPeriodically logs the cache's counters once every 300
// seconds, reading them through the same lock as every other cache
// operation, until ctx is canceled.
func logCacheStatsPeriodically(ctx context.Context, cache *edgecache.Cache) {
	ticker := time.NewTicker(300 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := cache.Stats()
			log.Info().
				Int64("hits", stats.Hits).
				Int64("misses", stats.Misses).
				Float64("hit_rate", stats.HitRate).
				Int("items", stats.Items).
				Int64("bytes", stats.Bytes).
				Msg("edge cache stats")
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

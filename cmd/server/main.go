// Package main is the entry point for the bikefinder server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randytsao24/bikefinder/internal/api"
	"github.com/randytsao24/bikefinder/internal/cache"
	"github.com/randytsao24/bikefinder/internal/config"
	"github.com/randytsao24/bikefinder/internal/events"
	"github.com/randytsao24/bikefinder/internal/finder"
	"github.com/randytsao24/bikefinder/internal/gbfs"
	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/routing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	fetcher := gbfs.NewFetcher(cfg.GBFSStatusURL, cfg.GBFSInformationURL,
		gbfs.WithTimeout(cfg.FeedTimeout),
		gbfs.WithLogger(logger),
	)

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.CacheTTL),
		cache.WithMaxStaleness(cfg.MaxStaleness),
		cache.WithLogger(logger),
	}

	var publisher *events.Publisher
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, fetcher.StatusURL(), logger)
		cacheOpts = append(cacheOpts, cache.WithRefreshHook(publisher.Publish))
		logger.Info("publishing refresh events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	snapshots := cache.New(fetcher, cacheOpts...)
	geocoder := location.NewGeocoder(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.HTTPTimeout)
	router := routing.NewClient(cfg.OSRMURL, cfg.HTTPTimeout)

	stationFinder := finder.New(geocoder, snapshots, router, finder.Config{
		DefaultCity:    cfg.DefaultCity,
		DefaultCountry: cfg.DefaultCountry,
		Logger:         logger,
	})

	// warm the cache so the first request does not pay for the fetch
	go func() {
		if _, err := snapshots.Get(context.Background()); err != nil {
			logger.Warn("initial snapshot fetch failed", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(stationFinder, snapshots),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("bikefinder server starting", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("closing event publisher", "error", err)
		}
	}
	logger.Info("server shut down")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

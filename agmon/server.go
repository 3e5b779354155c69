package main

import (
	"context"
	"net/http"
	"time"

	"github.com/itohio/agmon/pkg/config"
	"github.com/itohio/agmon/pkg/exporter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// newMux exposes the enabled HTTP exporters.
func newMux(cfg *config.Config, src exporter.Source, d exporter.Device, o exporter.Options, aqi24h func() (int, bool)) *http.ServeMux {
	mux := http.NewServeMux()
	if cfg.Exporter.Prometheus {
		c := exporter.NewCollector(src, d, o, aqi24h)
		mux.Handle("/metrics", exporter.MetricsHandler(exporter.NewRegistry(c)))
	}
	if cfg.Exporter.JSON {
		mux.Handle("/measures/current", exporter.JSONHandler(src, d, o))
	}
	return mux
}

// serve runs an HTTP server on addr until ctx is done.
func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
	}()

	log.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return ctx.Err()
}

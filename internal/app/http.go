package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/metrics"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// serveHTTP runs handler on addr until ctx is done, then shuts down
// gracefully. A listen failure is returned; a normal shutdown is not.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown failed", zap.String("addr", addr), zap.Error(err))
		}
		return nil
	}
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, prom *metrics.Prometheus, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, prom.Handler())
	return serveHTTP(ctx, cfg.Address, mux, log)
}

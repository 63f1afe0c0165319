package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/romanschejbal/eqlabs/netcfg"
)

// shutdownTimeout bounds the time the server waits for in-flight scrapes
// once the context is done.
const shutdownTimeout = 5 * time.Second

// Serve exposes the metrics of gatherer on the /metrics endpoint of the
// configured listen address until ctx is done.
func Serve(ctx context.Context, cfg netcfg.Prometheus,
	gatherer prometheus.Gatherer) error {

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen on %v: %w", cfg.Listen, err)
	}

	return serve(ctx, lis, gatherer)
}

// serve runs the metrics endpoint on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener,
	gatherer prometheus.Gatherer) error {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		gatherer, promhttp.HandlerOpts{},
	))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(lis)
	}()

	log.Infof("Prometheus exporter started on %v/metrics", lis.Addr())

	select {
	case err := <-errChan:
		return err

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), shutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Infof("Prometheus exporter stopped")

	return nil
}

package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// NewRouter routes GET /metrics to m.
func NewRouter(m *Metrics) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return router
}

// Serve exposes m on addr until ctx is done. It returns once the listener is
// bound; the returned wait function blocks until the server has shut down.
func Serve(ctx context.Context, addr string, m *Metrics) (wait func() error, err error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics: listen on %s", addr)
	}

	srv := &http.Server{
		Handler:           handlers.CompressHandler(NewRouter(m)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("Serving metrics", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics: serve")
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait, nil
}

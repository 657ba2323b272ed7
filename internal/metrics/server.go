package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/status"
)

const shutdownTimeout = 5 * time.Second

// StatusSource locates the status records served by /status.
type StatusSource struct {
	Fs  afero.Fs
	Dir string
	Now func() time.Time
}

func (s StatusSource) scan() ([]status.Entry, error) {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return status.Scan(fs, s.Dir, now())
}

// NewRouter returns the HTTP routes of the metrics endpoint:
//
//	GET /metrics  Prometheus exposition
//	GET /status   visible status records as JSON
//	GET /healthz  liveness
func NewRouter(m *Metrics, src StatusSource, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.NopLogger()
	}

	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.Handler(func() {
			entries, err := src.scan()
			if err != nil {
				logger.Warn("status scan failed", "error", err.Error())
				return
			}
			m.SetStatusRecords(entries)
		}).ServeHTTP(w, r)
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		entries, err := src.scan()
		if err != nil {
			logger.Warn("status scan failed", "error", err.Error())
			http.Error(w, "failed to read status records", http.StatusInternalServerError)
			return
		}
		visible := status.Visible(entries)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(visible); err != nil {
			logger.Debug("status response write failed", "error", err.Error())
		}
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Serve listens on addr and serves handler until ctx is done, then shuts
// the server down. A listen failure is returned immediately.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("metrics server started", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	logger.Info("metrics server stopped")
	return nil
}

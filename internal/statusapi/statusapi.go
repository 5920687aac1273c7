// Package statusapi exposes the running server over HTTP: Prometheus
// metrics, a status snapshot, the viewer list and the recent stream history
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/internal/session"
)

// Source is what the API reports on
type Source interface {
	Status() server.Status
	Sessions() []session.Session
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsResponse is the body of /api/stats
type StatsResponse struct {
	Samples []metrics.Sample `json:"samples"`
	Latest  *metrics.Sample  `json:"latest,omitempty"`
}

type api struct {
	src     Source
	history *metrics.History
}

// NewRouter builds the HTTP handler. gatherer and history may be nil, in
// which case /metrics and /api/stats are not mounted.
func NewRouter(src Source, history *metrics.History, gatherer prometheus.Gatherer) http.Handler {
	a := &api{src: src, history: history}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/sessions", a.handleSessions)
		r.Get("/sessions/{id}", a.handleSession)
		if history != nil {
			r.Get("/stats", a.handleStats)
		}
	})
	return r
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.src.Status())
}

func (a *api) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := a.src.Sessions()
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, s := range a.src.Sessions() {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown session "+id)
}

// handleStats serves samples newer than ?since= (unix ms)
func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = n
	}

	resp := StatsResponse{Samples: a.history.Since(since)}
	if resp.Samples == nil {
		resp.Samples = []metrics.Sample{}
	}
	if latest, ok := a.history.Latest(); ok {
		resp.Latest = &latest
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] statusapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Serve runs the API on addr until ctx is done
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] status API listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package ssrwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/leochiu-a/chrome-ssr-inspector/kit"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/config"
)

// HTTPServer exposes the watcher's query surface over HTTP.
type HTTPServer struct {
	watcher *Watcher
	cfg     config.HTTPConfig
	logger  *slog.Logger
	srv     *http.Server
}

// NewHTTPServer builds the query API around a watcher.
func NewHTTPServer(w *Watcher, cfg config.HTTPConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{watcher: w, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(kitContext)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if cfg.TokenHash != "" {
			r.Use(s.bearerAuth)
		}
		r.Post("/observe", s.handleObserve)
		r.Get("/detect", s.handleDetect)
		r.Get("/pages", s.handlePages)
		r.Route("/pages/{id}", func(r chi.Router) {
			r.Get("/aggregate", s.handleAggregate)
			r.Get("/phase", s.handlePhase)
			r.Post("/report", s.handleReport)
			r.Get("/report/latest", s.handleLatestReport)
			r.Delete("/", s.handleStop)
		})
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *HTTPServer) ListenAndServe() error {
	s.logger.Info("ssrwatch: http api listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ssrwatch: http serve: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// kitContext carries chi's request ID into the shared context keys so both
// transports label work the same way.
func kitContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerAuth checks the Authorization header against the configured
// bcrypt hash. The hash lives in config, never the token itself.
func (s *HTTPServer) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.cfg.TokenHash), []byte(token)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleObserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageID string `json:"page_id"`
		URL    string `json:"url"`
		Mode   string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pageCfg := config.PageConfig{ID: req.PageID, URL: req.URL, Mode: req.Mode}
	if err := s.watcher.ObservePage(r.Context(), pageCfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "observing",
		"page_id": req.PageID,
	})
}

func (s *HTTPServer) handleDetect(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	res, err := s.watcher.Detect(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Detection)
}

func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.watcher.Pages()})
}

func (s *HTTPServer) handleAggregate(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "id")

	// Optional per-element lookup rides on the aggregate route.
	if xpath := r.URL.Query().Get("xpath"); xpath != "" {
		tag, err := s.watcher.Classify(pageID, xpath)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"xpath": xpath, "origin": tag})
		return
	}

	totals, err := s.watcher.Aggregate(r.Context(), pageID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handlePhase(w http.ResponseWriter, r *http.Request) {
	phase, err := s.watcher.Phase(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": phase})
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.watcher.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *HTTPServer) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.watcher.LatestReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, "no reports for page")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.watcher.StopPage(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

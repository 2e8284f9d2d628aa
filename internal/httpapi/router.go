// Package httpapi serves stored evidence objects and the operational
// endpoints next to the gRPC API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// FileReader is the read side of object storage.
type FileReader interface {
	ReadFile(objectPath string) (io.ReadCloser, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Files          FileReader
	DB             Pinger
	Metrics        http.Handler
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter mounts /files/*, /health and /metrics.
func NewRouter(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handler{files: cfg.Files, db: cfg.DB, logger: logger}
	r.Get("/health", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Files != nil {
		r.Get("/files/*", h.file)
	}
	return r
}

type handler struct {
	files  FileReader
	db     Pinger
	logger *zap.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (h *handler) file(w http.ResponseWriter, r *http.Request) {
	objectPath := chi.URLParam(r, "*")
	rc, err := h.files.ReadFile(objectPath)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidPath):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("failed to read object", zap.String("path", objectPath), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("object copy interrupted", zap.String("path", objectPath), zap.Error(err))
	}
}

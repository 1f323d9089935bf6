// Package server is the HTTP surface of VisionVoice: image upload, health,
// generated audio, request history and metrics.
package server

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/c360studio/visionvoice/describe"
	"github.com/c360studio/visionvoice/journal"
	"github.com/c360studio/visionvoice/narration"
)

// HealthStatus is the fixed status line of the health endpoint.
const HealthStatus = "VisionVoice API is running ✓"

// Config configures the HTTP server.
type Config struct {
	// ListenAddr is the HTTP listen address
	ListenAddr string
	// MaxUploadBytes caps the request body of an upload
	MaxUploadBytes int64
	// RequestTimeout bounds one describe request
	RequestTimeout time.Duration
	// RetryAfter is advertised when the captioning backend stays unavailable
	RetryAfter time.Duration
	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string
	Logger         *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 30 * time.Second
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Describer runs the describe pipeline.
type Describer interface {
	Describe(ctx context.Context, img image.Image) (*describe.Result, error)
}

// Readiness reports the captioner configuration state: whether it has been
// checked yet and the cached result.
type Readiness interface {
	Status() (checked bool, err error)
}

// History lists recent requests.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server is the HTTP API surface.
type Server struct {
	cfg       Config
	describer Describer
	readiness Readiness
	audio     *narration.Store
	history   History
	metrics   http.Handler
	router    chi.Router
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAudioStore serves generated audio from store.
func WithAudioStore(store *narration.Store) Option {
	return func(s *Server) {
		s.audio = store
	}
}

// WithHistory enables the history endpoint.
func WithHistory(h History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a Server.
func New(cfg Config, d Describer, ready Readiness, opts ...Option) *Server {
	cfg.applyDefaults()

	s := &Server{
		cfg:       cfg,
		describer: d,
		readiness: ready,
		router:    chi.NewRouter(),
		logger:    cfg.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/", s.optionsHandler)
	r.Options("/describe-image", s.optionsHandler)
	r.Options("/static/audio/{filename}", s.optionsHandler)
	r.Options("/history", s.optionsHandler)

	r.Get("/", s.handleHealth)
	r.Post("/describe-image", s.handleDescribeImage)
	r.Get("/static/audio/{filename}", s.handleAudio)
	r.Get("/history", s.handleHistory)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to Serve.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(describe.ContextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", describe.RequestIDFrom(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

func (s *Server) optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// --- JSON helpers ---

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// Package web exposes the lead capture pipeline over HTTP so that any chat
// transport can forward messages to it.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clientflow/leadcheck/internal/bot"
	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/metrics"
)

const maxBodyBytes = 64 << 10

// Deliverer routes inbound messages.
type Deliverer interface {
	Deliver(ctx context.Context, in bot.Inbound) ([]bot.Reply, error)
	Count() int
}

// Drainer hands out deferred replies.
type Drainer interface {
	Drain(identity string) []bot.Reply
}

// LeadReader reads recorded leads.
type LeadReader interface {
	All(ctx context.Context) ([]leads.Record, error)
	ForUser(ctx context.Context, userID string) ([]leads.Record, error)
	Stats(ctx context.Context) (leads.Stats, error)
}

// Options configures a Server.
type Options struct {
	Config   config.ServerConfig
	Brand    string
	Router   Deliverer
	Outbox   Drainer
	Leads    LeadReader
	Document config.DocumentConfig
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	config      config.ServerConfig
	brand       string
	router      Deliverer
	outbox      Drainer
	leads       LeadReader
	document    config.DocumentConfig
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	rateLimiter *RateLimiter
	httpServer  *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	perMinute := opts.Config.InboundPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Server{
		config:      opts.Config,
		brand:       opts.Brand,
		router:      opts.Router,
		outbox:      opts.Outbox,
		leads:       opts.Leads,
		document:    opts.Document,
		gatherer:    opts.Gatherer,
		logger:      opts.Logger,
		rateLimiter: NewRateLimiter(perMinute, time.Minute),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	addr := s.config.Addr
	if addr == "" {
		addr = ":10000"
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", slog.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Webhook-Token"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler(s.gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/messages", s.handleMessage)
		r.Get("/outbox/{identity}", s.handleOutbox)
		r.Get("/leads", s.handleLeads)
		r.Get("/stats", s.handleStats)
		r.Get("/document", s.handleDocument)
	})

	return r
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Lead data must never sit in a shared cache.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// requireToken checks X-Webhook-Token when a token is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.WebhookToken != "" {
			got := r.Header.Get("X-Webhook-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.WebhookToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid webhook token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	brand := s.brand
	if brand == "" {
		brand = "leadcheck"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s lead capture is running (%d active sessions)\n", brand, s.router.Count())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

type messageResponse struct {
	Replies []bot.Reply `json:"replies"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in bot.Inbound
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if key := strings.TrimSpace(in.Identity); key != "" && !s.rateLimiter.Allow(key) {
		s.logger.Warn("inbound rate limit exceeded", slog.String("identity", key))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
		return
	}

	replies, err := s.router.Deliver(r.Context(), in)
	if err != nil {
		if errors.Is(err, bot.ErrUnroutable) {
			writeError(w, http.StatusBadRequest, "identity is required")
			return
		}
		s.logger.Error("message delivery failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Replies: nonNil(replies)})
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	writeJSON(w, http.StatusOK, messageResponse{Replies: nonNil(s.outbox.Drain(identity))})
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	var (
		records []leads.Record
		err     error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		records, err = s.leads.ForUser(r.Context(), userID)
	} else {
		records, err = s.leads.All(r.Context())
	}
	if err != nil {
		s.logger.Error("listing leads failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "lead store unavailable")
		return
	}
	if records == nil {
		records = []leads.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leads": records})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.leads.Stats(r.Context())
	if err != nil {
		s.logger.Error("lead stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "lead store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leads":           st,
		"active_sessions": s.router.Count(),
	})
}

// handleDocument serves the document offered to verified leads. The file
// path stays on the server; clients only see the download name.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.document.Path == "" {
		writeError(w, http.StatusNotFound, "no document configured")
		return
	}

	f, err := os.Open(s.document.Path)
	if err != nil {
		s.logger.Warn("document unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "document unavailable")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "document unavailable")
		return
	}

	name := s.document.Filename
	if name == "" {
		name = filepath.Base(s.document.Path)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func nonNil(replies []bot.Reply) []bot.Reply {
	if replies == nil {
		return []bot.Reply{}
	}
	return replies
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package server renders the status page and serves the feed, live host
// stats and Prometheus metrics over HTTP.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"hostfeed/internal/logging"
	"hostfeed/internal/metrics"
	"hostfeed/internal/models"
)

//go:embed templates/*.html.tmpl
var embeddedTemplates embed.FS

const (
	feedErrorTitle    = "Feed error"
	readHeaderTimeout = 5 * time.Second
)

// FeedReader loads the persisted feed.
type FeedReader interface {
	Read() (models.Feed, error)
}

// StatsSource produces a live host snapshot.
type StatsSource interface {
	Snapshot(ctx context.Context) models.Stats
}

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	Addr               string
	PushInterval       time.Duration
	StatsRatePerSecond float64
	Logger             *slog.Logger
}

// Server wraps HTTP serving of the page, the API and the websocket.
type Server struct {
	httpServer   *http.Server
	feeds        FeedReader
	stats        StatsSource
	limiter      *rate.Limiter
	pushInterval time.Duration
	page         *template.Template
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a configured HTTP server.
func New(feeds FeedReader, stats StatsSource, opts Options) (*Server, error) {
	page, err := template.New("index.html.tmpl").Funcs(pageFuncs).ParseFS(embeddedTemplates, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = 5 * time.Second
	}
	if opts.StatsRatePerSecond <= 0 {
		opts.StatsRatePerSecond = 2
	}
	burst := int(opts.StatsRatePerSecond)
	if burst < 1 {
		burst = 1
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		feeds:        feeds,
		stats:        stats,
		limiter:      rate.NewLimiter(rate.Limit(opts.StatsRatePerSecond), burst),
		pushInterval: opts.PushInterval,
		page:         page,
		logger:       logging.OrDiscard(opts.Logger),
		now:          time.Now,
	}
	s.registerRoutes(mux)
	return s, nil
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve blocks and serves HTTP traffic on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("GET /api/stats", s.rateLimit(s.handleStats))
	mux.HandleFunc("GET /ws/stats", s.handleStatsWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type pageData struct {
	Feed    models.Feed
	Summary metrics.FeedSummary
	Stats   models.Stats
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	feed := s.loadFeed()
	data := pageData{
		Feed:    feed,
		Summary: metrics.Summarize(feed, s.now()),
		Stats:   s.stats.Snapshot(r.Context()),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("render page", "error", err)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.loadFeed())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.ObserveStatsRequest("http", false)
	writeJSON(w, http.StatusOK, s.stats.Snapshot(r.Context()))
}

// loadFeed never fails: a feed that cannot be read is reported as a
// single bad item so the page keeps rendering.
func (s *Server) loadFeed() models.Feed {
	feed, err := s.feeds.Read()
	if err != nil {
		s.logger.Warn("feed unreadable", "error", err)
		return models.Feed{Items: []models.StatusItem{{
			Title:     feedErrorTitle,
			Status:    models.StatusBad,
			Detail:    err.Error(),
			Timestamp: models.NewTimestamp(s.now()),
		}}}
	}
	return feed
}

func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.ObserveStatsRequest("http", true)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(s.limiter.Limit()), 'f', -1, 64))
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// Package api serves composite score reports and report history over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/history"
	"github.com/sells-group/esg-cli/internal/metrics"
	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/report"
)

// Reporter produces scores and reports.
type Reporter interface {
	Generate(ctx context.Context, req model.Request) (*report.Report, error)
	Score(ctx context.Context, req model.Request) (*report.Score, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// Gatherer backs GET /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// Server holds the handler dependencies.
type Server struct {
	reports Reporter
	history history.Store
	metrics *metrics.Metrics
}

// NewRouter builds the HTTP handler.
func NewRouter(reports Reporter, store history.Store, opts Options) http.Handler {
	s := &Server{reports: reports, history: store, metrics: opts.Metrics}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/report", func(r chi.Router) {
		r.Get("/generateReport", s.handleGenerateReport)
		r.Get("/history", s.handleHistory)
		r.Get("/history/recent", s.handleRecentHistory)
		r.Get("/history/export", s.handleExportHistory)
	})
	r.Get("/stardog/calculateSum", s.handleCalculateSum)

	return r
}

// observe records request metrics under the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v before committing status so an unencodable body
// becomes a 500 instead of a truncated response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

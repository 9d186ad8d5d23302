// Package httpapi exposes dashboards, series and manual runs over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	apimw "github.com/hamed0406/infrawatch/internal/httpapi/middleware"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// Enqueuer accepts a check for immediate execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, id domain.CheckID) error
}

type Server struct {
	Logger   *zap.Logger
	Views    *metrics.Aggregator
	Checks   repo.CheckStore
	Alerts   repo.AlertStore
	Queue    Enqueuer
	Recorder *metrics.Recorder
}

func NewServer(l *zap.Logger, views *metrics.Aggregator, checks repo.CheckStore, alerts repo.AlertStore, q Enqueuer, rec *metrics.Recorder) *Server {
	return &Server{Logger: l, Views: views, Checks: checks, Alerts: alerts, Queue: q, Recorder: rec}
}

// Router wires every route. Rate limits are requests per minute per client IP.
func (s *Server) Router(keys apimw.Keys, origins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.Recorder.Middleware)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.Recorder.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))

			r.Get("/metrics/latency-24h", s.handleLatency24h)
			r.Get("/metrics/uptime-24h", s.handleUptime24h)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/assets", s.handleAssets)
			r.Get("/assets/{assetID}", s.handleAsset)
			r.Get("/assets/{assetID}/latency-7d", s.handleAssetLatency7d)
			r.Get("/assets/{assetID}/uptime-7d", s.handleAssetUptime7d)
			r.Get("/checks", s.handleListChecks)
			r.Get("/alerts", s.handleListAlerts)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Use(apimw.RequireAdmin(keys))

			r.Post("/checks/{checkID}/run", s.handleRunCheck)
		})
	})

	return r
}

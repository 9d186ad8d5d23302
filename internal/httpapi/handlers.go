package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	apimw "github.com/hamed0406/infrawatch/internal/httpapi/middleware"
	"github.com/hamed0406/infrawatch/internal/queue"
	"github.com/hamed0406/infrawatch/internal/repo"
)

const alertsPageSize = 200

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps store errors to responses; anything but ErrNotFound is a 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.Logger.Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func assetID(r *http.Request) domain.AssetID {
	return domain.AssetID(chi.URLParam(r, "assetID"))
}

func (s *Server) handleLatency24h(w http.ResponseWriter, r *http.Request) {
	series, err := s.Views.GlobalLatency24h(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleUptime24h(w http.ResponseWriter, r *http.Request) {
	series, err := s.Views.GlobalUptime24h(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleAssetLatency7d(w http.ResponseWriter, r *http.Request) {
	series, err := s.Views.AssetLatency7d(r.Context(), assetID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleAssetUptime7d(w http.ResponseWriter, r *http.Request) {
	series, err := s.Views.AssetUptime7d(r.Context(), assetID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Views.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ov, err := s.Views.AssetOverview(r.Context(), q.Get("q"), q.Get("tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	d, err := s.Views.AssetDetail(r.Context(), assetID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Checks.ListChecks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cs == nil {
		cs = []*domain.Check{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.AlertFilter{
		OpenOnly: q.Get("open") == "1" || q.Get("open") == "true",
		AssetID:  domain.AssetID(q.Get("asset")),
		Limit:    alertsPageSize,
	}
	as, err := s.Alerts.ListAlerts(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if as == nil {
		as = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, as)
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	id := domain.CheckID(chi.URLParam(r, "checkID"))
	if _, err := s.Checks.GetCheck(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Queue.Enqueue(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			s.Logger.Warn("run_rejected", zap.String("check_id", string(id)), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.fail(w, r, err)
		return
	}
	s.Logger.Info("run_queued", zap.String("check_id", string(id)),
		zap.String("role", string(apimw.RoleFrom(r.Context()))))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "check_id": string(id)})
}

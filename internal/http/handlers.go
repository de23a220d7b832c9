package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/period"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readyCheck != nil {
		if err := s.readyCheck(r.Context()); err != nil {
			log.FromContext(r.Context()).Error("Readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	periodStart, cacheKey, err := s.periodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if data, ok := s.dashboardCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, data)
		return
	}

	data, err := s.dashboards.Dashboard(r.Context(), periodStart)
	if err != nil {
		log.FromContext(r.Context()).Error("Dashboard assembly failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to assemble dashboard")
		return
	}
	s.dashboardCache.Set(cacheKey, data)
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.dashboards.Status(r.Context(), time.Now().UTC())
	if err != nil {
		log.FromContext(r.Context()).Error("Status assembly failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to assemble status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	labels, err := s.dashboards.PeriodLabels(r.Context(), time.Now().UTC())
	if err != nil {
		log.FromContext(r.Context()).Error("Period listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list periods")
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"periods": labels})
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	periodStart, _, err := s.periodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	projection, err := s.dashboards.Projection(r.Context(), periodStart)
	if errors.Is(err, core.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "no budget plan covers this period")
		return
	}
	if err != nil {
		log.FromContext(r.Context()).Error("Projection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to project budget")
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.imports.History(r.Context())
	if err != nil {
		log.FromContext(r.Context()).Error("Import history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	if history == nil {
		history = []core.ImportRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": history})
}

func (s *Server) handleResetImport(w http.ResponseWriter, r *http.Request) {
	sourceFile := r.URL.Query().Get("source_file")
	if sourceFile == "" {
		writeError(w, http.StatusBadRequest, "source_file query parameter is required")
		return
	}

	removed, err := s.imports.ResetSourceFile(r.Context(), sourceFile)
	if err != nil {
		log.FromContext(r.Context()).Error("Reset failed", "source_file", sourceFile, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset source file")
		return
	}
	s.InvalidateViews()
	writeJSON(w, http.StatusOK, map[string]any{
		"source_file": sourceFile,
		"removed":     removed,
	})
}

func (s *Server) handleSavePlan(w http.ResponseWriter, r *http.Request) {
	var plan core.BudgetPlan
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan payload: "+err.Error())
		return
	}

	if err := s.imports.SavePlan(r.Context(), plan); err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.FromContext(r.Context()).Error("Plan save failed", "plan_id", plan.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save plan")
		return
	}
	s.InvalidateViews()
	writeJSON(w, http.StatusCreated, map[string]string{"plan_id": plan.ID})
}

// periodParam resolves the optional ?period= label. An absent label means
// the current period, which is cached under its own key.
func (s *Server) periodParam(r *http.Request) (time.Time, string, error) {
	label := r.URL.Query().Get("period")
	if label == "" {
		return time.Time{}, "current", nil
	}
	start, err := period.Parse(label, s.interval)
	if err != nil {
		return time.Time{}, "", err
	}
	return start, label, nil
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyPlanID,
		core.ErrZeroDate,
		core.ErrNegativeAmount,
		core.ErrInvalidSavingsRate,
		core.ErrInvalidSavingsBase,
		core.ErrEmptyCategory,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left to do but log.
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

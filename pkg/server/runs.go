package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/storage"
	"github.com/h2integrate/h2integrate/pkg/types"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runs, err := s.storage.ListRuns(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list runs", slog.Any("error", err))
		writeJSONError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, runs)
}

// getRun writes the error response itself and reports false when the run
// cannot be returned.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (types.Run, bool) {
	ctx := r.Context()
	id := r.PathValue("id")
	run, err := s.storage.GetRun(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "run not found", http.StatusNotFound)
		return run, false
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get run", slog.String("runID", id), slog.Any("error", err))
		writeJSONError(w, "failed to get run", http.StatusInternalServerError)
		return run, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	cases, err := s.storage.ListCases(ctx, run.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list cases", slog.String("runID", run.ID), slog.Any("error", err))
		writeJSONError(w, "failed to list cases", http.StatusInternalServerError)
		return
	}
	if cases == nil {
		cases = []types.Case{}
	}
	writeJSON(w, cases)
}

type evaluateRequest struct {
	DesignVariables map[string]float64 `json:"design_variables"`
}

type evaluateResponse struct {
	RunID   string             `json:"runID"`
	Case    types.Case         `json:"case"`
	Metrics map[string]float64 `json:"metrics"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.evaluator == nil {
		writeJSONError(w, "no plant loaded", http.StatusServiceUnavailable)
		return
	}

	// Limit body size to 1MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}

	res, err := s.evaluator.Analyze(ctx, req.DesignVariables)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "evaluation failed", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	resp := evaluateResponse{RunID: res.Run.ID, Metrics: map[string]float64{}}
	if len(res.Cases) > 0 {
		resp.Case = res.Cases[0]
	}
	if res.Model != nil {
		resp.Metrics = res.Model.Metrics()
	}
	log.Ctx(ctx).InfoContext(ctx, "evaluated plant", slog.String("runID", res.Run.ID), slog.Int("overrides", len(req.DesignVariables)))
	writeJSON(w, resp)
}

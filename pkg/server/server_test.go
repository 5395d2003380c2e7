package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/h2integrate/h2integrate/pkg/driver"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/storage"
	"github.com/h2integrate/h2integrate/pkg/storage/storagemock"
	"github.com/h2integrate/h2integrate/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Analyze(ctx context.Context, overrides map[string]float64) (*driver.Result, error) {
	args := m.Called(ctx, overrides)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*driver.Result), args.Error(1)
}

func serve(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := (&Server{serverName: "test"}).Attach(&storagemock.MockDatabase{}, nil)
	w := serve(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestSecurityHeaders(t *testing.T) {
	srv := (&Server{}).Attach(&storagemock.MockDatabase{}, nil)

	t.Run("plain http", func(t *testing.T) {
		w := serve(t, srv, http.MethodGet, "/healthz", "")
		assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
		assert.Empty(t, w.Header().Get("X-Frame-Options"))
	})

	t.Run("behind tls proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		assert.Equal(t, "max-age=63072000", w.Header().Get("Strict-Transport-Security"))
	})
}

func TestRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := types.Run{ID: "run-1", Name: "plant", Driver: driver.KindAnalysis, StartedAt: started, Cases: 1, BestIteration: -1}

	t.Run("list", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("ListRuns", mock.Anything).Return([]types.Run{run}, nil)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs", "")
		require.Equal(t, http.StatusOK, w.Code)

		var got []types.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "run-1", got[0].ID)
		assert.True(t, got[0].StartedAt.Equal(started))
	})

	t.Run("list empty", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("ListRuns", mock.Anything).Return(nil, nil)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("list fails", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("ListRuns", mock.Anything).Return(nil, errors.New("unavailable"))
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"failed to list runs"}`, w.Body.String())
	})

	t.Run("get", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetRun", mock.Anything, "run-1").Return(run, nil)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs/run-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		var got types.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "plant", got.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetRun", mock.Anything, "nope").Return(types.Run{}, storage.ErrNotFound)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("cases", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetRun", mock.Anything, "run-1").Return(run, nil)
		db.On("ListCases", mock.Anything, "run-1").Return([]types.Case{
			{RunID: "run-1", Iteration: 0, Objectives: map[string]float64{"LCOH": 4.2}, Feasible: true},
		}, nil)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs/run-1/cases", "")
		require.Equal(t, http.StatusOK, w.Code)
		var got []types.Case
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, 4.2, got[0].Objectives["LCOH"])
	})

	t.Run("cases of missing run", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetRun", mock.Anything, "nope").Return(types.Run{}, storage.ErrNotFound)
		w := serve(t, (&Server{}).Attach(db, nil), http.MethodGet, "/api/runs/nope/cases", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		db.AssertNotCalled(t, "ListCases", mock.Anything, mock.Anything)
	})

	t.Run("gzip", func(t *testing.T) {
		runs := make([]types.Run, 50)
		for i := range runs {
			runs[i] = run
		}
		db := &storagemock.MockDatabase{}
		db.On("ListRuns", mock.Anything).Return(runs, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		(&Server{}).Attach(db, nil).setupHandler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		var got []types.Run
		require.NoError(t, json.NewDecoder(zr).Decode(&got))
		assert.Len(t, got, 50)
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ev := &mockEvaluator{}
		ev.On("Analyze", mock.Anything, map[string]float64{"wind.num_turbines": 12}).Return(&driver.Result{
			Run: types.Run{ID: "run-9"},
			Cases: []types.Case{{
				RunID:           "run-9",
				DesignVariables: map[string]float64{"wind.num_turbines": 12},
				Feasible:        true,
			}},
		}, nil)
		w := serve(t, (&Server{}).Attach(&storagemock.MockDatabase{}, ev), http.MethodPost, "/api/evaluate",
			`{"design_variables":{"wind.num_turbines":12}}`)
		require.Equal(t, http.StatusOK, w.Code)

		var got evaluateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "run-9", got.RunID)
		assert.Equal(t, 12.0, got.Case.DesignVariables["wind.num_turbines"])
		assert.Empty(t, got.Metrics)
		ev.AssertExpectations(t)
	})

	t.Run("invalid body", func(t *testing.T) {
		ev := &mockEvaluator{}
		w := serve(t, (&Server{}).Attach(&storagemock.MockDatabase{}, ev), http.MethodPost, "/api/evaluate", "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ev.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	})

	t.Run("evaluation fails", func(t *testing.T) {
		ev := &mockEvaluator{}
		ev.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("failed to set design variable wind.x"))
		w := serve(t, (&Server{}).Attach(&storagemock.MockDatabase{}, ev), http.MethodPost, "/api/evaluate",
			`{"design_variables":{"wind.x":1}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.JSONEq(t, `{"error":"failed to set design variable wind.x"}`, w.Body.String())
	})

	t.Run("no plant", func(t *testing.T) {
		w := serve(t, (&Server{}).Attach(&storagemock.MockDatabase{}, nil), http.MethodPost, "/api/evaluate", "{}")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		w := serve(t, (&Server{}).Attach(&storagemock.MockDatabase{}, &mockEvaluator{}), http.MethodGet, "/api/evaluate", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestRunRequiresStorage(t *testing.T) {
	assert.Error(t, (&Server{}).Run(context.Background()))
}

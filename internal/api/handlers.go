package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MJE43/roulette-tracker-go/internal/session"
	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

const (
	defaultTopN     = 8
	maxTopN         = 38
	defaultHistory  = 20
	maxAutospinRuns = 1000
	maxIntervalMs   = 60_000
)

// POST /api/v1/spin
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Spin(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset(r.Context())
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// PUT /api/v1/variant
func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	var req VariantRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON format")
		return
	}
	v, err := wheel.ParseVariant(req.Variant)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "variant", "variant must be european or american")
		return
	}
	if err := s.session.SetVariant(r.Context(), v, req.Clear); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// GET /api/v1/stats/hot?n=8
func (s *Server) handleHot(w http.ResponseWriter, r *http.Request) {
	n, ok := s.queryInt(w, r, "n", defaultTopN, 1, maxTopN)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, NumbersResponse{
		Variant: s.session.Variant(),
		N:       n,
		Numbers: nonNil(s.session.HotNumbers(n)),
	})
}

// GET /api/v1/stats/cold?n=8
func (s *Server) handleCold(w http.ResponseWriter, r *http.Request) {
	n, ok := s.queryInt(w, r, "n", defaultTopN, 1, maxTopN)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, NumbersResponse{
		Variant: s.session.Variant(),
		N:       n,
		Numbers: nonNil(s.session.ColdNumbers(n)),
	})
}

// GET /api/v1/stats/colors
func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	c := s.session.Colors()
	s.writeJSON(w, http.StatusOK, ColorsResponse{
		Total:  c.Red + c.Black + c.Green,
		Colors: c,
	})
}

// GET /api/v1/predict
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	have := len(s.session.History())
	p, err := s.session.PredictNext()
	if errors.Is(err, stats.ErrInsufficientData) {
		s.writeJSON(w, http.StatusOK, PredictResponse{
			Ready:    false,
			Required: stats.MinPredictionHistory,
			Have:     have,
		})
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PredictResponse{Ready: true, Have: have, Result: &p})
}

// GET /api/v1/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryInt(w, r, "limit", defaultHistory, 1, stats.HistoryLimit)
	if !ok {
		return
	}
	history := s.session.History()
	total := len(history)
	if len(history) > limit {
		history = history[:limit]
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Variant: s.session.Variant(),
		Total:   total,
		History: history,
	})
}

// GET /api/v1/betting
func (s *Server) handleBetting(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.BettingState())
}

// GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

// GET /api/v1/autospin
func (s *Server) handleAutospinStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

// POST /api/v1/autospin
func (s *Server) handleAutospinStart(w http.ResponseWriter, r *http.Request) {
	var req AutospinRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON format")
		return
	}

	count := s.spinCount
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 || count > maxAutospinRuns {
		s.errorHandler.HandleValidationError(w, r, "count",
			fmt.Sprintf("count must be between 1 and %d", maxAutospinRuns))
		return
	}
	interval := s.spinInterval
	if req.IntervalMs != nil {
		if *req.IntervalMs < 0 || *req.IntervalMs > maxIntervalMs {
			s.errorHandler.HandleValidationError(w, r, "interval_ms",
				fmt.Sprintf("interval_ms must be between 0 and %d", maxIntervalMs))
			return
		}
		interval = time.Duration(*req.IntervalMs) * time.Millisecond
	}

	st, err := s.runner.Start(count, interval, func(res session.SpinResult) {
		s.logger.Debug("autospin result",
			zap.String("label", res.Label),
			zap.String("color", string(res.Color)),
			zap.String("next_stake", res.Betting.CurrentStake.String()))
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, st)
}

// DELETE /api/v1/autospin
func (s *Server) handleAutospinStop(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Stop(); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	select {
	case <-s.runner.Done():
	case <-r.Context().Done():
		s.errorHandler.HandleError(w, r, r.Context().Err())
		return
	}
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) stateResponse() StateResponse {
	st := s.session.Snapshot()
	return StateResponse{State: st, TotalSpins: st.Frequency.Total()}
}

// queryInt reads an optional integer parameter bounded to [lo, hi]. On
// failure it writes the validation error and returns ok=false.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, key string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		s.errorHandler.HandleValidationError(w, r, key,
			fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi))
		return 0, false
	}
	return v, true
}

// decodeBody decodes an optional JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

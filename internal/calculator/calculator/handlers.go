package calculator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/surebet"
)

const maxCalculateBody = 1 << 20

// RegisterHTTP registers calculator endpoints onto r.
func (c *SurebetCalculator) RegisterHTTP(r chi.Router) {
	r.Post("/surebets/calculate", c.handleCalculate)
	r.Get("/surebets/top", c.handleTopSurebets)
	r.Get("/surebets/recent", c.handleRecentSurebets)
	r.Get("/surebets/status", c.handleStatus)
	r.Post("/alerts/test", c.handleTestAlert)
	r.Post("/async/stop", c.handleStopAsync)
	r.Post("/async/start", c.handleStartAsync)
}

// handleCalculate runs the engine on odds supplied by the caller.
func (c *SurebetCalculator) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCalculateBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
			"kind":  "invalid_request",
		})
		return
	}

	var (
		res surebet.Result
		err error
	)
	if req.RoundingUnit != 0 {
		res, err = surebet.ComputeWithUnit(req.Odds, req.TotalStake, req.RoundingUnit)
	} else {
		res, err = surebet.Compute(req.Odds, req.TotalStake)
	}
	if err != nil {
		kind := "invalid_input"
		var ve *surebet.ValidationError
		if errors.As(err, &ve) {
			kind = ve.Kind()
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "kind": kind})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleTopSurebets returns the most profitable surebets of the latest scan
func (c *SurebetCalculator) handleTopSurebets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 10, 100)
	minProfit := floatParam(q.Get("min_profit"))

	// Filter by match status: "live" (started), "upcoming" (not started), or empty (all)
	status := q.Get("status")

	snap, source, err := c.latestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, ErrParserNotConfigured) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("Failed to load surebets in handleTopSurebets", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to fetch matches from parser", "details": err.Error()})
		return
	}

	arbs := filterByStatus(snap.Surebets, status, time.Now().UTC(), c.cfg.LiveMaxAge)
	arbs = filterByProfit(arbs, minProfit)
	if limit < len(arbs) {
		arbs = arbs[:limit]
	}
	if arbs == nil {
		arbs = []models.Arbitrage{}
	}

	writeJSON(w, http.StatusOK, TopResponse{
		Surebets:  arbs,
		ScannedAt: snap.ScannedAt,
		Matches:   snap.Matches,
		Source:    source,
	})
}

// handleRecentSurebets returns surebets stored within the last N minutes
func (c *SurebetCalculator) handleRecentSurebets(w http.ResponseWriter, r *http.Request) {
	if c.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "surebet storage is not configured"})
		return
	}

	q := r.URL.Query()
	minutes := intParam(q.Get("minutes"), 60, 7*24*60)
	minProfit := floatParam(q.Get("min_profit"))

	arbs, err := c.storage.GetRecentSurebets(r.Context(), minutes, minProfit)
	if err != nil {
		slog.Error("Failed to load recent surebets", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load recent surebets"})
		return
	}
	if arbs == nil {
		arbs = []models.Arbitrage{}
	}
	writeJSON(w, http.StatusOK, arbs)
}

// handleStatus returns calculator status information
func (c *SurebetCalculator) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":             "ok",
		"parser_configured":  c.matches != nil,
		"storage_configured": c.storage != nil,
		"cache_configured":   c.cache != nil,
		"alerts_configured":  c.notifier != nil,
		"async_running":      c.IsAsyncRunning(),
		"mode":               "on-demand",
		"total_stake":        c.cfg.TotalStake,
		"rounding_unit":      c.cfg.RoundingUnit,
	}
	if c.IsAsyncRunning() {
		status["mode"] = "async"
	}
	if c.matches == nil {
		status["error"] = ErrParserNotConfigured.Error()
	}

	if c.notifier != nil {
		status["alert_queue"] = c.notifier.QueueLen()
	}
	if c.publisher != nil {
		status["feed"] = c.publisher.Metrics()
	}

	c.mu.RLock()
	if c.last != nil {
		status["last_scan_at"] = c.last.ScannedAt
		status["last_scan_surebets"] = len(c.last.Surebets)
		status["last_scan_matches"] = c.last.Matches
	}
	c.mu.RUnlock()

	writeJSON(w, http.StatusOK, status)
}

// handleTestAlert queues a test message to the alert chat.
func (c *SurebetCalculator) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if c.notifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "alerts are not configured"})
		return
	}

	var req TestAlertRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCalculateBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if req.Message == "" {
		req.Message = "Test alert from surebet calculator"
	}

	if err := c.notifier.SendTestAlert(r.Context(), req.Message); err != nil {
		slog.Error("Failed to queue test alert", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "queue": c.notifier.QueueLen()})
}

// intParam parses a positive int, falling back to def and capping at max.
func intParam(v string, def, max int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func floatParam(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

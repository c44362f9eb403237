package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// StartAsync starts or restarts the asynchronous processing
func (c *SurebetCalculator) StartAsync() error {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()

	if !c.cfg.AsyncEnabled {
		return fmt.Errorf("async processing is not enabled in config")
	}
	if c.matches == nil {
		return ErrParserNotConfigured
	}

	if c.asyncTicker != nil && !c.asyncStopped {
		slog.Info("Calculator: async processing is already running")
		return nil
	}

	if c.asyncCancel != nil {
		c.asyncCancel()
	}
	c.asyncCtx, c.asyncCancel = context.WithCancel(context.Background())

	interval := c.cfg.AsyncInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c.asyncStopped = false
	if c.asyncTicker != nil {
		c.asyncTicker.Stop()
	}
	c.asyncTicker = time.NewTicker(interval)

	slog.Info("Calculator: starting async processing", "interval", interval)
	go c.runAsyncProcessing(c.asyncCtx, c.asyncTicker)

	return nil
}

func (c *SurebetCalculator) runAsyncProcessing(ctx context.Context, ticker *time.Ticker) {
	c.processAsync(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Calculator: stopping async processing")
			return
		case <-ticker.C:
			if !c.IsAsyncRunning() {
				return
			}
			c.processAsync(ctx)
		}
	}
}

func (c *SurebetCalculator) processAsync(ctx context.Context) {
	summary, err := c.ScanOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Calculator: async scan failed", "error", err)
		}
		return
	}
	slog.Info("Calculator: async scan complete",
		"matches", summary.Matches,
		"surebets", summary.Surebets,
		"stored", summary.Stored,
		"alerts", summary.Alerts,
		"duration", summary.Duration)
}

// StopAsync stops the asynchronous processing
func (c *SurebetCalculator) StopAsync() {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()

	if !c.asyncStopped && c.asyncTicker != nil {
		c.asyncStopped = true
		c.asyncTicker.Stop()
		if c.asyncCancel != nil {
			c.asyncCancel()
		}
		slog.Info("Calculator: async processing stopped")
	}
}

// IsAsyncRunning returns true if async processing is currently running
func (c *SurebetCalculator) IsAsyncRunning() bool {
	c.asyncMu.RLock()
	defer c.asyncMu.RUnlock()
	return c.asyncTicker != nil && !c.asyncStopped
}

func (c *SurebetCalculator) handleStopAsync(w http.ResponseWriter, r *http.Request) {
	if !c.IsAsyncRunning() {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "already_stopped",
			"message": "Async processing is not running",
		})
		return
	}

	c.StopAsync()

	// Alerts still queued belong to a scan the operator just stopped.
	dropped := 0
	if c.notifier != nil {
		dropped = c.notifier.ClearQueue()
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "stopped",
		"message":        "Async processing stopped successfully",
		"dropped_alerts": strconv.Itoa(dropped),
	})
}

func (c *SurebetCalculator) handleStartAsync(w http.ResponseWriter, r *http.Request) {
	if c.IsAsyncRunning() {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "already_running",
			"message": "Async processing is already running",
		})
		return
	}

	if err := c.StartAsync(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "failed to start async processing",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": "Async processing started successfully",
	})
}

// writeJSON marshals v before touching the response so an encoding failure
// still produces a 500 instead of an empty body under the original status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response","kind":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

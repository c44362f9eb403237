package calculator

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/storage"
)

func newTestRouter(c *SurebetCalculator) http.Handler {
	r := chi.NewRouter()
	c.RegisterHTTP(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleCalculate(t *testing.T) {
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{}))

	t.Run("surebet", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/surebets/calculate", `{"odds":[2.10,2.05],"total_stake":100000}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
		}
		var got struct {
			Kind   string    `json:"kind"`
			Stakes []float64 `json:"stakes"`
		}
		decodeBody(t, rec, &got)
		if got.Kind != "surebet" || len(got.Stakes) != 2 || got.Stakes[0] != 49398 || got.Stakes[1] != 50602 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("rounding unit", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/surebets/calculate", `{"odds":[2.10,2.05],"total_stake":100000,"rounding_unit":100}`)
		var got struct {
			Stakes []float64 `json:"stakes"`
		}
		decodeBody(t, rec, &got)
		if len(got.Stakes) != 2 || got.Stakes[0] != 49400 || got.Stakes[1] != 50600 {
			t.Errorf("stakes = %v", got.Stakes)
		}
	})

	t.Run("cent rounding", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/surebets/calculate", `{"odds":[2.10,2.05],"total_stake":100000,"rounding_unit":0.01}`)
		if !strings.Contains(rec.Body.String(), `"stakes":[49397.59,50602.41]`) {
			t.Errorf("body = %s", rec.Body)
		}
	})

	t.Run("no opportunity", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/surebets/calculate", `{"odds":[1.5,1.5],"total_stake":100}`)
		var got map[string]any
		decodeBody(t, rec, &got)
		if rec.Code != http.StatusOK || got["kind"] != "no_opportunity" {
			t.Errorf("status = %d body = %v", rec.Code, got)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			body string
			kind string
		}{
			{`{"odds":[2.0],"total_stake":100}`, "invalid_odds_count"},
			{`{"odds":[2.0,-1],"total_stake":100}`, "invalid_odd"},
			{`{"odds":[2.0,2.1],"total_stake":0}`, "invalid_stake"},
			{`{"odds":[1e-320,2],"total_stake":100000}`, "invalid_odd"},
			{`{"odds":[1e308,1e308],"total_stake":100000}`, "invalid_odd"},
			{`{"odds":`, "invalid_request"},
		}
		for _, tt := range tests {
			rec := doRequest(t, h, http.MethodPost, "/surebets/calculate", tt.body)
			var got map[string]string
			decodeBody(t, rec, &got)
			if rec.Code != http.StatusBadRequest || got["kind"] != tt.kind || got["error"] == "" {
				t.Errorf("%s: status = %d body = %v", tt.body, rec.Code, got)
			}
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/surebets/calculate", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestHandleTopSurebets(t *testing.T) {
	start := time.Now().UTC().Add(2 * time.Hour)
	src := &fakeMatches{matches: surebetMatches(start)}
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Matches: src}))

	rec := doRequest(t, h, http.MethodGet, "/surebets/top?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var got TopResponse
	decodeBody(t, rec, &got)
	if got.Source != "scan" || got.Matches != 2 || len(got.Surebets) != 1 {
		t.Fatalf("got %+v", got)
	}
	if !got.Surebets[0].Bets[0].Stake.Equal(decimal.NewFromInt(49398)) {
		t.Errorf("bets = %+v", got.Surebets[0].Bets)
	}

	rec = doRequest(t, h, http.MethodGet, "/surebets/top?status=live", "")
	decodeBody(t, rec, &got)
	if got.Surebets == nil || len(got.Surebets) != 0 {
		t.Errorf("live filter should give an empty list, got %+v", got.Surebets)
	}

	rec = doRequest(t, h, http.MethodGet, "/surebets/top?min_profit=5", "")
	decodeBody(t, rec, &got)
	if len(got.Surebets) != 0 {
		t.Errorf("min_profit filter gave %+v", got.Surebets)
	}
}

func TestHandleTopSurebets_FromCache(t *testing.T) {
	cache := &fakeCache{snap: &storage.Snapshot{
		Surebets: []models.Arbitrage{{ID: "a", ProfitPercent: 3}, {ID: "b", ProfitPercent: 2}},
		Matches:  40,
	}}
	src := &fakeMatches{}
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Matches: src, Cache: cache}))

	rec := doRequest(t, h, http.MethodGet, "/surebets/top?limit=1", "")
	var got TopResponse
	decodeBody(t, rec, &got)
	if got.Source != "cache" || len(got.Surebets) != 1 || got.Surebets[0].ID != "a" || src.calls != 0 {
		t.Errorf("got %+v calls = %d", got, src.calls)
	}
}

func TestHandleTopSurebets_Errors(t *testing.T) {
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{}))
	if rec := doRequest(t, h, http.MethodGet, "/surebets/top", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no parser: status = %d", rec.Code)
	}

	h = newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Matches: &fakeMatches{err: errors.New("boom")}}))
	if rec := doRequest(t, h, http.MethodGet, "/surebets/top", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("parser down: status = %d", rec.Code)
	}
}

func TestHandleRecentSurebets(t *testing.T) {
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{}))
	if rec := doRequest(t, h, http.MethodGet, "/surebets/recent", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no storage: status = %d", rec.Code)
	}

	st := &fakeStorage{recent: []models.Arbitrage{{ID: "a", ProfitPercent: 1}, {ID: "b", ProfitPercent: 4}}}
	h = newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Storage: st}))
	rec := doRequest(t, h, http.MethodGet, "/surebets/recent?minutes=30&min_profit=2", "")
	var got []models.Arbitrage
	decodeBody(t, rec, &got)
	if rec.Code != http.StatusOK || len(got) != 1 || got[0].ID != "b" {
		t.Errorf("status = %d got = %+v", rec.Code, got)
	}
}

func TestHandleStatusAndAsync(t *testing.T) {
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Matches: &fakeMatches{}}))

	rec := doRequest(t, h, http.MethodGet, "/surebets/status", "")
	var status map[string]any
	decodeBody(t, rec, &status)
	if status["status"] != "ok" || status["parser_configured"] != true || status["async_running"] != false {
		t.Errorf("status = %v", status)
	}

	// async_enabled is false by default
	if rec := doRequest(t, h, http.MethodPost, "/async/start", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("start: status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/async/stop", "")
	var stop map[string]string
	decodeBody(t, rec, &stop)
	if stop["status"] != "already_stopped" {
		t.Errorf("stop = %v", stop)
	}
}

func TestHandleStatus_QueueAndFeed(t *testing.T) {
	notifier := &fakeNotifier{queued: 2}
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Notifier: notifier, Publisher: &fakePublisher{}}))

	rec := doRequest(t, h, http.MethodGet, "/surebets/status", "")
	var status map[string]any
	decodeBody(t, rec, &status)
	if status["alert_queue"] != float64(2) {
		t.Errorf("alert_queue = %v", status["alert_queue"])
	}
	feed, ok := status["feed"].(map[string]any)
	if !ok || feed["active_clients"] != float64(3) {
		t.Errorf("feed = %v", status["feed"])
	}
}

func TestHandleStopAsync_DropsQueuedAlerts(t *testing.T) {
	cfg := testCalculatorConfig()
	cfg.AsyncEnabled = true
	cfg.AsyncInterval = time.Hour

	notifier := &fakeNotifier{queued: 4}
	c := NewSurebetCalculator(cfg, Deps{Matches: &fakeMatches{}, Notifier: notifier})
	if err := c.StartAsync(); err != nil {
		t.Fatal(err)
	}
	h := newTestRouter(c)

	rec := doRequest(t, h, http.MethodPost, "/async/stop", "")
	var got map[string]string
	decodeBody(t, rec, &got)
	if got["status"] != "stopped" || got["dropped_alerts"] != "4" {
		t.Errorf("stop = %v", got)
	}
	if notifier.QueueLen() != 0 {
		t.Errorf("queue len = %d", notifier.QueueLen())
	}
}

func TestHandleTestAlert(t *testing.T) {
	h := newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{}))
	if rec := doRequest(t, h, http.MethodPost, "/alerts/test", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no notifier: status = %d", rec.Code)
	}

	notifier := &fakeNotifier{}
	h = newTestRouter(NewSurebetCalculator(testCalculatorConfig(), Deps{Notifier: notifier}))

	rec := doRequest(t, h, http.MethodPost, "/alerts/test", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	rec = doRequest(t, h, http.MethodPost, "/alerts/test", `{"message":"hello chat"}`)
	var got map[string]any
	decodeBody(t, rec, &got)
	if got["status"] != "queued" || got["queue"] != float64(2) {
		t.Errorf("got %v", got)
	}
	if len(notifier.tests) != 2 || notifier.tests[0] == "" || notifier.tests[1] != "hello chat" {
		t.Errorf("messages = %q", notifier.tests)
	}

	if rec := doRequest(t, h, http.MethodPost, "/alerts/test", `{"message":`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rec.Code)
	}

	notifier.err = errors.New("message queue is full")
	if rec := doRequest(t, h, http.MethodPost, "/alerts/test", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("full queue: status = %d", rec.Code)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"spread": math.Inf(1)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	var got map[string]string
	decodeBody(t, rec, &got)
	if got["error"] == "" {
		t.Errorf("body = %v", got)
	}
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 10},
		{"abc", 10},
		{"-3", 10},
		{"7", 7},
		{"1000", 100},
	}
	for _, tt := range tests {
		if got := intParam(tt.in, 10, 100); got != tt.want {
			t.Errorf("intParam(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

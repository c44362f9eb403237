package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vodeneev/surebet/internal/pkg/config"
	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/storage"
)

// ErrParserNotConfigured is returned when a scan is requested without a matches source.
var ErrParserNotConfigured = errors.New("parser URL is not configured")

const fetchTimeout = 30 * time.Second

// SurebetCalculator reads odds from the parser and finds surebets between bookmakers.
// Data is fetched on-demand on each request unless async processing keeps a fresh snapshot.
// The async loop also stores surebets, publishes them to the live feed and sends alerts.
type SurebetCalculator struct {
	matches   MatchesSource
	cfg       *config.CalculatorConfig
	storage   storage.SurebetStorage
	cache     storage.SurebetCache
	notifier  Notifier
	publisher Publisher
	now       func() time.Time

	mu   sync.RWMutex
	last *storage.Snapshot

	alertMu sync.Mutex
	alerted map[string]alertRecord // matchGroupKey|marketKey -> last alert

	asyncTicker  *time.Ticker
	asyncMu      sync.RWMutex
	asyncStopped bool
	asyncCtx     context.Context
	asyncCancel  context.CancelFunc
}

func NewSurebetCalculator(cfg *config.CalculatorConfig, deps Deps) *SurebetCalculator {
	if cfg == nil {
		defaults := &config.Config{}
		defaults.ApplyDefaults()
		cfg = &defaults.Calculator
	}

	matches := deps.Matches
	if matches == nil && cfg.ParserURL != "" {
		matches = NewHTTPMatchesClient(cfg.ParserURL)
	}

	return &SurebetCalculator{
		matches:   matches,
		cfg:       cfg,
		storage:   deps.Storage,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		now:       time.Now,
		alerted:   make(map[string]alertRecord),
	}
}

func (c *SurebetCalculator) Start(ctx context.Context) error {
	if c.cfg.AsyncEnabled {
		if err := c.StartAsync(); err != nil {
			if !errors.Is(err, ErrParserNotConfigured) {
				return err
			}
			slog.Warn("Calculator: async processing enabled but parser_url is empty, serving calculate only")
		}
	} else {
		slog.Info("Calculator: async processing disabled, running in on-demand mode")
	}

	<-ctx.Done()

	c.StopAsync()

	return nil
}

func (c *SurebetCalculator) scanOptions() scanOptions {
	return scanOptions{
		totalStake:       c.cfg.TotalStake,
		roundingUnit:     c.cfg.RoundingUnit,
		minProfitPercent: c.cfg.MinProfitPercent,
		keepTop:          c.cfg.KeepTop,
	}
}

// scan fetches matches, computes surebets and refreshes the cached snapshot.
func (c *SurebetCalculator) scan(ctx context.Context) (*storage.Snapshot, error) {
	if c.matches == nil {
		return nil, ErrParserNotConfigured
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	matches, err := c.matches.GetMatches(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch matches: %w", err)
	}

	now := c.now().UTC()
	snap := &storage.Snapshot{
		Surebets:  computeSurebets(matches, c.scanOptions(), now),
		ScannedAt: now,
		Matches:   len(matches),
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("Calculator: failed to cache snapshot", "error", err)
		}
	}

	return snap, nil
}

// latestSnapshot serves the Redis snapshot when present, the in-memory one while
// the async loop keeps it fresh, and scans on demand otherwise.
func (c *SurebetCalculator) latestSnapshot(ctx context.Context) (*storage.Snapshot, string, error) {
	if c.cache != nil {
		snap, err := c.cache.LoadSnapshot(ctx)
		if err != nil {
			slog.Warn("Calculator: failed to load cached snapshot", "error", err)
		} else if snap != nil {
			return snap, "cache", nil
		}
	}

	if c.IsAsyncRunning() {
		c.mu.RLock()
		snap := c.last
		c.mu.RUnlock()
		if snap != nil {
			return snap, "memory", nil
		}
	}

	snap, err := c.scan(ctx)
	if err != nil {
		return nil, "", err
	}
	return snap, "scan", nil
}

// ScanOnce runs one full pass: scan, store, publish and alert.
func (c *SurebetCalculator) ScanOnce(ctx context.Context) (ScanSummary, error) {
	started := time.Now()

	snap, err := c.scan(ctx)
	if err != nil {
		return ScanSummary{}, err
	}

	summary := ScanSummary{
		Matches:   snap.Matches,
		Surebets:  len(snap.Surebets),
		ScannedAt: snap.ScannedAt,
	}

	for i := range snap.Surebets {
		arb := &snap.Surebets[i]

		if c.alertDue(ctx, arb) {
			if err := c.notifier.SendSurebetAlert(ctx, arb, c.cfg.AlertThreshold); err != nil {
				slog.Error("Calculator: failed to send alert", "match", arb.MatchName, "error", err)
			} else {
				arb.Alerted = true
				c.rememberAlert(arb)
				summary.Alerts++
				slog.Info("Calculator: alert queued", "match", arb.MatchName, "market", arb.MarketKey, "profit_percent", arb.ProfitPercent)
			}
		}

		if c.storage != nil {
			stored, err := c.storage.StoreSurebet(ctx, arb)
			if err != nil {
				slog.Error("Calculator: failed to store surebet", "match", arb.MatchName, "market", arb.MarketKey, "error", err)
			} else if stored {
				summary.Stored++
			}
		}

		if c.publisher != nil {
			c.publisher.Publish(*arb)
		}
	}

	summary.Duration = time.Since(started)
	return summary, nil
}

// alertRecord is the profit and time of the last alert for one match+market.
type alertRecord struct {
	profit  float64
	foundAt time.Time
}

func alertKey(arb *models.Arbitrage) string {
	return arb.MatchGroupKey + "|" + arb.MarketKey
}

func (c *SurebetCalculator) rememberAlert(arb *models.Arbitrage) {
	c.alertMu.Lock()
	c.alerted[alertKey(arb)] = alertRecord{profit: arb.ProfitPercent, foundAt: arb.FoundAt}
	c.alertMu.Unlock()
}

// lastAlert returns the previous alert for the same match+market. Memory wins;
// storage covers alerts sent before a restart.
func (c *SurebetCalculator) lastAlert(ctx context.Context, arb *models.Arbitrage) (alertRecord, error) {
	c.alertMu.Lock()
	rec, ok := c.alerted[alertKey(arb)]
	c.alertMu.Unlock()
	if ok || c.storage == nil {
		return rec, nil
	}

	profit, foundAt, err := c.storage.GetLastAlert(ctx, arb.MatchGroupKey, arb.MarketKey)
	if err != nil {
		return alertRecord{}, err
	}
	return alertRecord{profit: profit, foundAt: foundAt}, nil
}

// alertDue compares arb with the last alert sent for the same match+market.
func (c *SurebetCalculator) alertDue(ctx context.Context, arb *models.Arbitrage) bool {
	threshold := c.cfg.AlertThreshold
	if c.notifier == nil || threshold <= 0 || arb.ProfitPercent < threshold {
		return false
	}

	last, err := c.lastAlert(ctx, arb)
	if err != nil {
		// Better a duplicate than a missed alert.
		slog.Warn("Calculator: failed to get last alert", "error", err)
		return true
	}

	send, reason := shouldAlert(alertPolicy{
		threshold:   threshold,
		cooldown:    time.Duration(c.cfg.AlertCooldownMinutes) * time.Minute,
		minIncrease: c.cfg.AlertMinIncrease,
	}, arb.ProfitPercent, last.profit, last.foundAt, arb.FoundAt)
	slog.Debug("Calculator: alert decision", "match", arb.MatchName, "market", arb.MarketKey,
		"profit_percent", arb.ProfitPercent, "last_alert_profit_percent", last.profit, "send", send, "reason", reason)
	return send
}

type alertPolicy struct {
	threshold   float64
	cooldown    time.Duration
	minIncrease float64
}

// shouldAlert decides whether a surebet at profit is worth another alert given
// the previous alert for the same match+market.
func shouldAlert(p alertPolicy, profit, lastProfit float64, lastAlertAt, now time.Time) (bool, string) {
	switch {
	case p.threshold <= 0 || profit < p.threshold:
		return false, "below_threshold"
	case lastProfit == 0 || lastAlertAt.IsZero():
		return true, "new"
	case lastProfit < p.threshold:
		return true, "crossed_threshold" // threshold was raised since the last alert
	case now.Sub(lastAlertAt) > p.cooldown:
		return true, "cooldown_expired"
	case profit-lastProfit >= p.minIncrease:
		return true, "increased"
	default:
		return false, "duplicate"
	}
}

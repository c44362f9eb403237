package calculator

import (
	"context"
	"time"

	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/storage"
)

// MatchesSource provides the current parsed matches of all bookmakers.
type MatchesSource interface {
	GetMatches(ctx context.Context) ([]models.Match, error)
}

// Notifier delivers surebet alerts to a human. Alerts are queued and sent in
// the background.
type Notifier interface {
	SendSurebetAlert(ctx context.Context, arb *models.Arbitrage, threshold float64) error
	SendTestAlert(ctx context.Context, message string) error
	QueueLen() int
	ClearQueue() int
}

// Publisher pushes found surebets to live subscribers.
type Publisher interface {
	Publish(arb models.Arbitrage)
	Metrics() map[string]any
}

// Deps are the optional collaborators of SurebetCalculator. Nil fields disable
// the matching feature.
type Deps struct {
	Matches   MatchesSource
	Storage   storage.SurebetStorage
	Cache     storage.SurebetCache
	Notifier  Notifier
	Publisher Publisher
}

// ScanSummary describes one async scan.
type ScanSummary struct {
	Matches   int           `json:"matches"`
	Surebets  int           `json:"surebets"`
	Stored    int           `json:"stored"`
	Alerts    int           `json:"alerts"`
	ScannedAt time.Time     `json:"scanned_at"`
	Duration  time.Duration `json:"duration"`
}

// CalculateRequest is the body of POST /surebets/calculate.
type CalculateRequest struct {
	Odds         []float64 `json:"odds"`
	TotalStake   float64   `json:"total_stake"`
	RoundingUnit float64   `json:"rounding_unit,omitempty"`
}

// TestAlertRequest is the optional body of POST /alerts/test.
type TestAlertRequest struct {
	Message string `json:"message"`
}

// TopResponse is the body of GET /surebets/top.
type TopResponse struct {
	Surebets  []models.Arbitrage `json:"surebets"`
	ScannedAt time.Time          `json:"scanned_at"`
	Matches   int                `json:"matches"`
	Source    string             `json:"source"` // cache, memory or scan
}

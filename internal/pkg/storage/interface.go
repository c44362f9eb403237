package storage

import (
	"context"
	"time"

	"github.com/Vodeneev/surebet/internal/pkg/models"
)

// SurebetStorage persists surebets found by the scanner.
type SurebetStorage interface {
	// StoreSurebet saves a surebet.
	// Returns true if the record was newly inserted, false if it already existed.
	StoreSurebet(ctx context.Context, arb *models.Arbitrage) (bool, error)

	// GetLastAlert returns the profit percent and found_at of the most recent
	// surebet for a match+market that was alerted on.
	// Returns (0, zero time, nil) if none.
	GetLastAlert(ctx context.Context, matchGroupKey, marketKey string) (profitPercent float64, foundAt time.Time, err error)

	// GetRecentSurebets gets surebets found in the last N minutes, best first.
	GetRecentSurebets(ctx context.Context, withinMinutes int, minProfitPercent float64) ([]models.Arbitrage, error)

	// CleanSurebets removes all stored surebets.
	CleanSurebets(ctx context.Context) error

	Close() error
}

// Snapshot is the result of one scan over all matches.
type Snapshot struct {
	Surebets  []models.Arbitrage `json:"surebets"`
	ScannedAt time.Time          `json:"scanned_at"`
	Matches   int                `json:"matches"`
}

// SurebetCache keeps the latest scan snapshot so HTTP readers don't trigger
// a scan on every request.
type SurebetCache interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	// LoadSnapshot returns nil, nil when nothing is cached.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

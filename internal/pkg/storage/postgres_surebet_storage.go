package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Vodeneev/surebet/internal/pkg/config"
	"github.com/Vodeneev/surebet/internal/pkg/models"
)

// Ensure PostgresSurebetStorage implements SurebetStorage
var _ SurebetStorage = (*PostgresSurebetStorage)(nil)

// PostgresSurebetStorage stores surebets in PostgreSQL
type PostgresSurebetStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresSurebetStorage opens the connection and creates the schema.
func NewPostgresSurebetStorage(cfg *config.PostgresConfig) (*PostgresSurebetStorage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	storage := newPostgresSurebetStorage(db, time.Now)
	if err := storage.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL surebet storage initialized")
	return storage, nil
}

func newPostgresSurebetStorage(db *sql.DB, now func() time.Time) *PostgresSurebetStorage {
	return &PostgresSurebetStorage{db: db, now: now}
}

const surebetSchema = `
CREATE TABLE IF NOT EXISTS surebets (
	id UUID PRIMARY KEY,
	match_group_key VARCHAR(500) NOT NULL,
	match_name VARCHAR(500) NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	sport VARCHAR(100) NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	market VARCHAR(100) NOT NULL,
	parameter VARCHAR(100) NOT NULL DEFAULT '',
	market_key VARCHAR(500) NOT NULL,
	arbitrage_index DOUBLE PRECISION NOT NULL,
	profit_percent DOUBLE PRECISION NOT NULL,
	total_stake NUMERIC NOT NULL,
	guaranteed_return NUMERIC NOT NULL,
	net_profit NUMERIC NOT NULL,
	bets JSONB NOT NULL,
	found_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(match_group_key, market_key, found_at)
);

ALTER TABLE surebets ADD COLUMN IF NOT EXISTS alerted BOOLEAN NOT NULL DEFAULT FALSE;

CREATE INDEX IF NOT EXISTS idx_surebets_match_market ON surebets(match_group_key, market_key);
CREATE INDEX IF NOT EXISTS idx_surebets_found_at ON surebets(found_at DESC);
CREATE INDEX IF NOT EXISTS idx_surebets_profit ON surebets(profit_percent DESC);
CREATE INDEX IF NOT EXISTS idx_surebets_alerted ON surebets(match_group_key, market_key, found_at DESC) WHERE alerted;
`

func (s *PostgresSurebetStorage) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, surebetSchema)
	return err
}

// StoreSurebet inserts the surebet unless the same match+market was already
// stored with the same found_at.
func (s *PostgresSurebetStorage) StoreSurebet(ctx context.Context, arb *models.Arbitrage) (bool, error) {
	bets, err := json.Marshal(arb.Bets)
	if err != nil {
		return false, fmt.Errorf("failed to encode bets: %w", err)
	}

	query := `
	INSERT INTO surebets (
		id, match_group_key, match_name, start_time, sport,
		event_type, market, parameter, market_key,
		arbitrage_index, profit_percent, total_stake, guaranteed_return, net_profit,
		bets, found_at, alerted
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (match_group_key, market_key, found_at) DO NOTHING
	RETURNING id
	`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		arb.ID,
		arb.MatchGroupKey,
		arb.MatchName,
		arb.StartTime,
		arb.Sport,
		arb.EventType,
		arb.Market,
		arb.Parameter,
		arb.MarketKey,
		arb.ArbitrageIndex,
		arb.ProfitPercent,
		arb.TotalStake,
		arb.GuaranteedReturn,
		arb.NetProfit,
		bets,
		arb.FoundAt,
		arb.Alerted,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store surebet: %w", err)
	}
	return true, nil
}

func (s *PostgresSurebetStorage) GetLastAlert(ctx context.Context, matchGroupKey, marketKey string) (float64, time.Time, error) {
	query := `
	SELECT profit_percent, found_at FROM surebets
	WHERE match_group_key = $1
	  AND market_key = $2
	  AND alerted
	ORDER BY found_at DESC
	LIMIT 1
	`

	var profit float64
	var foundAt time.Time
	err := s.db.QueryRowContext(ctx, query, matchGroupKey, marketKey).Scan(&profit, &foundAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get last alert: %w", err)
	}
	return profit, foundAt, nil
}

// GetRecentSurebets uses a cutoff computed from the storage clock, so found_at
// written by this process is compared against the same clock.
func (s *PostgresSurebetStorage) GetRecentSurebets(ctx context.Context, withinMinutes int, minProfitPercent float64) ([]models.Arbitrage, error) {
	query := `
	SELECT
		id, match_group_key, match_name, start_time, sport,
		event_type, market, parameter, market_key,
		arbitrage_index, profit_percent, total_stake, guaranteed_return, net_profit,
		bets, found_at, alerted
	FROM surebets
	WHERE found_at > $1
	  AND profit_percent >= $2
	ORDER BY profit_percent DESC, found_at DESC
	`

	cutoff := s.now().UTC().Add(-time.Duration(withinMinutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx, query, cutoff, minProfitPercent)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent surebets: %w", err)
	}
	defer rows.Close()

	var out []models.Arbitrage
	for rows.Next() {
		var a models.Arbitrage
		var bets []byte
		err := rows.Scan(
			&a.ID,
			&a.MatchGroupKey,
			&a.MatchName,
			&a.StartTime,
			&a.Sport,
			&a.EventType,
			&a.Market,
			&a.Parameter,
			&a.MarketKey,
			&a.ArbitrageIndex,
			&a.ProfitPercent,
			&a.TotalStake,
			&a.GuaranteedReturn,
			&a.NetProfit,
			&bets,
			&a.FoundAt,
			&a.Alerted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan surebet: %w", err)
		}
		if err := json.Unmarshal(bets, &a.Bets); err != nil {
			return nil, fmt.Errorf("failed to decode bets of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// CleanSurebets removes all records from surebets table.
func (s *PostgresSurebetStorage) CleanSurebets(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE TABLE surebets`); err != nil {
		return fmt.Errorf("failed to clean surebets: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresSurebetStorage) Close() error {
	return s.db.Close()
}

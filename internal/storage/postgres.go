package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	engineerrors "github.com/predictdesk/polyrisk/internal/errors"
	"github.com/predictdesk/polyrisk/internal/logger"
	"github.com/predictdesk/polyrisk/pkg/types"
)

// PostgresStore persists the engine's durable records: trades, portfolio
// snapshots, breaker episodes and the raw signals that produced them. It
// implements the ledger and breaker sink interfaces, so persistence rides
// along with every commit without the core packages knowing about SQL.
//
// Writes are best-effort from the engine's perspective: a failed insert is
// journaled and dropped rather than blocking trading. The ledger's own
// in-memory history stays authoritative for the running session.
type PostgresStore struct {
	db      *sql.DB
	journal *logger.Journal
}

// NewPostgres connects, verifies the connection and ensures the schema.
func NewPostgres(url string, journal *logger.Journal) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &PostgresStore{db: db, journal: journal}, nil
}

func createTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(36) PRIMARY KEY,
			signal_id VARCHAR(64) NOT NULL,
			market_id VARCHAR(66) NOT NULL,
			category VARCHAR(64),
			side VARCHAR(3) NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			entry_costs DOUBLE PRECISION NOT NULL DEFAULT 0,
			exit_price DOUBLE PRECISION,
			exit_costs DOUBLE PRECISION,
			pnl DOUBLE PRECISION,
			status VARCHAR(16) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id VARCHAR(36) PRIMARY KEY,
			total_capital DOUBLE PRECISION NOT NULL,
			available_capital DOUBLE PRECISION NOT NULL,
			invested_capital DOUBLE PRECISION NOT NULL,
			unrealized_pnl DOUBLE PRECISION NOT NULL,
			realized_pnl_today DOUBLE PRECISION NOT NULL,
			daily_drawdown DOUBLE PRECISION NOT NULL,
			open_positions INT NOT NULL,
			trades_today INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS circuit_breakers (
			id VARCHAR(36) PRIMARY KEY,
			reason VARCHAR(32) NOT NULL,
			detail TEXT,
			status VARCHAR(16) NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL,
			cleared_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id VARCHAR(64) PRIMARY KEY,
			strategy VARCHAR(64) NOT NULL,
			market_id VARCHAR(66) NOT NULL,
			side VARCHAR(3) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			edge DOUBLE PRECISION NOT NULL,
			result VARCHAR(16),
			reject_reason VARCHAR(32),
			generated_at TIMESTAMPTZ,
			received_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_time ON portfolio_snapshots(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrade upserts a trade row on every open and close.
func (s *PostgresStore) RecordTrade(t types.Trade) {
	query := `
		INSERT INTO trades (id, signal_id, market_id, category, side, quantity,
			entry_price, entry_costs, exit_price, exit_costs, pnl, status, entry_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			exit_price = EXCLUDED.exit_price,
			exit_costs = EXCLUDED.exit_costs,
			pnl = EXCLUDED.pnl,
			status = EXCLUDED.status,
			exit_time = EXCLUDED.exit_time
	`
	var exitPrice, exitCosts, pnl *float64
	var exitTime *time.Time
	if t.Status != types.TradeOpen {
		exitPrice, exitCosts, pnl = &t.ExitPrice, &t.ExitCosts, &t.PnL
		exitTime = &t.ExitTime
	}

	_, err := s.db.Exec(query, t.ID, t.SignalID, t.MarketID, t.Category, t.Side,
		t.Quantity, t.EntryPrice, t.EntryCosts, exitPrice, exitCosts, pnl, t.Status, t.EntryTime, exitTime)
	if err != nil {
		s.journal.Error("%v", engineerrors.Wrap(err, engineerrors.CategoryStorage, "postgres", "record trade "+t.ID))
	}
}

// RecordSnapshot appends one portfolio snapshot row.
func (s *PostgresStore) RecordSnapshot(snap types.PortfolioSnapshot) {
	query := `
		INSERT INTO portfolio_snapshots (id, total_capital, available_capital,
			invested_capital, unrealized_pnl, realized_pnl_today, daily_drawdown,
			open_positions, trades_today, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.Exec(query, snap.ID, snap.TotalCapital, snap.AvailableCapital,
		snap.InvestedCapital, snap.UnrealizedPnL, snap.RealizedPnLToday,
		snap.DailyDrawdown, snap.OpenPositions, snap.TradesToday, snap.Timestamp)
	if err != nil {
		s.journal.Error("%v", engineerrors.Wrap(err, engineerrors.CategoryStorage, "postgres", "record snapshot "+snap.ID))
	}
}

// RecordBreaker upserts a breaker episode on trip and clear.
func (s *PostgresStore) RecordBreaker(rec types.CircuitBreakerRecord) {
	query := `
		INSERT INTO circuit_breakers (id, reason, detail, status, triggered_at, cleared_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cleared_at = EXCLUDED.cleared_at
	`
	_, err := s.db.Exec(query, rec.ID, rec.Reason, rec.Detail, rec.Status, rec.TriggeredAt, rec.ClearedAt)
	if err != nil {
		s.journal.Error("%v", engineerrors.Wrap(err, engineerrors.CategoryStorage, "postgres", "record breaker "+rec.ID))
	}
}

// RecordSignal stores a signal together with its terminal result.
func (s *PostgresStore) RecordSignal(sig types.Signal, result types.ExecutionResult) {
	query := `
		INSERT INTO signals (id, strategy, market_id, side, confidence, edge,
			result, reject_reason, generated_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			result = EXCLUDED.result,
			reject_reason = EXCLUDED.reject_reason
	`
	var rejectReason *string
	if result.Decision.Reason != "" {
		r := string(result.Decision.Reason)
		rejectReason = &r
	}
	_, err := s.db.Exec(query, sig.ID, sig.Strategy, sig.MarketID, sig.Side,
		sig.Confidence, sig.Edge, result.Status, rejectReason, sig.GeneratedAt, time.Now())
	if err != nil {
		s.journal.Error("%v", engineerrors.Wrap(err, engineerrors.CategoryStorage, "postgres", "record signal "+sig.ID))
	}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Compile-time interface checks.
var _ SnapshotStore = (*SQLiteStore)(nil)
var _ TradeStore = (*SQLiteStore)(nil)

// SQLiteStore implements SnapshotStore and TradeStore backed by a SQLite
// database holding the history of backtest runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY on concurrent runs.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		stmt, err := migrationFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("applying migration %s: %w", f, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// SnapshotStore implementation
// ---------------------------------------------------------------------------

// SaveSnapshot inserts or replaces the snapshot of (RunID, Step).
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("save snapshot: empty run id: %w", ErrInvalidInput)
	}
	shares, err := json.Marshal(snap.Shares)
	if err != nil {
		return fmt.Errorf("encoding shares: %w", err)
	}
	weights, err := json.Marshal(snap.Weights)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (
			run_id, step, date, cash, value, value_pre_rebalance, fees, total_cost, shares, weights
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Step, snap.Date.Format(domain.DateLayout),
		snap.Cash, snap.Value, snap.ValuePreRebalance, snap.Fees, snap.TotalCost,
		string(shares), string(weights),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%d: %w", snap.RunID, snap.Step, err)
	}
	return nil
}

// ListSnapshots returns the snapshots of a run in step order. An unknown
// run yields ErrNotFound.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, runID string) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, step, date, cash, value, value_pre_rebalance, fees, total_cost, shares, weights
		FROM snapshots
		WHERE run_id = ?
		ORDER BY step ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var (
			snap            domain.Snapshot
			date            string
			shares, weights string
		)
		if err := rows.Scan(&snap.RunID, &snap.Step, &date, &snap.Cash, &snap.Value,
			&snap.ValuePreRebalance, &snap.Fees, &snap.TotalCost, &shares, &weights); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("snapshot date %q: %w", date, err)
		}
		if err := json.Unmarshal([]byte(shares), &snap.Shares); err != nil {
			return nil, fmt.Errorf("decoding shares: %w", err)
		}
		if err := json.Unmarshal([]byte(weights), &snap.Weights); err != nil {
			return nil, fmt.Errorf("decoding weights: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return out, nil
}

// ListRuns returns the ids of all runs with at least one snapshot.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM snapshots ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// TradeStore implementation
// ---------------------------------------------------------------------------

// WriteTrades stores the trades of a run in one transaction.
func (s *SQLiteStore) WriteTrades(ctx context.Context, runID string, trades []domain.CostedTrade) error {
	if runID == "" {
		return fmt.Errorf("write trades: empty run id: %w", ErrInvalidInput)
	}
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trades (
			run_id, date, asset, q, p_ref, p_exec, spread, notional_abs, spread_cost, fees, vol_slip, total_cost
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, t.Date.Format(domain.DateLayout), t.Asset,
			t.Q, t.PRef, t.PExec, t.Spread, t.NotionalAbs, t.SpreadCost, t.Fees, t.VolSlip, t.TotalCost); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.Key(), err)
		}
	}
	return tx.Commit()
}

// ReadTrades returns the trades of a run sorted by (date, asset).
func (s *SQLiteStore) ReadTrades(ctx context.Context, runID string) ([]domain.CostedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, asset, q, p_ref, p_exec, spread, notional_abs, spread_cost, fees, vol_slip, total_cost
		FROM trades
		WHERE run_id = ?
		ORDER BY date ASC, asset ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	defer rows.Close()

	var out []domain.CostedTrade
	for rows.Next() {
		var (
			t    domain.CostedTrade
			date string
		)
		if err := rows.Scan(&date, &t.Asset, &t.Q, &t.PRef, &t.PExec, &t.Spread,
			&t.NotionalAbs, &t.SpreadCost, &t.Fees, &t.VolSlip, &t.TotalCost); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if t.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("trade date %q: %w", date, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Record is one row of the token-usage ledger.
type Record struct {
	// ID is a unique record identifier (UUID).
	ID string

	// Role is the backend role the call targeted.
	Role string

	// Operation is the gateway operation name.
	Operation string

	// Model is the model identifier used.
	Model string

	// InputTokens and OutputTokens are the backend-reported counts.
	InputTokens  int
	OutputTokens int

	// LatencyMS is the measured backend latency in milliseconds.
	LatencyMS int64

	// CreatedAt is when the call completed.
	CreatedAt time.Time
}

// Totals aggregates ledger rows.
type Totals struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
}

// Recorder persists usage records. Recording is best-effort from the
// gateway's perspective: a failed write never fails the caller's request.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// SQLiteLedger is a Recorder backed by SQLite. It uses WAL mode for better
// concurrent write behavior and prepared statements on the hot path.
type SQLiteLedger struct {
	db        *sql.DB
	insert    *sql.Stmt
	logger    *slog.Logger
	closeOnce sync.Once
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	role          TEXT NOT NULL,
	operation     TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_role_created
	ON usage_records (role, created_at);
`

// NewSQLiteLedger opens (creating if necessary) a usage ledger at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize usage ledger schema: %w", err)
	}

	insert, err := db.Prepare(`
		INSERT INTO usage_records
			(id, role, operation, model, input_tokens, output_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return &SQLiteLedger{
		db:     db,
		insert: insert,
		logger: slog.Default().With("component", "usage.ledger"),
	}, nil
}

// Record implements Recorder.
func (l *SQLiteLedger) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := l.insert.ExecContext(ctx,
		rec.ID, rec.Role, rec.Operation, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.LatencyMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// TotalsForRole aggregates the ledger for one backend role. An empty role
// aggregates everything.
func (l *SQLiteLedger) TotalsForRole(ctx context.Context, role string) (Totals, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}

	var totals Totals
	row := l.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&totals.Calls, &totals.InputTokens, &totals.OutputTokens); err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return totals, nil
}

// Close releases the database handle. Safe to call more than once.
func (l *SQLiteLedger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if cerr := l.insert.Close(); cerr != nil {
			err = cerr
		}
		if cerr := l.db.Close(); cerr != nil {
			err = cerr
		}
	})
	return err
}

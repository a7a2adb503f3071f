package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store archives finished phase runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS crew_runs (
    id          UUID PRIMARY KEY,
    phase       TEXT NOT NULL,
    reason      TEXT NOT NULL,
    stage       TEXT NOT NULL,
    rounds      INTEGER NOT NULL,
    target      TEXT NOT NULL DEFAULT '',
    report_path TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS crew_messages (
    id          UUID PRIMARY KEY,
    run_id      UUID NOT NULL REFERENCES crew_runs(id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    sender      TEXT NOT NULL,
    sender_role TEXT NOT NULL,
    chat_role   TEXT NOT NULL,
    intent      TEXT NOT NULL,
    content     TEXT NOT NULL,
    command     TEXT NOT NULL DEFAULT '',
    approved    BOOLEAN NOT NULL DEFAULT FALSE,
    reason      TEXT NOT NULL DEFAULT '',
    tool        JSONB,
    exec        JSONB,
    created_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (run_id, seq)
);`

const insertRunSQL = `
INSERT INTO crew_runs (id, phase, reason, stage, rounds, target, report_path, error, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

const listRunsSQL = `
SELECT id, phase, reason, stage, rounds, target, report_path, started_at, duration_ms
FROM crew_runs
ORDER BY started_at DESC
LIMIT $1;`

var messageColumns = []string{
	"id", "run_id", "seq", "sender", "sender_role", "chat_role", "intent",
	"content", "command", "approved", "reason", "tool", "exec", "created_at",
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the archive tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// SaveRun stores the run summary and its full transcript in one transaction.
func (s *Store) SaveRun(ctx context.Context, rec results.RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL,
		rec.RunID, string(rec.Phase), rec.Reason, rec.Stage, rec.Rounds,
		rec.Target, rec.ReportPath, rec.Error, rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}

	if len(rec.Messages) > 0 {
		if err := s.copyMessages(ctx, tx, rec.RunID, rec.Messages); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run archived", zap.String("run_id", rec.RunID.String()), zap.Int("messages", len(rec.Messages)))
	return nil
}

func (s *Store) copyMessages(ctx context.Context, tx pgx.Tx, runID uuid.UUID, msgs []conversation.Message) error {
	rows := make([][]interface{}, len(msgs))
	for i, m := range msgs {
		tool, err := jsonColumn(m.Tool)
		if err != nil {
			return fmt.Errorf("failed to encode tool record of message %d: %w", m.Seq, err)
		}
		exec, err := jsonColumn(m.Exec)
		if err != nil {
			return fmt.Errorf("failed to encode execution record of message %d: %w", m.Seq, err)
		}
		rows[i] = []interface{}{
			m.ID, runID, m.Seq, m.Sender, string(m.SenderRole), string(m.ChatRole), string(m.Intent),
			m.Content, m.Command, m.Approved, m.Reason, tool, exec, m.CreatedAt.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"crew_messages"}, messageColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}
	if int(copyCount) != len(msgs) {
		return fmt.Errorf("mismatch in copied messages count: expected %d, got %d", len(msgs), copyCount)
	}
	return nil
}

// jsonColumn encodes an optional record; nil becomes SQL NULL.
func jsonColumn[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// RunSummary is one archived run without its messages.
type RunSummary struct {
	RunID      uuid.UUID
	Phase      schemas.PhaseName
	Reason     string
	Stage      string
	Rounds     int
	Target     string
	ReportPath string
	StartedAt  time.Time
	Duration   time.Duration
}

// ListRuns returns the most recent archived runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			id, phase  string
			durationMS int64
		)
		if err := rows.Scan(&id, &phase, &r.Reason, &r.Stage, &r.Rounds, &r.Target, &r.ReportPath, &r.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if r.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		r.Phase = schemas.PhaseName(phase)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

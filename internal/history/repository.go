package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
)

// timeFormat sorts lexically in UTC.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const selectColumns = `id, operation, args, started_at, finished_at, exit_code,
	success, error, last_progress, log_lines, last_log`

// Repository defines run history operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Finish(ctx context.Context, id string, out Outcome) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores runs in the runs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a run repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a started run. StartedAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("inserting run: empty id")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Args == nil {
		rec.Args = []string{}
	}

	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("marshalling run args: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, operation, args, started_at) VALUES (?, ?, ?, ?)`,
		rec.ID, string(rec.Operation), string(args), formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (r *SQLiteRepository) Finish(ctx context.Context, id string, out Outcome) error {
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, exit_code = ?, success = ?, error = ?,
			last_progress = ?, log_lines = ?, last_log = ?
		 WHERE id = ?`,
		formatTime(out.FinishedAt), out.ExitCode, boolToInt(out.Success), out.Error,
		out.LastProgress, out.LogLines, out.LastLog,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get returns one run.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM runs WHERE id = ?", id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns runs newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clampFilter(filter)

	where := ""
	var args []any
	if filter.Operation != "" {
		where = "WHERE operation = ?"
		args = append(args, string(filter.Operation))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM runs " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := "SELECT " + selectColumns + " FROM runs " + where +
		" ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return &ListResult{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func clampFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec        Record
		operation  string
		argsJSON   string
		startedAt  string
		finishedAt sql.NullString
		exitCode   sql.NullInt64
		success    int
	)

	err := s.Scan(&rec.ID, &operation, &argsJSON, &startedAt, &finishedAt, &exitCode,
		&success, &rec.Error, &rec.LastProgress, &rec.LogLines, &rec.LastLog)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	rec.Operation = flash.Operation(operation)
	rec.Success = success != 0

	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return nil, fmt.Errorf("decoding args of run %s: %w", rec.ID, err)
	}

	if rec.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeFormat, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt.String, err)
		}
		rec.FinishedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}

	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

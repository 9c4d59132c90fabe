package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
)

const frameColumns = `id, satellite, link, timestamp_ns, payload, frequency, qos,
	application, metadata, username, processed, invalid`

// FrameCounts summarizes the frame table.
type FrameCounts struct {
	Pending     int
	Valid       int
	Quarantined int
}

// FrameRepository implements ports.FrameRepository.
type FrameRepository struct {
	db *sql.DB
}

// Create inserts frame as a new pending row.
func (r *FrameRepository) Create(ctx context.Context, frame domain.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.Processed {
		return fmt.Errorf("%w: new frames must be pending", domain.ErrInvalidFrame)
	}

	var metadata sql.NullString
	if len(frame.Metadata) > 0 {
		metadata = sql.NullString{String: string(frame.Metadata), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO frames (id, satellite, link, timestamp_ns, payload, frequency, qos,
			application, metadata, username, processed, invalid, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		frame.ID, frame.Satellite, string(frame.Link), frame.Timestamp.UTC().UnixNano(),
		frame.Payload, nullFloat(frame.Frequency), nullFloat(frame.QoS),
		frame.Application, metadata, frame.Username, time.Now().UTC().UnixNano(),
	)
	return classify("create frame", err)
}

// Pending returns up to limit unprocessed rows in scope, oldest first.
func (r *FrameRepository) Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	where, args := scopeFilter(scope, "processed = 0")
	return r.query(ctx, "pending frames", where, args, limit)
}

// Quarantined returns up to limit rows finalized as invalid in scope, oldest first.
func (r *FrameRepository) Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	where, args := scopeFilter(scope, "processed = 1 AND invalid = 1")
	return r.query(ctx, "quarantined frames", where, args, limit)
}

// CountPending counts unprocessed rows in scope.
func (r *FrameRepository) CountPending(ctx context.Context, scope domain.Scope) (int, error) {
	where, args := scopeFilter(scope, "processed = 0")
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, classify("count pending", err)
	}
	return n, nil
}

// Finalize moves a row to its terminal state.
func (r *FrameRepository) Finalize(ctx context.Context, id string, invalid bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE frames SET processed = 1, invalid = ? WHERE id = ?", boolInt(invalid), id)
	if err != nil {
		return classify("finalize frame", err)
	}
	return expectOne(res, id)
}

// Requeue returns a quarantined row to the pending set.
func (r *FrameRepository) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE frames SET processed = 0, invalid = NULL WHERE id = ? AND processed = 1 AND invalid = 1", id)
	if err != nil {
		return classify("requeue frame", err)
	}
	return expectOne(res, id)
}

// Get returns a single row by id.
func (r *FrameRepository) Get(ctx context.Context, id string) (domain.Frame, error) {
	frames, err := r.query(ctx, "get frame", "id = ?", []any{id}, 1)
	if err != nil {
		return domain.Frame{}, err
	}
	if len(frames) == 0 {
		return domain.Frame{}, fmt.Errorf("%w: %s", domain.ErrFrameNotFound, id)
	}
	return frames[0], nil
}

// Counts returns row totals by state.
func (r *FrameRepository) Counts(ctx context.Context) (FrameCounts, error) {
	var c FrameCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 AND invalid = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 AND invalid = 1 THEN 1 ELSE 0 END), 0)
		FROM frames`).Scan(&c.Pending, &c.Valid, &c.Quarantined)
	if err != nil {
		return FrameCounts{}, classify("count frames", err)
	}
	return c, nil
}

func (r *FrameRepository) query(ctx context.Context, op, where string, args []any, limit int) ([]domain.Frame, error) {
	q := "SELECT " + frameColumns + " FROM frames WHERE " + where + " ORDER BY timestamp_ns, id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var frames []domain.Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return frames, nil
}

func scanFrame(rows *sql.Rows) (domain.Frame, error) {
	var (
		f         domain.Frame
		link      string
		tsNano    int64
		frequency sql.NullFloat64
		qos       sql.NullFloat64
		metadata  sql.NullString
		processed int
		invalid   sql.NullInt64
	)
	if err := rows.Scan(&f.ID, &f.Satellite, &link, &tsNano, &f.Payload, &frequency, &qos,
		&f.Application, &metadata, &f.Username, &processed, &invalid); err != nil {
		return domain.Frame{}, err
	}
	f.Link = domain.Link(link)
	f.Timestamp = time.Unix(0, tsNano).UTC()
	if frequency.Valid {
		v := frequency.Float64
		f.Frequency = &v
	}
	if qos.Valid {
		v := qos.Float64
		f.QoS = &v
	}
	if metadata.Valid {
		f.Metadata = json.RawMessage(metadata.String)
	}
	f.Processed = processed == 1
	if invalid.Valid {
		v := invalid.Int64 == 1
		f.Invalid = &v
	}
	return f, nil
}

func scopeFilter(scope domain.Scope, base string) (string, []any) {
	clauses := []string{base}
	var args []any
	if scope.Satellite != "" {
		clauses = append(clauses, "satellite = ?")
		args = append(args, scope.Satellite)
	}
	if scope.Link != "" {
		clauses = append(clauses, "link = ?")
		args = append(args, string(scope.Link))
	}
	if !scope.Start.IsZero() {
		clauses = append(clauses, "timestamp_ns >= ?")
		args = append(args, scope.Start.UTC().UnixNano())
	}
	if !scope.End.IsZero() {
		clauses = append(clauses, "timestamp_ns <= ?")
		args = append(args, scope.End.UTC().UnixNano())
	}
	return strings.Join(clauses, " AND "), args
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewTransientStoreError("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrFrameNotFound, id)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

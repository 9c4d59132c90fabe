package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
)

// StoredRange is a time range together with the writer that owns it.
type StoredRange struct {
	Writer string
	domain.TimeRange
}

// RangeRepository implements ports.RangeRepository.
type RangeRepository struct {
	db *sql.DB
}

// Load returns the range of writer, or the empty range when none is stored.
func (r *RangeRepository) Load(ctx context.Context, satellite string, link domain.Link, writer string) (domain.TimeRange, error) {
	out := domain.TimeRange{Satellite: satellite, Link: link}
	var start, end sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT start_ns, end_ns FROM time_ranges WHERE satellite = ? AND link = ? AND writer = ?",
		satellite, string(link), writer,
	).Scan(&start, &end)
	if err == sql.ErrNoRows {
		return out, nil
	}
	if err != nil {
		return out, domain.NewTransientStoreError("load range", err)
	}
	if start.Valid && end.Valid {
		out.Start = time.Unix(0, start.Int64).UTC()
		out.End = time.Unix(0, end.Int64).UTC()
	}
	return out, nil
}

// Save upserts the range of writer.
func (r *RangeRepository) Save(ctx context.Context, writer string, tr domain.TimeRange) error {
	var start, end sql.NullInt64
	if !tr.IsEmpty() {
		start = sql.NullInt64{Int64: tr.Start.UTC().UnixNano(), Valid: true}
		end = sql.NullInt64{Int64: tr.End.UTC().UnixNano(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO time_ranges (satellite, link, writer, start_ns, end_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (satellite, link, writer) DO UPDATE SET
			start_ns = excluded.start_ns,
			end_ns = excluded.end_ns`,
		tr.Satellite, string(tr.Link), writer, start, end,
	)
	if err != nil {
		return domain.NewTransientStoreError("save range", err)
	}
	return nil
}

// Delete removes the range of writer. Deleting a missing range is not an error.
func (r *RangeRepository) Delete(ctx context.Context, satellite string, link domain.Link, writer string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM time_ranges WHERE satellite = ? AND link = ? AND writer = ?",
		satellite, string(link), writer)
	if err != nil {
		return domain.NewTransientStoreError("delete range", err)
	}
	return nil
}

// Writers lists the writers holding a range for (satellite, link), sorted.
func (r *RangeRepository) Writers(ctx context.Context, satellite string, link domain.Link) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT writer FROM time_ranges WHERE satellite = ? AND link = ? ORDER BY writer",
		satellite, string(link))
	if err != nil {
		return nil, domain.NewTransientStoreError("list writers", err)
	}
	defer rows.Close()

	var writers []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, rows.Err()
}

// List returns every stored range ordered by satellite, link and writer.
func (r *RangeRepository) List(ctx context.Context) ([]StoredRange, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT satellite, link, writer, start_ns, end_ns FROM time_ranges ORDER BY satellite, link, writer")
	if err != nil {
		return nil, domain.NewTransientStoreError("list ranges", err)
	}
	defer rows.Close()

	var out []StoredRange
	for rows.Next() {
		var (
			sr         StoredRange
			link       string
			start, end sql.NullInt64
		)
		if err := rows.Scan(&sr.Satellite, &link, &sr.Writer, &start, &end); err != nil {
			return nil, err
		}
		sr.Link = domain.Link(link)
		if start.Valid && end.Valid {
			sr.Start = time.Unix(0, start.Int64).UTC()
			sr.End = time.Unix(0, end.Int64).UTC()
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

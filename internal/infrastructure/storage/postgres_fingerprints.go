package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

var tableNameExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresFingerprints persists published fingerprints into Postgres.
type PostgresFingerprints struct {
	db    *sql.DB
	table string
	psql  sq.StatementBuilderType
}

var _ ports.FingerprintStore = (*PostgresFingerprints)(nil)

// NewPostgresFingerprints wires a sql.DB implementation.
func NewPostgresFingerprints(db *sql.DB, table string) (*PostgresFingerprints, error) {
	if table == "" {
		table = "published_fingerprints"
	}
	if !tableNameExpr.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresFingerprints{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// EnsureSchema creates the fingerprint table when missing.
func (r *PostgresFingerprints) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
              id BIGSERIAL PRIMARY KEY,
              keywords TEXT[] NOT NULL,
              published_date DATE NOT NULL,
              text TEXT NOT NULL DEFAULT '',
              created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
          )`, r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create fingerprint table: %w", err)
	}
	return nil
}

// Load returns fingerprints published on or after since.
func (r *PostgresFingerprints) Load(ctx context.Context, since time.Time) ([]domain.Fingerprint, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := r.loadQuery(since)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}

	var result []domain.Fingerprint
	for rows.Next() {
		var (
			keywords pq.StringArray
			fp       domain.Fingerprint
		)
		if err := rows.Scan(&keywords, &fp.PublishedDate, &fp.Text); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp.Keywords = []string(keywords)
		result = append(result, fp)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Append inserts one fingerprint.
func (r *PostgresFingerprints) Append(ctx context.Context, fp domain.Fingerprint) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.appendQuery(fp)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	return nil
}

// DeleteBefore removes fingerprints published before day.
func (r *PostgresFingerprints) DeleteBefore(ctx context.Context, day time.Time) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.deleteQuery(day)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete fingerprints: %w", err)
	}
	return nil
}

func (r *PostgresFingerprints) loadQuery(since time.Time) (string, []any, error) {
	query, args, err := r.psql.
		Select("keywords", "published_date", "text").
		From(r.table).
		Where(sq.GtOrEq{"published_date": dateOnly(since)}).
		OrderBy("published_date", "id").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build load query: %w", err)
	}
	return query, args, nil
}

func (r *PostgresFingerprints) appendQuery(fp domain.Fingerprint) (string, []any, error) {
	query, args, err := r.psql.
		Insert(r.table).
		Columns("keywords", "published_date", "text").
		Values(pq.StringArray(fp.Keywords), dateOnly(fp.PublishedDate), fp.Text).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert query: %w", err)
	}
	return query, args, nil
}

func (r *PostgresFingerprints) deleteQuery(day time.Time) (string, []any, error) {
	query, args, err := r.psql.
		Delete(r.table).
		Where(sq.Lt{"published_date": dateOnly(day)}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build delete query: %w", err)
	}
	return query, args, nil
}

// dateOnly keeps the calendar day of t as seen in t's own location.
func dateOnly(t time.Time) string {
	return t.Format(time.DateOnly)
}

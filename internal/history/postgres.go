package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-cli/internal/db"
	"github.com/sells-group/esg-cli/internal/model"
)

// PostgresStore implements Store on the warehouse database.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over pool. The caller owns the pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS report_history (
	id             BIGSERIAL PRIMARY KEY,
	report_name    TEXT NOT NULL,
	parameters     JSONB NOT NULL,
	result_summary JSONB,
	notes          TEXT,
	generated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_report_history_generated_at ON report_history(generated_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate report_history")
}

// Close is a no-op; the pool is shared with the warehouse.
func (s *PostgresStore) Close() error {
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, name string, parameters, summary any, notes string) (*model.HistoryRef, error) {
	params, sum, err := encode(parameters, summary)
	if err != nil {
		return nil, err
	}

	var ref model.HistoryRef
	err = s.pool.QueryRow(ctx, `
		INSERT INTO report_history (report_name, parameters, result_summary, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, generated_at`,
		name, params, sum, notes,
	).Scan(&ref.ID, &ref.GeneratedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert report_history")
	}
	return &ref, nil
}

func (s *PostgresStore) Get(ctx context.Context, ids []int64) ([]model.HistoryRecord, error) {
	if len(ids) == 0 {
		return []model.HistoryRecord{}, nil
	}
	return s.list(ctx, "get", `
		SELECT id, report_name, parameters::text, result_summary::text, notes, generated_at
		FROM report_history
		WHERE id = ANY($1)
		ORDER BY id`, ids)
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	return s.list(ctx, "recent", `
		SELECT id, report_name, parameters::text, result_summary::text, notes, generated_at
		FROM report_history
		ORDER BY id DESC
		LIMIT $1`, recentLimit(limit))
}

func (s *PostgresStore) list(ctx context.Context, op, sql string, args ...any) ([]model.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s report_history", op)
	}
	defer rows.Close()

	out := []model.HistoryRecord{}
	for rows.Next() {
		var (
			id          int64
			name        string
			params      string
			summary     pgtype.Text
			notes       pgtype.Text
			generatedAt time.Time
		)
		if err := rows.Scan(&id, &name, &params, &summary, &notes, &generatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report_history")
		}
		rec := model.HistoryRecord{
			ID:          id,
			ReportName:  name,
			Parameters:  json.RawMessage(params),
			Notes:       notes.String,
			GeneratedAt: generatedAt,
		}
		if summary.Valid {
			rec.ResultSummary = json.RawMessage(summary.String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate report_history")
	}
	return out, nil
}

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/esg-cli/internal/model"
)

// SQLiteStore implements Store in a local SQLite file, for running without
// write access to the warehouse.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS report_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	report_name    TEXT NOT NULL,
	parameters     TEXT NOT NULL,
	result_summary TEXT,
	notes          TEXT,
	generated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_history_generated_at ON report_history(generated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate report_history")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, name string, parameters, summary any, notes string) (*model.HistoryRef, error) {
	params, sum, err := encode(parameters, summary)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO report_history (report_name, parameters, result_summary, notes, generated_at) VALUES (?, ?, ?, ?, ?)`,
		name, params, sum, notes, generatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert report_history")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	return &model.HistoryRef{ID: id, GeneratedAt: generatedAt}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, ids []int64) ([]model.HistoryRecord, error) {
	if len(ids) == 0 {
		return []model.HistoryRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.list(ctx, "get",
		`SELECT id, report_name, parameters, result_summary, notes, generated_at
		FROM report_history WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	return s.list(ctx, "recent",
		`SELECT id, report_name, parameters, result_summary, notes, generated_at
		FROM report_history ORDER BY id DESC LIMIT ?`, recentLimit(limit))
}

func (s *SQLiteStore) list(ctx context.Context, op, query string, args ...any) ([]model.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s report_history", op)
	}
	defer rows.Close()

	out := []model.HistoryRecord{}
	for rows.Next() {
		var (
			rec         model.HistoryRecord
			params      string
			summary     sql.NullString
			notes       sql.NullString
			generatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.ReportName, &params, &summary, &notes, &generatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report_history")
		}
		rec.Parameters = json.RawMessage(params)
		if summary.Valid {
			rec.ResultSummary = json.RawMessage(summary.String)
		}
		rec.Notes = notes.String
		rec.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse generated_at of record %d", rec.ID)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate report_history")
	}
	return out, nil
}

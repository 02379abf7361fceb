// Package history persists immutable report_history audit records.
package history

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-cli/internal/model"
)

// DefaultRecentLimit is the page size used when a caller asks for zero records.
const DefaultRecentLimit = 20

// Store records and reads report history. Records are never updated or deleted.
type Store interface {
	// Record inserts one record. summary may be nil.
	Record(ctx context.Context, name string, parameters, summary any, notes string) (*model.HistoryRef, error)
	// Get returns the records with the given ids, ordered by id.
	Get(ctx context.Context, ids []int64) ([]model.HistoryRecord, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]model.HistoryRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// encode renders parameters and the optional summary as JSON text.
func encode(parameters, summary any) (string, *string, error) {
	params, err := json.Marshal(parameters)
	if err != nil {
		return "", nil, eris.Wrap(err, "history: marshal parameters")
	}
	if summary == nil {
		return string(params), nil, nil
	}
	sum, err := json.Marshal(summary)
	if err != nil {
		return "", nil, eris.Wrap(err, "history: marshal result summary")
	}
	s := string(sum)
	return string(params), &s, nil
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

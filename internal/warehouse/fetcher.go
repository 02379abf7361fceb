// Package warehouse reads metric observations and PCA weights from the
// relational warehouse.
package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/db"
	"github.com/sells-group/esg-cli/internal/model"
)

// Both queries are DISTINCT: identical rows collapse to one before they reach
// the mean or the weighted sum, as the generateReport queries always have.
const directQuery = `
	SELECT DISTINCT metric_value_standardized, metric_value, metric_unit
	FROM public.combined
	WHERE metric_name = $1
	  AND industry = $2
	  AND metric_year = $3
	  AND company_name = $4`

const pcaQuery = `
	SELECT DISTINCT c.metric_value_standardized, c.metric_value, c.metric_unit, m.weight
	FROM public.combined c
	JOIN public.metric_weights m
	  ON c.metric_name = m.metric_name
	 AND c.industry = m.industry
	WHERE c.metric_name = $1
	  AND c.industry = $2
	  AND c.metric_year = $3
	  AND c.company_name = $4`

// Fetcher runs exact-match observation queries.
type Fetcher struct {
	pool db.Pool
}

// NewFetcher creates a Fetcher over pool.
func NewFetcher(pool db.Pool) *Fetcher {
	return &Fetcher{pool: pool}
}

// Fetch dispatches to FetchDirect or FetchPCA by scheme.
func (f *Fetcher) Fetch(ctx context.Context, scheme model.Scheme, metric string, filter model.Filter) ([]model.Observation, error) {
	if scheme.Weighted() {
		return f.FetchPCA(ctx, metric, filter)
	}
	return f.FetchDirect(ctx, metric, filter)
}

// FetchDirect returns every combined row for metric under filter.
func (f *Fetcher) FetchDirect(ctx context.Context, metric string, filter model.Filter) ([]model.Observation, error) {
	return f.query(ctx, model.DirectInput, directQuery, metric, filter)
}

// FetchPCA returns every combined row for metric under filter with the
// weight of the matching (metric, industry) metric_weights row attached.
func (f *Fetcher) FetchPCA(ctx context.Context, metric string, filter model.Filter) ([]model.Observation, error) {
	return f.query(ctx, model.PCAInput, pcaQuery, metric, filter)
}

func (f *Fetcher) query(ctx context.Context, scheme model.Scheme, sql, metric string, filter model.Filter) ([]model.Observation, error) {
	period := pgtype.Date{Time: filter.Period, Valid: true}

	rows, err := f.pool.Query(ctx, sql, metric, filter.Industry, period, filter.Company)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: query %s observations for %q", scheme, metric)
	}
	defer rows.Close()

	obs := []model.Observation{}
	for rows.Next() {
		var std, val, weight pgtype.Float8
		var unit pgtype.Text

		dest := []any{&std, &val, &unit}
		if scheme.Weighted() {
			dest = append(dest, &weight)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "warehouse: scan %s observation for %q", scheme, metric)
		}

		o := model.Observation{
			Standardized: floatPtr(std),
			Value:        floatPtr(val),
		}
		if unit.Valid {
			o.Unit = model.String(unit.String)
		}
		if scheme.Weighted() {
			o.Weight = floatPtr(weight)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "warehouse: iterate %s observations for %q", scheme, metric)
	}

	zap.L().Debug("warehouse: fetched observations",
		zap.String("metric", metric),
		zap.Stringer("scheme", scheme),
		zap.Int("rows", len(obs)),
	)
	return obs, nil
}

func floatPtr(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	return model.Float(f.Float64)
}

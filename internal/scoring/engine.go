// Package scoring folds DirectInput and PCAInput metric contributions into a
// normalized composite score.
package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/metrics"
	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/sparql"
)

// Resolver finds the datasets backing a metric for a model.
type Resolver interface {
	Resolve(ctx context.Context, modelID sparql.Term, metric string, scheme model.Scheme) ([]string, error)
}

// Fetcher loads a metric's observations under a filter.
type Fetcher interface {
	Fetch(ctx context.Context, scheme model.Scheme, metric string, filter model.Filter) ([]model.Observation, error)
}

// Result is the composite score with the per-metric rows behind it.
type Result struct {
	Accumulator
	FinalValue    float64                        `json:"final_value"`
	FinalAdjusted float64                        `json:"final_adjusted"`
	RawInput      map[string][]model.Observation `json:"raw_input"`
	RawPCA        map[string][]model.Observation `json:"raw_pca"`
	Failures      []model.Failure                `json:"failures"`
}

func newResult() *Result {
	return &Result{
		RawInput: map[string][]model.Observation{},
		RawPCA:   map[string][]model.Observation{},
		Failures: []model.Failure{},
	}
}

func (r *Result) raw(scheme model.Scheme) map[string][]model.Observation {
	if scheme == model.PCAInput {
		return r.RawPCA
	}
	return r.RawInput
}

// Option configures an Engine.
type Option func(*Engine)

// WithCallTimeout bounds each graph and warehouse call. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
	}
}

// WithMetrics records aggregation metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs aggregations. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	resolver    Resolver
	fetcher     Fetcher
	ns          sparql.Namespace
	callTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewEngine creates an Engine. Model identifiers are validated against ns.
func NewEngine(resolver Resolver, fetcher Fetcher, ns sparql.Namespace, opts ...Option) *Engine {
	e := &Engine{resolver: resolver, fetcher: fetcher, ns: ns}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Aggregate validates req and folds every selected metric, DirectInput first,
// each in the order given. Only invalid input returns an error; graph and
// warehouse failures are recorded on the result and the metric is treated as
// having no datasets or no rows.
func (e *Engine) Aggregate(ctx context.Context, req model.Request) (*Result, error) {
	start := time.Now()

	filter, err := req.Validate()
	if err != nil {
		e.metrics.ObserveAggregation("invalid", time.Since(start))
		return nil, err
	}
	modelID, err := e.ns.Term(req.ModelURI)
	if err != nil {
		e.metrics.ObserveAggregation("invalid", time.Since(start))
		return nil, model.NewValidationError("modelUri", "is not a valid model identifier")
	}

	res := newResult()
	for _, scheme := range model.Schemes {
		for _, metric := range req.Selected(scheme) {
			e.contribute(ctx, res, scheme, modelID, metric, filter)
		}
	}
	res.FinalValue, res.FinalAdjusted = res.Normalize()

	e.metrics.ObserveAggregation("ok", time.Since(start))
	zap.L().Info("scoring: aggregated",
		zap.String("model_uri", req.ModelURI),
		zap.String("company", req.Company),
		zap.Int("count_input", res.CountInput),
		zap.Int("count_pca", res.CountPCA),
		zap.Float64("final_value", res.FinalValue),
		zap.Float64("final_adjusted", res.FinalAdjusted),
		zap.Int("failures", len(res.Failures)),
	)
	return res, nil
}

// contribute resolves, fetches and folds one metric.
func (e *Engine) contribute(ctx context.Context, res *Result, scheme model.Scheme, modelID sparql.Term, metric string, filter model.Filter) {
	datasets, err := e.resolve(ctx, modelID, metric, scheme)
	if err != nil {
		e.fail(res, model.GraphQueryFailure, scheme, metric, err)
	}
	if len(datasets) == 0 {
		e.metrics.Contribution(scheme.String(), false)
		return
	}

	obs, err := e.fetch(ctx, scheme, metric, filter)
	if err != nil {
		e.fail(res, model.StorageQueryFailure, scheme, metric, err)
		obs = nil
	}

	display := model.FiniteOnly(obs)
	if scheme.Weighted() {
		display = model.DedupeByValueUnit(display)
	}
	if display == nil {
		display = []model.Observation{}
	}
	res.raw(scheme)[metric] = display

	counted, err := res.add(scheme, contributionOf(scheme, obs))
	if err != nil {
		e.fail(res, model.NonFiniteFailure, scheme, metric, err)
	}
	e.metrics.Contribution(scheme.String(), counted)
}

func (e *Engine) resolve(ctx context.Context, modelID sparql.Term, metric string, scheme model.Scheme) ([]string, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.resolver.Resolve(ctx, modelID, metric, scheme)
}

func (e *Engine) fetch(ctx context.Context, scheme model.Scheme, metric string, filter model.Filter) ([]model.Observation, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.fetcher.Fetch(ctx, scheme, metric, filter)
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

func (e *Engine) fail(res *Result, kind model.FailureKind, scheme model.Scheme, metric string, err error) {
	f := model.NewFailure(kind, scheme, metric, err)
	res.Failures = append(res.Failures, f)
	e.metrics.Failure(string(kind), scheme.String())
	zap.L().Warn("scoring: metric degraded",
		zap.String("kind", string(kind)),
		zap.Stringer("scheme", scheme),
		zap.String("metric", metric),
		zap.Error(err),
	)
}

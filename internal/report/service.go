// Package report runs an aggregation for a request and assembles the
// response, the ObtainUsing model lookup and the best-effort history record.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/graph"
	"github.com/sells-group/esg-cli/internal/history"
	"github.com/sells-group/esg-cli/internal/metrics"
	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/scoring"
	"github.com/sells-group/esg-cli/internal/sparql"
)

// Notes is stored on every history record written by Generate.
const Notes = "Generated via generateReport API"

// Aggregator computes a composite score.
type Aggregator interface {
	Aggregate(ctx context.Context, req model.Request) (*scoring.Result, error)
}

// ModelLookup lists the models a metric is obtained with.
type ModelLookup interface {
	ModelsForMetric(ctx context.Context, metricID sparql.Term) ([]graph.ModelRef, error)
}

// Score echoes the request next to the composite result.
type Score struct {
	RequestID     string   `json:"request_id"`
	ModelURI      string   `json:"model_uri"`
	Industry      string   `json:"industry"`
	MetricYear    string   `json:"metric_year"`
	Company       string   `json:"company"`
	SelectedInput []string `json:"selected_input"`
	SelectedPCA   []string `json:"selected_pca"`
	*scoring.Result
}

// Report is a Score plus its history reference and model lookup.
// ReportHistory is nil when recording failed.
type Report struct {
	Score
	ReportHistory    *model.HistoryRef `json:"report_history"`
	AllParameters    model.Request     `json:"all_parameters"`
	ModelsForMetrics []graph.ModelRef  `json:"models_for_metrics"`
}

// Option configures a Service.
type Option func(*Service)

// WithDefaults fills blank request scalars from d.
func WithDefaults(d model.Request) Option {
	return func(s *Service) {
		s.defaults = d
	}
}

// WithCallTimeout bounds the model lookup and the history insert.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.callTimeout = d
	}
}

// WithMetrics records history writes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service is safe for concurrent use.
type Service struct {
	engine      Aggregator
	models      ModelLookup
	store       history.Store
	ns          sparql.Namespace
	defaults    model.Request
	callTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewService creates a Service. models and store may be nil, in which case
// the lookup returns no models and nothing is recorded.
func NewService(engine Aggregator, models ModelLookup, store history.Store, ns sparql.Namespace, opts ...Option) *Service {
	s := &Service{engine: engine, models: models, store: store, ns: ns}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score aggregates req without recording history.
func (s *Service) Score(ctx context.Context, req model.Request) (*Score, error) {
	req = s.normalize(req)
	res, err := s.engine.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Score{
		RequestID:     uuid.NewString(),
		ModelURI:      req.ModelURI,
		Industry:      req.Industry,
		MetricYear:    req.MetricYear,
		Company:       req.Company,
		SelectedInput: req.SelectedInput,
		SelectedPCA:   req.SelectedPCA,
		Result:        res,
	}, nil
}

// Generate aggregates req, looks up the selected model under its parent
// metric and records the outcome. Only invalid input fails; a lookup failure
// yields no models and a recording failure yields a nil ReportHistory.
func (s *Service) Generate(ctx context.Context, req model.Request) (*Report, error) {
	req = s.normalize(req)
	score, err := s.Score(ctx, req)
	if err != nil {
		return nil, err
	}

	params := req
	params.MetricURI = ""

	rep := &Report{
		Score:            *score,
		AllParameters:    params,
		ModelsForMetrics: s.lookupModels(ctx, req, score.RequestID),
	}
	rep.ReportHistory = s.record(ctx, params, score)
	return rep, nil
}

func (s *Service) normalize(req model.Request) model.Request {
	req = req.WithDefaults(s.defaults)
	if req.SelectedInput == nil {
		req.SelectedInput = []string{}
	}
	if req.SelectedPCA == nil {
		req.SelectedPCA = []string{}
	}
	return req
}

// lookupModels keeps only the entry whose URI is the selected model.
func (s *Service) lookupModels(ctx context.Context, req model.Request, requestID string) []graph.ModelRef {
	out := []graph.ModelRef{}
	if s.models == nil {
		return out
	}

	selected, err := s.ns.Term(req.ModelURI)
	if err != nil {
		return out
	}
	parent := req.MetricURI
	if parent == "" {
		parent = graph.ParentMetric(req.ModelURI)
	}
	metricID, err := s.ns.Term(parent)
	if err != nil {
		zap.L().Warn("report: invalid metric uri for model lookup",
			zap.String("request_id", requestID),
			zap.String("metric_uri", parent),
			zap.Error(err),
		)
		return out
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	refs, err := s.models.ModelsForMetric(ctx, metricID)
	if err != nil {
		zap.L().Warn("report: model lookup failed",
			zap.String("request_id", requestID),
			zap.String("metric_uri", parent),
			zap.Error(err),
		)
		return out
	}

	want := s.ns.Expand(selected)
	for _, r := range refs {
		if r.ModelURI == want {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) record(ctx context.Context, params model.Request, score *Score) *model.HistoryRef {
	if s.store == nil {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ref, err := s.store.Record(ctx, model.ReportGeneration, params, score.Result, Notes)
	s.metrics.HistoryWrite(err == nil)
	if err != nil {
		zap.L().Error("report: recording failed",
			zap.String("request_id", score.RequestID),
			zap.String("kind", string(model.RecordingFailure)),
			zap.Error(err),
		)
		return nil
	}
	zap.L().Info("report: recorded",
		zap.String("request_id", score.RequestID),
		zap.Int64("history_id", ref.ID),
	)
	return ref
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

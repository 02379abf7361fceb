package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/graph"
	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/scoring"
	"github.com/sells-group/esg-cli/internal/sparql"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var ns = sparql.Namespace{Prefix: "esg", IRI: "tag:stardog:designer:ESG4:model:"}

var defaults = model.Request{
	ModelURI:   "esg:TC-SC-110a.1",
	Industry:   "Semiconductors",
	MetricYear: "2022-12-31",
	Company:    "Soitec SA",
}

type mockAggregator struct{ mock.Mock }

func (m *mockAggregator) Aggregate(ctx context.Context, req model.Request) (*scoring.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*scoring.Result)
	return res, args.Error(1)
}

type mockLookup struct{ mock.Mock }

func (m *mockLookup) ModelsForMetric(ctx context.Context, metricID sparql.Term) ([]graph.ModelRef, error) {
	args := m.Called(ctx, metricID)
	refs, _ := args.Get(0).([]graph.ModelRef)
	return refs, args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Record(ctx context.Context, name string, parameters, summary any, notes string) (*model.HistoryRef, error) {
	args := m.Called(ctx, name, parameters, summary, notes)
	ref, _ := args.Get(0).(*model.HistoryRef)
	return ref, args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, ids []int64) ([]model.HistoryRecord, error) {
	args := m.Called(ctx, ids)
	recs, _ := args.Get(0).([]model.HistoryRecord)
	return recs, args.Error(1)
}

func (m *mockStore) Recent(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]model.HistoryRecord)
	return recs, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }

func result() *scoring.Result {
	return &scoring.Result{
		Accumulator: scoring.Accumulator{
			TotalInputSum: 50, TotalPCASum: 30, CountInput: 1, CountPCA: 1, WeightSumPCA: 0.5,
		},
		FinalValue:    40,
		FinalAdjusted: 40 / 0.75,
		RawInput:      map[string][]model.Observation{},
		RawPCA:        map[string][]model.Observation{},
		Failures:      []model.Failure{},
	}
}

func TestGenerate(t *testing.T) {
	agg, lookup, store := new(mockAggregator), new(mockLookup), new(mockStore)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	agg.On("Aggregate", mock.Anything, mock.MatchedBy(func(r model.Request) bool {
		return r.Company == "Other Co" && r.Industry == "Semiconductors"
	})).Return(result(), nil)
	lookup.On("ModelsForMetric", mock.Anything, sparql.Term("esg:TC-SC-110a")).Return([]graph.ModelRef{
		{ModelURI: "tag:stardog:designer:ESG4:model:TC-SC-110a.1", ModelLabel: "Selected"},
		{ModelURI: "tag:stardog:designer:ESG4:model:TC-SC-110a.2", ModelLabel: "Other"},
	}, nil)
	store.On("Record", mock.Anything, model.ReportGeneration, mock.MatchedBy(func(p model.Request) bool {
		return p.Company == "Other Co" && p.MetricURI == ""
	}), mock.Anything, Notes).Return(&model.HistoryRef{ID: 9, GeneratedAt: at}, nil)

	svc := NewService(agg, lookup, store, ns, WithDefaults(defaults), WithCallTimeout(time.Second))
	rep, err := svc.Generate(context.Background(), model.Request{
		Company:       "Other Co",
		SelectedInput: []string{"CO2DIRECTSCOPE1"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RequestID)
	assert.Equal(t, "esg:TC-SC-110a.1", rep.ModelURI)
	assert.Equal(t, []string{}, rep.SelectedPCA)
	assert.Equal(t, &model.HistoryRef{ID: 9, GeneratedAt: at}, rep.ReportHistory)
	assert.Equal(t, []graph.ModelRef{{ModelURI: "tag:stardog:designer:ESG4:model:TC-SC-110a.1", ModelLabel: "Selected"}}, rep.ModelsForMetrics)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	for _, key := range []string{
		"model_uri", "industry", "metric_year", "company", "selected_input", "selected_pca",
		"total_input_sum", "total_pca_sum", "count_input", "count_pca", "final_value", "final_adjusted",
		"report_history", "all_parameters", "raw_input", "raw_pca", "models_for_metrics",
	} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, 40.0, body["final_value"])
	assert.Equal(t, "Other Co", body["all_parameters"].(map[string]any)["company"])

	agg.AssertExpectations(t)
	lookup.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestGenerate_ExplicitMetricURI(t *testing.T) {
	agg, lookup := new(mockAggregator), new(mockLookup)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(result(), nil)
	lookup.On("ModelsForMetric", mock.Anything, sparql.Term("esg:TC-SC-999")).Return([]graph.ModelRef{}, nil)

	svc := NewService(agg, lookup, nil, ns, WithDefaults(defaults))
	rep, err := svc.Generate(context.Background(), model.Request{MetricURI: "esg:TC-SC-999"})
	require.NoError(t, err)
	assert.Empty(t, rep.ModelsForMetrics)
	assert.Nil(t, rep.ReportHistory)
	assert.Empty(t, rep.AllParameters.MetricURI)
	lookup.AssertExpectations(t)
}

func TestGenerate_RecordingFailureIsNotFatal(t *testing.T) {
	agg, lookup, store := new(mockAggregator), new(mockLookup), new(mockStore)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(result(), nil)
	lookup.On("ModelsForMetric", mock.Anything, mock.Anything).Return(nil, errors.New("stardog down"))
	store.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("permission denied"))

	rep, err := NewService(agg, lookup, store, ns, WithDefaults(defaults)).Generate(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Nil(t, rep.ReportHistory)
	assert.Equal(t, []graph.ModelRef{}, rep.ModelsForMetrics)
	assert.Equal(t, 40.0, rep.FinalValue)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"report_history":null`)
}

func TestGenerate_ValidationError(t *testing.T) {
	agg, store := new(mockAggregator), new(mockStore)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(nil, model.NewValidationError("metric_year", "must be a date"))

	rep, err := NewService(agg, nil, store, ns).Generate(context.Background(), model.Request{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Nil(t, rep)
	store.AssertNumberOfCalls(t, "Record", 0)
}

func TestScore(t *testing.T) {
	agg, store := new(mockAggregator), new(mockStore)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(result(), nil)

	score, err := NewService(agg, nil, store, ns, WithDefaults(defaults)).Score(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "Soitec SA", score.Company)
	assert.Equal(t, 1, score.CountPCA)
	assert.Equal(t, []string{}, score.SelectedInput)
	store.AssertNumberOfCalls(t, "Record", 0)
}

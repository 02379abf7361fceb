package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		acc          Accumulator
		wantValue    float64
		wantAdjusted float64
	}{
		{"empty", Accumulator{}, 0, 0},
		{"direct only", Accumulator{TotalInputSum: 90, CountInput: 2}, 90, 90},
		{"pca only", Accumulator{TotalPCASum: 30, CountPCA: 1, WeightSumPCA: 0.5}, 30, 60},
		{"mixed", Accumulator{TotalInputSum: 50, TotalPCASum: 30, CountInput: 1, CountPCA: 1, WeightSumPCA: 0.5}, 40, 40 / 0.75},
		{"zero overall weight", Accumulator{TotalPCASum: 0, CountPCA: 2}, 0, 0},
		{"pca without weight", Accumulator{TotalPCASum: 5, CountPCA: 1, WeightSumPCA: 0}, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, adj := tt.acc.Normalize()
			assert.InDelta(t, tt.wantValue, v, 1e-9)
			assert.InDelta(t, tt.wantAdjusted, adj, 1e-9)
		})
	}
}

func TestContributionOf(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)

	c := contributionOf(model.DirectInput, []model.Observation{
		{Standardized: model.Float(10)},
		{Standardized: model.Float(30)},
		{Standardized: &nan},
		{Standardized: nil},
	})
	assert.True(t, c.usable)
	assert.Equal(t, 20.0, c.sum)
	assert.Equal(t, 0.0, c.weight)

	c = contributionOf(model.PCAInput, []model.Observation{
		{Standardized: model.Float(10), Weight: model.Float(0.5)},
		{Standardized: model.Float(30), Weight: nil},
		{Standardized: nil, Weight: model.Float(0.2)},
		{Standardized: model.Float(1), Weight: &inf},
	})
	assert.True(t, c.usable)
	assert.Equal(t, 5.0, c.sum)
	assert.Equal(t, 0.5, c.weight)

	assert.False(t, contributionOf(model.DirectInput, nil).usable)
	assert.False(t, contributionOf(model.PCAInput, nil).usable)
}

func TestAccumulatorAdd(t *testing.T) {
	var a Accumulator

	add := func(scheme model.Scheme, c contribution) bool {
		counted, err := a.add(scheme, c)
		require.NoError(t, err)
		return counted
	}

	assert.False(t, add(model.DirectInput, contribution{}))
	assert.True(t, add(model.PCAInput, contribution{}))
	assert.True(t, add(model.DirectInput, contribution{sum: 4, usable: true}))
	assert.True(t, add(model.PCAInput, contribution{sum: 3, weight: 0.5, usable: true}))
	assert.False(t, add(model.Scheme(9), contribution{usable: true}))

	assert.Equal(t, Accumulator{
		TotalInputSum: 4,
		TotalPCASum:   3,
		CountInput:    1,
		CountPCA:      2,
		WeightSumPCA:  0.5,
	}, a)
}

func TestAccumulatorAdd_NonFinite(t *testing.T) {
	a := Accumulator{TotalInputSum: math.MaxFloat64, TotalPCASum: 1, CountInput: 1, CountPCA: 1, WeightSumPCA: 0.5}
	before := a

	counted, err := a.add(model.DirectInput, contribution{sum: math.MaxFloat64, usable: true})
	assert.False(t, counted)
	assert.ErrorIs(t, err, ErrNonFinite)

	counted, err = a.add(model.PCAInput, contribution{sum: math.Inf(1), weight: 1, usable: true})
	assert.False(t, counted)
	assert.ErrorIs(t, err, ErrNonFinite)

	counted, err = a.add(model.PCAInput, contribution{sum: 1, weight: math.MaxFloat64 * 2, usable: true})
	assert.False(t, counted)
	assert.ErrorIs(t, err, ErrNonFinite)

	assert.Equal(t, before, a)
}

func TestContributionOf_MeanStaysFinite(t *testing.T) {
	c := contributionOf(model.DirectInput, []model.Observation{
		{Standardized: model.Float(math.MaxFloat64)},
		{Standardized: model.Float(math.MaxFloat64)},
		{Standardized: model.Float(math.MaxFloat64)},
	})
	assert.True(t, c.usable)
	assert.InEpsilon(t, math.MaxFloat64, c.sum, 1e-9)
}

func TestNormalize_AdjustedOutOfRange(t *testing.T) {
	a := Accumulator{TotalPCASum: math.MaxFloat64, CountPCA: 1, WeightSumPCA: 1e-300}
	v, adj := a.Normalize()
	assert.Equal(t, math.MaxFloat64, v)
	assert.Equal(t, 0.0, adj)
}

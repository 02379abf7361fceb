package scoring

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-cli/internal/model"
)

// ErrNonFinite is returned by add when folding a contribution would leave a
// non-finite sum in the accumulator.
var ErrNonFinite = eris.New("scoring: contribution overflows accumulator")

// Accumulator is the running state of one aggregation. It belongs to a
// single request and is never shared.
type Accumulator struct {
	TotalInputSum float64 `json:"total_input_sum"`
	TotalPCASum   float64 `json:"total_pca_sum"`
	CountInput    int     `json:"count_input"`
	CountPCA      int     `json:"count_pca"`
	WeightSumPCA  float64 `json:"weight_sum_pca"`
}

// contribution is one metric's share before it is folded into the accumulator.
type contribution struct {
	sum    float64
	weight float64
	usable bool
}

// contributionOf reduces a metric's observations under scheme. DirectInput
// yields the mean of the standardized values; PCAInput yields the sum of
// standardized*weight and the sum of weights over rows where both are set.
// Non-finite values are treated as null. The mean is kept incrementally so
// it stays finite; the weighted sums can still overflow and are checked by add.
func contributionOf(scheme model.Scheme, obs []model.Observation) contribution {
	var c contribution
	n := 0
	for _, o := range obs {
		std, ok := finite(o.Standardized)
		if !ok {
			continue
		}
		if scheme.Weighted() {
			w, ok := finite(o.Weight)
			if !ok {
				continue
			}
			c.sum += std * w
			c.weight += w
			n++
			continue
		}
		n++
		c.sum += std/float64(n) - c.sum/float64(n)
	}
	c.usable = n > 0
	return c
}

// add folds c into the accumulator, reporting whether the metric was counted.
// A metric with no usable rows is counted only when the scheme says so. A
// contribution that would make any sum non-finite leaves the accumulator
// untouched and returns ErrNonFinite.
func (a *Accumulator) add(scheme model.Scheme, c contribution) (bool, error) {
	if !c.usable && !scheme.CountsEmpty() {
		return false, nil
	}
	switch scheme {
	case model.DirectInput:
		sum := a.TotalInputSum + c.sum
		if !isFinite(sum) {
			return false, ErrNonFinite
		}
		a.TotalInputSum = sum
		a.CountInput++
	case model.PCAInput:
		sum, weight := a.TotalPCASum+c.sum, a.WeightSumPCA+c.weight
		if !isFinite(sum) || !isFinite(weight) {
			return false, ErrNonFinite
		}
		a.TotalPCASum, a.WeightSumPCA = sum, weight
		a.CountPCA++
	default:
		return false, nil
	}
	return true, nil
}

// Normalize derives the composite pair. Both are zero when nothing was
// counted; final_adjusted is zero when the overall weight is zero or the
// division leaves the float range.
func (a Accumulator) Normalize() (finalValue, finalAdjusted float64) {
	total := a.CountInput + a.CountPCA
	if total <= 0 {
		return 0, 0
	}
	inputShare := float64(a.CountInput) / float64(total)
	pcaShare := float64(a.CountPCA) / float64(total)

	finalValue = a.TotalInputSum*inputShare + a.TotalPCASum*pcaShare
	overallWeight := inputShare + pcaShare*a.WeightSumPCA
	if overallWeight == 0 {
		return finalValue, 0
	}
	finalAdjusted = finalValue / overallWeight
	if !isFinite(finalAdjusted) {
		return finalValue, 0
	}
	return finalValue, finalAdjusted
}

func finite(p *float64) (float64, bool) {
	if p == nil || !isFinite(*p) {
		return 0, false
	}
	return *p, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

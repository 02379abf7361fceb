package model

import "github.com/rotisserie/eris"

// Scheme is the contribution scheme a selected metric is aggregated under.
type Scheme int

const (
	// DirectInput metrics contribute the mean of their standardized values
	// with unit weight.
	DirectInput Scheme = iota
	// PCAInput metrics contribute standardized value times a per-metric weight.
	PCAInput
)

// Schemes lists every scheme in aggregation order.
var Schemes = []Scheme{DirectInput, PCAInput}

func (s Scheme) String() string {
	switch s {
	case DirectInput:
		return "direct_input"
	case PCAInput:
		return "pca_input"
	default:
		return "unknown"
	}
}

// Relation returns the local name of the graph predicate linking a model to
// the datasets backing this scheme.
func (s Scheme) Relation() string {
	if s == PCAInput {
		return "PCAInputFrom"
	}
	return "InputFrom"
}

// Weighted reports whether observations carry a weight joined from metric_weights.
func (s Scheme) Weighted() bool {
	return s == PCAInput
}

// CountsEmpty reports whether a metric that resolved to datasets but yielded
// no usable observations still increments the scheme's count.
// DirectInput skips such metrics; PCAInput counts them with a zero contribution.
func (s Scheme) CountsEmpty() bool {
	return s == PCAInput
}

// MarshalText encodes the scheme by name.
func (s Scheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a scheme name.
func (s *Scheme) UnmarshalText(text []byte) error {
	switch string(text) {
	case "direct_input":
		*s = DirectInput
	case "pca_input":
		*s = PCAInput
	default:
		return eris.Errorf("model: unknown scheme %q", string(text))
	}
	return nil
}

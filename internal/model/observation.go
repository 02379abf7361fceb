package model

import "math"

// Observation is one warehouse row for a (metric, industry, period, company)
// filter. Any value may be NULL in storage and is nil here.
type Observation struct {
	Standardized *float64 `json:"metric_value_standardized"`
	Value        *float64 `json:"metric_value"`
	Unit         *string  `json:"metric_unit"`
	// Weight is set only for PCAInput rows joined against metric_weights.
	Weight *float64 `json:"weight,omitempty"`
}

type valueUnit struct {
	value    float64
	hasValue bool
	unit     string
	hasUnit  bool
}

func (o Observation) key() valueUnit {
	var k valueUnit
	if o.Value != nil {
		k.value, k.hasValue = *o.Value, true
	}
	if o.Unit != nil {
		k.unit, k.hasUnit = *o.Unit, true
	}
	return k
}

// DedupeByValueUnit collapses observations sharing the same (raw value, unit)
// pair, keeping the first occurrence. It is used for display only.
func DedupeByValueUnit(obs []Observation) []Observation {
	out := make([]Observation, 0, len(obs))
	seen := make(map[valueUnit]struct{}, len(obs))
	for _, o := range obs {
		k := o.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// FiniteOnly returns a copy of obs with NaN and infinite values replaced by
// nil, so the rows can be encoded as JSON.
func FiniteOnly(obs []Observation) []Observation {
	if obs == nil {
		return nil
	}
	out := make([]Observation, len(obs))
	for i, o := range obs {
		o.Standardized = finiteOrNil(o.Standardized)
		o.Value = finiteOrNil(o.Value)
		o.Weight = finiteOrNil(o.Weight)
		out[i] = o
	}
	return out
}

func finiteOrNil(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}

// Float returns a pointer to v. Handy for building observations.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }

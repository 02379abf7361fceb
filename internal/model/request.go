package model

import (
	"strings"
	"time"
)

// PeriodLayout is the date layout of the metric_year filter.
const PeriodLayout = "2006-01-02"

// Request is the full parameter set of one composite score computation.
// JSON names follow the query parameters the report endpoints accept.
type Request struct {
	ModelURI      string   `json:"modelUri" yaml:"model_uri"`
	Industry      string   `json:"industry" yaml:"industry"`
	MetricYear    string   `json:"metric_year" yaml:"metric_year"`
	Company       string   `json:"company" yaml:"company"`
	SelectedInput []string `json:"selected_input" yaml:"selected_input"`
	SelectedPCA   []string `json:"selected_pca" yaml:"selected_pca"`
	MetricURI     string   `json:"metricUri,omitempty" yaml:"metric_uri,omitempty"`
}

// Filter is the exact-match context applied to warehouse rows.
type Filter struct {
	Industry string
	Period   time.Time
	Company  string
}

// Selected returns the metric names chosen for scheme s, in caller order.
func (r Request) Selected(s Scheme) []string {
	if s == PCAInput {
		return r.SelectedPCA
	}
	return r.SelectedInput
}

// WithDefaults fills empty scalar fields from d. Metric selections are never
// defaulted.
func (r Request) WithDefaults(d Request) Request {
	if r.ModelURI == "" {
		r.ModelURI = d.ModelURI
	}
	if r.Industry == "" {
		r.Industry = d.Industry
	}
	if r.MetricYear == "" {
		r.MetricYear = d.MetricYear
	}
	if r.Company == "" {
		r.Company = d.Company
	}
	return r
}

// Validate checks the caller contract and returns the warehouse filter.
// It never touches an external store.
func (r Request) Validate() (Filter, error) {
	if strings.TrimSpace(r.ModelURI) == "" {
		return Filter{}, NewValidationError("modelUri", "is required")
	}
	if r.Industry == "" {
		return Filter{}, NewValidationError("industry", "is required")
	}
	if r.Company == "" {
		return Filter{}, NewValidationError("company", "is required")
	}
	period, err := time.Parse(PeriodLayout, r.MetricYear)
	if err != nil {
		return Filter{}, NewValidationError("metric_year", "must be a date formatted YYYY-MM-DD")
	}
	for _, s := range Schemes {
		for _, m := range r.Selected(s) {
			if m == "" {
				return Filter{}, NewValidationError(s.String(), "metric names must be non-empty")
			}
		}
	}
	return Filter{Industry: r.Industry, Period: period, Company: r.Company}, nil
}

// SplitList splits a comma-separated parameter, trimming whitespace and
// dropping empty entries.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

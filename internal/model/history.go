package model

import (
	"encoding/json"
	"time"
)

// ReportGeneration is the report_name recorded for composite score reports.
const ReportGeneration = "Report_Generation"

// HistoryRef identifies a persisted history record.
type HistoryRef struct {
	ID          int64     `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// HistoryRecord is an immutable audit entry for one completed aggregation.
// Parameters and ResultSummary are stored as JSON text.
type HistoryRecord struct {
	ID            int64           `json:"id"`
	ReportName    string          `json:"report_name"`
	Parameters    json.RawMessage `json:"parameters"`
	ResultSummary json.RawMessage `json:"result_summary,omitempty"`
	Notes         string          `json:"notes"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// Ref returns the record's identifier and timestamp.
func (h HistoryRecord) Ref() HistoryRef {
	return HistoryRef{ID: h.ID, GeneratedAt: h.GeneratedAt}
}

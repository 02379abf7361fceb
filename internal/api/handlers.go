package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/history"
	"github.com/sells-group/esg-cli/internal/model"
)

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// requestFromQuery reads the report parameters. Blank values are filled
// from the configured defaults downstream.
func requestFromQuery(r *http.Request) model.Request {
	q := r.URL.Query()
	return model.Request{
		ModelURI:      q.Get("modelUri"),
		Industry:      q.Get("industry"),
		MetricYear:    q.Get("metric_year"),
		Company:       q.Get("company"),
		SelectedInput: model.SplitList(q.Get("selected_input")),
		SelectedPCA:   model.SplitList(q.Get("selected_pca")),
		MetricURI:     q.Get("metricUri"),
	}
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Generate(r.Context(), requestFromQuery(r))
	if err != nil {
		s.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCalculateSum(w http.ResponseWriter, r *http.Request) {
	score, err := s.reports.Score(r.Context(), requestFromQuery(r))
	if err != nil {
		s.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, ok := s.lookupHistory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	recs, ok := s.lookupHistory(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := history.Export(&buf, recs); err != nil {
		s.failed(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="report_history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// lookupHistory resolves ?ids= and writes the error response itself when it
// returns false.
func (s *Server) lookupHistory(w http.ResponseWriter, r *http.Request) ([]model.HistoryRecord, bool) {
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	recs, err := s.history.Get(r.Context(), ids)
	if err != nil {
		s.failed(w, r, err)
		return nil, false
	}
	if len(recs) == 0 {
		writeError(w, http.StatusNotFound, "no matching records found")
		return nil, false
	}
	return recs, true
}

func parseIDs(raw string) ([]int64, error) {
	parts := model.SplitList(raw)
	if len(parts) == 0 {
		return nil, model.NewValidationError("ids", "requires at least one comma-separated report_history id")
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, model.NewValidationError("ids", fmt.Sprintf("contains non-integer id %q", p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// failed maps validation errors to 400 and everything else to 500.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, err error) {
	if model.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error("api: request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

package history

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/model"
)

// ExportSheet is the worksheet name used by Export.
const ExportSheet = "report_history"

var exportHeader = []string{
	"id", "report_name", "generated_at", "notes",
	"model_uri", "industry", "metric_year", "company",
	"selected_input", "selected_pca",
	"count_input", "count_pca", "final_value", "final_adjusted",
}

// Summary is the subset of a result summary shown in listings and exports.
type Summary struct {
	CountInput    *int64   `json:"count_input"`
	CountPCA      *int64   `json:"count_pca"`
	FinalValue    *float64 `json:"final_value"`
	FinalAdjusted *float64 `json:"final_adjusted"`
}

// Decode reads a record's parameters and summary. Columns that do not decode
// are left zero and logged at debug with the record id.
func Decode(rec model.HistoryRecord) (model.Request, Summary) {
	var params model.Request
	if err := json.Unmarshal(rec.Parameters, &params); err != nil {
		zap.L().Debug("history: undecodable parameters",
			zap.Int64("id", rec.ID),
			zap.Error(err),
		)
	}
	var sum Summary
	if len(rec.ResultSummary) > 0 {
		if err := json.Unmarshal(rec.ResultSummary, &sum); err != nil {
			zap.L().Debug("history: undecodable result summary",
				zap.Int64("id", rec.ID),
				zap.Error(err),
			)
		}
	}
	return params, sum
}

// Export writes records as a single-sheet workbook, one row per record.
// Parameters and summaries that do not decode leave their columns blank.
func Export(w io.Writer, records []model.HistoryRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ExportSheet)
	if err != nil {
		return eris.Wrap(err, "history: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for _, rec := range records {
		params, sum := Decode(rec)

		row := sheet.AddRow()
		row.AddCell().SetInt64(rec.ID)
		row.AddCell().SetString(rec.ReportName)
		row.AddCell().SetString(rec.GeneratedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(rec.Notes)
		row.AddCell().SetString(params.ModelURI)
		row.AddCell().SetString(params.Industry)
		row.AddCell().SetString(params.MetricYear)
		row.AddCell().SetString(params.Company)
		row.AddCell().SetString(strings.Join(params.SelectedInput, ","))
		row.AddCell().SetString(strings.Join(params.SelectedPCA, ","))
		intCell(row.AddCell(), sum.CountInput)
		intCell(row.AddCell(), sum.CountPCA)
		floatCell(row.AddCell(), sum.FinalValue)
		floatCell(row.AddCell(), sum.FinalAdjusted)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "history: write workbook")
	}
	return nil
}

func intCell(c *xlsx.Cell, v *int64) {
	if v != nil {
		c.SetInt64(*v)
	}
}

func floatCell(c *xlsx.Cell, v *float64) {
	if v != nil {
		c.SetFloat(*v)
	}
}

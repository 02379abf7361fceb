package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/history"
	"github.com/sells-group/esg-cli/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect report history",
	Long:  "Commands for listing, viewing, and exporting report_history records.",
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeFn, err := initHistory(ctx, "history")
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.Recent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatHistoryList(os.Stdout, recs)
		return nil
	},
}

// -- history show --

var historyShowCmd = &cobra.Command{
	Use:   "show <id> [id...]",
	Short: "Print full report records as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids, err := parseIDArgs(args)
		if err != nil {
			return err
		}

		st, closeFn, err := initHistory(ctx, "history")
		if err != nil {
			return err
		}
		defer closeFn()

		recs, err := st.Get(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		if len(recs) == 0 {
			return eris.New("history show: no matching records found")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

// -- history export --

var historyExportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export reports to an xlsx workbook",
	Long:  "Exports the given report ids, or the most recent --limit reports when no ids are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		ids, err := parseIDArgs(args)
		if err != nil {
			return err
		}

		st, closeFn, err := initHistory(ctx, "history")
		if err != nil {
			return err
		}
		defer closeFn()

		var recs []model.HistoryRecord
		if len(ids) > 0 {
			recs, err = st.Get(ctx, ids)
		} else {
			recs, err = st.Recent(ctx, limit)
		}
		if err != nil {
			return eris.Wrap(err, "history export")
		}
		if len(recs) == 0 {
			return eris.New("history export: no matching records found")
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "history export: create %s", out)
		}
		if err := history.Export(f, recs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "history export: close %s", out)
		}

		zap.L().Info("history exported", zap.String("path", out), zap.Int("records", len(recs)))
		return nil
	},
}

func parseIDArgs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, p := range model.SplitList(a) {
			id, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, eris.Errorf("invalid report id %q", p)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func formatHistoryList(out io.Writer, recs []model.HistoryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREPORT\tCOMPANY\tMETRIC_YEAR\tFINAL_VALUE\tFINAL_ADJUSTED\tGENERATED")

	for _, r := range recs {
		params, sum := history.Decode(r)

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.ReportName,
			truncate(params.Company, 30),
			params.MetricYear,
			formatFloat(sum.FinalValue),
			formatFloat(sum.FinalAdjusted),
			r.GeneratedAt.Local().Format(time.DateTime),
		)
	}
	_ = w.Flush()
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	historyListCmd.Flags().Int("limit", history.DefaultRecentLimit, "max reports to list")
	historyExportCmd.Flags().String("out", "report_history.xlsx", "output workbook path")
	historyExportCmd.Flags().Int("limit", history.DefaultRecentLimit, "max reports to export when no ids are given")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

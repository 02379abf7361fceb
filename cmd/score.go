package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/esg-cli/internal/model"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute composite scores from the command line",
	Long: "Scores a single request built from flags, or every request in a YAML batch file. " +
		"With --record each score is generated as a full report and written to report_history.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		batchPath, _ := cmd.Flags().GetString("batch")
		record, _ := cmd.Flags().GetBool("record")

		var reqs []model.Request
		if batchPath != "" {
			var err error
			reqs, err = loadBatchFile(batchPath)
			if err != nil {
				return err
			}
		} else {
			reqs = []model.Request{requestFromFlags(cmd)}
		}

		env, err := initScoring(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		fn := func(ctx context.Context, req model.Request) (any, error) {
			return env.Reports.Score(ctx, req)
		}
		if record {
			fn = func(ctx context.Context, req model.Request) (any, error) {
				return env.Reports.Generate(ctx, req)
			}
		}

		results := processBatch(ctx, reqs, cfg.Batch.MaxConcurrency, fn)
		if err := writeResults(os.Stdout, results); err != nil {
			return err
		}
		if n := countFailed(results); n > 0 {
			return eris.Errorf("score: %d of %d requests failed", n, len(results))
		}
		return nil
	},
}

// batchFile is the YAML layout accepted by score --batch.
type batchFile struct {
	Requests []model.Request `yaml:"requests"`
}

// batchResult is the outcome of one request, in input order.
type batchResult struct {
	Index  int    `json:"index"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// scoreFunc computes the output for one request.
type scoreFunc func(ctx context.Context, req model.Request) (any, error)

func requestFromFlags(cmd *cobra.Command) model.Request {
	modelURI, _ := cmd.Flags().GetString("model")
	industry, _ := cmd.Flags().GetString("industry")
	period, _ := cmd.Flags().GetString("period")
	company, _ := cmd.Flags().GetString("company")
	input, _ := cmd.Flags().GetStringSlice("input")
	pca, _ := cmd.Flags().GetStringSlice("pca")
	metricURI, _ := cmd.Flags().GetString("metric-uri")

	return model.Request{
		ModelURI:      modelURI,
		Industry:      industry,
		MetricYear:    period,
		Company:       company,
		SelectedInput: trimAll(input),
		SelectedPCA:   trimAll(pca),
		MetricURI:     metricURI,
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, model.SplitList(s)...)
	}
	return out
}

// parseBatch decodes a batch file. An empty request list is an error.
func parseBatch(r io.Reader) ([]model.Request, error) {
	var f batchFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, eris.New("batch: file is empty")
		}
		return nil, eris.Wrap(err, "batch: decode")
	}
	if len(f.Requests) == 0 {
		return nil, eris.New("batch: no requests")
	}
	for i := range f.Requests {
		f.Requests[i].SelectedInput = trimAll(f.Requests[i].SelectedInput)
		f.Requests[i].SelectedPCA = trimAll(f.Requests[i].SelectedPCA)
	}
	return f.Requests, nil
}

func loadBatchFile(path string) ([]model.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return parseBatch(f)
}

// processBatch scores every request with at most concurrency in flight.
// Each request gets its own accumulator; one failure never aborts the rest.
func processBatch(ctx context.Context, reqs []model.Request, concurrency int, fn scoreFunc) []batchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("scoring batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]batchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.Int("index", i), zap.String("company", req.Company))

			out, err := fn(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("score failed", zap.Error(err))
				results[i] = batchResult{Index: i, Error: err.Error()}
				return nil
			}
			succeeded.Add(1)
			results[i] = batchResult{Index: i, Result: out}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

func countFailed(results []batchResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// writeResults prints a single result as an object and a batch as an array.
func writeResults(w io.Writer, results []batchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	var v any = results
	if len(results) == 1 {
		v = results[0]
	}
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "score: write output")
	}
	return nil
}

func init() {
	f := scoreCmd.Flags()
	f.String("model", "", "model identifier, e.g. esg:TC-SC-110a.1 (default from config)")
	f.String("industry", "", "industry filter (default from config)")
	f.String("period", "", "metric_year filter as YYYY-MM-DD (default from config)")
	f.String("company", "", "company filter (default from config)")
	f.StringSlice("input", nil, "DirectInput metric names")
	f.StringSlice("pca", nil, "PCAInput metric names")
	f.String("metric-uri", "", "parent metric for the model lookup (only with --record)")
	f.String("batch", "", "YAML file with a requests list to score concurrently")
	f.Bool("record", false, "generate full reports and write them to report_history")
	rootCmd.AddCommand(scoreCmd)
}

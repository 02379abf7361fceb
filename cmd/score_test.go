package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-cli/internal/model"
)

const batchYAML = `
requests:
  - model_uri: esg:TC-SC-110a.1
    industry: Semiconductors
    metric_year: "2022-12-31"
    company: Soitec SA
    selected_input: [" CO2DIRECTSCOPE1 ", ""]
    selected_pca: [SOXEMISSIONS]
  - company: Other Co
    selected_pca: ["SOXEMISSIONS, NOXEMISSIONS"]
`

func TestParseBatch(t *testing.T) {
	reqs, err := parseBatch(strings.NewReader(batchYAML))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "esg:TC-SC-110a.1", reqs[0].ModelURI)
	assert.Equal(t, "2022-12-31", reqs[0].MetricYear)
	assert.Equal(t, []string{"CO2DIRECTSCOPE1"}, reqs[0].SelectedInput)
	assert.Equal(t, []string{"SOXEMISSIONS"}, reqs[0].SelectedPCA)

	assert.Equal(t, "Other Co", reqs[1].Company)
	assert.Empty(t, reqs[1].ModelURI)
	assert.Equal(t, []string{}, reqs[1].SelectedInput)
	assert.Equal(t, []string{"SOXEMISSIONS", "NOXEMISSIONS"}, reqs[1].SelectedPCA)
}

func TestParseBatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"empty file", "", "file is empty"},
		{"no requests", "requests: []\n", "no requests"},
		{"unknown field", "requests:\n  - modelUri: esg:x\n", "decode"},
		{"malformed", "requests: [", "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatch(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(batchYAML), 0o644))

	reqs, err := loadBatchFile(path)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	_, err = loadBatchFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProcessBatch_OrderAndFailures(t *testing.T) {
	reqs := []model.Request{{Company: "a"}, {Company: "b"}, {Company: "c"}, {Company: "d"}}

	results := processBatch(context.Background(), reqs, 2, func(_ context.Context, req model.Request) (any, error) {
		if req.Company == "c" {
			return nil, errors.New("graph down")
		}
		return map[string]string{"company": req.Company}, nil
	})

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, map[string]string{"company": "b"}, results[1].Result)
	assert.Equal(t, "graph down", results[2].Error)
	assert.Nil(t, results[2].Result)
	assert.Equal(t, 1, countFailed(results))
}

func TestProcessBatch_RespectsConcurrency(t *testing.T) {
	reqs := make([]model.Request, 12)
	var inFlight, peak atomic.Int64

	processBatch(context.Background(), reqs, 3, func(_ context.Context, _ model.Request) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.GreaterOrEqual(t, peak.Load(), int64(1))
}

func TestProcessBatch_ZeroConcurrency(t *testing.T) {
	results := processBatch(context.Background(), []model.Request{{}}, 0, func(context.Context, model.Request) (any, error) {
		return 1, nil
	})
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Result)
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, []batchResult{{Index: 0, Result: map[string]int{"count_pca": 1}}}))

	var single map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &single))
	assert.Equal(t, 0.0, single["index"])
	assert.NotContains(t, single, "error")

	buf.Reset()
	require.NoError(t, writeResults(&buf, []batchResult{{Index: 0, Result: 1}, {Index: 1, Error: "boom"}}))

	var many []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &many))
	require.Len(t, many, 2)
	assert.Equal(t, "boom", many[1]["error"])
}

func TestRequestFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "score"}
	f := cmd.Flags()
	f.String("model", "", "")
	f.String("industry", "", "")
	f.String("period", "", "")
	f.String("company", "", "")
	f.StringSlice("input", nil, "")
	f.StringSlice("pca", nil, "")
	f.String("metric-uri", "", "")

	require.NoError(t, f.Parse([]string{
		"--model", "esg:TC-SC-110a.1",
		"--period", "2022-12-31",
		"--input", "CO2DIRECTSCOPE1, CO2INDIRECTSCOPE2",
		"--pca", "SOXEMISSIONS",
	}))

	req := requestFromFlags(cmd)
	assert.Equal(t, "esg:TC-SC-110a.1", req.ModelURI)
	assert.Equal(t, "2022-12-31", req.MetricYear)
	assert.Empty(t, req.Company)
	assert.Equal(t, []string{"CO2DIRECTSCOPE1", "CO2INDIRECTSCOPE2"}, req.SelectedInput)
	assert.Equal(t, []string{"SOXEMISSIONS"}, req.SelectedPCA)
}

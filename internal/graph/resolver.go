// Package graph resolves which ontology datasets back a metric for a model.
package graph

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/sparql"
	"github.com/sells-group/esg-cli/pkg/stardog"
)

// ModelRef is a scoring model reachable from a metric via ObtainUsing.
type ModelRef struct {
	ModelURI   string `json:"model_uri"`
	ModelLabel string `json:"model_label"`
}

// Resolver queries the graph store.
type Resolver struct {
	client stardog.Client
	ns     sparql.Namespace
}

// NewResolver creates a Resolver that builds queries in ns.
func NewResolver(client stardog.Client, ns sparql.Namespace) *Resolver {
	return &Resolver{client: client, ns: ns}
}

// Resolve returns the distinct datasets linked to modelID by the scheme's
// relation whose identifier contains metric. An empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, modelID sparql.Term, metric string, scheme model.Scheme) ([]string, error) {
	q, err := r.ns.DatasetsQuery(modelID, scheme.Relation(), metric)
	if err != nil {
		return nil, eris.Wrap(err, "graph: build datasets query")
	}

	res, err := r.client.Select(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "graph: resolve %s datasets for %q", scheme, metric)
	}

	values := res.Values("dataset")
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	zap.L().Debug("graph: resolved datasets",
		zap.String("model_uri", string(modelID)),
		zap.String("metric", metric),
		zap.Stringer("scheme", scheme),
		zap.Int("datasets", len(out)),
	)
	return out, nil
}

// ModelsForMetric lists the models metricID is obtained with.
func (r *Resolver) ModelsForMetric(ctx context.Context, metricID sparql.Term) ([]ModelRef, error) {
	res, err := r.client.Select(ctx, r.ns.ModelsForMetricQuery(metricID))
	if err != nil {
		return nil, eris.Wrapf(err, "graph: models for %s", metricID)
	}

	out := make([]ModelRef, 0, len(res.Results.Bindings))
	for _, row := range res.Results.Bindings {
		m, ok := row["model"]
		if !ok {
			continue
		}
		out = append(out, ModelRef{ModelURI: m.Value, ModelLabel: row["modelLabel"].Value})
	}
	return out, nil
}

// ParentMetric derives a model's parent metric by dropping its last
// ".segment" (esg:TC-SC-110a.1 -> esg:TC-SC-110a).
func ParentMetric(modelID string) string {
	trimmed := strings.TrimSuffix(modelID, ">")
	i := strings.LastIndex(trimmed, ".")
	if i <= 0 {
		return modelID
	}
	if strings.HasPrefix(modelID, "<") {
		return trimmed[:i] + ">"
	}
	return modelID[:i]
}

package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-cli/internal/db"
	"github.com/sells-group/esg-cli/internal/graph"
	"github.com/sells-group/esg-cli/internal/history"
	"github.com/sells-group/esg-cli/internal/metrics"
	"github.com/sells-group/esg-cli/internal/report"
	"github.com/sells-group/esg-cli/internal/resilience"
	"github.com/sells-group/esg-cli/internal/scoring"
	"github.com/sells-group/esg-cli/internal/warehouse"
	"github.com/sells-group/esg-cli/pkg/stardog"
)

// scoreEnv holds the clients and services needed by the serve and score
// commands.
type scoreEnv struct {
	Pool     *pgxpool.Pool
	History  history.Store
	Reports  *report.Service
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// Close releases resources held by the environment.
func (e *scoreEnv) Close() {
	if e.History != nil {
		_ = e.History.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initScoring connects the warehouse, the graph store and the history
// backend and wires the report service. Callers should defer env.Close().
func initScoring(ctx context.Context, mode string) (*scoreEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool())
	if err != nil {
		return nil, eris.Wrap(err, "connect warehouse")
	}
	env := &scoreEnv{Pool: pool}

	env.History, err = openHistory(pool)
	if err != nil {
		env.Close()
		return nil, err
	}
	if err := env.History.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate history")
	}

	client, err := initGraph()
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Metrics = metrics.New(env.Registry)

	ns := cfg.Graph.NS()
	resolver := graph.NewResolver(client, ns)
	engine := scoring.NewEngine(resolver, warehouse.NewFetcher(pool), ns,
		scoring.WithCallTimeout(cfg.Scoring.CallTimeout()),
		scoring.WithMetrics(env.Metrics),
	)
	env.Reports = report.NewService(engine, resolver, env.History, ns,
		report.WithDefaults(cfg.Defaults.Request()),
		report.WithCallTimeout(cfg.Scoring.CallTimeout()),
		report.WithMetrics(env.Metrics),
	)

	zap.L().Info("scoring environment ready",
		zap.String("graph_endpoint", cfg.Graph.Endpoint),
		zap.String("graph_database", cfg.Graph.Database),
		zap.String("history_driver", cfg.History.Driver),
	)
	return env, nil
}

// initGraph builds the Stardog client with rate limiting, retries and a
// circuit breaker.
func initGraph() (stardog.Client, error) {
	opts := []stardog.Option{
		stardog.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout()}),
		stardog.WithRateLimit(cfg.Graph.RatePerSec),
		stardog.WithRetry(cfg.Graph.Retry()),
		stardog.WithBreaker(resilience.NewBreaker("stardog", cfg.Graph.CircuitThreshold, cfg.Graph.CircuitReset())),
	}
	if cfg.Graph.Username != "" {
		opts = append(opts, stardog.WithBasicAuth(cfg.Graph.Username, cfg.Graph.Password))
	}

	client, err := stardog.NewClient(cfg.Graph.Endpoint, cfg.Graph.Database, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "init stardog client")
	}
	return client, nil
}

// openHistory returns the configured history backend. pool may be nil for
// the sqlite driver.
func openHistory(pool db.Pool) (history.Store, error) {
	switch cfg.History.Driver {
	case "sqlite":
		return history.NewSQLite(cfg.History.SQLitePath)
	case "postgres":
		if pool == nil {
			return nil, eris.New("postgres history driver requires a database pool")
		}
		return history.NewPostgres(pool), nil
	default:
		return nil, eris.Errorf("unsupported history driver: %s", cfg.History.Driver)
	}
}

// initHistory opens only the history backend, connecting the shared pool
// when the postgres driver is selected. The returned func releases both.
func initHistory(ctx context.Context, mode string) (history.Store, func(), error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, nil, err
	}

	var pool *pgxpool.Pool
	var p db.Pool
	if cfg.History.Driver == "postgres" {
		var err error
		pool, err = db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool())
		if err != nil {
			return nil, nil, eris.Wrap(err, "connect history database")
		}
		p = pool
	}

	st, err := openHistory(p)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		_ = st.Close()
		if pool != nil {
			pool.Close()
		}
	}
	return st, closeFn, nil
}

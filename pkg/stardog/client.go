// Package stardog is a minimal SPARQL SELECT client for a Stardog database.
package stardog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/esg-cli/internal/resilience"
)

const resultsMediaType = "application/sparql-results+json"

// Client runs SELECT queries against a single database.
type Client interface {
	Select(ctx context.Context, query string) (*Results, error)
}

// Results is the SPARQL 1.1 JSON results document.
type Results struct {
	Head    Head   `json:"head"`
	Results Rowset `json:"results"`
}

// Head lists the projected variables.
type Head struct {
	Vars []string `json:"vars"`
}

// Rowset holds the solution bindings.
type Rowset struct {
	Bindings []map[string]Binding `json:"bindings"`
}

// Binding is one bound value in a solution.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Values returns the value bound to name in each solution, skipping
// solutions where it is unbound.
func (r *Results) Values(name string) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Results.Bindings))
	for _, row := range r.Results.Bindings {
		if b, ok := row[name]; ok {
			out = append(out, b.Value)
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBasicAuth sets the credentials sent on every request.
func WithBasicAuth(username, password string) Option {
	return func(c *httpClient) {
		c.username = username
		c.password = password
	}
}

// WithRateLimit caps outgoing queries per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p resilience.RetryPolicy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithBreaker routes every query through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	queryURL string
	username string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryPolicy
	breaker  *resilience.Breaker
}

// NewClient creates a client for database at endpoint. Queries are POSTed
// to {endpoint}/{database}/query.
func NewClient(endpoint, database string, opts ...Option) (Client, error) {
	if endpoint == "" {
		return nil, eris.New("stardog: endpoint is required")
	}
	if database == "" {
		return nil, eris.New("stardog: database is required")
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, eris.Wrap(err, "stardog: parse endpoint")
	}

	c := &httpClient{
		queryURL: base.JoinPath(database, "query").String(),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.RetryPolicy{MaxAttempts: 1},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *httpClient) Select(ctx context.Context, query string) (*Results, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*Results, error) {
		return resilience.Retry(ctx, c.retry, "stardog.select", c.do(query))
	})
}

func (c *httpClient) do(query string) func(context.Context) (*Results, error) {
	return func(ctx context.Context) (*Results, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "stardog: rate limit wait")
			}
		}

		form := url.Values{"query": {query}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, eris.Wrap(err, "stardog: create request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", resultsMediaType)
		if c.username != "" || c.password != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "stardog: send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "stardog: read response")
		}

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Wrap(&resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}, "stardog: select")
		}

		var out Results
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, eris.Wrap(err, "stardog: unmarshal response")
		}
		return &out, nil
	}
}

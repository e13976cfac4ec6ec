package stable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"stablebatch/config"
	"stablebatch/internal/clients/transport"
	"stablebatch/internal/jobs"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
)

// ErrPollsSuspended is returned by Fetch while the breaker is open.
var ErrPollsSuspended = errors.New("fetch polling suspended after repeated transport failures")

type Client struct {
	apiKey     string
	baseUrl    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *log.Logger
}

func NewClient(cfg config.StableConfig, breakerCfg config.BreakerConfig) *Client {
	return &Client{
		apiKey:     cfg.ApiKey,
		baseUrl:    strings.TrimRight(cfg.BaseUrl, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		breaker:    newBreaker(breakerCfg),
		log:        log.With("component", "stable"),
	}
}

func newBreaker(cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stable-fetch",
		MaxRequests: 1,
		Timeout:     cfg.Timeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

func (c *Client) ApiKey() string { return c.apiKey }

func urlFor(base string, parts ...string) string {
	return base + "/v3/" + strings.Join(parts, "/")
}

// Dispatch posts one job. Transport errors are returned; a body that is not a
// JSON object is logged and yields (nil, nil) so the caller can skip it.
func (c *Client) Dispatch(ctx context.Context, call string, body map[string]any) (*jobs.Response, error) {
	url := urlFor(c.baseUrl, call)
	status, raw, err := transport.PostJSON(c.httpClient, ctx, url, body, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", call, err)
	}
	return c.decode(call, url, status, raw), nil
}

// Fetch polls a job. fetchURL, when set, is the poll endpoint the API handed
// out with the processing response; otherwise the id endpoint is used.
func (c *Client) Fetch(ctx context.Context, id, fetchURL string) (*jobs.Response, error) {
	url := strings.TrimSpace(fetchURL)
	if url == "" {
		if id == "" {
			return nil, errors.New("fetch: empty job id")
		}
		url = urlFor(c.baseUrl, "fetch", id)
	}

	type reply struct {
		status int
		raw    []byte
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		status, raw, err := transport.PostJSON(c.httpClient, ctx, url, map[string]string{"key": c.apiKey}, nil)
		if err != nil {
			return nil, err
		}
		return reply{status: status, raw: raw}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrPollsSuspended
		}
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	r := v.(reply)
	return c.decode("fetch", url, r.status, r.raw), nil
}

func (c *Client) decode(call, url string, status int, raw []byte) *jobs.Response {
	resp, err := jobs.Decode(raw)
	if err != nil {
		c.log.Warn("failed to decode response",
			"call", call,
			"url", url,
			"httpStatus", status,
			"err", err,
			"body", transport.Snippet(raw),
		)
		return nil
	}
	return resp
}

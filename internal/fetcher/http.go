package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/opentender/tendersync/internal/config"
	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

// HTTPFetcher implements Fetcher using net/http, grounded on the teacher's
// HTTPFetcher (internal/fetcher/http.go) but stripped of concerns this
// domain has no use for — decompression, proxying, user-agent rotation —
// and extended with the status-to-outcome classification RetryLoop depends
// on (spec.md §4.1, §4.2).
type HTTPFetcher struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	logger  *slog.Logger
}

// NewHTTPFetcher builds a fetcher targeting cfg.API.Host. The returned
// *http.Client carries no cookie jar of its own: Session.Jar() is assigned
// per call in Fetch, so whichever Session a call is given (and a jar that
// Session.Clear has replaced) is the one that request uses.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.API.Host)
	if err != nil {
		return nil, fmt.Errorf("parse api.host: %w", err)
	}
	base.Path = path.Join(base.Path, "api", cfg.API.Version, cfg.API.Resource)

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Retrievers.RequestTimeout,
		},
		baseURL: base,
		apiKey:  cfg.API.Key,
		logger:  logger.With("component", "http_fetcher"),
	}, nil
}

// Fetch requests one page of the changes feed and classifies the result
// into the FetchOutcome variant RetryLoop switches on (spec.md §4.1).
func (f *HTTPFetcher) Fetch(ctx context.Context, sess *session.Session, params *types.FetchParams) types.FetchOutcome {
	reqURL := *f.baseURL
	reqURL.RawQuery = params.QueryValues(f.apiKey).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return types.Other(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")

	client := *f.client
	client.Jar = sess.Jar()

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Other(err)
		}
		return types.ConnectionError(fmt.Errorf("request %s: %w", reqURL.String(), classifyNetError(err)))
	}
	defer httpResp.Body.Close()

	sess.Observe(httpResp.Request.URL)

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return types.ConnectionError(fmt.Errorf("read body: %w", err))
	}

	f.logger.Debug("fetch complete",
		"url", reqURL.String(),
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	switch httpResp.StatusCode {
	case http.StatusOK:
		page, err := types.DecodePage(body)
		if err != nil {
			return types.Other(err)
		}
		return types.OK(page)
	case http.StatusPreconditionFailed:
		return types.PreconditionFailed(fmt.Errorf("%s", strings.TrimSpace(string(body))))
	case http.StatusNotFound:
		return types.ResourceNotFound(fmt.Errorf("%s", strings.TrimSpace(string(body))))
	case http.StatusTooManyRequests:
		return types.RateLimited(fmt.Errorf("retry after %s: %s", parseRetryAfter(httpResp.Header.Get("Retry-After")), strings.TrimSpace(string(body))))
	default:
		return types.RequestFailed(httpResp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// classifyNetError is a light wrap so retry.Loop's logging can tell apart
// timeouts and resets without type-asserting net errors itself.
func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return fmt.Errorf("connection refused/reset: %w", err)
		}
	}
	return err
}

// parseRetryAfter parses the Retry-After header value, seconds or HTTP-date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

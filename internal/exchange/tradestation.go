// Package exchange provides the TradeStation market-data adapter used to
// fetch historical OHLCV bars.
//
// The adapter paces every request through a rate limiter, absorbs 429 and
// 5xx/network failures with bounded exponential backoff, refreshes the
// bearer token once on 401, and pages through multi-year histories without
// buffering more than one page in memory.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tsquant/go-bars-collector/internal/apperrors"
	"github.com/tsquant/go-bars-collector/internal/auth"
	"github.com/tsquant/go-bars-collector/internal/models"
)

const (
	// DefaultBaseURL is the production market-data API.
	DefaultBaseURL = "https://api.tradestation.com"

	barchartsEndpoint = "/v3/marketdata/barcharts/%s"

	// DefaultMaxBarsPerPage is the API's maximum batch size for one call.
	DefaultMaxBarsPerPage = 57600

	// DefaultRateLimitDelay is the minimum spacing between requests.
	DefaultRateLimitDelay = 500 * time.Millisecond

	requestTimeout = 60 * time.Second
)

// errUnauthorized marks a 401 inside one page request. It is never retried
// by the backoff policy; the page loop refreshes the token and retries the
// page exactly once.
var errUnauthorized = errors.New("unauthorized")

// Config parameterizes a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	Interval       int
	Unit           string
	MaxBarsPerPage int
	RateLimitDelay time.Duration
	HTTPClient     *http.Client
	Retry          *apperrors.RetryPolicy
	Logger         *slog.Logger
}

// Client fetches bar pages from the TradeStation barcharts endpoint.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *apperrors.RetryPolicy
	tokens     *auth.TokenManager

	baseURL        string
	interval       int
	unit           string
	maxBarsPerPage int

	logger *slog.Logger
}

// NewClient creates a Client authenticated through tokens.
func NewClient(tokens *auth.TokenManager, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1
	}
	if cfg.Unit == "" {
		cfg.Unit = "Minute"
	}
	if cfg.MaxBarsPerPage <= 0 {
		cfg.MaxBarsPerPage = DefaultMaxBarsPerPage
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Retry == nil {
		cfg.Retry = apperrors.NewRetryPolicy(cfg.Logger)
	}

	return &Client{
		httpClient:     cfg.HTTPClient,
		limiter:        rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
		retry:          cfg.Retry,
		tokens:         tokens,
		baseURL:        cfg.BaseURL,
		interval:       cfg.Interval,
		unit:           cfg.Unit,
		maxBarsPerPage: cfg.MaxBarsPerPage,
		logger:         cfg.Logger,
	}
}

// FetchPages streams the bars in window to fn one page at a time, in
// ascending timestamp order with boundary duplicates dropped. fn is called
// with a fully fetched page, so a consumer that persists each page commits
// whole pages only.
func (c *Client) FetchPages(ctx context.Context, window models.FetchWindow, fn func([]models.Bar) error) error {
	cursor := window.Start
	lastEmitted := window.Start.Add(-time.Minute)
	page := 0

	for cursor.Before(window.End) {
		raw, err := c.fetchPage(ctx, window.Symbol, cursor, window.End)
		if err != nil {
			return err
		}
		page++

		bars, err := c.decodeBars(raw)
		if err != nil {
			return err
		}

		emit := bars[:0:0]
		for _, b := range bars {
			if b.Timestamp.After(lastEmitted) && b.Timestamp.Before(window.End) {
				emit = append(emit, b)
			}
		}

		if len(emit) > 0 {
			c.logger.Debug("page fetched",
				"symbol", window.Symbol,
				"page", page,
				"bars", len(emit),
				"first", emit[0].Timestamp,
				"last", emit[len(emit)-1].Timestamp)
			if err := fn(emit); err != nil {
				return err
			}
			lastEmitted = emit[len(emit)-1].Timestamp
		}

		// A short batch is the true end of available data.
		if len(raw) < c.maxBarsPerPage {
			break
		}

		next := bars[len(bars)-1].Timestamp.Add(time.Duration(c.interval) * time.Minute)
		if !next.After(cursor) {
			return &apperrors.MalformedResponseError{
				Detail: fmt.Sprintf("page cursor did not advance past %s", cursor.Format(time.RFC3339)),
			}
		}
		cursor = next
	}

	return nil
}

// fetchPage requests one page, refreshing the token and re-requesting
// exactly once when the API answers 401.
func (c *Client) fetchPage(ctx context.Context, symbol string, first, last time.Time) ([]apiBar, error) {
	raw, err := c.requestPage(ctx, symbol, first, last)
	if errors.Is(err, errUnauthorized) {
		c.logger.Info("token rejected, refreshing once", "symbol", symbol)
		c.tokens.Invalidate()
		raw, err = c.requestPage(ctx, symbol, first, last)
		if errors.Is(err, errUnauthorized) {
			return nil, apperrors.NewAuthError(fmt.Errorf("request for %s unauthorized after token refresh", symbol))
		}
	}
	return raw, err
}

// requestPage performs one page request through the rate limiter and the
// retry policy.
func (c *Client) requestPage(ctx context.Context, symbol string, first, last time.Time) ([]apiBar, error) {
	var out []apiBar

	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		req, err := c.buildRequest(ctx, symbol, first, last, token)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.RetryableTransient(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.RetryableTransient(fmt.Errorf("reading response body: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var br barchartResponse
			if err := json.Unmarshal(body, &br); err != nil {
				return &apperrors.MalformedResponseError{Detail: "undecodable barchart payload", Err: err}
			}
			out = br.Bars
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			return errUnauthorized

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := resp.Header.Get("Retry-After")
			return apperrors.RetryableRateLimit(fmt.Errorf("status 429, retry-after %q", retryAfter))

		case resp.StatusCode >= 500:
			return apperrors.RetryableTransient(fmt.Errorf("server error %d: %s", resp.StatusCode, truncateBody(body)))

		default:
			// Remaining 4xx: malformed request or bad symbol, never retried.
			return fmt.Errorf("client error %d: %s", resp.StatusCode, truncateBody(body))
		}
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) buildRequest(ctx context.Context, symbol string, first, last time.Time, token string) (*http.Request, error) {
	endpoint := c.baseURL + fmt.Sprintf(barchartsEndpoint, url.PathEscape(symbol))

	params := url.Values{}
	params.Set("interval", strconv.Itoa(c.interval))
	params.Set("unit", c.unit)
	params.Set("barsback", strconv.Itoa(c.maxBarsPerPage))
	params.Set("firstdate", first.UTC().Format(time.RFC3339))
	params.Set("lastdate", last.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// decodeBars converts one raw page into validated model bars and enforces
// ascending timestamps.
func (c *Client) decodeBars(raw []apiBar) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(raw))
	var prev time.Time

	for i, ab := range raw {
		ts, err := time.Parse(time.RFC3339, ab.TimeStamp)
		if err != nil {
			return nil, &apperrors.MalformedResponseError{
				Detail: fmt.Sprintf("bar %d has invalid timestamp %q", i, ab.TimeStamp),
				Err:    err,
			}
		}

		bar, err := models.BarFromStrings(ts, ab.Open, ab.High, ab.Low, ab.Close, ab.TotalVolume)
		if err != nil {
			return nil, &apperrors.MalformedResponseError{
				Detail: fmt.Sprintf("bar %d at %s rejected", i, ab.TimeStamp),
				Err:    err,
			}
		}

		if !prev.IsZero() && !bar.Timestamp.After(prev) {
			return nil, &apperrors.MalformedResponseError{
				Detail: fmt.Sprintf("bars out of order at index %d (%s after %s)",
					i, bar.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339)),
			}
		}
		prev = bar.Timestamp
		bars = append(bars, bar)
	}
	return bars, nil
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// API response structures.

type barchartResponse struct {
	Bars []apiBar `json:"Bars"`
}

type apiBar struct {
	TimeStamp   string `json:"TimeStamp"`
	Open        string `json:"Open"`
	High        string `json:"High"`
	Low         string `json:"Low"`
	Close       string `json:"Close"`
	TotalVolume string `json:"TotalVolume"`
}

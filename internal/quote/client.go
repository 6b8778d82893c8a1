// Package quote fetches market prices and FX rates from the Yahoo Finance chart API.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/solosaving/backend/internal/domain"
)

// ErrNoData is returned when the provider has no price for a symbol.
var ErrNoData = errors.New("no price data")

const userAgent = "Mozilla/5.0 (compatible; solosaving/1.0)"

// APIError is a non-success HTTP response from the provider.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is an HTTP client for the chart API with rate limiting and retry on 429/503.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

// NewClient creates a chart API client.
func NewClient(baseURL string, maxRetries int, baseDelay time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		GMTOffset          int64   `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// LatestPrice returns the regular market price of symbol in its trading currency.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := c.chart(ctx, symbol, url.Values{"range": {"1d"}, "interval": {"1d"}})
	if err != nil {
		return decimal.Zero, err
	}
	if res.Meta.RegularMarketPrice <= 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return decimal.NewFromFloat(res.Meta.RegularMarketPrice), nil
}

// FXRate returns the current rate of a pair such as "USDJPY".
func (c *Client) FXRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	return c.LatestPrice(ctx, fxSymbol(pair))
}

// History returns daily closes of symbol dated in [start, end), oldest first.
// Days without a close are omitted.
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	res, err := c.chart(ctx, symbol, url.Values{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {"1d"},
	})
	if err != nil {
		return nil, err
	}

	var closes []*float64
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}

	var points []domain.PricePoint
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		// Timestamps mark the session open; shifting by the exchange offset yields the local trading date.
		date := domain.DateOf(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		if date.Before(domain.DateOf(start)) || !date.Before(domain.DateOf(end)) {
			continue
		}
		points = append(points, domain.PricePoint{Date: date, Close: decimal.NewFromFloat(*closes[i])})
	}
	return points, nil
}

// FXHistory returns daily closes of a pair such as "USDJPY".
func (c *Client) FXHistory(ctx context.Context, pair string, start, end time.Time) ([]domain.PricePoint, error) {
	return c.History(ctx, fxSymbol(pair), start, end)
}

func fxSymbol(pair string) string {
	return pair + "=X"
}

func (c *Client) chart(ctx context.Context, symbol string, params url.Values) (chartResult, error) {
	var resp chartResponse
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol)+"?"+params.Encode(), &resp); err != nil {
		return chartResult{}, err
	}
	if resp.Chart.Error != nil {
		return chartResult{}, fmt.Errorf("%s: %s: %w", symbol, resp.Chart.Error.Description, ErrNoData)
	}
	if len(resp.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return resp.Chart.Result[0], nil
}

// get performs a rate-limited GET with exponential backoff on 429 and 503.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.baseURL + path

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = &APIError{StatusCode: resp.StatusCode, URL: u, Body: truncate(string(body), 200)}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
		if !retryable || attempt == c.maxRetries {
			return nil, lastErr
		}

		delay := c.baseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// getJSON performs a GET request and unmarshals the JSON response. Chart API errors
// arrive as JSON bodies on 404, so those are decoded too.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNoData)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing JSON from %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

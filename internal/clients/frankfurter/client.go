// Package frankfurter provides a client for Frankfurter-compatible rate APIs.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Client fetches exchange rates over a trailing window, one time-series
// request per quote symbol so a failing pair never poisons its siblings.
type Client struct {
	baseURL        string
	base           string
	symbols        []string
	lookbackMonths int
	client         *http.Client
	now            func() time.Time
	log            zerolog.Logger
}

// NewClient creates a new rates API client.
func NewClient(baseURL, base string, symbols []string, lookbackMonths int, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:        baseURL,
		base:           base,
		symbols:        symbols,
		lookbackMonths: lookbackMonths,
		client:         &http.Client{Timeout: timeout},
		now:            time.Now,
		log:            log.With().Str("client", "frankfurter").Logger(),
	}
}

// Name identifies this extractor in run reports.
func (c *Client) Name() string {
	return string(domain.SourceAPI)
}

// Extract fetches rates for every configured symbol over the lookback window.
// Individual symbol failures are logged and skipped; partial results are
// returned. An error is returned only when every request failed, which usually
// means the endpoint is unreachable.
func (c *Client) Extract(ctx context.Context) ([]domain.ExchangeRate, error) {
	now := c.now()
	start := now.AddDate(0, -c.lookbackMonths, 0)

	var records []domain.ExchangeRate
	var lastErr error
	failed := 0

	for _, symbol := range c.symbols {
		recs, err := c.fetchSymbol(ctx, symbol, start, now)
		if err != nil {
			failed++
			lastErr = err
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol request failed, skipping")
			continue
		}
		records = append(records, recs...)
	}

	if failed == len(c.symbols) && lastErr != nil {
		return nil, fmt.Errorf("all %d symbol requests failed, last error: %w", failed, lastErr)
	}

	c.log.Info().
		Int("records", len(records)).
		Int("failed_symbols", failed).
		Str("base", c.base).
		Msg("API rates fetched")

	return records, nil
}

// fetchSymbol issues one time-series request with bounded retry on transport
// errors and 5xx responses. 4xx responses are permanent and fail immediately.
func (c *Client) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) ([]domain.ExchangeRate, error) {
	url := fmt.Sprintf("%s/%s..%s?base=%s&symbols=%s",
		c.baseURL,
		start.Format(domain.DateFormat),
		end.Format(domain.DateFormat),
		c.base,
		symbol,
	)

	var body []byte
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("API returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API returned status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read response body: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.parseRates(body, symbol)
}

// parseRates decodes a rates payload into canonical records. Time-series
// responses key rates by date; latest-style responses carry a flat rates map
// with a top-level date. Both shapes are accepted.
func (c *Client) parseRates(body []byte, symbol string) ([]domain.ExchangeRate, error) {
	var envelope struct {
		Base  string          `json:"base"`
		Date  string          `json:"date"`
		Rates json.RawMessage `json:"rates"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(envelope.Rates) == 0 {
		return nil, fmt.Errorf("response has no rates field")
	}

	base := envelope.Base
	if base == "" {
		base = c.base
	}

	byDate := make(map[string]map[string]float64)
	if err := json.Unmarshal(envelope.Rates, &byDate); err != nil {
		// Flat latest-style map
		var flat map[string]float64
		if err := json.Unmarshal(envelope.Rates, &flat); err != nil {
			return nil, fmt.Errorf("unrecognized rates payload: %w", err)
		}
		date := envelope.Date
		if date == "" {
			date = c.now().Format(domain.DateFormat)
		}
		byDate = map[string]map[string]float64{date: flat}
	}

	now := c.now()
	var records []domain.ExchangeRate
	for dateStr, rates := range byDate {
		date, err := time.Parse(domain.DateFormat, dateStr)
		if err != nil {
			c.log.Warn().Str("date", dateStr).Msg("Unparsable date in response, skipping")
			continue
		}
		rate, ok := rates[symbol]
		if !ok {
			continue
		}
		rec := domain.ExchangeRate{
			Date:   date,
			Base:   base,
			Quote:  symbol,
			Rate:   rate,
			Source: domain.SourceAPI,
		}
		if err := rec.Validate(now); err != nil {
			c.log.Warn().Err(err).Str("date", dateStr).Msg("Invalid record in response, skipping")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

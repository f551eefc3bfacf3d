// Package supabase forwards collected batches to a Supabase-hosted table.
// Forwarding is best-effort secondary replication; the local store remains
// the durable source of truth and is always written first.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
)

// Client talks to the Supabase REST (PostgREST) endpoint.
type Client struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a Supabase REST client.
func NewClient(baseURL, apiKey, table string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		table:   table,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "supabase").Logger(),
	}
}

// row is the wire shape the remote table expects.
type row struct {
	Date   string  `json:"date"`
	Base   string  `json:"base_currency"`
	Quote  string  `json:"quote_currency"`
	Rate   float64 `json:"rate"`
	Source string  `json:"source"`
	RunID  string  `json:"run_id,omitempty"`
}

// InsertBatch uploads a batch with upsert semantics (merge-duplicates), so
// re-forwarding the same run does not fail on conflicts.
func (c *Client) InsertBatch(ctx context.Context, runID string, records []domain.ExchangeRate) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, row{
			Date:   rec.DateString(),
			Base:   rec.Base,
			Quote:  rec.Quote,
			Rate:   rec.Rate,
			Source: string(rec.Source),
			RunID:  runID,
		})
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote backend returned status %d: %s", resp.StatusCode, detail)
	}

	c.log.Info().
		Int("rows", len(rows)).
		Str("table", c.table).
		Msg("Batch forwarded to remote backend")

	return nil
}

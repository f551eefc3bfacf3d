// Package xrates scrapes the live exchange rate table from x-rates.com.
//
// The page structure is externally owned and can change without notice, so
// the scraper distinguishes transport failures from structure drift: the
// former happen when the network or server misbehaves, the latter when the
// page no longer matches the selectors this parser depends on. Callers alert
// an operator on both, with a message naming the category.
package xrates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrFetchFailed indicates a network error or non-2xx response.
	ErrFetchFailed = errors.New("failed to fetch rates page")
	// ErrPageStructure indicates the page no longer matches the expected
	// table layout. Distinct from ErrFetchFailed because it means the
	// provider changed the page, not that the network hiccuped.
	ErrPageStructure = errors.New("rates page structure changed")
)

const tableSelector = "table.ratesTable tr"

// Scraper fetches and parses the live rates page.
type Scraper struct {
	url    string
	client *http.Client
	now    func() time.Time
	log    zerolog.Logger
}

// NewScraper creates a scraper for the configured rates page.
func NewScraper(url string, timeout time.Duration, log zerolog.Logger) *Scraper {
	return &Scraper{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		log:    log.With().Str("client", "xrates").Logger(),
	}
}

// Name identifies this extractor in run reports.
func (s *Scraper) Name() string {
	return string(domain.SourceWebScrape)
}

// Extract performs one fetch-parse cycle. All records carry today's date.
// On failure the returned error wraps either ErrFetchFailed or
// ErrPageStructure; malformed individual rows are dropped with a warning
// instead of failing the scrape.
func (s *Scraper) Extract(ctx context.Context) ([]domain.ExchangeRate, error) {
	doc, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.parse(doc)
}

// fetch issues the page GET with bounded retry on transport errors and 5xx.
func (s *Scraper) fetch(ctx context.Context) (*goquery.Document, error) {
	var doc *goquery.Document
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("server returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to parse HTML: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return doc, nil
}

// parse walks the rates table. Row shape: first cell "BASE/QUOTE", second
// cell the rate. Header rows carry no td cells and are skipped.
func (s *Scraper) parse(doc *goquery.Document) ([]domain.ExchangeRate, error) {
	now := s.now()

	rows := doc.Find(tableSelector)
	if rows.Length() == 0 {
		return nil, fmt.Errorf("%w: selector %q matched nothing", ErrPageStructure, tableSelector)
	}

	var records []domain.ExchangeRate
	dataRows := 0
	dropped := 0

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row
		}
		dataRows++
		if cells.Length() < 2 {
			dropped++
			return
		}

		rec, err := s.parseRow(cells, now)
		if err != nil {
			dropped++
			s.log.Warn().Err(err).Msg("Malformed row dropped")
			return
		}
		records = append(records, rec)
	})

	if dataRows == 0 {
		return nil, fmt.Errorf("%w: table has no data rows", ErrPageStructure)
	}
	// Dropping an occasional malformed row is tolerable; every row failing
	// means the column layout itself changed.
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: none of %d data rows matched the expected column layout", ErrPageStructure, dataRows)
	}

	s.log.Info().
		Int("records", len(records)).
		Int("dropped", dropped).
		Msg("Rates page scraped")

	return records, nil
}

func (s *Scraper) parseRow(cells *goquery.Selection, now time.Time) (domain.ExchangeRate, error) {
	pairText := strings.TrimSpace(cells.Eq(0).Text())
	parts := strings.Split(pairText, "/")
	if len(parts) != 2 {
		return domain.ExchangeRate{}, fmt.Errorf("unexpected pair cell %q", pairText)
	}

	rateText := strings.ReplaceAll(strings.TrimSpace(cells.Eq(1).Text()), ",", "")
	rate, err := strconv.ParseFloat(rateText, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("unparsable rate %q for pair %q", rateText, pairText)
	}

	rec := domain.ExchangeRate{
		Date:   now,
		Base:   strings.ToUpper(strings.TrimSpace(parts[0])),
		Quote:  strings.ToUpper(strings.TrimSpace(parts[1])),
		Rate:   rate,
		Source: domain.SourceWebScrape,
	}
	if err := rec.Validate(now); err != nil {
		return domain.ExchangeRate{}, err
	}
	return rec, nil
}

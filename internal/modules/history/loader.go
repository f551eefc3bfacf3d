// Package history loads the bundled historical forex dataset.
// The dataset is a daily CSV provided out-of-band; only the trailing lookback
// window is kept, everything older is ignored.
package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
)

// Loader extracts records from the historical dataset file.
type Loader struct {
	path           string
	lookbackMonths int
	now            func() time.Time
	log            zerolog.Logger
}

// NewLoader creates a historical dataset loader.
func NewLoader(path string, lookbackMonths int, log zerolog.Logger) *Loader {
	return &Loader{
		path:           path,
		lookbackMonths: lookbackMonths,
		now:            time.Now,
		log:            log.With().Str("source", string(domain.SourceHistoricalCSV)).Logger(),
	}
}

// Name identifies this extractor in run reports.
func (l *Loader) Name() string {
	return string(domain.SourceHistoricalCSV)
}

// Extract reads the dataset and returns rows inside the lookback window,
// normalized to the canonical record. A missing or empty file is not fatal:
// the loader warns and returns an empty batch. Individual malformed rows are
// dropped with a debug log.
func (l *Loader) Extract(ctx context.Context) ([]domain.ExchangeRate, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.Warn().Str("path", l.path).Msg("Historical dataset not found, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open historical dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // Tolerate ragged rows; they are dropped below

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.log.Warn().Str("path", l.path).Msg("Historical dataset is empty, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	now := l.now()
	windowStart := now.AddDate(0, -l.lookbackMonths, 0)

	var records []domain.ExchangeRate
	dropped := 0
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			dropped++
			l.log.Debug().Err(err).Int("line", line).Msg("Unreadable row dropped")
			continue
		}

		rec, err := cols.parse(row, now)
		if err != nil {
			dropped++
			l.log.Debug().Err(err).Int("line", line).Msg("Row dropped")
			continue
		}

		if rec.Date.Before(windowStart) || rec.Date.After(now) {
			continue
		}
		records = append(records, rec)
	}

	l.log.Info().
		Int("records", len(records)).
		Int("dropped", dropped).
		Str("window_start", windowStart.Format(domain.DateFormat)).
		Msg("Historical dataset loaded")

	return records, nil
}

// columns maps the dataset's named columns to their positions. The dataset
// carries more columns than we use (currency_name among them); lookup by
// header keeps us independent of column order.
type columns struct {
	currency     int
	baseCurrency int
	exchangeRate int
	date         int
}

func resolveColumns(header []string) (*columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := &columns{}
	required := map[string]*int{
		"currency":      &cols.currency,
		"base_currency": &cols.baseCurrency,
		"exchange_rate": &cols.exchangeRate,
		"date":          &cols.date,
	}
	for name, dst := range required {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("historical dataset is missing column %q", name)
		}
		*dst = i
	}
	return cols, nil
}

func (c *columns) parse(row []string, now time.Time) (domain.ExchangeRate, error) {
	max := c.currency
	for _, i := range []int{c.baseCurrency, c.exchangeRate, c.date} {
		if i > max {
			max = i
		}
	}
	if len(row) <= max {
		return domain.ExchangeRate{}, fmt.Errorf("row has %d fields, need %d", len(row), max+1)
	}

	date, err := time.Parse(domain.DateFormat, strings.TrimSpace(row[c.date]))
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("unparsable date %q", row[c.date])
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(row[c.exchangeRate]), 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("unparsable rate %q", row[c.exchangeRate])
	}

	rec := domain.ExchangeRate{
		Date:   date,
		Base:   strings.ToUpper(strings.TrimSpace(row[c.baseCurrency])),
		Quote:  strings.ToUpper(strings.TrimSpace(row[c.currency])),
		Rate:   rate,
		Source: domain.SourceHistoricalCSV,
	}
	if err := rec.Validate(now); err != nil {
		return domain.ExchangeRate{}, err
	}
	return rec, nil
}

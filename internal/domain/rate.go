// Package domain provides the canonical exchange rate record shared by all collectors.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Source identifies which collector produced a record.
type Source string

const (
	// SourceHistoricalCSV marks rows loaded from the bundled historical dataset
	SourceHistoricalCSV Source = "historical_csv"
	// SourceAPI marks rows fetched from the rates API
	SourceAPI Source = "api"
	// SourceWebScrape marks rows parsed from the live rates page
	SourceWebScrape Source = "web_scrape"
)

// DateFormat is the canonical date layout used across storage and archives.
const DateFormat = "2006-01-02"

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ExchangeRate is the canonical record every source normalizes into.
// Records are immutable once built; re-running a collection produces a new
// batch rather than mutating prior rows.
type ExchangeRate struct {
	Date   time.Time `json:"-"`
	Base   string    `json:"base_currency"`
	Quote  string    `json:"quote_currency"`
	Rate   float64   `json:"rate"`
	Source Source    `json:"source"`
}

// DateString returns the observation date in YYYY-MM-DD form.
func (r ExchangeRate) DateString() string {
	return r.Date.Format(DateFormat)
}

// Key returns the natural uniqueness key within a batch and in storage.
func (r ExchangeRate) Key() string {
	return r.DateString() + "|" + r.Base + "|" + r.Quote + "|" + string(r.Source)
}

// Validate checks the record invariants. now anchors the not-in-the-future
// check so callers (and tests) control the clock.
func (r ExchangeRate) Validate(now time.Time) error {
	if !currencyCodePattern.MatchString(r.Base) {
		return fmt.Errorf("invalid base currency code %q", r.Base)
	}
	if !currencyCodePattern.MatchString(r.Quote) {
		return fmt.Errorf("invalid quote currency code %q", r.Quote)
	}
	if r.Base == r.Quote {
		return fmt.Errorf("base and quote currency are both %q", r.Base)
	}
	if r.Rate <= 0 {
		return fmt.Errorf("non-positive rate %v for %s/%s", r.Rate, r.Base, r.Quote)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("missing observation date for %s/%s", r.Base, r.Quote)
	}
	// Compare at day granularity; a record dated today is valid at any hour.
	if r.Date.After(now) && r.DateString() != now.Format(DateFormat) {
		return fmt.Errorf("observation date %s is in the future", r.DateString())
	}
	switch r.Source {
	case SourceHistoricalCSV, SourceAPI, SourceWebScrape:
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
	return nil
}

// Dedupe removes duplicates on the natural key, keeping first occurrence.
// Duplicates across sources survive (each source is stored independently);
// only same-source repeats within a single run collapse.
func Dedupe(records []ExchangeRate) []ExchangeRate {
	if len(records) == 0 {
		return records
	}
	seen := make(map[string]bool, len(records))
	out := make([]ExchangeRate, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

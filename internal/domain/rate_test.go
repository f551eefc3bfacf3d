package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateFormat, s)
	require.NoError(t, err)
	return d
}

func TestValidate(t *testing.T) {
	now := mustDate(t, "2025-06-15")

	valid := ExchangeRate{
		Date:   mustDate(t, "2025-06-14"),
		Base:   "USD",
		Quote:  "EUR",
		Rate:   0.92,
		Source: SourceHistoricalCSV,
	}

	tests := []struct {
		name    string
		mutate  func(r *ExchangeRate)
		wantErr bool
	}{
		{name: "valid record", mutate: func(r *ExchangeRate) {}, wantErr: false},
		{name: "dated today", mutate: func(r *ExchangeRate) { r.Date = now }, wantErr: false},
		{name: "future date", mutate: func(r *ExchangeRate) { r.Date = now.AddDate(0, 0, 2) }, wantErr: true},
		{name: "zero rate", mutate: func(r *ExchangeRate) { r.Rate = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(r *ExchangeRate) { r.Rate = -1.08 }, wantErr: true},
		{name: "lowercase code", mutate: func(r *ExchangeRate) { r.Base = "usd" }, wantErr: true},
		{name: "long code", mutate: func(r *ExchangeRate) { r.Quote = "EURO" }, wantErr: true},
		{name: "same pair", mutate: func(r *ExchangeRate) { r.Quote = "USD" }, wantErr: true},
		{name: "zero date", mutate: func(r *ExchangeRate) { r.Date = time.Time{} }, wantErr: true},
		{name: "unknown source", mutate: func(r *ExchangeRate) { r.Source = "ftp" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate(now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	date := mustDate(t, "2025-06-10")

	a := ExchangeRate{Date: date, Base: "EUR", Quote: "USD", Rate: 1.08, Source: SourceAPI}
	aRepeat := ExchangeRate{Date: date, Base: "EUR", Quote: "USD", Rate: 1.09, Source: SourceAPI}
	sameScraped := ExchangeRate{Date: date, Base: "EUR", Quote: "USD", Rate: 1.08, Source: SourceWebScrape}
	other := ExchangeRate{Date: date, Base: "EUR", Quote: "GBP", Rate: 0.85, Source: SourceAPI}

	out := Dedupe([]ExchangeRate{a, aRepeat, sameScraped, other})

	require.Len(t, out, 3)
	// First occurrence wins
	assert.Equal(t, 1.08, out[0].Rate)
	// Same pair from a different source is not a duplicate
	assert.Equal(t, SourceWebScrape, out[1].Source)
	assert.Equal(t, "GBP", out[2].Quote)
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}

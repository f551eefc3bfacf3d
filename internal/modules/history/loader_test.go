package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daily_forex_rates.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestExtractWindowFilter(t *testing.T) {
	now := fixedNow()
	inWindow := now.AddDate(0, 0, -45).Format(domain.DateFormat)
	outOfWindow := now.AddDate(0, 0, -100).Format(domain.DateFormat)

	content := fmt.Sprintf(
		"currency,base_currency,currency_name,exchange_rate,date\n"+
			"EUR,USD,Euro,0.92,%s\n"+
			"EUR,USD,Euro,0.95,%s\n",
		inWindow, outOfWindow,
	)

	loader := NewLoader(writeDataset(t, content), 2, zerolog.Nop())
	loader.now = fixedNow

	records, err := loader.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, inWindow, records[0].DateString())
	assert.Equal(t, "USD", records[0].Base)
	assert.Equal(t, "EUR", records[0].Quote)
	assert.Equal(t, 0.92, records[0].Rate)
	assert.Equal(t, domain.SourceHistoricalCSV, records[0].Source)
}

func TestExtractDropsMalformedRows(t *testing.T) {
	now := fixedNow()
	date := now.AddDate(0, 0, -10).Format(domain.DateFormat)

	content := "currency,base_currency,currency_name,exchange_rate,date\n" +
		"USD,EUR,US Dollar,1.08," + date + "\n" +
		"GBP,EUR,British Pound,not-a-number," + date + "\n" + // unparsable rate
		"CHF,EUR,Swiss Franc,-0.5," + date + "\n" + // non-positive rate
		"JPY,EUR,Japanese Yen,165.2,12/06/2025\n" + // unparsable date
		"short,row\n"

	loader := NewLoader(writeDataset(t, content), 2, zerolog.Nop())
	loader.now = fixedNow

	records, err := loader.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "USD", records[0].Quote)
}

func TestExtractColumnOrderIndependent(t *testing.T) {
	now := fixedNow()
	date := now.AddDate(0, 0, -5).Format(domain.DateFormat)

	content := "date,exchange_rate,base_currency,currency\n" +
		date + ",0.92,USD,EUR\n"

	loader := NewLoader(writeDataset(t, content), 2, zerolog.Nop())
	loader.now = fixedNow

	records, err := loader.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "EUR", records[0].Quote)
}

func TestExtractMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.csv"), 2, zerolog.Nop())

	records, err := loader.Extract(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractEmptyFile(t *testing.T) {
	loader := NewLoader(writeDataset(t, ""), 2, zerolog.Nop())

	records, err := loader.Extract(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractMissingColumn(t *testing.T) {
	content := "currency,rate,date\nEUR,0.92,2025-06-01\n"
	loader := NewLoader(writeDataset(t, content), 2, zerolog.Nop())
	loader.now = fixedNow

	_, err := loader.Extract(context.Background())
	assert.Error(t, err)
}

// Package rates provides persistence for normalized exchange rate records.
// Records land in the exchange_rates table of the local store, keyed by
// (date, base_currency, quote_currency, source) so repeated runs are idempotent.
package rates

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/database"
	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchange_rates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	base_currency TEXT NOT NULL,
	quote_currency TEXT NOT NULL,
	rate REAL NOT NULL,
	source TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(date, base_currency, quote_currency, source)
);
CREATE INDEX IF NOT EXISTS idx_exchange_rates_source_date
	ON exchange_rates(source, date);
`

// Repository handles exchange rate persistence in the local store.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new exchange rate repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rates").Logger(),
	}
}

// EnsureSchema creates the exchange_rates table if it does not exist.
func (r *Repository) EnsureSchema() error {
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create exchange_rates schema: %w", err)
	}
	return nil
}

// UpsertBatch writes a batch of records inside a single transaction.
// Conflicts on the natural key update the rate in place, so re-inserting an
// identical batch leaves the table unchanged. Returns the number of rows
// written (inserted or refreshed).
func (r *Repository) UpsertBatch(records []domain.ExchangeRate) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO exchange_rates (date, base_currency, quote_currency, rate, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, base_currency, quote_currency, source)
		DO UPDATE SET rate = excluded.rate
	`

	written := 0
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		createdAt := time.Now().Unix()
		for _, rec := range records {
			if _, err := stmt.Exec(
				rec.DateString(),
				rec.Base,
				rec.Quote,
				rec.Rate,
				string(rec.Source),
				createdAt,
			); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", rec.Key(), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Info().Int("rows", written).Msg("Batch written to local store")
	return written, nil
}

// Count returns the total number of stored rows.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM exchange_rates").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exchange rates: %w", err)
	}
	return n, nil
}

// CountBySource returns row counts grouped by source.
func (r *Repository) CountBySource() (map[domain.Source]int, error) {
	rows, err := r.db.Query("SELECT source, COUNT(*) FROM exchange_rates GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Source]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[domain.Source(source)] = n
	}
	return counts, rows.Err()
}

// Recent returns the most recently observed rows, newest first.
// Used for the post-run report.
func (r *Repository) Recent(limit int) ([]domain.ExchangeRate, error) {
	query := `
		SELECT date, base_currency, quote_currency, rate, source
		FROM exchange_rates
		ORDER BY date DESC, source ASC, quote_currency ASC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rates: %w", err)
	}
	defer rows.Close()

	var records []domain.ExchangeRate
	for rows.Next() {
		var dateStr, source string
		var rec domain.ExchangeRate
		if err := rows.Scan(&dateStr, &rec.Base, &rec.Quote, &rec.Rate, &source); err != nil {
			return nil, fmt.Errorf("failed to scan rate row: %w", err)
		}
		date, err := time.Parse(domain.DateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("malformed date %q in store: %w", dateStr, err)
		}
		rec.Date = date
		rec.Source = domain.Source(source)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Package archive appends collected batches to per-source flat files.
// One CSV per source under the processed directory, opened in append mode so
// every run adds to the archive; the header is written only on file creation.
package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
)

var header = []string{"date", "base_currency", "quote_currency", "rate", "source"}

// Writer appends record batches to per-source archive files.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates an archive writer rooted at dir.
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "archive").Logger(),
	}
}

// Append groups the batch by source and appends each group to its archive
// file. Sources are processed in a stable order so partial failures are
// reproducible.
func (w *Writer) Append(records []domain.ExchangeRate) error {
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	grouped := make(map[domain.Source][]domain.ExchangeRate)
	for _, rec := range records {
		grouped[rec.Source] = append(grouped[rec.Source], rec)
	}

	sources := make([]string, 0, len(grouped))
	for src := range grouped {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)

	for _, src := range sources {
		if err := w.appendSource(domain.Source(src), grouped[domain.Source(src)]); err != nil {
			return err
		}
	}
	return nil
}

// FilePath returns the archive file for a source.
func (w *Writer) FilePath(source domain.Source) string {
	return filepath.Join(w.dir, fmt.Sprintf("forex_%s.csv", source))
}

func (w *Writer) appendSource(source domain.Source, records []domain.ExchangeRate) error {
	path := w.FilePath(source)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open archive file %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write archive header: %w", err)
		}
	}

	for _, rec := range records {
		row := []string{
			rec.DateString(),
			rec.Base,
			rec.Quote,
			strconv.FormatFloat(rec.Rate, 'f', -1, 64),
			string(rec.Source),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write archive row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush archive file %s: %w", path, err)
	}

	w.log.Info().
		Str("source", string(source)).
		Int("rows", len(records)).
		Str("file", path).
		Msg("Batch archived")

	return nil
}

package pipeline

import (
	"sort"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sourceSummary aggregates one source's contribution to a run.
type sourceSummary struct {
	Source domain.Source
	Count  int
	Mean   float64
	Min    float64
	Max    float64
}

// summarize computes per-source rate statistics for the run report.
func summarize(records []domain.ExchangeRate) []sourceSummary {
	bySource := make(map[domain.Source][]float64)
	for _, rec := range records {
		bySource[rec.Source] = append(bySource[rec.Source], rec.Rate)
	}

	summaries := make([]sourceSummary, 0, len(bySource))
	for source, values := range bySource {
		summaries = append(summaries, sourceSummary{
			Source: source,
			Count:  len(values),
			Mean:   stat.Mean(values, nil),
			Min:    floats.Min(values),
			Max:    floats.Max(values),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Source < summaries[j].Source
	})
	return summaries
}

// recentReportRows bounds the tail of stored rows echoed after a run.
const recentReportRows = 10

// logReport emits the per-source summary of what the run collected.
func (p *Pipeline) logReport(log zerolog.Logger, records []domain.ExchangeRate) {
	if len(records) == 0 {
		log.Warn().Msg("Run collected no records")
		return
	}

	for _, s := range summarize(records) {
		log.Info().
			Str("source", string(s.Source)).
			Int("records", s.Count).
			Float64("mean_rate", s.Mean).
			Float64("min_rate", s.Min).
			Float64("max_rate", s.Max).
			Msg("Source summary")
	}
}

// logStoreReport queries the local store after persistence and reports what
// it now holds: totals per source plus the newest stored rows. Report query
// failures only log; the run's data is already durable at this point.
func (p *Pipeline) logStoreReport(log zerolog.Logger) {
	total, err := p.store.Count()
	if err != nil {
		log.Warn().Err(err).Msg("Store report query failed")
		return
	}

	counts, err := p.store.CountBySource()
	if err != nil {
		log.Warn().Err(err).Msg("Store report query failed")
		return
	}

	event := log.Info().Int("total_rows", total)
	for source, n := range counts {
		event = event.Int("rows_"+string(source), n)
	}
	event.Msg("Local store totals")

	recent, err := p.store.Recent(recentReportRows)
	if err != nil {
		log.Warn().Err(err).Msg("Store report query failed")
		return
	}
	for _, rec := range recent {
		log.Debug().
			Str("date", rec.DateString()).
			Str("pair", rec.Base+"/"+rec.Quote).
			Float64("rate", rec.Rate).
			Str("source", string(rec.Source)).
			Msg("Stored rate")
	}
}

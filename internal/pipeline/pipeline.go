// Package pipeline orchestrates one collection run: extract from every
// source, merge, persist locally, archive, then replicate best-effort.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/alerting"
	"github.com/gervais-amoah/finance-pipeline/internal/clients/xrates"
	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status summarizes the outcome of a run.
type Status string

const (
	// StatusSuccess - every source delivered and everything was persisted
	StatusSuccess Status = "success"
	// StatusPartial - at least one source or best-effort step failed, data was still persisted
	StatusPartial Status = "partial"
	// StatusFailure - no source delivered anything
	StatusFailure Status = "failure"
)

// Extractor produces normalized records from one source.
type Extractor interface {
	Name() string
	Extract(ctx context.Context) ([]domain.ExchangeRate, error)
}

// Store persists a batch into the local relational store and answers the
// queries the post-run report is built from.
type Store interface {
	UpsertBatch(records []domain.ExchangeRate) (int, error)
	Count() (int, error)
	CountBySource() (map[domain.Source]int, error)
	Recent(limit int) ([]domain.ExchangeRate, error)
}

// Archiver appends a batch to the per-source flat files.
type Archiver interface {
	Append(records []domain.ExchangeRate) error
}

// Forwarder replicates a batch to the remote backend.
type Forwarder interface {
	InsertBatch(ctx context.Context, runID string, records []domain.ExchangeRate) error
}

// Replicator ships the flat-file archives to remote object storage.
type Replicator interface {
	Replicate(ctx context.Context, runID string) error
}

// Deps wires the pipeline. Forwarder and Replicator may be nil when the
// corresponding feature is not configured.
type Deps struct {
	Extractors []Extractor
	Store      Store
	Archiver   Archiver
	Forwarder  Forwarder
	Replicator Replicator
	Alerter    alerting.Alerter
	Log        zerolog.Logger
}

// Pipeline runs the three-source collection flow.
type Pipeline struct {
	extractors []Extractor
	store      Store
	archiver   Archiver
	forwarder  Forwarder
	replicator Replicator
	alerter    alerting.Alerter
	log        zerolog.Logger
}

// New creates a pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		extractors: deps.Extractors,
		store:      deps.Store,
		archiver:   deps.Archiver,
		forwarder:  deps.Forwarder,
		replicator: deps.Replicator,
		alerter:    deps.Alerter,
		log:        deps.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one full collection pass. Source failures are isolated: a
// broken source never stops its siblings. Only a local store write failure
// is fatal and returned as an error; every other problem degrades the
// status instead.
func (p *Pipeline) Run(ctx context.Context) (Status, error) {
	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Logger()
	started := time.Now()

	log.Info().Int("sources", len(p.extractors)).Msg("Collection run started")

	var batch []domain.ExchangeRate
	failedSources := 0

	for _, extractor := range p.extractors {
		records, err := extractor.Extract(ctx)
		if err != nil {
			failedSources++
			p.handleSourceFailure(ctx, log, extractor.Name(), err)
			continue
		}
		log.Info().Str("source", extractor.Name()).Int("records", len(records)).Msg("Source extracted")
		batch = append(batch, records...)
	}

	batch = domain.Dedupe(batch)

	degraded := false

	// Local store write precedes every remote step, so local durability
	// never depends on remote availability.
	written, err := p.store.UpsertBatch(batch)
	if err != nil {
		return StatusFailure, fmt.Errorf("local store write failed: %w", err)
	}

	if err := p.archiver.Append(batch); err != nil {
		degraded = true
		log.Error().Err(err).Msg("Flat-file archive append failed")
	}

	if p.forwarder != nil && len(batch) > 0 {
		if err := p.forwarder.InsertBatch(ctx, runID, batch); err != nil {
			degraded = true
			log.Error().Err(err).Msg("Remote forwarding failed")
			p.alerter.Alert(ctx, alerting.SeverityForwarding,
				fmt.Sprintf("Failed to forward %d records to the remote backend: %v", len(batch), err))
		}
	}

	if p.replicator != nil {
		if err := p.replicator.Replicate(ctx, runID); err != nil {
			// Tertiary replication; not worth an operator email.
			log.Warn().Err(err).Msg("Archive replication failed")
		}
	}

	p.logReport(log, batch)
	p.logStoreReport(log)

	status := p.status(failedSources, degraded, len(batch))
	log.Info().
		Str("status", string(status)).
		Int("records", len(batch)).
		Int("written", written).
		Int("failed_sources", failedSources).
		Dur("duration_ms", time.Since(started)).
		Msg("Collection run finished")

	return status, nil
}

// handleSourceFailure logs an extractor failure and alerts where the failure
// category warrants it. The scraper alerts on both of its categories with a
// message naming which one occurred; API and dataset failures only log.
func (p *Pipeline) handleSourceFailure(ctx context.Context, log zerolog.Logger, source string, err error) {
	log.Error().Err(err).Str("source", source).Msg("Source failed, continuing with remaining sources")

	switch {
	case errors.Is(err, xrates.ErrPageStructure):
		p.alerter.Alert(ctx, alerting.SeverityStructureChange,
			fmt.Sprintf("The scraped rates page no longer matches the expected table layout: %v", err))
	case errors.Is(err, xrates.ErrFetchFailed):
		p.alerter.Alert(ctx, alerting.SeverityGeneric,
			fmt.Sprintf("Failed to fetch the rates page: %v", err))
	}
}

func (p *Pipeline) status(failedSources int, degraded bool, records int) Status {
	if failedSources == len(p.extractors) && records == 0 {
		return StatusFailure
	}
	if failedSources > 0 || degraded {
		return StatusPartial
	}
	return StatusSuccess
}

// Package collector drives paginated collection against the upstream API:
// one sequential worker walks offsets until the target count is reached or
// the upstream is exhausted, pacing between pages and checking for
// cancellation at each page boundary. Partial results are a valid outcome,
// never an error crossing this boundary.
package collector

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tokenradar/infrastructure/metrics"
	"tokenradar/infrastructure/ratelimit"
)

// Outcome classifies how a collection run ended.
type Outcome string

const (
	// OutcomeComplete means the target count was reached.
	OutcomeComplete Outcome = "complete"
	// OutcomeExhausted means the upstream ran out of records first.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomePartial means a page-level failure stopped the run early;
	// Result.Err carries the cause.
	OutcomePartial Outcome = "partial"
)

// Page is one fetched page. Total, when the upstream reports it, lets the
// run stop without an extra empty-page probe; zero means unknown.
type Page[T any] struct {
	Items []T
	Total int
}

// PageFunc fetches one page at the given offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// EnrichFunc decorates a single record with a secondary detail fetch.
// Errors keep the raw record; they never abort the run.
type EnrichFunc[T any] func(ctx context.Context, rec T) (T, error)

// Config tunes a collection run.
type Config struct {
	Dataset     string
	TargetCount int
	BatchSize   int
	Pacer       *ratelimit.Pacer
	Enrich      bool
}

// Result is the explicit run outcome: callers can tell "no data because
// exhausted" from "no data because an error stopped us".
type Result[T any] struct {
	RunID   string
	Records []T
	Outcome Outcome
	Pages   int
	Err     error
}

// Run collects up to cfg.TargetCount records, advancing the offset by
// cfg.BatchSize per page. The loop terminates on target reached, empty
// page, reported total reached, page failure, or cancellation.
func Run[T any](ctx context.Context, cfg Config, fetch PageFunc[T], enrich EnrichFunc[T]) Result[T] {
	res := Result[T]{
		RunID:   uuid.NewString(),
		Records: make([]T, 0, cfg.TargetCount),
		Outcome: OutcomeComplete,
	}

	log.Info().Str("run_id", res.RunID).Str("dataset", cfg.Dataset).
		Int("target", cfg.TargetCount).Int("batch", cfg.BatchSize).
		Msg("collection run starting")

	offset := 0
	for len(res.Records) < cfg.TargetCount {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomePartial
			res.Err = err
			break
		}
		if offset > 0 {
			if err := cfg.Pacer.Wait(ctx); err != nil {
				res.Outcome = OutcomePartial
				res.Err = err
				break
			}
		}

		page, err := fetch(ctx, offset, cfg.BatchSize)
		if err != nil {
			log.Error().Str("run_id", res.RunID).Int("offset", offset).Err(err).
				Msg("page fetch failed, keeping partial results")
			res.Outcome = OutcomePartial
			res.Err = err
			break
		}
		res.Pages++

		if len(page.Items) == 0 {
			res.Outcome = OutcomeExhausted
			break
		}

		for _, rec := range page.Items {
			if cfg.Enrich && enrich != nil {
				enriched, err := enrich(ctx, rec)
				if err != nil {
					log.Warn().Str("run_id", res.RunID).Err(err).
						Msg("record enrichment failed, keeping raw record")
				} else {
					rec = enriched
				}
			}
			res.Records = append(res.Records, rec)
			if len(res.Records) == cfg.TargetCount {
				break
			}
		}

		offset += cfg.BatchSize

		// A reported total lets us stop without probing for an empty page.
		if page.Total > 0 && offset >= page.Total {
			if len(res.Records) < cfg.TargetCount {
				res.Outcome = OutcomeExhausted
			}
			break
		}
	}

	metrics.RecordsCollected.WithLabelValues(cfg.Dataset).Add(float64(len(res.Records)))

	log.Info().Str("run_id", res.RunID).Str("dataset", cfg.Dataset).
		Int("records", len(res.Records)).Int("pages", res.Pages).
		Str("outcome", string(res.Outcome)).
		Msg("collection run finished")

	return res
}

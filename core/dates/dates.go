// Package dates resolves the work list of a backfill and filters out dates
// the warehouse already holds.
package dates

import (
	"context"
	"slices"

	"github.com/huangsam/backfill/core/retry"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// Request selects the dates of a run. ExplicitDates wins over a range;
// an empty request selects the default range.
type Request struct {
	StartDate     string
	EndDate       string
	ExplicitDates []string
}

// Explicit reports whether the request names individual dates.
func (r Request) Explicit() bool {
	return len(r.ExplicitDates) > 0
}

// Resolve returns the requested dates in ascending order, one per calendar day.
// An end before the start yields an empty slice. Malformed input returns a
// *contract.ConfigurationError.
func Resolve(req Request, defaultStart, defaultEnd string) ([]schema.ProcessingDate, error) {
	if req.Explicit() {
		return resolveExplicit(req.ExplicitDates)
	}

	start, end := req.StartDate, req.EndDate
	switch {
	case start == "" && end == "":
		start, end = defaultStart, defaultEnd
	case start == "":
		return nil, contract.NewConfigurationError("start-date", "", "required when an end date is given")
	case end == "":
		return nil, contract.NewConfigurationError("end-date", "", "required when a start date is given")
	}

	from, err := parse("start-date", start)
	if err != nil {
		return nil, err
	}
	to, err := parse("end-date", end)
	if err != nil {
		return nil, err
	}
	return Range(from, to), nil
}

// Range returns every date from start to end inclusive.
func Range(start, end schema.ProcessingDate) []schema.ProcessingDate {
	if end < start {
		return []schema.ProcessingDate{}
	}
	last := end.Time()
	days := int(last.Sub(start.Time()).Hours()/24) + 1
	out := make([]schema.ProcessingDate, 0, days)
	for t := start.Time(); !t.After(last); t = t.AddDate(0, 0, 1) {
		out = append(out, schema.DateOf(t))
	}
	return out
}

func resolveExplicit(values []string) ([]schema.ProcessingDate, error) {
	out := make([]schema.ProcessingDate, 0, len(values))
	for _, v := range values {
		d, err := parse("dates", v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func parse(field, value string) (schema.ProcessingDate, error) {
	d, err := schema.ParseProcessingDate(value)
	if err != nil {
		return "", contract.NewConfigurationError(field, value, "expected a calendar day in YYYYMMDD format")
	}
	return d, nil
}

// Resolver removes already-processed dates using the warehouse as the oracle.
type Resolver struct {
	oracle contract.ProcessedDateOracle
	policy retry.Policy
	logger zerolog.Logger
}

// NewResolver creates a Resolver backed by oracle. Oracle queries are retried with policy.
func NewResolver(oracle contract.ProcessedDateOracle, policy retry.Policy, logger zerolog.Logger) *Resolver {
	return &Resolver{oracle: oracle, policy: policy.Named("processed-dates"), logger: logger}
}

// FilterUnprocessed returns candidates minus the dates the oracle reports as loaded.
// Order is preserved. When skipExisting is false the input is returned unchanged
// and the oracle is not consulted.
//
// If the oracle still fails after retries, every candidate is returned with a
// warning. Loads replace each (table, date), so reprocessing a loaded date is safe.
// An error is returned only when ctx ends first.
func (r *Resolver) FilterUnprocessed(ctx context.Context, candidates []schema.ProcessingDate, skipExisting bool) ([]schema.ProcessingDate, error) {
	if !skipExisting || len(candidates) == 0 {
		return candidates, nil
	}

	processed, err := retry.Do(ctx, r.policy, r.logger, r.oracle.QueryProcessedDates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn().Err(err).
			Int("candidates", len(candidates)).
			Msg("Could not query processed dates, processing all candidates")
		return candidates, nil
	}
	done := make(map[schema.ProcessingDate]struct{}, len(processed))
	for _, d := range processed {
		done[d] = struct{}{}
	}

	out := make([]schema.ProcessingDate, 0, len(candidates))
	for _, d := range candidates {
		if _, ok := done[d]; !ok {
			out = append(out, d)
		}
	}
	r.logger.Info().
		Int("candidates", len(candidates)).
		Int("already_processed", len(candidates)-len(out)).
		Int("remaining", len(out)).
		Msg("Filtered processed dates")
	return out, nil
}

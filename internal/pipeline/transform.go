package pipeline

import (
	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

// tables holds every table one run produces.
type tables struct {
	consolidated domain.ConsolidatedTable
	wide         domain.WideTable
	filtered     *domain.WideTable
	report       *domain.CompletenessReport
}

// transform runs the pure stages: consolidate, reshape, and the optional
// completeness filter. The threshold has already been validated.
func transform(sets []domain.RecordSet, schema domain.Schema, opts Options) (tables, error) {
	var out tables
	out.consolidated = domain.Consolidate(sets, domain.ConsolidateOptions{
		Schema:         schema,
		NormalizeDates: opts.NormalizeDates,
		Provenance:     opts.Provenance,
	})
	out.wide = domain.Reshape(out.consolidated)

	if opts.MinCompleteness == nil {
		return out, nil
	}
	filtered, report, err := domain.FilterByCompleteness(out.wide, *opts.MinCompleteness)
	if err != nil {
		return tables{}, err
	}
	out.filtered = &filtered
	out.report = &report
	return out, nil
}

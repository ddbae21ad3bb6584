package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-pivot-etl/internal/archive"
	"github.com/couchcryptid/station-pivot-etl/internal/domain"
	"github.com/couchcryptid/station-pivot-etl/internal/export"
	"github.com/couchcryptid/station-pivot-etl/internal/loader"
	"github.com/couchcryptid/station-pivot-etl/internal/observability"
)

// Unpacker extracts an uploaded outer archive into a workspace.
type Unpacker interface {
	Unpack(ws *archive.Workspace, blob []byte) (archive.Result, error)
}

// RecordLoader parses the tabular files of the extracted inner archives.
type RecordLoader interface {
	LoadAll(inner []archive.InnerArchive) (loader.Result, error)
}

// SheetWriter serializes a table into spreadsheet bytes.
type SheetWriter interface {
	Write(t domain.Table, sheet string) ([]byte, error)
}

// SummaryPublisher emits the summary of a finished run.
type SummaryPublisher interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
}

// XLSXWriter implements SheetWriter with the xlsx exporter.
type XLSXWriter struct{}

func (XLSXWriter) Write(t domain.Table, sheet string) ([]byte, error) {
	return export.WriteXLSX(t, sheet)
}

// Settings are the per-deployment parameters of a Pipeline.
type Settings struct {
	WorkspaceDir string
	Schema       domain.Schema

	SheetName             string
	ConsolidatedSheetName string
	WideFileName          string
	FilteredFileName      string
	ConsolidatedFileName  string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Schema:                domain.DefaultSchema(),
		SheetName:             export.DefaultSheetName,
		ConsolidatedSheetName: "Consolidated Data",
		WideFileName:          "organized_data.xlsx",
		FilteredFileName:      "filtered_data.xlsx",
		ConsolidatedFileName:  "consolidated_data.xlsx",
	}
}

// Options select the optional stages of one run. Each stage is independent.
type Options struct {
	// Provenance tags rows with their source file and inner archive.
	Provenance bool
	// NormalizeDates drops the time of day before pivoting.
	NormalizeDates bool
	// MinCompleteness enables the completeness filter when non-nil.
	MinCompleteness *int
	// ExportConsolidated adds the long table as an extra artifact.
	ExportConsolidated bool
	// PreviewRows is the number of rows kept in each preview.
	PreviewRows int
}

// DefaultOptions enables provenance and date normalization, no filtering,
// and a 10-row preview.
func DefaultOptions() Options {
	return Options{
		Provenance:     true,
		NormalizeDates: true,
		PreviewRows:    10,
	}
}

// Threshold returns a pointer to p, for Options.MinCompleteness.
func Threshold(p int) *int { return &p }

// Artifact kinds.
const (
	ArtifactWide         = "wide"
	ArtifactFiltered     = "filtered"
	ArtifactConsolidated = "consolidated"
)

// Result is everything a run hands back to its caller.
type Result struct {
	RunID    string
	Empty    bool
	Warnings []domain.Warning

	InnerArchives int
	Files         int

	Consolidated domain.ConsolidatedTable
	Wide         domain.WideTable
	Filtered     *domain.WideTable
	Report       *domain.CompletenessReport

	WidePreview     domain.WideTable
	FilteredPreview *domain.WideTable

	Artifacts []export.Artifact
	Summary   domain.RunSummary
}

// Artifact returns the artifact of the given kind.
func (r *Result) Artifact(kind string) (export.Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return export.Artifact{}, false
}

// Pipeline runs one upload through unpack, load, consolidate, reshape,
// filter, and export. Every run uses its own workspace, removed before
// Process returns.
type Pipeline struct {
	unpacker  Unpacker
	loader    RecordLoader
	writer    SheetWriter
	publisher SummaryPublisher
	settings  Settings
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline. A nil publisher disables summary publishing.
func New(u Unpacker, l RecordLoader, w SheetWriter, pub SummaryPublisher, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		unpacker:  u,
		loader:    l,
		writer:    w,
		publisher: pub,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil when workspaces can be created.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if err := archive.CheckWritable(p.settings.WorkspaceDir); err != nil {
		return fmt.Errorf("workspace not writable: %w", err)
	}
	return nil
}

// Process runs the pipeline on one outer archive.
//
// A corrupt outer archive, an invalid threshold, and I/O or export failures
// are returned as errors. Corrupt inner archives and unparseable files are
// skipped and listed in Result.Warnings. When no rows are found the result
// has Empty set, a warning, and no artifacts; that is not an error.
func (p *Pipeline) Process(ctx context.Context, blob []byte, opts Options) (res *Result, err error) {
	start := time.Now()
	p.metrics.RunsInFlight.Inc()
	defer func() {
		p.metrics.RunsInFlight.Dec()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
		p.metrics.RunsTotal.WithLabelValues(outcome(res, err)).Inc()
	}()

	if t := opts.MinCompleteness; t != nil && (*t < 0 || *t > 100) {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidThreshold, *t)
	}

	ws, err := archive.NewWorkspace(p.settings.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With("run_id", ws.ID)
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Error("workspace cleanup failed", "error", cerr)
		}
	}()

	res = &Result{RunID: ws.ID}
	logger.Info("run started", "bytes", len(blob), "filter", opts.MinCompleteness != nil)

	unpacked, err := p.unpacker.Unpack(ws, blob)
	if err != nil {
		logger.Warn("upload rejected", "error", err)
		return nil, fmt.Errorf("unpack: %w", err)
	}
	res.InnerArchives = len(unpacked.Inner)
	res.Warnings = append(res.Warnings, unpacked.Warnings...)
	p.metrics.InnerArchivesExtracted.Add(float64(len(unpacked.Inner)))
	p.metrics.InnerArchivesSkipped.Add(float64(len(unpacked.Warnings)))

	loaded, err := p.loader.LoadAll(unpacked.Inner)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	res.Files = loaded.Files
	res.Warnings = append(res.Warnings, loaded.Warnings...)
	p.metrics.FilesLoaded.Add(float64(len(loaded.Sets)))
	p.metrics.FilesSkipped.Add(float64(len(loaded.Warnings)))

	if countRows(loaded.Sets) == 0 {
		res.Empty = true
		res.Warnings = append(res.Warnings, emptyWarning(loaded.Files))
		logger.Warn("no observations found", "inner_archives", res.InnerArchives, "files", res.Files)
		p.finish(ctx, logger, res, opts)
		return res, nil
	}

	tbl, err := transform(loaded.Sets, p.settings.Schema, opts)
	if err != nil {
		return nil, err
	}
	res.Consolidated = tbl.consolidated
	res.Wide = tbl.wide
	res.Filtered = tbl.filtered
	res.Report = tbl.report
	p.metrics.RowsConsolidated.Add(float64(tbl.consolidated.Len()))
	p.metrics.WideTableStations.Observe(float64(len(tbl.wide.Stations)))

	if err := p.exportAll(res, opts); err != nil {
		return nil, err
	}

	res.WidePreview = res.Wide.Head(opts.PreviewRows)
	if res.Filtered != nil {
		preview := res.Filtered.Head(opts.PreviewRows)
		res.FilteredPreview = &preview
		p.metrics.StationsRemoved.Add(float64(res.Report.StationsRemoved))
	}

	p.finish(ctx, logger, res, opts)
	return res, nil
}

func (p *Pipeline) exportAll(res *Result, opts Options) error {
	add := func(kind, name, sheet string, t domain.Table) error {
		data, err := p.writer.Write(t, sheet)
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		res.Artifacts = append(res.Artifacts, export.Artifact{Kind: kind, Name: name, MIME: export.MIMEType, Data: data})
		return nil
	}

	if err := add(ArtifactWide, p.settings.WideFileName, p.settings.SheetName, res.Wide); err != nil {
		return err
	}
	if res.Filtered != nil {
		if err := add(ArtifactFiltered, p.settings.FilteredFileName, p.settings.SheetName, *res.Filtered); err != nil {
			return err
		}
	}
	if opts.ExportConsolidated {
		if err := add(ArtifactConsolidated, p.settings.ConsolidatedFileName, p.settings.ConsolidatedSheetName, res.Consolidated); err != nil {
			return err
		}
	}
	return nil
}

// finish builds the run summary, logs it, and publishes it. Publishing
// failures are logged; they never fail a run whose artifacts are ready.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, res *Result, opts Options) {
	res.Summary = summarize(res, opts)
	logger.Info("run finished",
		"outcome", res.Summary.Outcome,
		"files", res.Summary.Files,
		"rows", res.Summary.Rows,
		"dates", res.Summary.Dates,
		"stations_before", res.Summary.StationsBefore,
		"stations_retained", res.Summary.StationsRetained,
		"warnings", res.Summary.Warnings,
	)

	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, res.Summary); err != nil {
		p.metrics.SummaryPublishErrors.Inc()
		logger.Error("publish run summary failed", "error", err)
		return
	}
	p.metrics.SummariesPublished.Inc()
}

func summarize(res *Result, opts Options) domain.RunSummary {
	s := domain.RunSummary{
		RunID:         res.RunID,
		Outcome:       "ok",
		InnerArchives: res.InnerArchives,
		Files:         res.Files,
		Rows:          res.Consolidated.Len(),
		Dates:         res.Wide.Len(),
		Warnings:      len(res.Warnings),
		ProcessedAt:   domain.Now(),
	}
	if res.Empty {
		s.Outcome = "empty"
	}
	s.StationsBefore = len(res.Wide.Stations)
	s.StationsRetained = s.StationsBefore
	if res.Report != nil {
		s.StationsRetained = res.Report.StationsRetained
		s.StationsRemoved = res.Report.StationsRemoved
	}
	if opts.MinCompleteness != nil {
		t := *opts.MinCompleteness
		s.Threshold = &t
	}
	return s
}

func countRows(sets []domain.RecordSet) int {
	n := 0
	for _, s := range sets {
		n += len(s.Observations)
	}
	return n
}

func emptyWarning(files int) domain.Warning {
	msg := "no tabular files found in the inner archives"
	if files > 0 {
		msg = fmt.Sprintf("%d tabular files found but none contained rows", files)
	}
	return domain.Warning{
		Kind:    domain.WarningEmptyResult,
		Message: fmt.Sprintf("%v: %s", domain.ErrEmptyResult, msg),
	}
}

func outcome(res *Result, err error) string {
	switch {
	case errors.Is(err, domain.ErrArchiveCorrupt):
		return "corrupt"
	case errors.Is(err, domain.ErrInvalidThreshold):
		return "invalid"
	case err != nil:
		return "error"
	case res != nil && res.Empty:
		return "empty"
	default:
		return "ok"
	}
}

package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-pivot-etl/internal/archive"
	"github.com/couchcryptid/station-pivot-etl/internal/domain"
	"github.com/couchcryptid/station-pivot-etl/internal/export"
	"github.com/couchcryptid/station-pivot-etl/internal/fixture"
	"github.com/couchcryptid/station-pivot-etl/internal/loader"
	"github.com/couchcryptid/station-pivot-etl/internal/observability"
	"github.com/couchcryptid/station-pivot-etl/internal/pipeline"
)

var processedAt = time.Date(2024, time.June, 1, 6, 0, 0, 0, time.UTC)

// --- mocks ---

type recordingPublisher struct {
	mu        sync.Mutex
	summaries []domain.RunSummary
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, s domain.RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return p.err
}

type failingWriter struct{}

func (failingWriter) Write(domain.Table, string) ([]byte, error) {
	return nil, errors.New("disk full")
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	pipeline  *pipeline.Pipeline
	publisher *recordingPublisher
	workspace string
}

func newHarness(t *testing.T, w pipeline.SheetWriter) harness {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(processedAt))
	t.Cleanup(func() { domain.SetClock(nil) })

	settings := pipeline.DefaultSettings()
	settings.WorkspaceDir = t.TempDir()
	if w == nil {
		w = pipeline.XLSXWriter{}
	}
	pub := &recordingPublisher{}
	logger := discardLogger()
	p := pipeline.New(
		archive.NewUnpacker(0, logger),
		loader.New(settings.Schema, logger),
		w,
		pub,
		settings,
		logger,
		observability.NewMetricsForTesting(),
	)
	return harness{pipeline: p, publisher: pub, workspace: settings.WorkspaceDir}
}

func (h harness) assertWorkspaceRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workspace)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace must be removed after every run")
}

func stationArchive(name, station string, days []string, values []string) fixture.Archive {
	rows := make([]fixture.Row, len(days))
	for i := range days {
		rows[i] = fixture.Row{StationID: "00" + station, StationName: station, Date: days[i] + " 00:00:00", Value: values[i]}
	}
	return fixture.Archive{Name: name + ".zip", Files: []fixture.File{{Name: name + ".csv", Data: fixture.StationCSV(rows...)}}}
}

// threeStations has 10 dates; A covers all, B four, C five.
func threeStations(t *testing.T) []byte {
	t.Helper()
	days := make([]string, 10)
	full := make([]string, 10)
	for i := range days {
		days[i] = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		full[i] = "1"
	}
	blob, err := fixture.NestedZip([]fixture.Archive{
		stationArchive("a", "A", days, full),
		stationArchive("b", "B", days[:4], full[:4]),
		stationArchive("c", "C", days[:5], full[:5]),
	})
	require.NoError(t, err)
	return blob
}

// --- tests ---

func TestProcess_WideTableOnly(t *testing.T) {
	h := newHarness(t, nil)
	blob, err := fixture.NestedZip([]fixture.Archive{
		stationArchive("a", "A", []string{"2024-01-01", "2024-01-02", "2024-01-03"}, []string{"1", "2", "3"}),
		stationArchive("b", "B", []string{"2024-01-01", "2024-01-02", "2024-01-04"}, []string{"10", "20", "40"}),
	})
	require.NoError(t, err)

	res, err := h.pipeline.Process(context.Background(), blob, pipeline.DefaultOptions())

	require.NoError(t, err)
	assert.False(t, res.Empty)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, res.InnerArchives)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 6, res.Consolidated.Len())
	assert.Equal(t, []string{"A", "B"}, res.Wide.Stations)
	assert.Equal(t, 4, res.Wide.Len())
	assert.Nil(t, res.Filtered)
	assert.Nil(t, res.Report)

	require.Len(t, res.Artifacts, 1)
	art, ok := res.Artifact(pipeline.ArtifactWide)
	require.True(t, ok)
	assert.Equal(t, "organized_data.xlsx", art.Name)
	assert.Equal(t, export.MIMEType, art.MIME)

	sheet, err := export.ReadXLSX(art.Data, "Organized Data")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fecha", "A", "B"}, sheet.Header)
	assert.Len(t, sheet.Rows, 4)

	h.assertWorkspaceRemoved(t)
}

func TestProcess_CompletenessFilter(t *testing.T) {
	h := newHarness(t, nil)
	opts := pipeline.DefaultOptions()
	opts.MinCompleteness = pipeline.Threshold(50)

	res, err := h.pipeline.Process(context.Background(), threeStations(t), opts)

	require.NoError(t, err)
	require.NotNil(t, res.Filtered)
	require.NotNil(t, res.Report)
	assert.Equal(t, []string{"A", "C"}, res.Filtered.Stations)
	assert.Equal(t, 1, res.Report.StationsRemoved)
	assert.Equal(t, []string{"A", "B", "C"}, res.Wide.Stations, "wide table is unfiltered")

	filtered, ok := res.Artifact(pipeline.ArtifactFiltered)
	require.True(t, ok)
	assert.Equal(t, "filtered_data.xlsx", filtered.Name)
	sheet, err := export.ReadXLSX(filtered.Data, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fecha", "A", "C"}, sheet.Header)

	require.NotNil(t, res.FilteredPreview)
	assert.Equal(t, 10, res.FilteredPreview.Len())
}

func TestProcess_ConsolidatedExportAndPreview(t *testing.T) {
	h := newHarness(t, nil)
	opts := pipeline.DefaultOptions()
	opts.ExportConsolidated = true
	opts.PreviewRows = 3

	res, err := h.pipeline.Process(context.Background(), threeStations(t), opts)

	require.NoError(t, err)
	assert.Equal(t, 3, res.WidePreview.Len())
	assert.Equal(t, 10, res.Wide.Len())

	art, ok := res.Artifact(pipeline.ArtifactConsolidated)
	require.True(t, ok)
	assert.Equal(t, "consolidated_data.xlsx", art.Name)
	sheet, err := export.ReadXLSX(art.Data, "Consolidated Data")
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 19)
	assert.Contains(t, sheet.Header, domain.ColumnSourceFile)
	assert.Contains(t, sheet.Header, domain.ColumnSourceArchive)
}

func TestProcess_WithoutProvenance(t *testing.T) {
	h := newHarness(t, nil)
	opts := pipeline.DefaultOptions()
	opts.Provenance = false
	opts.ExportConsolidated = true

	res, err := h.pipeline.Process(context.Background(), threeStations(t), opts)

	require.NoError(t, err)
	assert.NotContains(t, res.Consolidated.Header(), domain.ColumnSourceFile)
	assert.Empty(t, res.Consolidated.Rows[0].SourceArchive)
}

func TestProcess_EmptyResult(t *testing.T) {
	t.Run("no inner archives", func(t *testing.T) {
		h := newHarness(t, nil)
		blob, err := fixture.Zip(fixture.File{Name: "readme.txt", Data: []byte("nothing here")})
		require.NoError(t, err)

		res, err := h.pipeline.Process(context.Background(), blob, pipeline.DefaultOptions())

		require.NoError(t, err)
		assert.True(t, res.Empty)
		assert.Empty(t, res.Artifacts)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, domain.WarningEmptyResult, res.Warnings[0].Kind)
		assert.Equal(t, "empty", res.Summary.Outcome)
		h.assertWorkspaceRemoved(t)
	})

	t.Run("inner archives without tabular files", func(t *testing.T) {
		h := newHarness(t, nil)
		blob, err := fixture.NestedZip([]fixture.Archive{
			{Name: "a.zip", Files: []fixture.File{{Name: "notes.txt", Data: []byte("x")}}},
		})
		require.NoError(t, err)
		opts := pipeline.DefaultOptions()
		opts.MinCompleteness = pipeline.Threshold(50)

		res, err := h.pipeline.Process(context.Background(), blob, opts)

		require.NoError(t, err)
		assert.True(t, res.Empty)
		assert.Empty(t, res.Artifacts)
		assert.Nil(t, res.Filtered)
		assert.Equal(t, 1, res.InnerArchives)
	})
}

func TestProcess_SkipsCorruptInputs(t *testing.T) {
	h := newHarness(t, nil)
	good := stationArchive("a", "A", []string{"2024-01-01"}, []string{"1"})
	blob, err := fixture.NestedZip(
		[]fixture.Archive{good, {Name: "b.zip", Files: []fixture.File{{Name: "b.csv", Data: []byte("Fecha,NombreEstacion,Valor\n2024-01-01,B,1,extra\n")}}}},
		fixture.File{Name: "broken.zip", Data: []byte("not a zip")},
	)
	require.NoError(t, err)

	res, err := h.pipeline.Process(context.Background(), blob, pipeline.DefaultOptions())

	require.NoError(t, err)
	assert.False(t, res.Empty)
	assert.Equal(t, []string{"A"}, res.Wide.Stations)
	require.Len(t, res.Warnings, 2)
	kinds := []domain.WarningKind{res.Warnings[0].Kind, res.Warnings[1].Kind}
	assert.ElementsMatch(t, []domain.WarningKind{domain.WarningArchiveCorrupt, domain.WarningRecordParse}, kinds)
	assert.Equal(t, 2, res.Summary.Warnings)
}

func TestProcess_Errors(t *testing.T) {
	t.Run("corrupt outer archive", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.pipeline.Process(context.Background(), []byte("garbage"), pipeline.DefaultOptions())

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrArchiveCorrupt)
		assert.Empty(t, h.publisher.summaries)
		h.assertWorkspaceRemoved(t)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		h := newHarness(t, nil)
		opts := pipeline.DefaultOptions()
		opts.MinCompleteness = pipeline.Threshold(101)

		_, err := h.pipeline.Process(context.Background(), threeStations(t), opts)

		assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
		h.assertWorkspaceRemoved(t)
	})

	t.Run("export failure", func(t *testing.T) {
		h := newHarness(t, failingWriter{})
		_, err := h.pipeline.Process(context.Background(), threeStations(t), pipeline.DefaultOptions())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		h.assertWorkspaceRemoved(t)
	})
}

func TestProcess_PublishesSummary(t *testing.T) {
	h := newHarness(t, nil)
	opts := pipeline.DefaultOptions()
	opts.MinCompleteness = pipeline.Threshold(50)

	res, err := h.pipeline.Process(context.Background(), threeStations(t), opts)
	require.NoError(t, err)

	threshold := 50
	want := domain.RunSummary{
		RunID:            res.RunID,
		Outcome:          "ok",
		InnerArchives:    3,
		Files:            3,
		Rows:             19,
		Dates:            10,
		StationsBefore:   3,
		StationsRetained: 2,
		StationsRemoved:  1,
		Threshold:        &threshold,
		ProcessedAt:      processedAt,
	}
	require.Len(t, h.publisher.summaries, 1)
	if diff := cmp.Diff(want, h.publisher.summaries[0]); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want.RunID, res.Summary.RunID)
}

func TestProcess_PublishFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, nil)
	h.publisher.err = errors.New("broker unavailable")

	res, err := h.pipeline.Process(context.Background(), threeStations(t), pipeline.DefaultOptions())

	require.NoError(t, err)
	assert.Len(t, res.Artifacts, 1)
	assert.Len(t, h.publisher.summaries, 1)
}

func TestProcess_ConcurrentRunsAreIsolated(t *testing.T) {
	h := newHarness(t, nil)
	blob := threeStations(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.pipeline.Process(context.Background(), blob, pipeline.DefaultOptions())
			errs[i] = err
			if err == nil {
				ids[i] = res.RunID
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "run ids are unique")
		seen[ids[i]] = true
	}
	h.assertWorkspaceRemoved(t)
}

func TestCheckReadiness(t *testing.T) {
	h := newHarness(t, nil)
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()))
}

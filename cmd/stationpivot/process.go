package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/station-pivot-etl/internal/archive"
	"github.com/couchcryptid/station-pivot-etl/internal/config"
	"github.com/couchcryptid/station-pivot-etl/internal/domain"
	"github.com/couchcryptid/station-pivot-etl/internal/loader"
	"github.com/couchcryptid/station-pivot-etl/internal/observability"
	"github.com/couchcryptid/station-pivot-etl/internal/pipeline"
)

type processFlags struct {
	outDir          string
	minCompleteness int
	noFilter        bool
	noProvenance    bool
	noNormalize     bool
	consolidated    bool
	previewRows     int
}

func newProcessCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var f processFlags

	cmd := &cobra.Command{
		Use:   "process <archive.zip>",
		Short: "Unpack, consolidate and pivot a nested archive, writing xlsx files",
		Example: `  stationpivot process data.zip
  stationpivot process data.zip --out-dir out --min-completeness 75 --consolidated
  stationpivot process data.zip --no-filter --no-normalize-dates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("min-completeness") {
				f.minCompleteness = cfg.DefaultMinCompleteness
			}
			if !cmd.Flags().Changed("preview") {
				f.previewRows = cfg.PreviewRows
			}
			return runProcess(cmd, cfg, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.outDir, "out-dir", "o", ".", "directory for the produced spreadsheets")
	fl.IntVar(&f.minCompleteness, "min-completeness", 50, "minimum non-null percentage a station needs to be kept (0-100)")
	fl.BoolVar(&f.noFilter, "no-filter", false, "skip the completeness filter")
	fl.BoolVar(&f.noProvenance, "no-provenance", false, "do not tag rows with their source file and archive")
	fl.BoolVar(&f.noNormalize, "no-normalize-dates", false, "keep the time of day when pivoting")
	fl.BoolVar(&f.consolidated, "consolidated", false, "also export the consolidated long table")
	fl.IntVar(&f.previewRows, "preview", 10, "rows of the wide table to print")
	return cmd
}

func runProcess(cmd *cobra.Command, cfg *config.Config, path string, f processFlags) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	logger := observability.NewConsoleLogger(cfg.LogLevel)
	settings := pipeline.DefaultSettings()
	settings.WorkspaceDir = cfg.WorkspaceDir
	settings.Schema = cfg.Schema()
	settings.SheetName = cfg.SheetName

	p := pipeline.New(
		archive.NewUnpacker(cfg.MaxExtractedBytes, logger),
		loader.New(settings.Schema, logger),
		pipeline.XLSXWriter{},
		nil,
		settings,
		logger,
		observability.RegisterMetrics(prometheus.NewRegistry()),
	)

	opts := pipeline.Options{
		Provenance:         !f.noProvenance,
		NormalizeDates:     !f.noNormalize,
		ExportConsolidated: f.consolidated,
		PreviewRows:        f.previewRows,
	}
	if !f.noFilter {
		opts.MinCompleteness = pipeline.Threshold(f.minCompleteness)
	}

	res, err := p.Process(cmd.Context(), blob, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s: %s\n", w.Kind, w.Source, w.Message)
	}
	if res.Empty {
		fmt.Fprintln(out, "no data found, nothing written")
		return nil
	}

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, a := range res.Artifacts {
		dst := filepath.Join(f.outDir, a.Name)
		if err := os.WriteFile(dst, a.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
		fmt.Fprintf(out, "wrote %s (%d bytes)\n", dst, len(a.Data))
	}

	if f.previewRows > 0 {
		printPreview(out, "wide table", res.WidePreview)
		if res.FilteredPreview != nil {
			printPreview(out, "filtered table", *res.FilteredPreview)
		}
	}
	printCounters(out, res)
	return nil
}

func printPreview(w io.Writer, title string, t domain.WideTable) {
	fmt.Fprintf(w, "%s (first %d rows):\n", title, t.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	withTime := t.HasTimeOfDay()
	for i, d := range t.Dates {
		cells := make([]string, 0, len(t.Stations)+1)
		if withTime {
			cells = append(cells, d.Format("2006-01-02 15:04:05"))
		} else {
			cells = append(cells, d.Format("2006-01-02"))
		}
		for col := range t.Stations {
			if v := t.Cell(i, col); v != nil {
				cells = append(cells, strconv.FormatFloat(*v, 'f', -1, 64))
			} else {
				cells = append(cells, "")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
}

func printCounters(w io.Writer, res *pipeline.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "inner archives\t%d\n", res.InnerArchives)
	fmt.Fprintf(tw, "files\t%d\n", res.Files)
	fmt.Fprintf(tw, "rows\t%d\n", res.Consolidated.Len())
	fmt.Fprintf(tw, "dates\t%d\n", len(res.Wide.Dates))
	fmt.Fprintf(tw, "stations\t%d\n", len(res.Wide.Stations))
	if r := res.Report; r != nil {
		fmt.Fprintf(tw, "threshold\t%d%%\n", r.Threshold)
		fmt.Fprintf(tw, "stations retained\t%d\n", r.StationsRetained)
		fmt.Fprintf(tw, "stations removed\t%d\n", r.StationsRemoved)
	}
}

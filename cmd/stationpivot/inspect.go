package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
	"github.com/couchcryptid/station-pivot-etl/internal/export"
)

func newInspectCmd() *cobra.Command {
	var (
		sheet    string
		rows     int
		dateCols []string
	)

	cmd := &cobra.Command{
		Use:   "inspect <file.xlsx>",
		Short: "Print the header and first rows of a produced spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read workbook: %w", err)
			}
			s, err := export.ReadXLSX(data, sheet)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(s.Header, "\t"))
			for i := 0; i < len(s.Rows) && i < rows; i++ {
				fmt.Fprintln(tw, strings.Join(displayRow(s, i, dateCols), "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sheet %q: %d rows, %d columns\n", s.Name, len(s.Rows), len(s.Header))
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet name (default: first sheet)")
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "number of rows to print")
	cmd.Flags().StringSliceVar(&dateCols, "date-columns", []string{"Fecha"}, "columns rendered as dates")
	return cmd
}

// displayRow renders serial numbers in date columns as dates.
func displayRow(s export.Sheet, i int, dateCols []string) []string {
	row := append([]string(nil), s.Rows[i]...)
	for col, name := range s.Header {
		if col >= len(row) || !slices.Contains(dateCols, name) {
			continue
		}
		t, ok, err := s.Date(i, col)
		if err != nil || !ok {
			continue
		}
		if domain.HasTimeOfDay(t) {
			row[col] = t.Format("2006-01-02 15:04:05")
		} else {
			row[col] = t.Format("2006-01-02")
		}
	}
	return row
}

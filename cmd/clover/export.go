package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/datasource"
	"github.com/Ramsey-B/clover/pkg/entitymap"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		format  string
		output  string
		history bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the committed entity map (or its history) as csv, json or a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				snap, err := a.store.Load(cmd.Context())
				if err != nil {
					if httperror.GetStatusCode(err) == http.StatusNotFound {
						snap = models.NewSnapshot()
					} else {
						return err
					}
				}

				table := snap.Entities
				if history {
					table = snap.History
				}

				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return writeTable(w, table, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format: csv, json or table")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to stdout)")
	cmd.Flags().BoolVar(&history, "history", false, "Export the ingestion history instead of the entity map")
	return cmd
}

func writeTable(w io.Writer, table models.Table, format string) error {
	switch format {
	case "csv":
		return datasource.WriteCSV(w, table)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	case "table":
		columns := table.Columns()
		rows := make([][]string, 0, table.Len())
		table.Each(func(_ int, r models.Record) {
			row := make([]string, len(columns))
			for i, c := range columns {
				row[i] = r[c]
			}
			rows = append(rows, row)
		})
		_, err := fmt.Fprintln(w, renderTable(columns, rows, nil))
		return err
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unsupported export format %q", format)
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the committed entity map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				view := entitymap.NewView(a.store, a.logger)
				if err := view.Reload(cmd.Context()); err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), view.Stats())
				return nil
			})
		},
	}
}

func printStats(w io.Writer, stats entitymap.Stats) {
	if stats.SavedAt.IsZero() {
		fmt.Fprintln(w, "no snapshot has been committed")
	} else {
		fmt.Fprintf(w, "saved at %s\n", stats.SavedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "entities: %d  history: %d\n", stats.EntityRows, stats.HistoryRows)

	fieldRows := make([][]string, 0, len(stats.Columns))
	for _, c := range stats.Columns {
		fieldRows = append(fieldRows, []string{c, strconv.Itoa(stats.FieldCounts[c])})
	}
	if len(fieldRows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Field", "Non-null"}, fieldRows, []columnAlignment{alignLeft, alignRight}))
	}

	sources := make([]string, 0, len(stats.Coverage))
	for s := range stats.Coverage {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	coverageRows := make([][]string, 0, len(sources))
	for _, s := range sources {
		coverageRows = append(coverageRows, []string{s, formatSeasons(stats.Coverage[s])})
	}
	if len(coverageRows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Source", "Seasons"}, coverageRows, nil))
	}
}

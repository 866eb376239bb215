package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/datasource"
	"github.com/Ramsey-B/clover/pkg/processor"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Pull every configured source, resolve the map and commit it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLock(cmd.Context(), func(a *app) error {
				updater, err := a.updater()
				if err != nil {
					return err
				}
				result, err := updater.Run(cmd.Context())
				if err != nil {
					return err
				}
				return printRunResult(cmd.OutOrStdout(), result, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	return cmd
}

func newMaptizeCommand(ctx *commandContext) *cobra.Command {
	var (
		keys   []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "maptize",
		Short: "Resolve the committed map over key fields without pulling sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLock(cmd.Context(), func(a *app) error {
				updater, err := a.updater()
				if err != nil {
					return err
				}
				result, err := updater.Resolve(cmd.Context(), keys)
				if err != nil {
					return err
				}
				return printRunResult(cmd.OutOrStdout(), result, asJSON)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "keys", "k", nil, "Key fields in resolution order (defaults to key_fields)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import <source> <file.csv>",
		Short: "Ingest a local CSV export as a batch of the named source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			table, err := datasource.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}

			return ctx.withLock(cmd.Context(), func(a *app) error {
				updater, err := a.updater()
				if err != nil {
					return err
				}
				result, err := updater.Ingest(cmd.Context(), args[0], table)
				if err != nil {
					return err
				}
				return printRunResult(cmd.OutOrStdout(), result, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	return cmd
}

func printRunResult(w io.Writer, result *processor.RunResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "%s run %s finished in %s\n", result.Kind, result.RunID, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if len(result.Sources) > 0 {
		rows := make([][]string, 0, len(result.Sources))
		for _, s := range result.Sources {
			rows = append(rows, []string{s.Source, formatSeasons(s.Seasons), strconv.Itoa(s.Received), strconv.Itoa(s.Novel)})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Source", "Seasons", "Received", "Novel"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
		))
	}

	if result.Report != nil {
		rows := make([][]string, 0, len(result.Report.Passes))
		for _, p := range result.Report.Passes {
			rows = append(rows, []string{
				p.Key,
				strconv.Itoa(p.Groups),
				strconv.Itoa(p.Fused),
				strconv.Itoa(len(p.Conflicts)),
				strconv.Itoa(p.RowsBefore),
				strconv.Itoa(p.RowsAfter),
			})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Key", "Groups", "Fused", "Conflicts", "Rows before", "Rows after"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
	}

	fmt.Fprintf(w, "entities: %d  history: %d\n", result.Entities.Len(), result.HistoryLen)

	if len(result.SinkErrors) > 0 {
		names := make([]string, 0, len(result.SinkErrors))
		for name := range result.SinkErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "sink %s failed: %s\n", name, result.SinkErrors[name])
		}
	}
	return nil
}

func formatSeasons(seasons []int) string {
	switch len(seasons) {
	case 0:
		return "-"
	case 1:
		return strconv.Itoa(seasons[0])
	}
	contiguous := seasons[len(seasons)-1]-seasons[0] == len(seasons)-1
	if contiguous {
		return fmt.Sprintf("%d-%d", seasons[0], seasons[len(seasons)-1])
	}
	parts := make([]string, len(seasons))
	for i, s := range seasons {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

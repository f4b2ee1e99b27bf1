package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"safe-delete/internal/database"
	"safe-delete/internal/exitcodes"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the deletion history",
		Example: `  safe-delete history --recent 10         # 10 most recent requests
  safe-delete history --stats --days 7     # statistics for the last week
  safe-delete history --action ERROR       # failed requests only
  safe-delete history --path '/var/log/%'  # requests under /var/log
  safe-delete history --request 3f2c...    # one request by its id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if p, _ := cmd.Flags().GetString("db"); p != "" {
				cfg.DatabasePath = p
			}
			if !cfg.HistoryEnabled() {
				return exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("deletion history is disabled in the config"))
			}

			db, err := database.NewDeletionDB(cfg.DatabasePath)
			if err != nil {
				return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err))
			}
			defer db.Close()

			flags := cmd.Flags()
			asJSON, _ := flags.GetBool("json")
			out := cmd.OutOrStdout()

			if id, _ := flags.GetString("request"); id != "" {
				return showRequest(out, db, id, asJSON)
			}
			if stats, _ := flags.GetBool("stats"); stats {
				days, _ := flags.GetInt("days")
				return showStats(out, db, days, asJSON)
			}

			recent, _ := flags.GetInt("recent")
			action, _ := flags.GetString("action")
			kind, _ := flags.GetString("kind")
			path, _ := flags.GetString("path")
			if recent <= 0 {
				recent = 50
			}

			records, total, err := db.Query(database.Filter{Action: action, Kind: kind, Path: path}, recent, 0)
			if err != nil {
				return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("query history: %w", err))
			}
			if asJSON {
				return writeJSON(out, records)
			}
			printRecords(out, records)
			if total > len(records) {
				fmt.Fprintf(out, "\n%d of %d records shown\n", len(records), total)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("db", "", "Path to deletion database (overrides database_path)")
	flags.Int("recent", 0, "Show N most recent records (default 50)")
	flags.String("action", "", "Filter by action (DELETE, ERROR)")
	flags.String("kind", "", "Filter by failure kind (not_found, permission_denied, ...)")
	flags.String("path", "", "Filter by path pattern (SQL LIKE syntax)")
	flags.String("request", "", "Show the record of a single request id")
	flags.Bool("stats", false, "Show deletion statistics")
	flags.Int("days", 30, "Number of days for statistics")
	flags.Bool("json", false, "Output in JSON format")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func showRequest(w io.Writer, db *database.DeletionDB, id string, asJSON bool) error {
	record, err := db.GetDeletionByRequestID(id)
	if errors.Is(err, sql.ErrNoRows) {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("no deletion with request id %q", id))
	}
	if err != nil {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("look up request %s: %w", id, err))
	}
	if asJSON {
		return writeJSON(w, record)
	}

	fmt.Fprintf(w, "Request:  %s\n", record.RequestID)
	fmt.Fprintf(w, "When:     %s (%s)\n", record.Timestamp.Format(time.RFC3339), humanize.Time(record.Timestamp))
	fmt.Fprintf(w, "Action:   %s\n", record.Action)
	fmt.Fprintf(w, "Path:     %s\n", record.Path)
	fmt.Fprintf(w, "Type:     %s\n", record.ObjectType)
	fmt.Fprintf(w, "Kind:     %s\n", record.Kind)
	fmt.Fprintf(w, "Duration: %dms\n", record.DurationMS)
	if record.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", record.ErrorMessage)
	}
	return nil
}

func showStats(w io.Writer, db *database.DeletionDB, days int, asJSON bool) error {
	stats, err := db.GetDeletionStats(days)
	if err != nil {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("get statistics: %w", err))
	}
	if asJSON {
		return writeJSON(w, stats)
	}

	fmt.Fprintf(w, "Deletion Statistics (Last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Deleted:          %s\n", humanize.Comma(int64(stats.TotalDeletions)))
	fmt.Fprintf(w, "Failed:           %s\n", humanize.Comma(int64(stats.TotalErrors)))
	fmt.Fprintf(w, "Average duration: %s\n", time.Duration(stats.AvgDurationMS*float64(time.Millisecond)).Round(time.Millisecond))

	printCounts(w, "By Kind:", stats.ByKind)
	printCounts(w, "By Object Type:", stats.ByObjectType)
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-18s %s\n", k, humanize.Comma(int64(counts[k])))
	}
}

func printRecords(w io.Writer, records []database.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tWhen\tAction\tType\tKind\tDuration\tPath")
	_, _ = fmt.Fprintln(tw, "--\t----\t------\t----\t----\t--------\t----")

	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			r.ID, humanize.Time(r.Timestamp), r.Action, r.ObjectType, r.Kind, r.DurationMS, r.Path)
	}
	_ = tw.Flush()
}

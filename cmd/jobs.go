package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mdm-cli/internal/analytics"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect reconciliation job history",
	Long:  "Commands for listing, viewing, and summarizing reconciliation jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initInspectStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.JobFilter{
			Status: model.JobStatus(status),
			Limit:  limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initInspectStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats [job-id]",
	Short: "Show job statistics",
	Long:  "With a job ID, shows that job's outcome breakdown. Without one, shows system-wide totals over the --since window.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initInspectStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := analytics.NewCollector(st)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			snap, err := collector.Job(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "jobs stats")
			}
			return enc.Encode(snap)
		}

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := collector.System(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}
		return enc.Encode(snap)
	},
}

// -- jobs audit --

var jobsAuditCmd = &cobra.Command{
	Use:   "audit <job-id>",
	Short: "Show the audit trail for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initInspectStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListAudit(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "jobs audit")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}

		formatAuditTrail(os.Stdout, entries)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (pending, running, completed, failed)")
	jobsListCmd.Flags().Duration("since", 0, "only jobs created within this window (e.g. 24h, 168h)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for system stats (e.g. 24h, 72h)")

	jobsAuditCmd.Flags().Int("limit", 100, "max number of audit entries to display")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	jobsCmd.AddCommand(jobsAuditCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.JobRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tFILE\tRECORDS\tERRORS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t-------\t------\t-------\t--------")

	for _, j := range jobs {
		file := j.InputFile
		if len(file) > 30 {
			file = "..." + file[len(file)-27:]
		}

		dur := "-"
		if secs := j.ProcessingSeconds(); secs > 0 {
			dur = (time.Duration(secs * float64(time.Second))).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			truncateID(j.ID),
			j.Status,
			file,
			j.Processed,
			j.Total,
			j.Failed,
			j.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatAuditTrail writes a tabular audit trail to w.
func formatAuditTrail(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tACTION\tRECORD\tDETAILS")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t-------")

	for _, e := range entries {
		record := "-"
		if e.RecordID != "" {
			record = truncateID(e.RecordID)
		}

		details := ""
		if len(e.Details) > 0 {
			if data, err := json.Marshal(e.Details); err == nil {
				details = string(data)
			}
		}
		if len(details) > 60 {
			details = details[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Action,
			record,
			details,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

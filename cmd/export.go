package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/export"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

var (
	exportFormat string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export job results to CSV or JSON",
	Long:  "Writes person-level results and company MDM decisions for a job. CSV produces one file per table; JSON produces a single bundle.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportFormat != "csv" && exportFormat != "json" {
			return eris.Errorf("unsupported export format: %s (want csv or json)", exportFormat)
		}

		st, err := initInspectStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}

		records, err := st.ListRecords(ctx, job.ID, store.RecordFilter{})
		if err != nil {
			return eris.Wrap(err, "export: list records")
		}
		decisions, err := st.ListDecisions(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "export: list decisions")
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "export: create output dir")
		}

		paths, err := writeExport(job, records, decisions, dir, exportFormat)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("job_id", job.ID),
			zap.Int("records", len(records)),
			zap.Int("companies", len(decisions)),
		)
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

// writeExport writes the export files for one job and returns their paths.
func writeExport(job *model.JobRun, records []model.PersonRecord, decisions []model.CompanyMdmDecision, dir, format string) ([]string, error) {
	switch format {
	case "csv":
		personPath := export.Filename(dir, job.ID, "persons", "csv")
		if err := export.PersonCSV(records, personPath); err != nil {
			return nil, err
		}
		companyPath := export.Filename(dir, job.ID, "companies", "csv")
		if err := export.CompanyCSV(decisions, companyPath); err != nil {
			return nil, err
		}
		return []string{personPath, companyPath}, nil
	case "json":
		path := export.Filename(dir, job.ID, "results", "json")
		if err := export.JSON(export.Bundle{Job: job, Records: records, Decisions: decisions}, path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return nil, eris.Errorf("unsupported export format: %s", format)
	}
}

package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/cost"
	"github.com/sells-group/mdm-cli/internal/ingest"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/reconcile"
)

var (
	runMapping string
	runSheet   string
)

var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Short: "Reconcile titles for every record in an input file",
	Long:  "Reads person records from a CSV, TSV, or XLSX file, reconciles each against the augmentation feed, consolidates company MDM decisions, and prints a job summary.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		opts, err := ingestOptions(runMapping)
		if err != nil {
			return err
		}
		if runSheet != "" {
			opts.SheetName = runSheet
		}

		records, err := ingest.ReadFile(ctx, args[0], opts)
		if err != nil {
			return eris.Wrap(err, "read input file")
		}
		if len(records) == 0 {
			return eris.Errorf("no usable rows in %s", args[0])
		}

		zap.L().Info("starting reconciliation batch",
			zap.String("file", args[0]),
			zap.Int("records", len(records)),
		)

		seed := env.Meta
		seed.InputFile = args[0]

		result, err := env.Engine.Run(ctx, seed, records)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summarizeBatch(result))
	},
}

func init() {
	runCmd.Flags().StringVar(&runMapping, "mapping", "", "header mapping YAML file (default from config)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	rootCmd.AddCommand(runCmd)
}

// runSummary is the operator-facing digest printed after a batch.
type runSummary struct {
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	Total       int             `json:"total_records"`
	Processed   int             `json:"processed_records"`
	Errors      int             `json:"error_count"`
	FlagCounts  map[string]int  `json:"flag_counts"`
	Companies   int             `json:"companies"`
	MdmEligible int             `json:"mdm_eligible"`
	TokensIn    int             `json:"tokens_in"`
	TokensOut   int             `json:"tokens_out"`
	EstCostUSD  float64         `json:"est_cost_usd"`
	Seconds     float64         `json:"processing_seconds"`
}

// summarizeBatch folds a finished batch into the printed summary.
func summarizeBatch(result *reconcile.BatchResult) runSummary {
	s := runSummary{
		JobID:      result.Job.ID,
		Status:     result.Job.Status,
		Total:      result.Job.Total,
		Processed:  result.Job.Processed,
		Errors:     result.Job.Failed,
		FlagCounts: make(map[string]int),
		Companies:  len(result.Decisions),
		Seconds:    result.Job.ProcessingSeconds(),
	}

	for i := range result.Records {
		rec := &result.Records[i]
		if rec.ActionFlag != "" {
			s.FlagCounts[string(rec.ActionFlag)]++
		}
		if rec.Resolution != nil {
			s.TokensIn += rec.Resolution.TokensIn
			s.TokensOut += rec.Resolution.TokensOut
		}
	}
	for i := range result.Decisions {
		if result.Decisions[i].MdmFlag {
			s.MdmEligible++
		}
	}

	calc := cost.NewCalculator(cost.DefaultRates())
	s.EstCostUSD = calc.Completion(result.Job.Provider, result.Job.Model, s.TokensIn, s.TokensOut)
	return s
}

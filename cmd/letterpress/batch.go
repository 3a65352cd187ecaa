package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
	"github.com/jackzampolin/letterpress/internal/batch"
	"github.com/jackzampolin/letterpress/internal/config"
)

var (
	batchSubmitLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Bulk processing via the OpenAI batch API",
	Long: `Batch commands submit pending work to the OpenAI batch API and collect
results when jobs finish.

The flow is submit, then poll until a job reaches a terminal status, then
reconcile to fold finished results back into the archive. Jobs that ended
badly are swept with cleanup, which returns their units to pending.

Examples:
  letterpress batch submit transcribe
  letterpress batch poll
  letterpress batch reconcile
  letterpress batch cleanup`,
}

var batchSubmitCmd = &cobra.Command{
	Use:   "submit <transcribe|summarize>",
	Short: "Submit pending units as one bulk job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := batch.KindFor(args[0])
		if err != nil {
			return err
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		submitter := batch.NewSubmitter(batch.SubmitterConfig{
			Store:            e.store,
			Vendor:           newVendor(e),
			Model:            e.cfg.Batch.Model,
			TranscribePrompt: providerPrompt(e, e.cfg.Defaults.Transcriber, true),
			SummarizePrompt:  providerPrompt(e, e.cfg.Defaults.Summarizer, false),
			Logger:           e.logger,
		})
		job, err := submitter.Submit(cmd.Context(), kind, batchSubmitLimit)
		if err != nil {
			return err
		}
		if job == nil {
			fmt.Println("nothing pending to submit")
			return nil
		}
		return api.Output(job)
	},
}

var batchPollCmd = &cobra.Command{
	Use:   "poll [job-id...]",
	Short: "Refresh batch job statuses from the vendor",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		tracker := batch.NewTracker(e.store, newVendor(e), e.logger)
		jobs, err := tracker.Refresh(cmd.Context(), args...)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no active batch jobs")
			return nil
		}
		return api.Output(jobs)
	},
}

var batchReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Fold finished batch results into the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		reconciler := batch.NewReconciler(e.store, newVendor(e), e.logger)
		report, err := reconciler.ProcessCompleted(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(report)
	},
}

var batchCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reset units from failed batch jobs to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		sweeper := batch.NewSweeper(e.store, e.logger)
		swept, err := sweeper.CleanupFailed(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(map[string]int{"swept": swept})
	},
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all batch jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		jobs, err := e.store.ListBatchJobs(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(jobs)
	},
}

// newVendor builds the batch vendor client from the batch config section.
func newVendor(e *env) *batch.OpenAIVendor {
	return batch.NewOpenAIVendor(batch.OpenAIVendorConfig{
		APIKey: config.ResolveEnvVars(e.cfg.Batch.APIKey),
	})
}

// providerPrompt pulls the configured prompt override for the named
// provider, falling back to the built-in defaults when unset.
func providerPrompt(e *env, name string, transcriber bool) string {
	if transcriber {
		if p, ok := e.cfg.GetTranscriber(name); ok {
			return p.Prompt
		}
		return ""
	}
	if p, ok := e.cfg.GetSummarizer(name); ok {
		return p.Prompt
	}
	return ""
}

func init() {
	batchSubmitCmd.Flags().IntVar(&batchSubmitLimit, "limit", 100, "maximum units per bulk job")

	batchCmd.AddCommand(batchSubmitCmd)
	batchCmd.AddCommand(batchPollCmd)
	batchCmd.AddCommand(batchReconcileCmd)
	batchCmd.AddCommand(batchCleanupCmd)
	batchCmd.AddCommand(batchListCmd)

	rootCmd.AddCommand(batchCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
	"github.com/jackzampolin/letterpress/internal/pipeline"
	"github.com/jackzampolin/letterpress/internal/providers"
)

var (
	summarizeProvider   string
	summarizeBatchSize  int
	summarizeMaxBatches int
	summarizeForce      bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize fully transcribed letters",
	Long: `Run the summarization pipeline over all pending documents.

A document becomes eligible once every one of its pages has been
transcribed; the summary is generated from the combined page text.
Use --force to regenerate summaries that already exist.

Examples:
  letterpress summarize
  letterpress summarize --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if summarizeForce {
			n, err := e.store.ResetSummaries(cmd.Context())
			if err != nil {
				return err
			}
			e.logger.Info("reset summaries", "documents", n)
		}

		name := summarizeProvider
		if name == "" {
			name = e.cfg.Defaults.Summarizer
		}
		registry := providers.NewRegistryFromConfig(e.cfg.ToRegistryConfig())
		registry.SetLogger(e.logger)
		provider, err := registry.GetSummarizer(name)
		if err != nil {
			return fmt.Errorf("summarizer %q not available: %w", name, err)
		}

		batchSize := summarizeBatchSize
		if batchSize <= 0 {
			batchSize = e.cfg.Defaults.BatchSize
		}
		runner := pipeline.NewRunner(pipeline.Config{
			Store:      e.store,
			Invoker:    &pipeline.SummarizeInvoker{Store: e.store, Provider: provider},
			BatchSize:  batchSize,
			UnitDelay:  e.cfg.Defaults.UnitDelay(),
			BatchDelay: e.cfg.Defaults.BatchDelay(),
			MaxBatches: summarizeMaxBatches,
			Logger:     e.logger,
		})
		if err := runner.Run(cmd.Context()); err != nil {
			return err
		}
		return api.Output(runner.Counters())
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeProvider, "provider", "", "summarizer to use (default from config)")
	summarizeCmd.Flags().IntVar(&summarizeBatchSize, "batch-size", 0, "pending units fetched per pass (default from config)")
	summarizeCmd.Flags().IntVar(&summarizeMaxBatches, "max-batches", 0, "stop after this many batches (0 = drain)")
	summarizeCmd.Flags().BoolVar(&summarizeForce, "force", false, "regenerate summaries that already exist")

	rootCmd.AddCommand(summarizeCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
	"github.com/jackzampolin/letterpress/internal/pipeline"
	"github.com/jackzampolin/letterpress/internal/providers"
)

var (
	transcribeProvider   string
	transcribeBatchSize  int
	transcribeMaxBatches int
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe pending pages",
	Long: `Run the transcription pipeline over all pending pages.

Pages are processed in document order with configurable pacing between
provider calls. Interrupting with Ctrl+C finishes the in-flight call and
exits cleanly; completed work is never redone.

Examples:
  letterpress transcribe                      # drain the pending set
  letterpress transcribe --max-batches 1      # one batch, then stop
  letterpress transcribe --provider gemini`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		name := transcribeProvider
		if name == "" {
			name = e.cfg.Defaults.Transcriber
		}
		registry := providers.NewRegistryFromConfig(e.cfg.ToRegistryConfig())
		registry.SetLogger(e.logger)
		provider, err := registry.GetTranscriber(name)
		if err != nil {
			return fmt.Errorf("transcriber %q not available: %w", name, err)
		}

		batchSize := transcribeBatchSize
		if batchSize <= 0 {
			batchSize = e.cfg.Defaults.BatchSize
		}
		runner := pipeline.NewRunner(pipeline.Config{
			Store:      e.store,
			Invoker:    &pipeline.TranscribeInvoker{Provider: provider},
			BatchSize:  batchSize,
			UnitDelay:  e.cfg.Defaults.UnitDelay(),
			BatchDelay: e.cfg.Defaults.BatchDelay(),
			MaxBatches: transcribeMaxBatches,
			Logger:     e.logger,
		})
		if err := runner.Run(cmd.Context()); err != nil {
			return err
		}
		return api.Output(runner.Counters())
	},
}

func init() {
	transcribeCmd.Flags().StringVar(&transcribeProvider, "provider", "", "transcriber to use (default from config)")
	transcribeCmd.Flags().IntVar(&transcribeBatchSize, "batch-size", 0, "pending units fetched per pass (default from config)")
	transcribeCmd.Flags().IntVar(&transcribeMaxBatches, "max-batches", 0, "stop after this many batches (0 = drain)")

	rootCmd.AddCommand(transcribeCmd)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
	"github.com/jackzampolin/letterpress/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Register scanned letter PDFs from a directory",
	Long: `Scan a directory for letter PDFs named YYMMDD-part.pdf and register
them as pending work. Files already registered are skipped, so re-running
over the same directory only picks up new scans.

Examples:
  letterpress ingest ~/scans
  letterpress ingest /mnt/archive/letters -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := ingest.Scan(cmd.Context(), e.store, ingest.Request{
			Dir:    args[0],
			Logger: e.logger,
		})
		if err != nil {
			return err
		}
		return api.Output(result)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

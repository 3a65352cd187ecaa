package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline progress counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.store.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		return api.Output(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

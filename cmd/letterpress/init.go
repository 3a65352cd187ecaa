package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/config"
	"github.com/jackzampolin/letterpress/internal/home"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the letterpress home directory",
	Long: `Create the letterpress home directory and write a default config file.

The config file references API keys via ${OPENAI_API_KEY} and
${GEMINI_API_KEY}; export those before running the pipeline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() {
			fmt.Printf("config already exists at %s\n", h.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("initialized %s\n", h.Path())
		fmt.Printf("wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

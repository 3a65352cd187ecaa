package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/letterpress/internal/api"
	"github.com/jackzampolin/letterpress/internal/config"
	"github.com/jackzampolin/letterpress/internal/home"
	"github.com/jackzampolin/letterpress/internal/store"
	"github.com/jackzampolin/letterpress/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "letterpress",
	Short: "Letter digitization pipeline with AI transcription and summarization",
	Long: `Letterpress turns a folder of scanned wartime letters into a searchable
archive. Each scan is a PDF named YYMMDD-part.pdf; multi-part letters are
stitched back together by date.

The pipeline includes:
  - Transcription of each scanned page via AI vision models
  - Per-letter summaries generated from the combined transcription
  - Bulk submission through the OpenAI batch API for large backlogs
  - A read-only HTTP API for browsing and searching the archive`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.letterpress/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "letterpress home directory (default: ~/.letterpress)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger honoring the --verbose flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// env bundles everything a pipeline command needs to run.
type env struct {
	home   *home.Dir
	mgr    *config.Manager
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// openEnv resolves the home directory, loads configuration and opens the
// database. Callers must Close the returned env.
func openEnv() (*env, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	s, err := store.Open(store.Config{
		Path:   h.DatabasePath(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &env{home: h, mgr: mgr, cfg: mgr.Get(), store: s, logger: logger}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

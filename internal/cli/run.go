package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"peacesecurity/internal/catalog"
	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/pipeline"
	"peacesecurity/internal/source"
	"peacesecurity/internal/state"
)

// ErrConflictingModes is returned when --save and --use-saved are combined.
var ErrConflictingModes = errors.New("--save and --use-saved are mutually exclusive")

var runFlags struct {
	statePath  string
	errorsPath string
	datasets   []string
	save       bool
	useSaved   bool
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch changed datasets and publish them",
	Long: `Runs one synchronisation: datasets updated since their stored watermark
are fetched, shaped and published, catalog datasets the source no longer
lists are retired, and the watermarks of published datasets are advanced.

Individual dataset failures are written to the errors file and do not
fail the run.`,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.statePath, "state", "", "state file (overrides run.state_path)")
	flags.StringVar(&runFlags.errorsPath, "errors-file", "", "errors file (overrides run.errors_path)")
	flags.StringSliceVar(&runFlags.datasets, "dataset", nil, "only consider these dataset IDs (repeatable)")
	flags.BoolVar(&runFlags.save, "save", false, "save downloaded responses under source.saved_dir")
	flags.BoolVar(&runFlags.useSaved, "use-saved", false, "read responses from source.saved_dir instead of the network")
	flags.BoolVar(&runFlags.dryRun, "dry-run", false, "shape datasets without publishing or saving state")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runFlags.save && runFlags.useSaved {
		return ErrConflictingModes
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if runFlags.statePath != "" {
		cfg.Run.StatePath = runFlags.statePath
	}

	datasets := runFlags.datasets
	if len(datasets) == 0 {
		datasets = cfg.Source.Datasets
	}

	mode := source.ModeLive

	switch {
	case runFlags.save:
		mode = source.ModeSave
	case runFlags.useSaved:
		mode = source.ModeUseSaved
	}

	log := logger.NewLoggerWithWriter(cfg.Logging.Level, cmd.ErrOrStderr())
	log.Debug("Loaded configuration", "path", configPath, "config", cfg.String())

	src := source.NewClient(&cfg.Source, mode, log)
	client := catalog.NewCKANClient(&cfg.Catalog, cfg.Source.UserAgent, log)
	runner := pipeline.NewRunner(cfg, src, client, state.NewStore(cfg.Run.StatePath), log)

	rep, err := runner.Run(cmd.Context(), pipeline.Options{
		ErrorsPath: runFlags.errorsPath,
		Datasets:   datasets,
		DryRun:     runFlags.dryRun,
	})
	if err != nil {
		return err
	}

	cmd.Println(strings.Join(rep.SummaryTable(), "\n"))

	for _, msg := range rep.Errors.Messages() {
		cmd.Println("  - " + msg)
	}

	log.Debug("Source requests", "stats", src.Statistics())

	return nil
}

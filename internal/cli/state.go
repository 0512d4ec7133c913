package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"peacesecurity/internal/config"
	"peacesecurity/internal/report"
	"peacesecurity/internal/state"
)

var stateFile string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the stored update watermarks",
	Long: `Prints the last processed update time of every dataset. The state file
comes from --state when given, else from the configuration.`,
	RunE: runState,
}

func init() {
	stateCmd.Flags().StringVar(&stateFile, "state", "", "state file (overrides run.state_path)")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, _ []string) error {
	path := stateFile
	if path == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		path = cfg.Run.StatePath
	}

	marks, err := state.NewStore(path).Load()
	if err != nil {
		return fmt.Errorf("could not load state: %w", err)
	}

	rows := make([][]string, 0, len(marks))
	for _, key := range marks.Keys() {
		rows = append(rows, []string{key, marks[key].UTC().Format("2006-01-02T15:04:05Z07:00")})
	}

	for _, line := range report.FormatTable([]string{"Dataset", "Updated"}, rows) {
		cmd.Println(line)
	}

	return nil
}

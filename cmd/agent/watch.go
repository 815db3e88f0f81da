package main

import (
	"github.com/spf13/cobra"

	"github.com/tatianab/overworld-agent/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the agent with a live terminal view",
	Long: `Runs the agent loop inside a terminal UI. Between steps the operator can
pause and resume, push new goals and save snapshots. Logs go to log_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		planFile, _ := cmd.Flags().GetString("plan")
		resume, _ := cmd.Flags().GetString("resume")

		logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		a, err := buildAgent(ctx, cfg, buildOptions{planFile: planFile, resume: resume}, logger)
		if err != nil {
			return err
		}
		defer a.Close(logger)

		return tui.Run(ctx, a.session, a.memory, steps)
	},
}

func init() {
	watchCmd.Flags().Int("steps", 0, "stop after this many steps (0 runs until quit)")
	watchCmd.Flags().String("plan", "", "YAML plan file with milestones and goals (overrides plan_file)")
	watchCmd.Flags().String("resume", "", "resume from a saved snapshot")
	rootCmd.AddCommand(watchCmd)
}

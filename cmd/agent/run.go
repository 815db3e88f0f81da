package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop headless",
	Long: `Connects to the emulator and plays until interrupted, or for --steps steps.
A snapshot of goals and movement memory is saved when the run ends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		planFile, _ := cmd.Flags().GetString("plan")
		resume, _ := cmd.Flags().GetString("resume")

		logger, err := newLogger(cfg.LogLevel, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		var bar *progressbar.ProgressBar
		if steps > 0 {
			bar = progressbar.Default(int64(steps), "Playing")
		}
		onStep := func(res engine.StepResult) {
			if bar != nil {
				bar.Add(1)
			}
			if res.Transition != nil {
				logger.Info("goal "+string(res.Transition.To),
					zap.String("goal", res.Transition.GoalID),
					zap.String("reason", res.Transition.Reason))
			}
		}

		ctx := cmd.Context()
		a, err := buildAgent(ctx, cfg, buildOptions{planFile: planFile, resume: resume, onStep: onStep}, logger)
		if err != nil {
			return err
		}
		defer a.Close(logger)

		runErr := a.session.Run(ctx, steps)

		snap := a.session.Snapshot()
		if err := snap.Save(a.session.ID()); err != nil {
			logger.Warn("failed to save snapshot", zap.Error(err))
		} else {
			fmt.Printf("\nSaved snapshot %s after %d steps\n", a.session.ID(), snap.Steps)
		}
		for _, g := range snap.Goals {
			fmt.Printf("  %-10s %s\n", g.Status, g.Description)
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().Int("steps", 0, "number of steps to play (0 runs until interrupted)")
	runCmd.Flags().String("plan", "", "YAML plan file with milestones and goals (overrides plan_file)")
	runCmd.Flags().String("resume", "", "resume from a saved snapshot")
	rootCmd.AddCommand(runCmd)
}

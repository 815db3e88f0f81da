package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/config"
	"github.com/tatianab/overworld-agent/internal/emulator"
	"github.com/tatianab/overworld-agent/internal/engine"
	"github.com/tatianab/overworld-agent/internal/journal"
	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/oracle"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Autonomous overworld game agent",
	Long: `Plays a turn-based overworld game through an emulator control surface.
Each step reads the formatted game state, updates the goal stack, asks the
configured oracle for the next buttons when the queue is empty and presses one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (environment variables take precedence)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	models.SaveDir = cfg.SaveDir
	return cfg, nil
}

// agent is everything a running session needs, plus how to release it.
type agent struct {
	session *engine.Session
	memory  *memory.Manager
	closers []func() error
}

func (a *agent) Close(logger *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

type buildOptions struct {
	planFile string
	resume   string
	onStep   func(engine.StepResult)
}

func buildAgent(ctx context.Context, cfg *config.Config, opts buildOptions, logger *zap.Logger) (*agent, error) {
	a := &agent{}
	sessionID := uuid.NewString()

	switch {
	case opts.resume != "":
		snap, err := models.LoadSnapshot(opts.resume)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", opts.resume, err)
		}
		if a.memory, err = memory.Restore(snap, logger); err != nil {
			return nil, err
		}
		sessionID = snap.SessionID
	default:
		planFile := opts.planFile
		if planFile == "" {
			planFile = cfg.PlanFile
		}
		pf := &models.PlanFile{}
		if planFile != "" {
			var err error
			if pf, err = models.LoadPlanFile(planFile); err != nil {
				return nil, err
			}
		}
		mem, err := memory.NewManager(pf.Plan(), logger)
		if err != nil {
			return nil, err
		}
		for _, g := range pf.Goals {
			if _, err := mem.AddGoal(g); err != nil {
				return nil, fmt.Errorf("plan %s: %w", planFile, err)
			}
		}
		a.memory = mem
	}

	backend, err := oracle.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating oracle: %w", err)
	}
	a.closers = append(a.closers, backend.Close)

	client, err := emulator.Dial(ctx, cfg.EmulatorURL, logger)
	if err != nil {
		a.Close(logger)
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	var sink journal.Sink = journal.Nop{}
	if cfg.RedisAddr != "" {
		sink = journal.NewRedisSink(cfg.RedisAddr, cfg.RedisStream)
		logger.Info("journaling steps", zap.String("redis", cfg.RedisAddr), zap.String("stream", cfg.RedisStream))
	}
	a.closers = append(a.closers, sink.Close)

	planner := engine.NewPlanner(backend, a.memory, cfg.OracleTimeout, cfg.MaxPlanLength, logger)
	a.session = engine.NewSession(client, client, a.memory, planner, engine.Options{
		SessionID:    sessionID,
		StateRetries: cfg.StateRetries,
		Journal:      sink,
		OnStep:       opts.onStep,
		Logger:       logger,
	})
	return a, nil
}

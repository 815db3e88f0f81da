// Command simulate_agent plays the built-in demo world in-process with the
// configured oracle and prints every step.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/config"
	"github.com/tatianab/overworld-agent/internal/emulator"
	"github.com/tatianab/overworld-agent/internal/engine"
	"github.com/tatianab/overworld-agent/internal/journal"
	"github.com/tatianab/overworld-agent/internal/memory"
	"github.com/tatianab/overworld-agent/internal/oracle"
	"github.com/tatianab/overworld-agent/internal/perception"
)

func main() {
	steps := flag.Int("steps", 40, "number of steps to play")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := zap.NewNop()

	backend, err := oracle.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create oracle: %v", err)
	}
	defer backend.Close()

	sim, err := emulator.NewSim(emulator.DemoWorld())
	if err != nil {
		log.Fatalf("Failed to build demo world: %v", err)
	}
	plan := emulator.DemoPlan()
	mem, err := memory.NewManager(plan.Plan(), logger)
	if err != nil {
		log.Fatalf("Failed to create memory: %v", err)
	}
	for _, g := range plan.Goals {
		if _, err := mem.AddGoal(g); err != nil {
			log.Fatalf("Failed to add goal: %v", err)
		}
	}

	rec := &journal.Recorder{}
	drv := emulator.Local{Backend: sim}
	planner := engine.NewPlanner(backend, mem, cfg.OracleTimeout, cfg.MaxPlanLength, logger)
	sess := engine.NewSession(drv, drv, mem, planner, engine.Options{
		StateRetries: cfg.StateRetries,
		Journal:      rec,
		Logger:       logger,
		OnStep: func(res engine.StepResult) {
			fmt.Println(res.Summary())
			if res.Decision != nil && res.Decision.Rationale != "" {
				fmt.Printf("    oracle: %s\n", res.Decision.Rationale)
			}
			if res.Transition != nil {
				fmt.Printf("    goal %s -> %s (%s)\n", res.Transition.GoalID, res.Transition.To, res.Transition.Reason)
			}
		},
	})

	start := time.Now()
	fmt.Printf("--- Playing %d steps with the %s oracle ---\n", *steps, cfg.Oracle)
	if err := sess.Run(ctx, *steps); err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	fmt.Printf("\n--- Finished in %s ---\n", time.Since(start).Round(time.Millisecond))
	text, err := sim.State()
	if err == nil {
		if obs, err := perception.Parse(text); err == nil {
			fmt.Println(perception.RenderGrid(obs))
		}
	}
	for _, g := range mem.Goals() {
		fmt.Printf("%-10s %s\n", g.Status, g.Description)
	}
	fmt.Printf("%d steps journaled\n", len(rec.Entries()))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/overworld-agent/internal/emulator"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve the built-in demo world over the control-surface protocol",
	Long: `Starts a websocket server backed by the in-memory demo world so the agent
can be run without an emulator. Use --write-plan to dump a matching plan file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		level, _ := cmd.Flags().GetString("log-level")
		planOut, _ := cmd.Flags().GetString("write-plan")

		if planOut != "" {
			data, err := yaml.Marshal(emulator.DemoPlan())
			if err != nil {
				return err
			}
			if err := os.WriteFile(planOut, data, 0644); err != nil {
				return err
			}
			fmt.Printf("Wrote demo plan to %s\n", planOut)
		}

		logger, err := newLogger(level, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		sim, err := emulator.NewSim(emulator.DemoWorld())
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/ws", emulator.NewHandler(sim, logger))
		srv := &http.Server{Addr: addr, Handler: mux}

		ctx := cmd.Context()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		logger.Info("demo world listening", zap.String("url", "ws://"+addr+"/ws"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	simCmd.Flags().String("addr", "localhost:8000", "listen address")
	simCmd.Flags().String("log-level", "info", "log level")
	simCmd.Flags().String("write-plan", "", "write the demo plan file to this path and continue")
	rootCmd.AddCommand(simCmd)
}

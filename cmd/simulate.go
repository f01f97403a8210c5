package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/simulator"
)

var simCfg simulator.Config

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated charge points against an OCPP-J endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return simulator.Run(ctx, simCfg, logger.New("simulator"))
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simCfg.URL, "url", "ws://localhost:8887/ocpp/", "central system endpoint")
	f.IntVar(&simCfg.Count, "count", 1, "number of charge points")
	f.StringVar(&simCfg.IDPrefix, "id-prefix", "sim", "charge point id prefix")
	f.IntVar(&simCfg.ConnectorID, "connector", 1, "connector id")
	f.StringVar(&simCfg.IDTag, "id-tag", "SIMTAG", "id tag used for sessions")
	f.DurationVar(&simCfg.Interval, "interval", 10*time.Second, "meter values interval")
	f.Float64Var(&simCfg.PowerW, "power", 11000, "charging power in W")
	f.Float64Var(&simCfg.VoltageV, "voltage", 230, "phase voltage in V")
	f.IntVar(&simCfg.Phases, "phases", 3, "number of phases")
	f.DurationVar(&simCfg.AnswerDelay, "answer-delay", 0, "delay before answering commands")
	f.Float64Var(&simCfg.DropRate, "drop-rate", 0, "probability of leaving a command unanswered")
	f.BoolVar(&simCfg.AutoStart, "auto-start", false, "start a session after boot")
	rootCmd.AddCommand(simulateCmd)
}

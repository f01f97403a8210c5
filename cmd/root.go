package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/app"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

var (
	cfgPath  string
	ocppAddr string
	apiAddr  string
)

var rootCmd = &cobra.Command{
	Use:          "ocppbridge",
	Short:        "OCPP charge box command and telemetry bridge",
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the charge point endpoint, task API and telemetry publisher",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	serveCmd.Flags().StringVar(&ocppAddr, "ocpp-addr", "", "override ocpp.addr")
	serveCmd.Flags().StringVar(&apiAddr, "api-addr", "", "override api.addr")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func serve(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if ocppAddr != "" {
		cfg.OCPP.Addr = ocppAddr
	}
	if apiAddr != "" {
		cfg.API.Addr = apiAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New("main")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	log.Infow("ocppbridge starting", map[string]any{"ocpp": cfg.OCPP.Addr, "api": cfg.API.Addr, "broker": cfg.MQTT.Broker})
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PMarket/global"
	"PMarket/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "roomgateway",
		Short:         "Presence-aware room gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (defaults to $PMARKET_CONFIG)")
	root.PersistentFlags().StringSlice("env-file", nil, "dotenv files loaded before the config")
	root.AddCommand(serveCmd(), pushCmd(), configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (global.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := global.Load(path, envFiles...)
	if err != nil {
		return cfg, err
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

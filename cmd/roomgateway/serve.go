package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"PMarket/logger"
	"PMarket/service/gateway"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket relay, room routes and push ingress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()

			if err := gateway.Preflight(ctx, cfg); err != nil {
				if strict, _ := cmd.Flags().GetBool("require-mongo"); strict {
					return err
				}
				logger.Warn("mongo preflight failed, continuing with background reconnect", zap.Error(err))
			}

			app, err := gateway.New(ctx, cfg)
			if err != nil {
				return err
			}
			logger.Info("gateway starting", zap.String("addr", cfg.HTTP.Addr), zap.Int64("node_id", cfg.NodeID))
			return app.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides http.addr")
	cmd.Flags().Bool("require-mongo", false, "exit when the mongo preflight ping fails")
	return cmd
}

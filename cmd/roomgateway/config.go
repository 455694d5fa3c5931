package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"PMarket/tools/errs"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Auth.JWTSecret = redact(cfg.Auth.JWTSecret)
			cfg.Redis.Config.Password = redact(cfg.Redis.Config.Password)
			cfg.Mongo.Config.Password = redact(cfg.Mongo.Config.Password)
			cfg.NATS.Password = redact(cfg.NATS.Password)
			cfg.Client.Token = redact(cfg.Client.Token)
			for i := range cfg.HTTP.InternalTokens {
				cfg.HTTP.InternalTokens[i] = redact(cfg.HTTP.InternalTokens[i])
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return errs.Wrap(enc.Encode(cfg))
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

package gateway

import (
	"context"
	"time"

	"PMarket/data/database/mgo/mongoutil"
	"PMarket/global"
)

const preflightTimeout = 5 * time.Second

// Preflight pings the configured Mongo once before serving. It is a no-op when
// Mongo is disabled.
func Preflight(ctx context.Context, cfg global.AppConfig) error {
	if !cfg.Mongo.Enabled {
		return nil
	}
	mc := cfg.Mongo.Config
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	return mongoutil.Check(ctx, &mc)
}

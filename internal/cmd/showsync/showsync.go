// Package showsync parses showsync command flags and composes the
// show-state transport entrypoint.
package showsync

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/showsync/internal/platform/cmd"
	server "github.com/louisbranch/showsync/internal/showstate/app"
)

// Config holds showsync command configuration.
type Config struct {
	HTTPAddr string `env:"SHOWSYNC_HTTP_ADDR" envDefault:":7789"`
	DBPath   string `env:"SHOWSYNC_DB_PATH"   envDefault:"showsync.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "showsync HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "show-state SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the show-state app and starts the broadcast transport.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceShowSync, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			DBPath:   cfg.DBPath,
		}); err != nil {
			return fmt.Errorf("serve showsync: %w", err)
		}
		return nil
	})
}

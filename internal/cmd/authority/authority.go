// Package authority parses authority service flags and launches the service.
package authority

import (
	"context"
	"flag"

	entrypoint "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/cmd"
	server "github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/app"
)

// Config holds authority command configuration.
type Config struct {
	Port int `env:"KINGSHOT_ATLAS_AUTHORITY_PORT" envDefault:"8082"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The authority gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the authority gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAuthority, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}

package config

import "go.uber.org/fx"

// Module wires application configuration, validated at startup.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Invoke(func(cfg Config) error {
		return cfg.Validate()
	}),
)

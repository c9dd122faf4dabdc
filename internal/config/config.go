// Package config loads the runtime's handful of tunables from the
// environment (and, optionally, a config file), matching the spec's
// DEFAULT_STACK_SIZE plus the pool sizing and log-level knobs this
// module adds.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the runtime's tunable defaults.
type Config struct {
	StackSize int    // bytes; diagnostic default for new fibers (DEFAULT_STACK_SIZE)
	LogLevel  string // "debug" | "info" | "warn" | "error"
	PoolSize  int    // LWT_POOL_SIZE; loaded here, not read by lwtctl or the lwt package
}

// Load reads LWT_STACK_SIZE, LWT_LOG_LEVEL, LWT_POOL_SIZE from the
// environment (and ./lwt.yaml / ./lwt.json if present), falling back to
// built-in defaults for anything unset.
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix("lwt")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("stack_size", 16*1024)
	v.SetDefault("log_level", "info")
	v.SetDefault("pool_size", 4)

	v.SetConfigName("lwt")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absence of a config file is not an error

	return Config{
		StackSize: v.GetInt("stack_size"),
		LogLevel:  v.GetString("log_level"),
		PoolSize:  v.GetInt("pool_size"),
	}
}

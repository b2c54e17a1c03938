package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultAllowedOrigins are accepted by the development host when none are configured
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"http://localhost:*",
	"https://localhost",
	"https://localhost:*",
	"http://127.0.0.1:*",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Messenger defaults
	v.SetDefault("messenger.parent_origin", "")
	v.SetDefault("messenger.allowed_origins", []string{})
	v.SetDefault("messenger.error_policy", "log")
	v.SetDefault("messenger.request_timeout_secs", 0)

	// Transport defaults
	v.SetDefault("transport.url", fmt.Sprintf("ws://localhost:%d/ws", DefaultHostPort))
	v.SetDefault("transport.origin", "http://localhost")
	v.SetDefault("transport.max_message_size", 1<<20) // 1 MiB
	v.SetDefault("transport.send_buffer", 256)
	v.SetDefault("transport.keepalive.enabled", true)

	// Development host defaults
	v.SetDefault("host.addr", fmt.Sprintf(":%d", DefaultHostPort))
	v.SetDefault("host.allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("host.fixture", "")
	v.SetDefault("host.watch_fixture", true)
	v.SetDefault("host.version_constraint", ">= 1.0.0, < 2.0.0")

	// Monitor defaults
	v.SetDefault("monitor.sentry_dsn", "")
	v.SetDefault("monitor.environment", "development")
	v.SetDefault("monitor.events_per_second", 5.0)
	v.SetDefault("monitor.burst", 20)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindSensitiveEnvVars explicitly binds settings that should never live in a checked-in file
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("monitor.sentry_dsn", EnvPrefix+"_SENTRY_DSN", "SENTRY_DSN")
}

// GetHostAllowedOrigins returns the origins the host accepts (defaults when unset)
func (c *Config) GetHostAllowedOrigins() []string {
	if len(c.Host.AllowedOrigins) == 0 {
		return DefaultAllowedOrigins
	}
	return c.Host.AllowedOrigins
}

// String renders a short summary for logs
func (c *Config) String() string {
	return fmt.Sprintf("Config{transport=%s, host=%s, error_policy=%s, monitor=%t}",
		c.Transport.URL, c.Host.Addr, c.Messenger.ErrorPolicy, c.Monitor.SentryDSN != "")
}

// Package am loads reportlib configuration.
//
// Settings merge in precedence order: built-in defaults, then
// /etc/reportlib/report.toml, then ~/.reportlib/report.toml, then the first
// report.toml found walking up from the working directory, then REPORTLIB_*
// environment variables.
package am

// Config represents the reportlib configuration
type Config struct {
	Messenger MessengerConfig `mapstructure:"messenger" toml:"messenger"`
	Transport TransportConfig `mapstructure:"transport" toml:"transport"`
	Host      HostConfig      `mapstructure:"host" toml:"host"`
	Monitor   MonitorConfig   `mapstructure:"monitor" toml:"monitor"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// MessengerConfig configures the report side of the message bus
type MessengerConfig struct {
	ParentOrigin       string   `mapstructure:"parent_origin" toml:"parent_origin"`               // empty = learn from the transport or setup
	AllowedOrigins     []string `mapstructure:"allowed_origins" toml:"allowed_origins"`           // extra origins accepted besides the parent
	ErrorPolicy        string   `mapstructure:"error_policy" toml:"error_policy"`                 // none, log or notify
	RequestTimeoutSecs int      `mapstructure:"request_timeout_secs" toml:"request_timeout_secs"` // 0 = wait indefinitely
}

// TransportConfig configures the WebSocket connection to the parent
type TransportConfig struct {
	URL            string          `mapstructure:"url" toml:"url"`
	Origin         string          `mapstructure:"origin" toml:"origin"` // Origin header sent when dialing
	MaxMessageSize int64           `mapstructure:"max_message_size" toml:"max_message_size"`
	SendBuffer     int             `mapstructure:"send_buffer" toml:"send_buffer"`
	Keepalive      KeepaliveConfig `mapstructure:"keepalive" toml:"keepalive"`
}

// KeepaliveConfig configures WebSocket ping/pong. nil intervals use the transport defaults.
type KeepaliveConfig struct {
	Enabled          bool `mapstructure:"enabled" toml:"enabled"`
	PingIntervalSecs *int `mapstructure:"ping_interval_secs" toml:"ping_interval_secs,omitempty"`
	PongTimeoutSecs  *int `mapstructure:"pong_timeout_secs" toml:"pong_timeout_secs,omitempty"`
}

// HostConfig configures the development parent host
type HostConfig struct {
	Addr              string   `mapstructure:"addr" toml:"addr"`
	AllowedOrigins    []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	Fixture           string   `mapstructure:"fixture" toml:"fixture"` // JSON or YAML setup fixture
	WatchFixture      bool     `mapstructure:"watch_fixture" toml:"watch_fixture"`
	VersionConstraint string   `mapstructure:"version_constraint" toml:"version_constraint"` // semver constraint on the report's libVersion
}

// MonitorConfig configures error tracking
type MonitorConfig struct {
	SentryDSN       string  `mapstructure:"sentry_dsn" toml:"sentry_dsn"`
	Environment     string  `mapstructure:"environment" toml:"environment"`
	EventsPerSecond float64 `mapstructure:"events_per_second" toml:"events_per_second"` // 0 = unlimited
	Burst           int     `mapstructure:"burst" toml:"burst"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"`
}

// Host and file constants
const (
	DefaultHostPort        = 8787
	DefaultDirPermissions  = 0750
	DefaultFilePermissions = 0644

	// ConfigFileName is the file looked up in system, user and project locations
	ConfigFileName = "report.toml"

	// EnvPrefix prefixes every environment override (REPORTLIB_HOST_ADDR)
	EnvPrefix = "REPORTLIB"
)

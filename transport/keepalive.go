package transport

import "time"

// Default keepalive configuration values
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer (1MB for fact sheet result sets)
	DefaultMaxMessageSize = 1024 * 1024

	DefaultSendBuffer = 256
)

// KeepaliveConfig contains configuration for WebSocket keepalive behavior
type KeepaliveConfig struct {
	// Enabled determines if ping frames are sent and pong deadlines enforced
	Enabled bool

	// PingInterval is how often to send PING frames (must be less than PongTimeout)
	PingInterval time.Duration

	// PongTimeout is how long to wait for any read before considering the connection dead
	PongTimeout time.Duration
}

// DefaultKeepaliveConfig returns the default keepalive configuration
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		Enabled:      true,
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
	}
}

// NewKeepaliveConfigFromSettings creates a KeepaliveConfig from am.TransportConfig values.
// Pass 0 for any value to use defaults.
func NewKeepaliveConfigFromSettings(pingIntervalSecs, pongTimeoutSecs int) KeepaliveConfig {
	config := DefaultKeepaliveConfig()

	if pingIntervalSecs > 0 {
		config.PingInterval = time.Duration(pingIntervalSecs) * time.Second
	}
	if pongTimeoutSecs > 0 {
		config.PongTimeout = time.Duration(pongTimeoutSecs) * time.Second
	}
	if config.PingInterval >= config.PongTimeout {
		config.PingInterval = config.PongTimeout * 9 / 10
	}

	return config
}

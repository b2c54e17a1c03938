package am

import (
	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/version"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := messenger.ParseErrorPolicy(c.Messenger.ErrorPolicy); err != nil {
		return errors.Wrap(err, "messenger.error_policy")
	}

	// Request timeout: 0 = wait for the context only, negative = invalid
	if c.Messenger.RequestTimeoutSecs < 0 {
		return errors.Newf("messenger.request_timeout_secs must be >= 0, got %d", c.Messenger.RequestTimeoutSecs)
	}
	if c.Messenger.ParentOrigin != "" && transport.OriginFromURL(c.Messenger.ParentOrigin) == "" {
		return errors.Newf("messenger.parent_origin %q is not an origin", c.Messenger.ParentOrigin)
	}

	// Transport sizes: 0 = transport default, negative = invalid
	if c.Transport.MaxMessageSize < 0 {
		return errors.Newf("transport.max_message_size must be >= 0, got %d", c.Transport.MaxMessageSize)
	}
	if c.Transport.SendBuffer < 0 {
		return errors.Newf("transport.send_buffer must be >= 0, got %d", c.Transport.SendBuffer)
	}

	// Keepalive: validate when enabled (nil = default, 0 is invalid per "zero means zero")
	if c.Transport.Keepalive.Enabled {
		if p := c.Transport.Keepalive.PingIntervalSecs; p != nil && *p <= 0 {
			return errors.Newf("transport.keepalive.ping_interval_secs must be > 0, got %d (omit for default)", *p)
		}
		if p := c.Transport.Keepalive.PongTimeoutSecs; p != nil && *p <= 0 {
			return errors.Newf("transport.keepalive.pong_timeout_secs must be > 0, got %d (omit for default)", *p)
		}
	}

	if c.Host.VersionConstraint != "" {
		if _, err := version.ParseRange(c.Host.VersionConstraint); err != nil {
			return errors.Wrap(err, "host.version_constraint")
		}
	}

	if c.Monitor.EventsPerSecond < 0 {
		return errors.Newf("monitor.events_per_second must be >= 0, got %f", c.Monitor.EventsPerSecond)
	}
	if c.Monitor.Burst < 0 {
		return errors.Newf("monitor.burst must be >= 0, got %d", c.Monitor.Burst)
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}

	return nil
}

// ErrorPolicy returns the parsed messenger error policy. Call Validate first.
func (c *Config) ErrorPolicy() messenger.ErrorPolicy {
	p, _ := messenger.ParseErrorPolicy(c.Messenger.ErrorPolicy)
	return p
}

// KeepaliveSettings converts the keepalive section into transport settings
func (c *Config) KeepaliveSettings() transport.KeepaliveConfig {
	ping, pong := 0, 0
	if c.Transport.Keepalive.PingIntervalSecs != nil {
		ping = *c.Transport.Keepalive.PingIntervalSecs
	}
	if c.Transport.Keepalive.PongTimeoutSecs != nil {
		pong = *c.Transport.Keepalive.PongTimeoutSecs
	}
	k := transport.NewKeepaliveConfigFromSettings(ping, pong)
	k.Enabled = c.Transport.Keepalive.Enabled
	return k
}

// TransportOptions builds WebSocket options from the transport section
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Keepalive:      c.KeepaliveSettings(),
		MaxMessageSize: c.Transport.MaxMessageSize,
		SendBuffer:     c.Transport.SendBuffer,
	}
}

// Package wsnet is a websocket overlay carrying peer messages between
// nodes. Each frame is one message as produced by the message package.
package wsnet

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultListenAddr     = ":51235"
	DefaultMaxPeers       = 21
	DefaultRequestRate    = 50
	DefaultRequestBurst   = 100
	DefaultSendBufferSize = 256
	DefaultPingInterval   = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultRedialInterval = 15 * time.Second
	DefaultReadLimit      = 64 << 20

	// PeerPath is the HTTP path peers upgrade on.
	PeerPath = "/peer"
)

var (
	ErrMaxPeersReached  = errors.New("maximum peers reached")
	ErrAlreadyConnected = errors.New("already connected to peer")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Config holds the overlay settings.
type Config struct {
	Listen         string        `toml:"listen" mapstructure:"listen"`
	Peers          []string      `toml:"ips" mapstructure:"ips"`
	MaxPeers       int           `toml:"max_peers" mapstructure:"max_peers"`
	RequestRate    float64       `toml:"request_rate" mapstructure:"request_rate"`
	RequestBurst   int           `toml:"request_burst" mapstructure:"request_burst"`
	SendBufferSize int           `toml:"send_buffer_size" mapstructure:"send_buffer_size"`
	PingInterval   time.Duration `toml:"ping_interval" mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `toml:"write_timeout" mapstructure:"write_timeout"`
	ConnectTimeout time.Duration `toml:"connect_timeout" mapstructure:"connect_timeout"`
	RedialInterval time.Duration `toml:"redial_interval" mapstructure:"redial_interval"`
}

func DefaultConfig() Config {
	return Config{
		Listen:         DefaultListenAddr,
		MaxPeers:       DefaultMaxPeers,
		RequestRate:    DefaultRequestRate,
		RequestBurst:   DefaultRequestBurst,
		SendBufferSize: DefaultSendBufferSize,
		PingInterval:   DefaultPingInterval,
		WriteTimeout:   DefaultWriteTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		RedialInterval: DefaultRedialInterval,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxPeers <= 0 {
		return fmt.Errorf("max_peers must be positive, got %d", c.MaxPeers)
	}
	if c.RequestRate <= 0 || c.RequestBurst <= 0 {
		return fmt.Errorf("request_rate and request_burst must be positive")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("send_buffer_size must be positive, got %d", c.SendBufferSize)
	}
	for name, d := range map[string]time.Duration{
		"ping_interval":   c.PingInterval,
		"write_timeout":   c.WriteTimeout,
		"connect_timeout": c.ConnectTimeout,
		"redial_interval": c.RedialInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

package processor

import (
	"context"
	"net"
	"strings"

	"github.com/danmuck/txprocessor/internal/protocol/frame"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// Dialer opens the validator socket. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Processor.
type Config struct {
	// Endpoint is host:port, optionally prefixed with tcp://.
	Endpoint string
	// Workers is the number of concurrent transaction applications.
	Workers int
	// QueueLimit caps queued process requests; <= 0 is unbounded.
	QueueLimit int
	// MaxStateBatch caps addresses per state request; <= 0 sends one request.
	MaxStateBatch int
	// MaxConnectAttempts bounds dial retries per connection; <= 0 retries forever.
	MaxConnectAttempts int
	// Reconnect restarts from Connecting after a connection fault.
	Reconnect bool
	Session   session.Config
	Limits    frame.Limits
	Dialer    Dialer
}

func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Session: session.DefaultConfig(),
		Limits:  frame.DefaultLimits(),
	}
}

func (c Config) WithDefaults() Config {
	c.Endpoint = normalizeEndpoint(c.Endpoint)
	if c.Workers <= 0 {
		c.Workers = DefaultConfig().Workers
	}
	c.Session = c.Session.WithDefaults()
	if c.Limits.MaxContentBytes == 0 || c.Limits.MaxCorrelationBytes == 0 {
		d := frame.DefaultLimits()
		if c.Limits.MaxContentBytes == 0 {
			c.Limits.MaxContentBytes = d.MaxContentBytes
		}
		if c.Limits.MaxCorrelationBytes == 0 {
			c.Limits.MaxCorrelationBytes = d.MaxCorrelationBytes
		}
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	return c
}

// MaxOccupancy is the concurrency hint advertised at registration.
func (c Config) MaxOccupancy() uint32 {
	n := c.Workers
	if c.QueueLimit > 0 {
		n += c.QueueLimit
	}
	return uint32(n)
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	return strings.TrimPrefix(endpoint, "tcp://")
}

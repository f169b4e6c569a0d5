package session

import (
	"time"

	"github.com/go-spdy/spdymux/splog"
)

// DefaultInitialWindow is the default initial flow-control window size per
// direction (spec §3, §6).
const DefaultInitialWindow = 65536

// DefaultDrainTimeout bounds the post-GOAWAY drain phase (spec §9 Open
// Question (a)); after it elapses a graceful Close forces the transport
// shut even if streams are still active.
const DefaultDrainTimeout = 30 * time.Second

// Config constructs a Handler (spec §6 "Configuration": "(version, is_server)").
type Config struct {
	// Version is the SPDY protocol version, assumed fixed for the life of
	// the session (version negotiation is out of scope, spec §1).
	Version int
	// IsServer determines which stream ids are remote-initiated: even ids
	// are server-initiated, odd ids are client-initiated (spec §3).
	IsServer bool
	// InitialWindow seeds both initial_send_window and
	// initial_receive_window. Zero means DefaultInitialWindow.
	InitialWindow uint32
	// MaxConcurrentStreams is this side's locally-imposed concurrency cap
	// (local_concurrent_streams, spec §3). Zero means unspecified.
	MaxConcurrentStreams uint32
	// DrainTimeout bounds the drain phase of a graceful Close. Zero means
	// DefaultDrainTimeout.
	DrainTimeout time.Duration
	// Logger receives structured diagnostics. Nil means splog.Discard.
	Logger splog.Logger
}

func (c Config) initialWindow() int64 {
	if c.InitialWindow == 0 {
		return DefaultInitialWindow
	}
	return int64(c.InitialWindow)
}

func (c Config) drainTimeout() time.Duration {
	if c.DrainTimeout <= 0 {
		return DefaultDrainTimeout
	}
	return c.DrainTimeout
}

func (c Config) logger() splog.Logger {
	if c.Logger == nil {
		return splog.Discard
	}
	return c.Logger
}

// flowControlEnabled is true iff version >= 3 (spec §3, §6).
func (c Config) flowControlEnabled() bool {
	return c.Version >= 3
}

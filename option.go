package x402gate

import (
	"time"

	"github.com/lucidai/x402gate/logger"
	"github.com/lucidai/x402gate/metrics"
)

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLogger replaces the default no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

// WithMetrics replaces the default no-op recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.rec = r
	}
}

// WithTimeout bounds token introspection and facilitator verification.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSettleTimeout bounds facilitator settlement independently of the
// verify timeout; settlement also survives request cancellation.
func WithSettleTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.settleTimeout = d
		}
	}
}

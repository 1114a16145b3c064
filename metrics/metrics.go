// Package metrics defines the gateway's instrumentation contract.
package metrics

import "time"

// Recorder counts gateway events and observes external-call latency.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Counter and latency names emitted by the gateway.
const (
	CounterAuthorizeAllowed  = "authorize_allowed"
	CounterAuthorizeDenied   = "authorize_denied"
	CounterFacilitatorErrors = "facilitator_errors"
	LatencyVerify            = "facilitator_verify"
	LatencySettle            = "facilitator_settle"
	LatencyIntrospect        = "token_introspect"
)

package metrics

import "time"

// Nop returns a recorder that drops every observation.
func Nop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) IncCounter(string, map[string]string)                    {}
func (nopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

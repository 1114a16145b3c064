// Package middleware adapts the framework-independent payment gateway to
// net/http. It is the only place that touches http.Request and
// http.ResponseWriter; the gateway core never does.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lucidai/x402gate"
	"github.com/lucidai/x402gate/envelope"
)

type contextKey struct{}

var payerKey contextKey

// Payment wraps a handler with per-request payment authorization. Requests
// to routes absent from the gateway's registry pass through untouched.
func Payment(gw *x402gate.Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome, err := gw.Authorize(r.Context(), descriptor(r))
			if err != nil {
				// Only genuinely unexpected faults land here; payment
				// failures are denials, not errors.
				http.Error(w, "payment processing failed", http.StatusInternalServerError)
				return
			}

			if !outcome.Allowed {
				writeDenial(w, outcome.Denial)
				return
			}

			if outcome.SettlementHeader != "" {
				w.Header().Set(envelope.HeaderPaymentResponse, outcome.SettlementHeader)
			}

			ctx := r.Context()
			if outcome.Payer != "" {
				ctx = context.WithValue(ctx, payerKey, outcome.Payer)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func descriptor(r *http.Request) x402gate.Request {
	return x402gate.Request{
		RouteID:          r.URL.Path,
		Resource:         resourceURL(r),
		PaymentSignature: r.Header.Get(envelope.HeaderPaymentSignature),
		LegacyPayment:    r.Header.Get(envelope.HeaderLegacyPayment),
	}
}

// resourceURL reconstructs the full URL of the request. The facilitator
// needs the complete resource, not just the path.
func resourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func writeDenial(w http.ResponseWriter, denial *x402gate.Denial) {
	w.Header().Set(envelope.HeaderPaymentRequired, denial.RequiredHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(denial.Body)
}

// PayerFromContext returns the verified payer address for a request that
// passed through Payment, if any.
func PayerFromContext(ctx context.Context) (string, bool) {
	payer, ok := ctx.Value(payerKey).(string)
	return payer, ok
}

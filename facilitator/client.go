// Package facilitator is the RPC client for the external verify/settle
// service. It performs no retries and keeps two failure modes apart:
// transport failures (timeout, refused, DNS) surface as errors because the
// dependency is unavailable, while application-level rejections come back
// as structured results because the payment itself was refused.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucidai/x402gate/types"
)

// Client talks to one facilitator deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a facilitator client. The timeout bounds each call so a
// hung facilitator cannot occupy a request handler indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify asks the facilitator whether the envelope is a valid payment for
// the requirements. A non-nil error means the facilitator was unreachable;
// a rejection is reported inside the result.
func (c *Client) Verify(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.VerificationResult, error) {
	var result types.VerificationResult
	if err := c.post(ctx, "/verify", buildRequest(env, reqs), &result); err != nil {
		if rejection := rejectionReason(err); rejection != "" {
			return &types.VerificationResult{IsValid: false, InvalidReason: rejection}, nil
		}
		return nil, err
	}
	return &result, nil
}

// Settle executes the payment on-chain through the facilitator. The
// requirements must carry the full resource URL, which the facilitator uses
// to derive a billing domain.
func (c *Client) Settle(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.SettlementResult, error) {
	var result types.SettlementResult
	if err := c.post(ctx, "/settle", buildRequest(env, reqs), &result); err != nil {
		if rejection := rejectionReason(err); rejection != "" {
			return &types.SettlementResult{Success: false, ErrorReason: rejection}, nil
		}
		return nil, err
	}
	return &result, nil
}

func buildRequest(env *types.PaymentEnvelope, reqs *types.PaymentRequirements) *types.FacilitatorRequest {
	return &types.FacilitatorRequest{
		X402Version:         types.ProtocolVersionCurrent,
		PaymentRequirements: *reqs,
		PaymentPayload: types.PaymentPayload{
			X402Version: types.ProtocolVersionCurrent,
			Scheme:      types.SchemeExact,
			Network:     env.Network,
			Payload:     env,
		},
	}
}

// rejectedError carries a structured rejection extracted from a non-2xx
// facilitator response body.
type rejectedError struct {
	reason string
}

func (e *rejectedError) Error() string {
	return e.reason
}

func rejectionReason(err error) string {
	if rej, ok := err.(*rejectedError); ok {
		return rej.reason
	}
	return ""
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewGateError(types.ErrDependencyUnavailable, "marshal facilitator request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return types.NewGateError(types.ErrDependencyUnavailable, "build facilitator request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout, refused connection, DNS failure: the dependency is down,
		// which is an operator problem, not a payment problem.
		return types.NewGateError(types.ErrDependencyUnavailable,
			fmt.Sprintf("facilitator %s unreachable", path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewGateError(types.ErrDependencyUnavailable, "read facilitator response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return types.NewGateError(types.ErrDependencyUnavailable,
				fmt.Sprintf("facilitator %s returned unparseable body", path), err)
		}
		return nil
	}

	// 4xx with a structured reason is an explicit rejection of the payment.
	// Anything else, 5xx included, counts as the dependency misbehaving.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		if reason := extractReason(raw); reason != "" {
			return &rejectedError{reason: reason}
		}
	}

	return types.NewGateError(types.ErrDependencyUnavailable,
		fmt.Sprintf("facilitator %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw))), nil)
}

func extractReason(raw []byte) string {
	var body struct {
		InvalidReason string `json:"invalidReason"`
		ErrorReason   string `json:"errorReason"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	switch {
	case body.InvalidReason != "":
		return body.InvalidReason
	case body.ErrorReason != "":
		return body.ErrorReason
	default:
		return body.Error
	}
}

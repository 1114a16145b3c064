// Package types defines the wire-level data model of the x402 payment
// gateway: envelopes, requirements, facilitator results and token metadata.
package types

import "fmt"

// X402 protocol versions understood by the gateway.
const (
	ProtocolVersionLegacy  = 1
	ProtocolVersionCurrent = 2
)

// SchemeExact is the only payment scheme the gateway accepts.
const SchemeExact = "exact"

// ExactAuthorization is the signed transfer authorization inside a payment
// envelope. All numeric fields are decimal strings because the underlying
// values are uint256.
type ExactAuthorization struct {
	From        string `json:"from" validate:"required,eth_addr"`
	To          string `json:"to" validate:"required,eth_addr"`
	Value       string `json:"value" validate:"required,number"`
	ValidBefore string `json:"validBefore" validate:"required,number"`
	// Nonce is opaque to the gateway. Replay protection happens at the
	// facilitator, so it is forwarded byte for byte.
	Nonce string `json:"nonce" validate:"required"`
}

// PaymentEnvelope is the payer-signed payment proof attached to a request.
// It is consumed exactly once per request and never persisted.
type PaymentEnvelope struct {
	// Network is the network the payer signed for, either a legacy name
	// ("base-sepolia") or a chain-agnostic id ("eip155:84532").
	Network       string             `json:"network" validate:"required"`
	Authorization ExactAuthorization `json:"authorization" validate:"required"`
	Signature     string             `json:"signature" validate:"required"`
}

// PaymentRequirements describes one payment option a resource accepts.
// One instance is generated per supported network in every 402 response.
type PaymentRequirements struct {
	Scheme string `json:"scheme"`

	// Network in chain-agnostic form, e.g. "eip155:8453".
	Network string `json:"network"`

	// MaxAmountRequired is the price in atomic units of the asset,
	// represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the full URL being paid for, not just the path. The
	// facilitator derives a billing domain from it.
	Resource string `json:"resource"`

	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	// PayTo is the address that must receive the payment.
	PayTo string `json:"payTo"`

	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Asset is the address of the EIP-3009 compliant token contract.
	Asset string `json:"asset"`

	// Extra carries the EIP-712 signing-domain hints (name, version) the
	// payer's wallet must use for this asset.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the decoded payment-required header and 402 body:
// every payment option the caller may use to retry the request.
type PaymentRequired struct {
	X402Version    int                   `json:"x402Version"`
	Accepts        []PaymentRequirements `json:"accepts"`
	DefaultNetwork string                `json:"defaultNetwork,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// PaymentResponse is the decoded payment-response header attached to a
// successful, settled request.
type PaymentResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Network         string `json:"network,omitempty"`
}

// VerificationResult is the facilitator's verdict on a payment envelope.
type VerificationResult struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettlementResult is the facilitator's settlement outcome.
type SettlementResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Payer           string `json:"payer,omitempty"`
	Network         string `json:"network,omitempty"`
	ErrorReason     string `json:"errorReason,omitempty"`
}

// TokenInfo is the self-reported metadata of a deployed token contract.
// Contract metadata cannot change post-deployment, so a TokenInfo is
// immutable once introspected and cached for the process lifetime.
type TokenInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	ChainID  uint64 `json:"chainId"`
}

// PaymentPayload is the versioned wrapper around an envelope as it travels
// on the wire: in the payment-signature header and in facilitator calls.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      string           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *PaymentEnvelope `json:"payload"`
}

// FacilitatorRequest is the body of both facilitator endpoints.
type FacilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
}

// GateError is a classified gateway failure. The code tells callers (and
// operators) which class of the error taxonomy they are looking at.
type GateError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *GateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GateError) Unwrap() error {
	return e.Cause
}

// Error codes, one per class of the failure taxonomy.
const (
	ErrDecodeFailure         = "PROTOCOL_DECODE_FAILURE"
	ErrUnsupportedNetwork    = "UNSUPPORTED_NETWORK"
	ErrRecipientMismatch     = "RECIPIENT_MISMATCH"
	ErrDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ErrPaymentRejected       = "PAYMENT_REJECTED"
	ErrSettlementFailed      = "SETTLEMENT_FAILED"
	ErrConfig                = "CONFIG_ERROR"
	ErrIntrospectionFailed   = "INTROSPECTION_FAILED"
)

// NewGateError builds a classified error with an optional cause.
func NewGateError(code, message string, cause error) *GateError {
	return &GateError{Code: code, Message: message, Cause: cause}
}

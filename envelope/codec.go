// Package envelope encodes and decodes the x402 protocol headers. Inbound
// payment proofs arrive in two historical wire formats; decoding runs an
// ordered list of decoder attempts and reports a tagged outcome so absent
// and malformed headers stay distinguishable. Outbound headers are plain
// base64 JSON.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lucidai/x402gate/types"
)

// Header names. The current protocol uses payment-signature; x-payment is
// the deprecated v1 header kept for old clients.
const (
	HeaderPaymentSignature = "payment-signature"
	HeaderLegacyPayment    = "x-payment"
	HeaderPaymentRequired  = "payment-required"
	HeaderPaymentResponse  = "payment-response"
)

// Status tags a decode outcome.
type Status int

const (
	// StatusAbsent means no payment header was present at all. Not an error.
	StatusAbsent Status = iota
	// StatusDecoded means an envelope was extracted.
	StatusDecoded
	// StatusMalformed means a header was present but unparseable under
	// every accepted wire form.
	StatusMalformed
)

// DecodeResult is the tagged outcome of decoding the inbound headers.
type DecodeResult struct {
	Status   Status
	Envelope *types.PaymentEnvelope
	// Err explains the first decoder failure when Status is StatusMalformed.
	Err error
}

var validate = validator.New()

// decoder is one attempt at extracting an envelope from a header value.
type decoder func(value string) (*types.PaymentEnvelope, error)

// Decode extracts a payment envelope from the inbound header values, trying
// the current format on the payment-signature header (base64 JSON first,
// then plain JSON) and falling back to the legacy x-payment envelope.
func Decode(paymentSignature, legacyPayment string) DecodeResult {
	var attempts []decoder
	var value string

	switch {
	case paymentSignature != "":
		value = paymentSignature
		attempts = []decoder{decodeCurrentBase64, decodeCurrentJSON}
	case legacyPayment != "":
		value = legacyPayment
		attempts = []decoder{decodeLegacyJSON}
	default:
		return DecodeResult{Status: StatusAbsent}
	}

	var firstErr error
	for _, attempt := range attempts {
		env, err := attempt(value)
		if err == nil {
			if err := validate.Struct(env); err != nil {
				return DecodeResult{Status: StatusMalformed, Err: fmt.Errorf("envelope failed validation: %w", err)}
			}
			return DecodeResult{Status: StatusDecoded, Envelope: env}
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return DecodeResult{Status: StatusMalformed, Err: firstErr}
}

// decodeCurrentBase64 handles the canonical wire form: base64 JSON wrapping
// {x402Version, scheme, network, payload}.
func decodeCurrentBase64(value string) (*types.PaymentEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	return unwrapPayload(raw)
}

// decodeCurrentJSON handles the same wrapper sent as plain JSON, which some
// clients emit despite the header convention.
func decodeCurrentJSON(value string) (*types.PaymentEnvelope, error) {
	return unwrapPayload([]byte(value))
}

func unwrapPayload(raw []byte) (*types.PaymentEnvelope, error) {
	var wrapper types.PaymentPayload
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid payload wrapper: %w", err)
	}
	if wrapper.Payload == nil {
		return nil, fmt.Errorf("payload wrapper has no envelope")
	}
	if wrapper.Scheme != "" && wrapper.Scheme != types.SchemeExact {
		return nil, fmt.Errorf("unsupported scheme %q", wrapper.Scheme)
	}

	env := wrapper.Payload
	// The wrapper's network wins over a network inside the envelope; old
	// signers populated only one of the two.
	if wrapper.Network != "" {
		env.Network = wrapper.Network
	}
	return env, nil
}

// decodeLegacyJSON handles the deprecated x-payment form: the bare envelope
// as plain JSON with no wrapper.
func decodeLegacyJSON(value string) (*types.PaymentEnvelope, error) {
	var env types.PaymentEnvelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return nil, fmt.Errorf("invalid legacy envelope: %w", err)
	}
	return &env, nil
}

// EncodeRequired builds the payment-required header value: base64 JSON
// enumerating every payment option plus the deployment's default network.
func EncodeRequired(accepts []types.PaymentRequirements, defaultNetwork string) (string, error) {
	body := types.PaymentRequired{
		X402Version:    types.ProtocolVersionCurrent,
		Accepts:        accepts,
		DefaultNetwork: defaultNetwork,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal payment-required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeResponse builds the payment-response header value for a settled
// payment: base64 JSON carrying the transaction hash and network.
func EncodeResponse(settlement *types.SettlementResult) (string, error) {
	body := types.PaymentResponse{
		Success:         settlement.Success,
		TransactionHash: settlement.TransactionHash,
		Network:         settlement.Network,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal payment-response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeRequired reads a payment-required header back into its structured
// form. Used by client code and tests.
func DecodeRequired(header string) (*types.PaymentRequired, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment-required header is not base64: %w", err)
	}
	var body types.PaymentRequired
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("payment-required header is not valid JSON: %w", err)
	}
	return &body, nil
}

// DecodeResponse reads a payment-response header back into its structured form.
func DecodeResponse(header string) (*types.PaymentResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment-response header is not base64: %w", err)
	}
	var body types.PaymentResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("payment-response header is not valid JSON: %w", err)
	}
	return &body, nil
}

package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidai/x402gate"
	"github.com/lucidai/x402gate/envelope"
	"github.com/lucidai/x402gate/networks"
	"github.com/lucidai/x402gate/routes"
	"github.com/lucidai/x402gate/types"
)

const (
	testPayTo = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPayer = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testNonce = "0xf408d6d1f1d1bca7c6396ed30f00a46ca4e5b073fff983e42b348776a5aa651c"
	testSig   = "0x2e8818a233e2e802c953aed477858957ff85a4b91e047181e17ef4b096108e66409119a4c3fac7867b2c2b799b32a0aac108c524cffb3bf0ea6e0906f63d80271b"
)

type fakeFacilitator struct {
	verifyResult *types.VerificationResult
	settleResult *types.SettlementResult

	lastResource string
}

func (f *fakeFacilitator) Verify(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.VerificationResult, error) {
	if f.verifyResult != nil {
		return f.verifyResult, nil
	}
	return &types.VerificationResult{IsValid: true, Payer: testPayer}, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.SettlementResult, error) {
	f.lastResource = reqs.Resource
	if f.settleResult != nil {
		return f.settleResult, nil
	}
	return &types.SettlementResult{Success: true, TransactionHash: "0xabc", Payer: testPayer, Network: "eip155:84532"}, nil
}

func newTestHandler(t *testing.T, fac x402gate.Facilitator) (http.Handler, *string) {
	t.Helper()

	reg, err := routes.NewRegistry(map[string]string{"/api/chat": "0.02"})
	require.NoError(t, err)
	cat, err := networks.DefaultCatalog("base", "base", "base-sepolia")
	require.NoError(t, err)

	gw, err := x402gate.New(x402gate.Config{
		PayTo:       testPayTo,
		Registry:    reg,
		Catalog:     cat,
		Facilitator: fac,
	})
	require.NoError(t, err)

	var seenPayer string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPayer, _ = PayerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"reply":"ok"}`))
	})
	return Payment(gw)(inner), &seenPayer
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	env := &types.PaymentEnvelope{
		Network: "base-sepolia",
		Authorization: types.ExactAuthorization{
			From:        testPayer,
			To:          testPayTo,
			Value:       "20000",
			ValidBefore: "9999999999",
			Nonce:       testNonce,
		},
		Signature: testSig,
	}
	raw, err := json.Marshal(types.PaymentPayload{
		X402Version: types.ProtocolVersionCurrent,
		Scheme:      types.SchemeExact,
		Network:     env.Network,
		Payload:     env,
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestPayment_ChallengeThenPaidRetry(t *testing.T) {
	fac := &fakeFacilitator{}
	handler, seenPayer := newTestHandler(t, fac)

	// First attempt: no payment header, challenged with a 402.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "https://app.example.com/api/chat", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NotEmpty(t, rec.Header().Get(envelope.HeaderPaymentRequired))

	var body types.PaymentRequired
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, types.ProtocolVersionCurrent, body.X402Version)
	require.NotEmpty(t, body.Accepts)
	assert.Equal(t, "20000", body.Accepts[0].MaxAmountRequired, "a $0.02 price is 20000 atomic units")

	// Retry with a signed payment: request goes through and the settlement
	// receipt rides back on the response.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "https://app.example.com/api/chat", nil)
	req.Header.Set(envelope.HeaderPaymentSignature, paymentHeader(t))
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testPayer, *seenPayer)

	settled, err := envelope.DecodeResponse(rec.Header().Get(envelope.HeaderPaymentResponse))
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.Equal(t, "0xabc", settled.TransactionHash)
	assert.Equal(t, "eip155:84532", settled.Network)
}

func TestPayment_UngatedRoutePassesThrough(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeFacilitator{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://app.example.com/healthz", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(envelope.HeaderPaymentResponse))
}

func TestPayment_RejectionIs402(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResult: &types.VerificationResult{IsValid: false, InvalidReason: "insufficient_funds"},
	}
	handler, _ := newTestHandler(t, fac)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "https://app.example.com/api/chat", nil)
	req.Header.Set(envelope.HeaderPaymentSignature, paymentHeader(t))
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body types.PaymentRequired
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "insufficient_funds", body.Error)
}

func TestPayment_LegacyHeaderStillWorks(t *testing.T) {
	handler, seenPayer := newTestHandler(t, &fakeFacilitator{})

	env := &types.PaymentEnvelope{
		Network: "base-sepolia",
		Authorization: types.ExactAuthorization{
			From:        testPayer,
			To:          testPayTo,
			Value:       "20000",
			ValidBefore: "9999999999",
			Nonce:       testNonce,
		},
		Signature: testSig,
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "https://app.example.com/api/chat", nil)
	req.Header.Set(envelope.HeaderLegacyPayment, string(raw))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testPayer, *seenPayer)
}

func TestPayment_SettlementSeesFullResourceURL(t *testing.T) {
	fac := &fakeFacilitator{}
	handler, _ := newTestHandler(t, fac)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://app.example.com/api/chat", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set(envelope.HeaderPaymentSignature, paymentHeader(t))
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com/api/chat", fac.lastResource)
}

func TestPayerFromContext_AbsentWithoutMiddleware(t *testing.T) {
	_, ok := PayerFromContext(context.Background())
	assert.False(t, ok)
}

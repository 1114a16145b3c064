package envelope

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidai/x402gate/types"
)

const (
	testPayer     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testRecipient = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testNonce     = "0xf408d6d1f1d1bca7c6396ed30f00a46ca4e5b073fff983e42b348776a5aa651c"
	testSig       = "0x2e8818a233e2e802c953aed477858957ff85a4b91e047181e17ef4b096108e66409119a4c3fac7867b2c2b799b32a0aac108c524cffb3bf0ea6e0906f63d80271b"
)

func testEnvelope() *types.PaymentEnvelope {
	return &types.PaymentEnvelope{
		Network: "base-sepolia",
		Authorization: types.ExactAuthorization{
			From:        testPayer,
			To:          testRecipient,
			Value:       "50000",
			ValidBefore: "9999999999",
			Nonce:       testNonce,
		},
		Signature: testSig,
	}
}

func wrapperJSON(t *testing.T, env *types.PaymentEnvelope) []byte {
	t.Helper()
	raw, err := json.Marshal(types.PaymentPayload{
		X402Version: types.ProtocolVersionCurrent,
		Scheme:      types.SchemeExact,
		Network:     env.Network,
		Payload:     env,
	})
	require.NoError(t, err)
	return raw
}

func TestDecode_CurrentBase64(t *testing.T) {
	header := base64.StdEncoding.EncodeToString(wrapperJSON(t, testEnvelope()))

	res := Decode(header, "")
	require.Equal(t, StatusDecoded, res.Status)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "base-sepolia", res.Envelope.Network)
	assert.Equal(t, testPayer, res.Envelope.Authorization.From)
	assert.Equal(t, testNonce, res.Envelope.Authorization.Nonce)
}

func TestDecode_CurrentPlainJSON(t *testing.T) {
	res := Decode(string(wrapperJSON(t, testEnvelope())), "")
	require.Equal(t, StatusDecoded, res.Status)
	assert.Equal(t, testSig, res.Envelope.Signature)
}

func TestDecode_WrapperNetworkWins(t *testing.T) {
	env := testEnvelope()
	env.Network = ""
	raw, err := json.Marshal(types.PaymentPayload{
		X402Version: types.ProtocolVersionCurrent,
		Scheme:      types.SchemeExact,
		Network:     "eip155:84532",
		Payload:     env,
	})
	require.NoError(t, err)

	res := Decode(string(raw), "")
	require.Equal(t, StatusDecoded, res.Status)
	assert.Equal(t, "eip155:84532", res.Envelope.Network)
}

func TestDecode_LegacyEnvelope(t *testing.T) {
	raw, err := json.Marshal(testEnvelope())
	require.NoError(t, err)

	res := Decode("", string(raw))
	require.Equal(t, StatusDecoded, res.Status)
	assert.Equal(t, testPayer, res.Envelope.Authorization.From)
}

func TestDecode_Absent(t *testing.T) {
	res := Decode("", "")
	assert.Equal(t, StatusAbsent, res.Status)
	assert.Nil(t, res.Envelope)
	assert.NoError(t, res.Err)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		current string
		legacy  string
	}{
		{"garbage current header", "!!!not base64 and not json!!!", ""},
		{"base64 of non-JSON", base64.StdEncoding.EncodeToString([]byte("hello")), ""},
		{"wrapper without envelope", `{"x402Version":2,"scheme":"exact","network":"base"}`, ""},
		{"wrong scheme", `{"x402Version":2,"scheme":"stream","network":"base","payload":{}}`, ""},
		{"garbage legacy header", "", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode(tt.current, tt.legacy)
			assert.Equal(t, StatusMalformed, res.Status)
			assert.Error(t, res.Err)
		})
	}
}

func TestDecode_MalformedOnMissingFields(t *testing.T) {
	env := testEnvelope()
	env.Authorization.From = "not-an-address"
	header := base64.StdEncoding.EncodeToString(wrapperJSON(t, env))

	res := Decode(header, "")
	assert.Equal(t, StatusMalformed, res.Status, "bad payer address must fail validation")
}

func TestDecode_PreferredHeaderTakesPriority(t *testing.T) {
	current := base64.StdEncoding.EncodeToString(wrapperJSON(t, testEnvelope()))

	legacy := testEnvelope()
	legacy.Authorization.Value = "999"
	legacyRaw, err := json.Marshal(legacy)
	require.NoError(t, err)

	res := Decode(current, string(legacyRaw))
	require.Equal(t, StatusDecoded, res.Status)
	assert.Equal(t, "50000", res.Envelope.Authorization.Value, "payment-signature wins over x-payment")
}

func TestEncodeRequired_RoundTrip(t *testing.T) {
	accepts := []types.PaymentRequirements{
		{
			Scheme:            types.SchemeExact,
			Network:           "eip155:84532",
			MaxAmountRequired: "50000",
			Resource:          "https://app.example.com/api/report",
			PayTo:             testRecipient,
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Extra:             map[string]interface{}{"name": "USDC", "version": "2"},
		},
	}

	header, err := EncodeRequired(accepts, "eip155:8453")
	require.NoError(t, err)

	decoded, err := DecodeRequired(header)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolVersionCurrent, decoded.X402Version)
	assert.Equal(t, "eip155:8453", decoded.DefaultNetwork)
	require.Len(t, decoded.Accepts, 1)
	assert.Equal(t, "50000", decoded.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "https://app.example.com/api/report", decoded.Accepts[0].Resource)
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	header, err := EncodeResponse(&types.SettlementResult{
		Success:         true,
		TransactionHash: "0xabc",
		Network:         "eip155:84532",
	})
	require.NoError(t, err)

	decoded, err := DecodeResponse(header)
	require.NoError(t, err)
	assert.True(t, decoded.Success)
	assert.Equal(t, "0xabc", decoded.TransactionHash)
	assert.Equal(t, "eip155:84532", decoded.Network)
}

func TestDecodeRequired_Errors(t *testing.T) {
	_, err := DecodeRequired("not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeRequired(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}

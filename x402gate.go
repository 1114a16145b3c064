// Package x402gate implements the x402 payment gateway: per-request
// authorization of priced HTTP endpoints against signed payment envelopes,
// verified and settled through an external facilitator.
//
// The gateway itself is framework independent. Authorize is a pure function
// over a request descriptor; the middleware package adapts it to net/http.
package x402gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lucidai/x402gate/envelope"
	"github.com/lucidai/x402gate/logger"
	"github.com/lucidai/x402gate/metrics"
	"github.com/lucidai/x402gate/networks"
	"github.com/lucidai/x402gate/routes"
	"github.com/lucidai/x402gate/types"
)

// maxTimeoutSeconds is advertised in payment requirements as the window the
// server allows for completing payment of the resource.
const maxTimeoutSeconds = 300

// Facilitator verifies and settles payment envelopes. Transport failures
// are errors; rejections come back inside results.
type Facilitator interface {
	Verify(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.VerificationResult, error)
	Settle(ctx context.Context, env *types.PaymentEnvelope, reqs *types.PaymentRequirements) (*types.SettlementResult, error)
}

// TokenIntrospector resolves live token metadata for signing-domain hints.
type TokenIntrospector interface {
	Introspect(ctx context.Context, address, network string) (types.TokenInfo, error)
}

// Request is the framework-independent descriptor of one inbound request.
type Request struct {
	// RouteID is the normalized request path used for the price lookup.
	RouteID string

	// Resource is the full URL of the request. Settlement always receives
	// it in full because the facilitator derives a billing domain from it.
	Resource string

	// PaymentSignature is the raw payment-signature header value, if any.
	PaymentSignature string

	// LegacyPayment is the raw deprecated x-payment header value, if any.
	LegacyPayment string
}

// Denial tells the caller how to refuse the request. Every denial is a 402:
// payment failure is an expected business outcome, never a server fault.
type Denial struct {
	// Code is the machine-readable failure class.
	Code string

	// Reason is the human-readable message for the response body.
	Reason string

	// RequiredHeader is the payment-required header value enumerating how
	// to pay, so the client can retry.
	RequiredHeader string

	// Body is the structured 402 body.
	Body types.PaymentRequired
}

// Outcome is the result of one authorization.
type Outcome struct {
	Allowed bool

	// Payer is the verified payer address, set on success.
	Payer string

	// SettlementHeader is the payment-response header value the caller
	// must attach to its success response.
	SettlementHeader string

	// Denial is set when Allowed is false.
	Denial *Denial
}

// Config wires the gateway's collaborators.
type Config struct {
	// PayTo is the address that must receive every payment.
	PayTo string

	Registry     *routes.Registry
	Catalog      *networks.Catalog
	Facilitator  Facilitator
	Introspector TokenIntrospector
}

// Validate reports configuration gaps at startup instead of per request.
func (c *Config) Validate() error {
	if c.PayTo == "" {
		return types.NewGateError(types.ErrConfig, "payout address is required", nil)
	}
	if !common.IsHexAddress(c.PayTo) {
		return types.NewGateError(types.ErrConfig, fmt.Sprintf("payout address %q is not a valid address", c.PayTo), nil)
	}
	if c.Registry == nil {
		return types.NewGateError(types.ErrConfig, "route registry is required", nil)
	}
	if c.Catalog == nil {
		return types.NewGateError(types.ErrConfig, "network catalog is required", nil)
	}
	if c.Facilitator == nil {
		return types.NewGateError(types.ErrConfig, "facilitator client is required", nil)
	}
	return nil
}

// Gateway authorizes requests to priced endpoints. It is stateless per
// request; the only shared mutable state is the introspector's cache.
type Gateway struct {
	payTo        string
	registry     *routes.Registry
	catalog      *networks.Catalog
	facilitator  Facilitator
	introspector TokenIntrospector

	log     logger.Logger
	rec     metrics.Recorder
	timeout time.Duration
	// settleTimeout bounds settlement separately: a dispatched settle is
	// allowed to finish even when the inbound request goes away, so a
	// signed payment never ends up settled-but-unreported ambiguous.
	settleTimeout time.Duration
}

// New creates a gateway from a validated config.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		payTo:         cfg.PayTo,
		registry:      cfg.Registry,
		catalog:       cfg.Catalog,
		facilitator:   cfg.Facilitator,
		introspector:  cfg.Introspector,
		log:           logger.Nop(),
		rec:           metrics.Nop(),
		timeout:       5 * time.Second,
		settleTimeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authorize decides whether a request to a priced endpoint may proceed.
// It returns an error only for genuinely unexpected faults; every payment
// failure is expressed as a denial.
func (g *Gateway) Authorize(ctx context.Context, req Request) (*Outcome, error) {
	price, gated := g.registry.PriceFor(req.RouteID)
	if !gated {
		// Unguarded route: no envelope work, no network calls.
		return &Outcome{Allowed: true}, nil
	}

	decoded := envelope.Decode(req.PaymentSignature, req.LegacyPayment)
	switch decoded.Status {
	case envelope.StatusAbsent:
		return g.deny(req, price, types.ErrDecodeFailure, "payment required")
	case envelope.StatusMalformed:
		g.log.Debug("unparseable payment header", map[string]any{
			"route": req.RouteID,
			"error": fmt.Sprint(decoded.Err),
		})
		return g.deny(req, price, types.ErrDecodeFailure, "payment header could not be parsed")
	}

	env := decoded.Envelope

	// Two cheap local checks before spending a facilitator round-trip on a
	// payment that is obviously mistargeted.
	def, ok := g.catalog.Resolve(env.Network)
	if !ok {
		return g.deny(req, price, types.ErrUnsupportedNetwork,
			fmt.Sprintf("unsupported network: %s", env.Network))
	}
	if !strings.EqualFold(env.Authorization.To, g.payTo) {
		return g.deny(req, price, types.ErrRecipientMismatch, "payment recipient mismatch")
	}

	reqs := g.requirementsFor(def, price, req.Resource)
	g.applyDomainHints(ctx, def, &reqs)

	verifyCtx, cancelVerify := context.WithTimeout(ctx, g.timeout)
	defer cancelVerify()

	verifyStart := time.Now()
	verification, err := g.facilitator.Verify(verifyCtx, env, &reqs)
	g.rec.ObserveLatency(metrics.LatencyVerify, time.Since(verifyStart), map[string]string{"network": def.Legacy})
	if err != nil {
		g.rec.IncCounter(metrics.CounterFacilitatorErrors, map[string]string{"network": def.Legacy})
		g.log.Error("facilitator verify unavailable", map[string]any{
			"route":   req.RouteID,
			"network": def.Legacy,
			"error":   err.Error(),
		})
		return g.deny(req, price, types.ErrDependencyUnavailable, "payment verification is temporarily unavailable")
	}
	if !verification.IsValid {
		return g.deny(req, price, types.ErrPaymentRejected, verification.InvalidReason)
	}

	// Settlement must reuse the exact domain hints verification used, and
	// it keeps running even if the inbound request is canceled: aborting a
	// dispatched settle would leave a signed payment in limbo.
	settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), g.settleTimeout)
	defer cancelSettle()

	settleStart := time.Now()
	settlement, err := g.facilitator.Settle(settleCtx, env, &reqs)
	g.rec.ObserveLatency(metrics.LatencySettle, time.Since(settleStart), map[string]string{"network": def.Legacy})
	if err != nil {
		g.rec.IncCounter(metrics.CounterFacilitatorErrors, map[string]string{"network": def.Legacy})
		g.log.Error("facilitator settle unavailable", map[string]any{
			"route":   req.RouteID,
			"network": def.Legacy,
			"error":   err.Error(),
		})
		return g.deny(req, price, types.ErrDependencyUnavailable, "payment settlement is temporarily unavailable")
	}
	if !settlement.Success {
		reason := classifySettlementFailure(settlement.ErrorReason, def.Legacy)
		return g.deny(req, price, types.ErrSettlementFailed, reason)
	}

	if settlement.Network == "" {
		settlement.Network = def.ChainID
	}
	header, err := envelope.EncodeResponse(settlement)
	if err != nil {
		return nil, fmt.Errorf("encode payment-response: %w", err)
	}

	payer := settlement.Payer
	if payer == "" {
		payer = verification.Payer
	}
	if payer == "" {
		payer = env.Authorization.From
	}

	g.rec.IncCounter(metrics.CounterAuthorizeAllowed, map[string]string{"network": def.Legacy})
	g.log.Info("payment settled", map[string]any{
		"route":   req.RouteID,
		"network": def.Legacy,
		"payer":   payer,
		"tx":      settlement.TransactionHash,
	})

	return &Outcome{
		Allowed:          true,
		Payer:            payer,
		SettlementHeader: header,
	}, nil
}

// requirementsFor builds the requirements descriptor for one network using
// catalog-default domain hints.
func (g *Gateway) requirementsFor(def networks.Definition, price decimal.Decimal, resource string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           def.ChainID,
		MaxAmountRequired: routes.AtomicAmount(price),
		Resource:          resource,
		PayTo:             g.payTo,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		Asset:             def.Stablecoin,
		Extra: map[string]interface{}{
			"name":    def.DomainName,
			"version": def.DomainVersion,
		},
	}
}

// applyDomainHints upgrades catalog-default hints with the contract's
// self-reported name. The domain version stays configuration. Introspection
// failure is tolerated: the catalog defaults remain in place.
func (g *Gateway) applyDomainHints(ctx context.Context, def networks.Definition, reqs *types.PaymentRequirements) {
	if g.introspector == nil {
		return
	}

	introspectCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	info, err := g.introspector.Introspect(introspectCtx, def.Stablecoin, def.Legacy)
	g.rec.ObserveLatency(metrics.LatencyIntrospect, time.Since(start), map[string]string{"network": def.Legacy})
	if err != nil {
		g.log.Warn("token introspection failed, using catalog defaults", map[string]any{
			"network": def.Legacy,
			"asset":   def.Stablecoin,
			"error":   err.Error(),
		})
		return
	}

	reqs.Extra["name"] = info.Name
	if int(info.Decimals) != routes.StablecoinDecimals {
		// Pricing assumes 6 decimals; a token that disagrees would be
		// mis-priced by orders of magnitude. Surface it loudly.
		g.log.Error("token decimals disagree with pricing assumption", map[string]any{
			"network":  def.Legacy,
			"asset":    def.Stablecoin,
			"decimals": info.Decimals,
			"assumed":  routes.StablecoinDecimals,
		})
	}
}

// deny builds a 402 outcome whose payment-required header enumerates a
// requirements descriptor for every configured network. Domain hints here
// are catalog defaults; introspection is deferred to the verification path
// to keep 402 generation cheap.
func (g *Gateway) deny(req Request, price decimal.Decimal, code, reason string) (*Outcome, error) {
	defs := g.catalog.Definitions()
	accepts := make([]types.PaymentRequirements, 0, len(defs))
	for _, def := range defs {
		accepts = append(accepts, g.requirementsFor(def, price, req.Resource))
	}

	defaultNetwork := g.catalog.Default().ChainID
	header, err := envelope.EncodeRequired(accepts, defaultNetwork)
	if err != nil {
		return nil, fmt.Errorf("encode payment-required: %w", err)
	}

	g.rec.IncCounter(metrics.CounterAuthorizeDenied, map[string]string{"network": defaultNetwork})

	return &Outcome{
		Allowed: false,
		Denial: &Denial{
			Code:           code,
			Reason:         reason,
			RequiredHeader: header,
			Body: types.PaymentRequired{
				X402Version:    types.ProtocolVersionCurrent,
				Accepts:        accepts,
				DefaultNetwork: defaultNetwork,
				Error:          reason,
			},
		},
	}, nil
}

// classifySettlementFailure rewrites the two recognized settlement failure
// patterns into actionable guidance and passes everything else through.
func classifySettlementFailure(reason, network string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "sponsor"):
		return fmt.Sprintf("no sponsor wallet is funded for %s; the operator must top it up before payments can settle", network)
	case strings.Contains(lower, "already used"), strings.Contains(lower, "canceled"), strings.Contains(lower, "cancelled"):
		return "payment authorization was already used or canceled; sign a new payment and retry"
	case reason == "":
		return "payment settlement failed"
	default:
		return reason
	}
}

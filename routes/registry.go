// Package routes holds the static route-to-price table that decides which
// endpoints are payment gated.
package routes

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StablecoinDecimals is the platform-wide atomic precision assumption for
// payment tokens. Pricing does not consult a token's on-chain decimals;
// every configured stablecoin is expected to use 6. A token with a different
// precision would be mis-priced, which the gateway logs when introspection
// reports a disagreement.
const StablecoinDecimals = 6

// Registry maps normalized request paths to USD prices. Matching is exact,
// so every protected endpoint must be enumerated; there is no pattern
// support. A route absent from the registry is unguarded, while a zero
// price is a valid, still-gated value.
type Registry struct {
	prices map[string]decimal.Decimal
}

// NewRegistry builds a registry from a path-to-USD-price map. Prices must
// be non-negative decimal strings such as "0.05".
func NewRegistry(prices map[string]string) (*Registry, error) {
	table := make(map[string]decimal.Decimal, len(prices))
	for route, raw := range prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("routes: invalid price %q for %s: %w", raw, route, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("routes: negative price %s for %s", raw, route)
		}
		table[normalize(route)] = price
	}
	return &Registry{prices: table}, nil
}

// PriceFor returns the USD price for a route and whether the route is
// gated at all. Callers must branch on the boolean, never on a zero price.
func (r *Registry) PriceFor(routeID string) (decimal.Decimal, bool) {
	price, ok := r.prices[normalize(routeID)]
	return price, ok
}

// Routes returns the gated paths.
func (r *Registry) Routes() []string {
	out := make([]string, 0, len(r.prices))
	for route := range r.prices {
		out = append(out, route)
	}
	return out
}

// AtomicAmount converts a USD price to atomic token units under the
// fixed StablecoinDecimals assumption: $0.05 becomes "50000".
func AtomicAmount(price decimal.Decimal) string {
	return price.Shift(StablecoinDecimals).Truncate(0).String()
}

func normalize(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}

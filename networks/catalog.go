// Package networks maps between the two naming schemes for blockchain
// networks the x402 protocol has used over time: legacy human names
// ("base-sepolia") and chain-agnostic CAIP-2 identifiers ("eip155:84532").
// It also carries the per-network stablecoin address and EIP-712
// signing-domain hints, which are deployment configuration, not derived data.
package networks

import "fmt"

// Definition describes one configured network.
type Definition struct {
	// Legacy is the historical x402 v1 network name, e.g. "base-sepolia".
	Legacy string

	// ChainID is the CAIP-2 identifier, e.g. "eip155:84532".
	ChainID string

	// ChainRef is the numeric EVM chain id, e.g. 84532.
	ChainRef uint64

	// Stablecoin is the address of the network's payment token contract.
	Stablecoin string

	// DomainName and DomainVersion are the default EIP-712 signing-domain
	// hints for the stablecoin. The name is overridden by live contract
	// introspection when available; the version is pure configuration
	// because deployments of the same token standard use different version
	// constants across chains.
	DomainName    string
	DomainVersion string
}

// Catalog is a total, bidirectional lookup over the configured network set.
// Unknown inputs resolve to the default network instead of erroring, so
// malformed client input degrades gracefully.
type Catalog struct {
	byLegacy  map[string]Definition
	byChainID map[string]Definition
	ordered   []Definition
	fallback  Definition
}

// NewCatalog builds a catalog from definitions. The default network must be
// one of the configured legacy names.
func NewCatalog(defs []Definition, defaultLegacy string) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("networks: at least one network definition is required")
	}

	c := &Catalog{
		byLegacy:  make(map[string]Definition, len(defs)),
		byChainID: make(map[string]Definition, len(defs)),
		ordered:   make([]Definition, 0, len(defs)),
	}

	for _, def := range defs {
		if def.Legacy == "" || def.ChainID == "" {
			return nil, fmt.Errorf("networks: definition needs both a legacy name and a chain id, got %+v", def)
		}
		if def.Stablecoin == "" {
			return nil, fmt.Errorf("networks: no stablecoin address for %s", def.Legacy)
		}
		if _, dup := c.byLegacy[def.Legacy]; dup {
			return nil, fmt.Errorf("networks: duplicate legacy name %s", def.Legacy)
		}
		if _, dup := c.byChainID[def.ChainID]; dup {
			return nil, fmt.Errorf("networks: duplicate chain id %s", def.ChainID)
		}
		c.byLegacy[def.Legacy] = def
		c.byChainID[def.ChainID] = def
		c.ordered = append(c.ordered, def)
	}

	def, ok := c.byLegacy[defaultLegacy]
	if !ok {
		return nil, fmt.Errorf("networks: default network %q is not configured", defaultLegacy)
	}
	c.fallback = def

	return c, nil
}

// Default stablecoin deployments. The domain version constant differs across
// chains for historical reasons, so it lives here rather than in code.
var defaultDefinitions = []Definition{
	{
		Legacy:        "base",
		ChainID:       "eip155:8453",
		ChainRef:      8453,
		Stablecoin:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	{
		Legacy:        "base-sepolia",
		ChainID:       "eip155:84532",
		ChainRef:      84532,
		Stablecoin:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		DomainName:    "USDC",
		DomainVersion: "2",
	},
	{
		Legacy:        "polygon",
		ChainID:       "eip155:137",
		ChainRef:      137,
		Stablecoin:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	{
		Legacy:        "polygon-amoy",
		ChainID:       "eip155:80002",
		ChainRef:      80002,
		Stablecoin:    "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		DomainName:    "USDC",
		DomainVersion: "2",
	},
}

// DefaultCatalog returns a catalog of the stock stablecoin deployments with
// the given default network, or every stock network with "base" as default
// when legacyNames is empty.
func DefaultCatalog(defaultLegacy string, legacyNames ...string) (*Catalog, error) {
	if len(legacyNames) == 0 {
		return NewCatalog(defaultDefinitions, defaultLegacy)
	}

	defs := make([]Definition, 0, len(legacyNames))
	for _, name := range legacyNames {
		found := false
		for _, def := range defaultDefinitions {
			if def.Legacy == name {
				defs = append(defs, def)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("networks: unknown network %q", name)
		}
	}
	return NewCatalog(defs, defaultLegacy)
}

// Resolve looks up a network by either naming scheme and reports whether it
// is configured. This is the strict form used to reject unsupported
// envelope networks; the To* methods below are the forgiving form.
func (c *Catalog) Resolve(name string) (Definition, bool) {
	if def, ok := c.byLegacy[name]; ok {
		return def, true
	}
	if def, ok := c.byChainID[name]; ok {
		return def, true
	}
	return Definition{}, false
}

// ToChainID converts a legacy name (or an already chain-agnostic id) to the
// CAIP-2 identifier, falling back to the default network when unknown.
func (c *Catalog) ToChainID(name string) string {
	if def, ok := c.Resolve(name); ok {
		return def.ChainID
	}
	return c.fallback.ChainID
}

// ToLegacy converts a chain-agnostic id (or an already legacy name) to the
// legacy name, falling back to the default network when unknown.
func (c *Catalog) ToLegacy(name string) string {
	if def, ok := c.Resolve(name); ok {
		return def.Legacy
	}
	return c.fallback.Legacy
}

// StablecoinAddress returns the payment token contract for a network.
func (c *Catalog) StablecoinAddress(name string) string {
	if def, ok := c.Resolve(name); ok {
		return def.Stablecoin
	}
	return c.fallback.Stablecoin
}

// DomainVersion returns the configured EIP-712 domain version for a network.
func (c *Catalog) DomainVersion(name string) string {
	if def, ok := c.Resolve(name); ok {
		return def.DomainVersion
	}
	return c.fallback.DomainVersion
}

// DomainName returns the default EIP-712 domain name for a network, used
// when live token introspection is unavailable.
func (c *Catalog) DomainName(name string) string {
	if def, ok := c.Resolve(name); ok {
		return def.DomainName
	}
	return c.fallback.DomainName
}

// ChainRef returns the numeric chain id for a network.
func (c *Catalog) ChainRef(name string) uint64 {
	if def, ok := c.Resolve(name); ok {
		return def.ChainRef
	}
	return c.fallback.ChainRef
}

// Definitions returns the configured networks in declaration order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Default returns the fallback network definition.
func (c *Catalog) Default() Definition {
	return c.fallback
}

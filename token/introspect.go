// Package token reads the self-reported metadata of deployed token
// contracts. The EIP-712 signing domain must match the contract's own
// name() exactly, and a hardcoded guess is not correct for every
// token/network pair, so the gateway asks the chain once and caches the
// answer for the process lifetime.
package token

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lucidai/x402gate/networks"
	"github.com/lucidai/x402gate/types"
)

const erc20MetadataABI = `
[
  {
    "name": "name",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "name": "decimals",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "uint8" }]
  }
]
`

// Reader performs the read-only metadata calls against one network.
type Reader interface {
	Name(ctx context.Context, token common.Address) (string, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

type rpcReader struct {
	client *ethclient.Client
	abi    abi.ABI
}

// NewRPCReader connects a metadata reader to an EVM RPC endpoint.
func NewRPCReader(rpcURL string) (Reader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("token: connect to RPC %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse metadata ABI: %w", err)
	}
	return &rpcReader{client: client, abi: parsed}, nil
}

func (r *rpcReader) Name(ctx context.Context, token common.Address) (string, error) {
	out, err := r.call(ctx, token, "name")
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("token: name() returned %T", out[0])
	}
	return name, nil
}

func (r *rpcReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token: decimals() returned %T", out[0])
	}
	return decimals, nil
}

func (r *rpcReader) call(ctx context.Context, token common.Address, method string) ([]interface{}, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("token: pack %s: %w", method, err)
	}

	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("token: %s call failed: %w", method, err)
	}

	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("token: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("token: %s returned nothing", method)
	}
	return out, nil
}

type cacheKey struct {
	address string
	network string
}

// Cache is an explicitly constructed read-through store for TokenInfo,
// shared by all requests for the process lifetime. There is no TTL and no
// invalidation: contract metadata cannot change post-deployment. A
// duplicate miss under concurrency repeats an idempotent read and is
// harmless, so lookups are not single-flighted.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]types.TokenInfo
}

// NewCache creates an empty cache. Build one at startup and inject it.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]types.TokenInfo)}
}

func (c *Cache) get(key cacheKey) (types.TokenInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[key]
	return info, ok
}

func (c *Cache) put(key cacheKey, info types.TokenInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = info
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Introspector resolves TokenInfo through per-network readers with a shared
// cache. Lookup failures return an error so callers can fall back to
// catalog defaults.
type Introspector struct {
	readers map[string]Reader
	catalog *networks.Catalog
	cache   *Cache
	timeout time.Duration
}

// NewIntrospector wires readers for each configured RPC endpoint, keyed by
// legacy network name. Networks without an RPC URL stay uninstrospectable
// and always fall back to catalog defaults.
func NewIntrospector(rpcURLs map[string]string, catalog *networks.Catalog, cache *Cache, timeout time.Duration) (*Introspector, error) {
	if cache == nil {
		return nil, fmt.Errorf("token: cache is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	readers := make(map[string]Reader, len(rpcURLs))
	for network, url := range rpcURLs {
		legacy := catalog.ToLegacy(network)
		reader, err := NewRPCReader(url)
		if err != nil {
			return nil, err
		}
		readers[legacy] = reader
	}

	return &Introspector{
		readers: readers,
		catalog: catalog,
		cache:   cache,
		timeout: timeout,
	}, nil
}

// NewIntrospectorWithReaders injects prebuilt readers. Used by tests and by
// deployments that manage their own RPC clients.
func NewIntrospectorWithReaders(readers map[string]Reader, catalog *networks.Catalog, cache *Cache, timeout time.Duration) *Introspector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Introspector{readers: readers, catalog: catalog, cache: cache, timeout: timeout}
}

// Introspect returns the token's self-reported metadata, serving repeats
// from the cache. Any read failure surfaces as an error and nothing is
// cached, so the next request retries.
func (i *Introspector) Introspect(ctx context.Context, address, network string) (types.TokenInfo, error) {
	legacy := i.catalog.ToLegacy(network)
	key := cacheKey{address: strings.ToLower(address), network: legacy}

	if info, ok := i.cache.get(key); ok {
		return info, nil
	}

	reader, ok := i.readers[legacy]
	if !ok {
		return types.TokenInfo{}, types.NewGateError(types.ErrIntrospectionFailed,
			fmt.Sprintf("no RPC endpoint configured for network %s", legacy), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	contract := common.HexToAddress(address)
	name, err := reader.Name(callCtx, contract)
	if err != nil {
		return types.TokenInfo{}, types.NewGateError(types.ErrIntrospectionFailed,
			fmt.Sprintf("read name of %s on %s", address, legacy), err)
	}
	decimals, err := reader.Decimals(callCtx, contract)
	if err != nil {
		return types.TokenInfo{}, types.NewGateError(types.ErrIntrospectionFailed,
			fmt.Sprintf("read decimals of %s on %s", address, legacy), err)
	}

	info := types.TokenInfo{
		Address:  address,
		Name:     name,
		Decimals: decimals,
		ChainID:  i.catalog.ChainRef(legacy),
	}
	i.cache.put(key, info)

	return info, nil
}

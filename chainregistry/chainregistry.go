// Package chainregistry maps CAIP-2 network identifiers to the chain
// descriptors the Permit signer needs: a human-readable name and the
// numeric chain ID that goes into the EIP-712 domain.
package chainregistry

import "math/big"

// Chain describes an EVM-compatible chain known to the signer.
type Chain struct {
	Name    string
	ChainID *big.Int
}

var (
	chainIDMainnet     = big.NewInt(1)
	chainIDBase        = big.NewInt(8453)
	chainIDBaseSepolia = big.NewInt(84532)

	// base is the fallback chain for any network identifier not present
	// in the registry.
	base = Chain{Name: "Base", ChainID: chainIDBase}

	registry = map[string]Chain{
		"eip155:1":     {Name: "Ethereum", ChainID: chainIDMainnet},
		"eip155:8453":  base,
		"eip155:84532": {Name: "Base Sepolia", ChainID: chainIDBaseSepolia},
	}
)

// Resolve looks up network in the registry, falling back to Base for
// any identifier the registry doesn't recognize.
func Resolve(network string) Chain {
	if chain, ok := registry[network]; ok {
		return chain
	}
	return base
}

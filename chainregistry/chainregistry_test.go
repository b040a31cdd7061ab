package chainregistry

import "testing"

func TestResolveKnownChains(t *testing.T) {
	cases := []struct {
		network string
		chainID int64
	}{
		{"eip155:1", 1},
		{"eip155:8453", 8453},
		{"eip155:84532", 84532},
	}
	for _, tc := range cases {
		chain := Resolve(tc.network)
		if chain.ChainID.Int64() != tc.chainID {
			t.Errorf("Resolve(%q).ChainID = %d, want %d", tc.network, chain.ChainID.Int64(), tc.chainID)
		}
	}
}

func TestResolveUnknownFallsBackToBase(t *testing.T) {
	chain := Resolve("eip155:999999")
	if chain.ChainID.Int64() != 8453 {
		t.Errorf("unknown network fell back to chain ID %d, want 8453", chain.ChainID.Int64())
	}
}

// Command payfetchdemo wires a real EVM read client into the payfetch
// interceptor and issues one request against a router, purely as a
// worked example of how a host assembles the pieces the core leaves
// external.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/uptoprotocol/payfetch/interceptor"
	"github.com/uptoprotocol/payfetch/metrics"
	"github.com/uptoprotocol/payfetch/signer"
	"github.com/uptoprotocol/payfetch/types"
)

// ethclientNonceReader adapts ethclient.Client to signer.NonceReader by
// ABI-packing/unpacking the ERC-2612 nonces(address) call itself; this
// is the "EVM read client" the core spec leaves as an external
// collaborator.
type ethclientNonceReader struct {
	client *ethclient.Client
}

func (r *ethclientNonceReader) ReadNonce(ctx context.Context, chainID *big.Int, token common.Address, owner common.Address) (*big.Int, error) {
	data, err := signer.PackNoncesCall(owner)
	if err != nil {
		return nil, fmt.Errorf("pack nonces call: %w", err)
	}
	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call nonces: %w", err)
	}
	return signer.UnpackNoncesResult(result)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, reading environment directly")
	}

	routerURL := getEnv("X402_ROUTER_URL", "https://router.example.com")
	permitCap := getEnv("X402_PERMIT_CAP", "1000000")
	rpcURL := getEnv("X402_EVM_RPC_URL", "https://mainnet.base.org")

	secrets := signer.Secrets{
		PrivateKey:          os.Getenv("X402_PRIVATE_KEY"),
		StaticPaymentHeader: os.Getenv("X402_STATIC_PAYMENT_HEADER"),
	}

	mode := signer.ModeEnvPK
	if os.Getenv("X402_STATIC_PAYMENT_HEADER") != "" {
		mode = signer.ModeStaticHeader
	}

	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		fmt.Printf("failed to dial EVM RPC: %v\n", err)
		os.Exit(1)
	}

	resolveClient := func(network string) (signer.NonceReader, error) {
		return &ethclientNonceReader{client: ethClient}, nil
	}

	m := metrics.New()
	go func() {
		fmt.Println(http.ListenAndServe(":9090", m.Handler()))
	}()

	source, err := signer.ResolveSigningSource(
		signer.Options{SignerMode: mode},
		secrets,
		resolveClient,
		signer.WithNonceReadObserver(m.ObserveNonceRead),
	)
	if err != nil {
		fmt.Printf("failed to resolve signing source: %v\n", err)
		os.Exit(1)
	}

	transport, err := interceptor.New(interceptor.Options{
		RouterURL:         routerURL,
		PermitCap:         permitCap,
		SignFunc:          source.SignFunc,
		StaticHeaderName:  source.HeaderName,
		StaticHeaderValue: source.HeaderValue,
		Metrics:           m,
		OnBeforeSign: func(ctx context.Context, input types.SignatureInput) {
			fmt.Printf("signing a permit for up to %s on %s\n", input.PermitCap, input.Network)
		},
		OnSignFailure: func(ctx context.Context, input types.SignatureInput, err error) {
			fmt.Printf("permit signing failed: %v\n", err)
		},
	})
	if err != nil {
		fmt.Printf("failed to build interceptor: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Transport: transport}

	resp, err := client.Get(routerURL + "/v1/chat/completions")
	if err != nil {
		fmt.Printf("request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("response status: %s\n", resp.Status)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

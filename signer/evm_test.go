package signer

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uptoprotocol/payfetch/types"
)

type fakeNonceReader struct {
	nonce *big.Int
	err   error
}

func (f *fakeNonceReader) ReadNonce(ctx context.Context, chainID *big.Int, token, owner common.Address) (*big.Int, error) {
	return f.nonce, f.err
}

func testPrivateKey() string {
	return "0x" + strings.Repeat("c", 64)
}

func TestNewEVMPermitSignerSignsWithNonceAndDeadline(t *testing.T) {
	restore := nowFunc
	nowFunc = func() time.Time { return time.Unix(1_000_000, 0) }
	defer func() { nowFunc = restore }()

	reader := &fakeNonceReader{nonce: big.NewInt(1)}
	signFunc, err := NewEVMPermitSigner(testPrivateKey(), func(string) (NonceReader, error) { return reader, nil })
	if err != nil {
		t.Fatalf("NewEVMPermitSigner failed: %v", err)
	}

	out, err := signFunc(context.Background(), types.SignatureInput{
		RouterConfig: types.RouterConfig{
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			FacilitatorSigner: "0x1234567890123456789012345678901234567890",
			TokenName:         "USD Coin",
			TokenVersion:      "2",
		},
		PermitCap: "1000000",
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if out.Nonce != "1" {
		t.Errorf("Nonce = %q, want 1", out.Nonce)
	}
	wantDeadline := strconv.FormatInt(1_000_000+3600, 10)
	if out.Deadline != wantDeadline {
		t.Errorf("Deadline = %q, want %q", out.Deadline, wantDeadline)
	}
	if !strings.HasPrefix(out.Signature, "0x") || len(out.Signature) != 132 {
		t.Errorf("Signature = %q, want a 0x-prefixed 65-byte hex string", out.Signature)
	}
	if out.AccountAddress == "" {
		t.Error("expected a non-empty AccountAddress")
	}
}

func TestNewEVMPermitSignerRewritesDeadlineBelowFloor(t *testing.T) {
	restore := nowFunc
	nowFunc = func() time.Time { return time.Unix(1_000_000, 0) }
	defer func() { nowFunc = restore }()

	reader := &fakeNonceReader{nonce: big.NewInt(2)}
	signFunc, err := NewEVMPermitSigner(testPrivateKey(), func(string) (NonceReader, error) { return reader, nil })
	if err != nil {
		t.Fatalf("NewEVMPermitSigner failed: %v", err)
	}

	floor := int64(1_000_000 + 10_000) // well past the natural +3600 deadline
	out, err := signFunc(context.Background(), types.SignatureInput{
		RouterConfig: types.RouterConfig{
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			FacilitatorSigner: "0x1234567890123456789012345678901234567890",
			TokenName:         "USD Coin",
			TokenVersion:      "2",
		},
		PermitCap:            "1000000",
		MinDeadlineExclusive: &floor,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	wantDeadline := strconv.FormatInt(floor+1, 10)
	if out.Deadline != wantDeadline {
		t.Errorf("Deadline = %q, want %q (floor + 1)", out.Deadline, wantDeadline)
	}
}

func TestNewEVMPermitSignerPropagatesNonceReadError(t *testing.T) {
	reader := &fakeNonceReader{err: context.DeadlineExceeded}
	signFunc, err := NewEVMPermitSigner(testPrivateKey(), func(string) (NonceReader, error) { return reader, nil })
	if err != nil {
		t.Fatalf("NewEVMPermitSigner failed: %v", err)
	}

	_, err = signFunc(context.Background(), types.SignatureInput{
		RouterConfig: types.RouterConfig{
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			FacilitatorSigner: "0x1234567890123456789012345678901234567890",
		},
		PermitCap: "1000000",
	})
	if err == nil {
		t.Fatal("expected an error when the nonce read fails")
	}
}

func TestNewEVMPermitSignerObservesNonceReadLatency(t *testing.T) {
	reader := &fakeNonceReader{nonce: big.NewInt(1)}
	var observed bool
	signFunc, err := NewEVMPermitSigner(
		testPrivateKey(),
		func(string) (NonceReader, error) { return reader, nil },
		WithNonceReadObserver(func(d time.Duration) { observed = true }),
	)
	if err != nil {
		t.Fatalf("NewEVMPermitSigner failed: %v", err)
	}

	_, err = signFunc(context.Background(), types.SignatureInput{
		RouterConfig: types.RouterConfig{
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			FacilitatorSigner: "0x1234567890123456789012345678901234567890",
			TokenName:         "USD Coin",
			TokenVersion:      "2",
		},
		PermitCap: "1000000",
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if !observed {
		t.Error("expected the nonce-read observer to be called")
	}
}

func TestNewEVMPermitSignerInvalidPrivateKey(t *testing.T) {
	_, err := NewEVMPermitSigner("not-hex", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid private key")
	}
}

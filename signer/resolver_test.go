package signer

import (
	"strings"
	"testing"
)

func TestNormalizePrivateKey(t *testing.T) {
	valid := "a" + strings.Repeat("b", 63)

	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"uppercase 0X prefix rewritten", "0X" + valid, "0x" + valid, true},
		{"already lowercase", "0x" + valid, "0x" + valid, true},
		{"too short", "0x1234", "", false},
		{"empty", "", "", false},
		{"whitespace trimmed", "  0x" + valid + "  ", "0x" + valid, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := normalizePrivateKey(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveSigningSourceStaticHeaderMissingValue(t *testing.T) {
	_, err := ResolveSigningSource(
		Options{SignerMode: ModeStaticHeader},
		Secrets{StaticPaymentHeader: "   "},
		nil,
	)
	if err == nil {
		t.Fatal("expected an error for a blank static header value")
	}
}

func TestResolveSigningSourceStaticHeaderSuccess(t *testing.T) {
	source, err := ResolveSigningSource(
		Options{SignerMode: ModeStaticHeader, PaymentHeader: "X-CUSTOM"},
		Secrets{StaticPaymentHeader: "abc123"},
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.HeaderName != "X-CUSTOM" {
		t.Errorf("HeaderName = %q, want X-CUSTOM", source.HeaderName)
	}
	if source.HeaderValue != "abc123" {
		t.Errorf("HeaderValue = %q, want abc123", source.HeaderValue)
	}
}

func TestResolveSigningSourceEnvPKMissingKey(t *testing.T) {
	_, err := ResolveSigningSource(Options{}, Secrets{}, nil)
	if err == nil {
		t.Fatal("expected an error for a missing private key")
	}
}

func TestResolveSigningSourceEnvPKSuccess(t *testing.T) {
	key := "0x" + strings.Repeat("a", 64)
	source, err := ResolveSigningSource(
		Options{SignerMode: ModeEnvPK},
		Secrets{PrivateKey: key},
		func(string) (NonceReader, error) { return nil, nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.Mode != "signature" {
		t.Errorf("Mode = %q, want signature", source.Mode)
	}
	if source.SignFunc == nil {
		t.Fatal("expected a non-nil SignFunc")
	}
}

func TestResolveSigningSourceInvalidMode(t *testing.T) {
	_, err := ResolveSigningSource(Options{SignerMode: "bogus"}, Secrets{}, nil)
	if err == nil {
		t.Fatal("expected an error for an unsupported signer mode")
	}
}

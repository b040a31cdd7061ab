// Package signer resolves configuration and secrets into a signing
// source, and implements the EIP-2612 Permit signing function itself.
package signer

import (
	"regexp"
	"strings"

	"github.com/uptoprotocol/payfetch/errors"
	"github.com/uptoprotocol/payfetch/types"
)

// SignerMode selects which branch ResolveSigningSource takes.
type SignerMode string

const (
	// ModeEnvPK derives a signature-producing source from a raw private key.
	ModeEnvPK SignerMode = "env_pk"
	// ModeStaticHeader derives a static-header source from a fixed value.
	ModeStaticHeader SignerMode = "static_header"
)

// Secrets is the narrow set of values the resolver reads; callers
// assemble it from wherever they load configuration (the core never
// touches an environment or a secrets store directly).
type Secrets struct {
	PrivateKey          string
	StaticPaymentHeader string
}

// Options are the non-secret inputs to resolution.
type Options struct {
	SignerMode    SignerMode
	PaymentHeader string
}

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// normalizePrivateKey accepts a leading "0X" and rewrites it to
// lowercase "0x", trims surrounding whitespace, and validates the
// result against the 32-byte hex pattern. Returns "", false on any
// failure.
func normalizePrivateKey(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed[2:]
	}
	if !privateKeyPattern.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

// ChainClientResolver produces a NonceReader for a resolved chain; it
// is the injected external collaborator that performs the on-chain
// Permit nonce read. Supplied by the host, never constructed here.
type ChainClientResolver func(network string) (NonceReader, error)

// ResolveSigningSource is a pure function from configuration and
// secrets to a SigningSource. It performs no I/O itself; env_pk mode
// defers all on-chain work to the returned SignFunc.
func ResolveSigningSource(opts Options, secrets Secrets, resolveClient ChainClientResolver, signerOpts ...SignerOption) (types.SigningSource, error) {
	mode := opts.SignerMode
	if mode == "" {
		mode = ModeEnvPK
	}

	switch mode {
	case ModeStaticHeader:
		value := strings.TrimSpace(secrets.StaticPaymentHeader)
		if value == "" {
			return types.SigningSource{}, errors.NewPaymentError(
				errors.ErrCodeMissingStaticHeader,
				"X402_STATIC_PAYMENT_HEADER is required in static_header mode",
				nil,
			)
		}
		headerName := opts.PaymentHeader
		if headerName == "" {
			headerName = types.DefaultPaymentHeader
		}
		return types.SigningSource{
			Mode:        types.ModeStaticHeader,
			HeaderName:  headerName,
			HeaderValue: value,
		}, nil

	case ModeEnvPK:
		key, ok := normalizePrivateKey(secrets.PrivateKey)
		if !ok {
			return types.SigningSource{}, errors.NewPaymentError(
				errors.ErrCodeMissingPrivateKey,
				"X402_PRIVATE_KEY is missing or is not a 32-byte hex string",
				nil,
			)
		}
		signFunc, err := NewEVMPermitSigner(key, resolveClient, signerOpts...)
		if err != nil {
			return types.SigningSource{}, err
		}
		return types.SigningSource{
			Mode:     types.ModeSignature,
			SignFunc: signFunc,
		}, nil

	default:
		return types.SigningSource{}, errors.NewPaymentError(
			errors.ErrCodeInvalidSignerMode,
			"unsupported signer mode: "+string(mode),
			nil,
		)
	}
}

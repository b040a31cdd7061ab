// Package types holds the wire and domain types shared by the signer,
// header factory, and fetch interceptor.
package types

import "context"

// DefaultPaymentHeader is used when a RouterConfig doesn't name one.
const DefaultPaymentHeader = "PAYMENT-SIGNATURE"

// RouterConfig is the signing domain for a router: the network, asset,
// and recipient a PaymentPayload is built against.
//
// Address fields are case-insensitive but must be preserved byte-for-byte
// as given — callers that need canonical comparison should lowercase
// explicitly rather than relying on this type to do it for them.
type RouterConfig struct {
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	FacilitatorSigner string `json:"facilitatorSigner"`
	TokenName         string `json:"tokenName"`
	TokenVersion      string `json:"tokenVersion"`
	PaymentHeader     string `json:"paymentHeader,omitempty"`
}

// HeaderName returns config.PaymentHeader, defaulting to PAYMENT-SIGNATURE.
func (c RouterConfig) HeaderName() string {
	if c.PaymentHeader != "" {
		return c.PaymentHeader
	}
	return DefaultPaymentHeader
}

// SameDomain reports whether two configs share the (network, asset, payTo)
// tuple that characterizes a cached header's validity.
func (c RouterConfig) SameDomain(other RouterConfig) bool {
	return c.Network == other.Network && c.Asset == other.Asset && c.PayTo == other.PayTo
}

// SignatureInput is the contract the header factory passes into a
// SignFunc: the full signing domain, the cap being authorized, and an
// optional floor on the deadline (set only on a forced refresh after a
// payment challenge).
type SignatureInput struct {
	RouterConfig
	PermitCap            string
	MinDeadlineExclusive *int64
}

// SignatureOutput is what a SignFunc returns: the signature over the
// Permit struct, the nonce and deadline it was signed against (as
// decimal strings, never numbers — they must survive 256-bit range),
// and the address that produced the signature.
type SignatureOutput struct {
	Signature      string
	Nonce          string
	Deadline       string
	AccountAddress string
}

// SignFunc produces a signed authorization for the given input. Errors
// are propagated to the caller of Factory.GetHeader and are never
// retried by the core.
type SignFunc func(ctx context.Context, input SignatureInput) (SignatureOutput, error)

// SigningSourceMode tags a SigningSource's variant.
type SigningSourceMode string

const (
	// ModeSignature means requests are authorized by invoking SignFunc
	// per miss/refresh.
	ModeSignature SigningSourceMode = "signature"
	// ModeStaticHeader means every chargeable request carries the same
	// fixed header value; no signing ever happens.
	ModeStaticHeader SigningSourceMode = "static_header"
)

// BeforeSignHook is invoked immediately before the header factory calls
// into SignFunc. It is purely observational: it cannot abort or alter
// the signing call, unlike the richer hook contracts some payment
// clients expose.
type BeforeSignHook func(ctx context.Context, input SignatureInput)

// AfterSignHook is invoked after SignFunc returns successfully.
type AfterSignHook func(ctx context.Context, input SignatureInput, output SignatureOutput)

// OnSignFailureHook is invoked after SignFunc returns an error. The
// error returned to the factory's caller is unchanged by the hook.
type OnSignFailureHook func(ctx context.Context, input SignatureInput, err error)

// SigningSource is a discriminated union: either a signature-producing
// function or a static header name/value pair. Tagging it with Mode
// lets callers branch on a single field instead of nil-checking
// pointers.
type SigningSource struct {
	Mode SigningSourceMode

	// Set when Mode == ModeSignature.
	SignFunc SignFunc

	// Set when Mode == ModeStaticHeader.
	HeaderName  string
	HeaderValue string
}

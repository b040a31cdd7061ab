package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the only wire version this module produces or accepts.
const X402Version = 2

// Scheme is the payment scheme name carried in every PaymentPayload.
const Scheme = "upto"

// PaymentPayload is the JSON shape that gets base64-encoded into the
// router's payment header.
type PaymentPayload struct {
	X402Version int      `json:"x402Version"`
	Accepted    Accepted `json:"accepted"`
	Payload     Payload  `json:"payload"`
}

// Accepted describes the domain a PaymentPayload was signed against.
type Accepted struct {
	Scheme  string        `json:"scheme"`
	Network string        `json:"network"`
	Asset   string        `json:"asset"`
	PayTo   string        `json:"payTo"`
	Extra   AcceptedExtra `json:"extra"`
}

// AcceptedExtra carries the EIP-712 domain fields of the token contract.
type AcceptedExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Payload wraps the signed authorization.
type Payload struct {
	Authorization Authorization `json:"authorization"`
	Signature     string        `json:"signature"`
}

// Authorization is the Permit-shaped grant: from (signer), to
// (facilitatorSigner), value (cap), validBefore (deadline), nonce — all
// as decimal strings so 256-bit values survive JSON round-trips intact.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// BuildPaymentPayload assembles the wire payload from a signing domain,
// the cap authorized, and the signer's output.
func BuildPaymentPayload(cfg RouterConfig, cap string, out SignatureOutput) PaymentPayload {
	return PaymentPayload{
		X402Version: X402Version,
		Accepted: Accepted{
			Scheme:  Scheme,
			Network: cfg.Network,
			Asset:   cfg.Asset,
			PayTo:   cfg.PayTo,
			Extra: AcceptedExtra{
				Name:    cfg.TokenName,
				Version: cfg.TokenVersion,
			},
		},
		Payload: Payload{
			Authorization: Authorization{
				From:        out.AccountAddress,
				To:          cfg.FacilitatorSigner,
				Value:       cap,
				ValidBefore: out.Deadline,
				Nonce:       out.Nonce,
			},
			Signature: out.Signature,
		},
	}
}

// EncodePaymentPayload JSON-marshals then base64-encodes a payload for
// use as an HTTP header value.
func EncodePaymentPayload(p PaymentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentPayload reverses EncodePaymentPayload. Exported mainly
// for tests asserting the encode/decode round trip.
func DecodePaymentPayload(header string) (PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("decode base64 payment header: %w", err)
	}
	var p PaymentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PaymentPayload{}, fmt.Errorf("unmarshal payment payload: %w", err)
	}
	return p, nil
}

package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// PaymentRequiredHeader is the base64+JSON payload carried in a
// challenge response's PAYMENT-REQUIRED header. The core reads only
// the first element of Accepts.
type PaymentRequiredHeader struct {
	Accepts []PaymentRequirement `json:"accepts"`
}

// PaymentRequirement is one entry of a challenge's accepts array. PayTo
// and the cap fields arrive in either camelCase or snake_case depending
// on which server emitted them, so this type unmarshals both and
// exposes a single normalized view.
type PaymentRequirement struct {
	Scheme  string
	Network string
	Asset   string
	PayTo   string
	Extra   RequirementExtra
}

// RequirementExtra is the extra block of a PaymentRequirement: the
// token's EIP-712 domain fields plus the server's cap override.
type RequirementExtra struct {
	Name    string
	Version string
	// Cap is the first present of maxAmountRequired, max_amount_required,
	// maxAmount, max_amount, amount, in that order. Empty if none present.
	Cap string
}

type requirementWire struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
	Asset   string `json:"asset"`
	PayTo   string `json:"payTo"`
	PayTo2  string `json:"pay_to"`
	Extra   struct {
		Name              string `json:"name"`
		Version           string `json:"version"`
		MaxAmountRequired string `json:"maxAmountRequired"`
		MaxAmountReq2     string `json:"max_amount_required"`
		MaxAmount         string `json:"maxAmount"`
		MaxAmount2        string `json:"max_amount"`
		Amount            string `json:"amount"`
	} `json:"extra"`
}

// UnmarshalJSON accepts either casing of payTo and applies the
// cap-precedence rule across the five possible extra fields.
func (r *PaymentRequirement) UnmarshalJSON(data []byte) error {
	var w requirementWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Scheme = w.Scheme
	r.Network = w.Network
	r.Asset = w.Asset
	r.PayTo = w.PayTo
	if r.PayTo == "" {
		r.PayTo = w.PayTo2
	}
	r.Extra = RequirementExtra{
		Name:    w.Extra.Name,
		Version: w.Extra.Version,
		Cap:     firstNonEmpty(w.Extra.MaxAmountRequired, w.Extra.MaxAmountReq2, w.Extra.MaxAmount, w.Extra.MaxAmount2, w.Extra.Amount),
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodePaymentRequiredHeader base64-decodes and JSON-parses the
// PAYMENT-REQUIRED header value.
func DecodePaymentRequiredHeader(value string) (PaymentRequiredHeader, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return PaymentRequiredHeader{}, fmt.Errorf("decode base64 payment-required header: %w", err)
	}
	var h PaymentRequiredHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return PaymentRequiredHeader{}, fmt.Errorf("unmarshal payment-required header: %w", err)
	}
	return h, nil
}

// ErrorResponse is the normalized shape of a 401/402 response body,
// accepting either a flat {code,error,message} object or one nested
// under an "error" key.
type ErrorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type nestedErrorWire struct {
	Error struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
		Error   string `json:"error"`
	} `json:"error"`
}

// ParseErrorResponse parses a challenge response body, trying the flat
// shape first and falling back to the nested error shape. Returns nil
// if the body is not valid JSON in either shape.
func ParseErrorResponse(body []byte) *ErrorResponse {
	var flat ErrorResponse
	if err := json.Unmarshal(body, &flat); err == nil && (flat.Code != "" || flat.Error != "" || flat.Message != "") {
		return &flat
	}
	var nested nestedErrorWire
	if err := json.Unmarshal(body, &nested); err == nil {
		code := nested.Error.Code
		if code == "" {
			code = nested.Error.Type
		}
		errStr := nested.Error.Error
		if errStr == "" {
			errStr = nested.Error.Type
		}
		if code != "" || errStr != "" || nested.Error.Message != "" {
			return &ErrorResponse{Code: code, Error: errStr, Message: nested.Error.Message}
		}
	}
	return nil
}

// classifiablePhrases are substring-matched, case-insensitively,
// against Error+Message when Code is empty.
var classifiablePhrases = []string{
	"cap exhausted",
	"session closed",
	"settlement blocked",
	"blocked after previous settlement",
}

// classifiableCodes are matched exactly against Code.
var classifiableCodes = map[string]bool{
	"cap_exhausted":      true,
	"session_closed":     true,
	"settlement_blocked": true,
}

// IsRetriable reports whether e classifies as one of the retriable
// payment-challenge conditions: by exact code match when Code is set,
// or, only when Code is empty, by a case-insensitive substring match on
// error+message. A set but unknown code is not retriable.
func (e *ErrorResponse) IsRetriable() bool {
	if e == nil {
		return false
	}
	if e.Code != "" {
		return classifiableCodes[e.Code]
	}
	haystack := strings.ToLower(e.Error + " " + e.Message)
	for _, phrase := range classifiablePhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

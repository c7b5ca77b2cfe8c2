// Package lnurl implements the string encoding and the wire types of the
// LNURL family of protocols (LUD-01 bech32 form, LUD-03 withdraw, LUD-06 pay,
// LUD-09 success action).
package lnurl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Prefix is the human-readable part of an encoded LNURL.
const Prefix = "lnurl"

// Encode converts a clearnet URL to its bech32 LNURL form, uppercased for
// QR-friendly transport ("LNURL1...").
func Encode(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert url to base32: %w", err)
	}
	encoded, err := bech32.Encode(Prefix, converted)
	if err != nil {
		return "", fmt.Errorf("failed to bech32-encode url: %w", err)
	}
	return strings.ToUpper(encoded), nil
}

// Decode converts a bech32 LNURL string (either case) back to the clearnet
// URL it wraps. LNURLs routinely exceed the 90-char bech32 limit, so the
// unlimited decoder is used.
func Decode(lnurl string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurl))
	if err != nil {
		return "", fmt.Errorf("failed to bech32-decode lnurl: %w", err)
	}
	if hrp != Prefix {
		return "", fmt.Errorf("unexpected bech32 prefix %q", hrp)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("failed to convert lnurl payload to bytes: %w", err)
	}
	return string(converted), nil
}

// ErrorResponse is the LNURL error envelope: {"status":"ERROR","reason":...}.
type ErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Error builds an ErrorResponse with the given user-facing reason.
func Error(reason string) ErrorResponse {
	return ErrorResponse{Status: "ERROR", Reason: reason}
}

// SuccessResponse is the LNURL success envelope: {"status":"OK"}.
type SuccessResponse struct {
	Status string `json:"status"`
}

// Success builds the {"status":"OK"} response.
func Success() SuccessResponse {
	return SuccessResponse{Status: "OK"}
}

// WithdrawResponse is the LUD-03 second-step response. Amounts are satoshis,
// matching what the ledger accounts in.
type WithdrawResponse struct {
	Tag                string `json:"tag"`
	Callback           string `json:"callback"`
	K1                 string `json:"k1"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
	MinWithdrawable    int64  `json:"minWithdrawable"`
	DefaultDescription string `json:"defaultDescription"`
}

// NewWithdrawResponse fills the fixed tag field required by LUD-03.
func NewWithdrawResponse(callback, k1 string, max, min int64, description string) WithdrawResponse {
	return WithdrawResponse{
		Tag:                "withdrawRequest",
		Callback:           callback,
		K1:                 k1,
		MaxWithdrawable:    max,
		MinWithdrawable:    min,
		DefaultDescription: description,
	}
}

// PayResponse is the LUD-06 first-step response.
type PayResponse struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Metadata    string `json:"metadata"`
}

// NewPayResponse fills the fixed tag field required by LUD-06.
func NewPayResponse(callback string, min, max int64, metadata string) PayResponse {
	return PayResponse{
		Tag:         "payRequest",
		Callback:    callback,
		MinSendable: min,
		MaxSendable: max,
		Metadata:    metadata,
	}
}

// PayMetadata serializes the LUD-06 metadata array for a plain-text
// description: [["text/plain","..."]].
func PayMetadata(textPlain string) string {
	raw, err := json.Marshal([][]string{{"text/plain", textPlain}})
	if err != nil {
		// a two-string array cannot fail to marshal
		return `[["text/plain",""]]`
	}
	return string(raw)
}

// SuccessAction is the LUD-09 message shown by the wallet after payment.
type SuccessAction struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// MessageAction builds a "message" success action.
func MessageAction(message string) *SuccessAction {
	return &SuccessAction{Tag: "message", Message: message}
}

// PayActionResponse is the LUD-06 second-step response carrying the invoice.
type PayActionResponse struct {
	PR            string         `json:"pr"`
	SuccessAction *SuccessAction `json:"successAction"`
	Routes        []string       `json:"routes"`
}

// NewPayActionResponse wraps a bolt11 invoice. Routes is always present and
// empty per LUD-06.
func NewPayActionResponse(bolt11 string, action *SuccessAction) PayActionResponse {
	return PayActionResponse{
		PR:            bolt11,
		SuccessAction: action,
		Routes:        []string{},
	}
}

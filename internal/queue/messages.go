// Package queue defines the messages exchanged over the Redis Streams used
// to decouple HTTP request handling from Lightning node calls.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// PayInvoiceStream carries redeemed withdraws waiting to be paid.
const PayInvoiceStream = "pay_invoice"

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

// PayInvoiceMessage asks the dispatcher to pay a redeemed withdraw invoice.
type PayInvoiceMessage struct {
	K1          string `json:"k1"`
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
	FeeLimitSat int64  `json:"fee_limit_sat"`
}

// Validate checks the message is well formed before it is enqueued or acted on.
func (m *PayInvoiceMessage) Validate() error {
	if !hexHash.MatchString(m.K1) {
		return fmt.Errorf("invalid k1 %q", m.K1)
	}
	if !hexHash.MatchString(m.PaymentHash) {
		return fmt.Errorf("invalid payment hash %q", m.PaymentHash)
	}
	if m.Bolt11 == "" {
		return errors.New("missing bolt11")
	}
	if m.FeeLimitSat <= 0 {
		return fmt.Errorf("invalid fee limit %d", m.FeeLimitSat)
	}
	return nil
}

// ToJSON serializes the message for the stream payload.
func (m *PayInvoiceMessage) ToJSON() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pay invoice message: %w", err)
	}
	return string(raw), nil
}

// FromJSONPayInvoice parses and validates a stream payload.
func FromJSONPayInvoice(data string) (*PayInvoiceMessage, error) {
	var m PayInvoiceMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pay invoice message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

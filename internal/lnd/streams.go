package lnd

import (
	"context"
	"encoding/hex"
	"fmt"

	"ln-gateway/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
)

// PaymentState is the terminal outcome of an outgoing payment.
type PaymentState int

const (
	PaymentStateSucceeded PaymentState = iota
	PaymentStateFailed
)

func (s PaymentState) String() string {
	switch s {
	case PaymentStateSucceeded:
		return "SUCCEEDED"
	case PaymentStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// PaymentUpdate is one terminal event from the payment tracking stream.
type PaymentUpdate struct {
	PaymentHash   string
	Preimage      string
	ValueSat      int64
	FeeSat        int64
	State         PaymentState
	FailureReason string
}

// TrackPayments subscribes to terminal outcomes of all outgoing payments.
// The returned channel closes when the stream breaks or ctx is cancelled;
// the caller is expected to resubscribe.
func (c *Client) TrackPayments(ctx context.Context) (<-chan PaymentUpdate, error) {
	stream, err := c.routerClient.TrackPayments(ctx, &routerrpc.TrackPaymentsRequest{
		NoInflightUpdates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to payment updates: %w", err)
	}

	updates := make(chan PaymentUpdate)
	go func() {
		defer close(updates)
		for {
			payment, err := stream.Recv()
			if err != nil {
				logger.Warn("Payment tracking stream closed", zap.Error(err))
				return
			}

			var state PaymentState
			switch payment.Status {
			case lnrpc.Payment_SUCCEEDED:
				state = PaymentStateSucceeded
			case lnrpc.Payment_FAILED:
				state = PaymentStateFailed
			default:
				continue
			}

			update := PaymentUpdate{
				PaymentHash:   payment.PaymentHash,
				Preimage:      payment.PaymentPreimage,
				ValueSat:      payment.ValueSat,
				FeeSat:        payment.FeeSat,
				State:         state,
				FailureReason: payment.FailureReason.String(),
			}

			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}

// PaidInvoices subscribes to incoming invoice updates and forwards settled
// ones. The returned channel closes when the stream breaks or ctx is
// cancelled; the caller is expected to resubscribe.
func (c *Client) PaidInvoices(ctx context.Context) (<-chan *Invoice, error) {
	stream, err := c.lnClient.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to invoice updates: %w", err)
	}

	settled := make(chan *Invoice)
	go func() {
		defer close(settled)
		for {
			invoice, err := stream.Recv()
			if err != nil {
				logger.Warn("Invoice stream closed", zap.Error(err))
				return
			}

			if invoice.State != lnrpc.Invoice_SETTLED {
				continue
			}

			preimage := hex.EncodeToString(invoice.RPreimage)
			inv := &Invoice{
				PaymentHash:  hex.EncodeToString(invoice.RHash),
				Bolt11:       invoice.PaymentRequest,
				State:        "SETTLED",
				Preimage:     &preimage,
				NumSatoshis:  invoice.Value,
				Timestamp:    invoice.CreationDate,
				Expiry:       invoice.Expiry,
				Description:  invoice.Memo,
				FallbackAddr: invoice.FallbackAddr,
				CltvExpiry:   int64(invoice.CltvExpiry),
				RouteHints:   marshalJSONText(invoice.RouteHints),
				Features:     marshalJSONText(invoice.Features),
			}

			select {
			case settled <- inv:
			case <-ctx.Done():
				return
			}
		}
	}()

	return settled, nil
}

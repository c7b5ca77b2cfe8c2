package lnd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ln-gateway/internal/database"
	"ln-gateway/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
)

// Invoice is a decoded BOLT11 invoice in the ledger's representation.
// RouteHints and Features carry the node's structured blobs as JSON text.
type Invoice = database.Invoice

// DecodeInvoice decodes a BOLT11 invoice string without paying it.
func (c *Client) DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error) {
	resp, err := c.lnClient.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: bolt11})
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}

	return payReqToInvoice(resp, bolt11), nil
}

// CreateInvoice asks the node for a fresh invoice over the given amount and
// returns it fully decoded.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	resp, err := c.lnClient.AddInvoice(ctx, &lnrpc.Invoice{
		Value: amountSats,
		Memo:  memo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add invoice: %w", err)
	}

	inv, err := c.DecodeInvoice(ctx, resp.PaymentRequest)
	if err != nil {
		return nil, err
	}
	inv.State = "OPEN"
	return inv, nil
}

// PayInvoice starts paying a BOLT11 invoice via the Router sub-server's
// SendPaymentV2 streaming RPC and returns once the node has accepted the
// attempt. The stream is drained in the background; the terminal outcome is
// observed on the TrackPayments stream and reconciled there, so the caller's
// request lifetime never bounds the payment.
func (c *Client) PayInvoice(ctx context.Context, bolt11 string, feeLimitSats int64) error {
	req := &routerrpc.SendPaymentRequest{
		PaymentRequest:    bolt11,
		TimeoutSeconds:    int32(c.cfg.PaymentTimeoutSeconds),
		FeeLimitSat:       feeLimitSats,
		NoInflightUpdates: true,
	}

	stream, err := c.routerClient.SendPaymentV2(context.WithoutCancel(ctx), req)
	if err != nil {
		return fmt.Errorf("failed to initiate payment: %w", err)
	}

	go func() {
		for {
			payment, err := stream.Recv()
			if err != nil {
				if err != io.EOF {
					logger.Warn("Payment stream closed", zap.Error(err))
				}
				return
			}
			logger.Info("Payment update",
				zap.String("payment_hash", payment.PaymentHash),
				zap.String("status", payment.Status.String()),
			)
			if payment.Status == lnrpc.Payment_SUCCEEDED || payment.Status == lnrpc.Payment_FAILED {
				return
			}
		}
	}()

	return nil
}

func payReqToInvoice(resp *lnrpc.PayReq, bolt11 string) *Invoice {
	return &Invoice{
		PaymentHash:     resp.PaymentHash,
		Bolt11:          bolt11,
		State:           "OPEN",
		Destination:     resp.Destination,
		NumSatoshis:     resp.NumSatoshis,
		Timestamp:       resp.Timestamp,
		Expiry:          resp.Expiry,
		Description:     resp.Description,
		DescriptionHash: resp.DescriptionHash,
		FallbackAddr:    resp.FallbackAddr,
		CltvExpiry:      resp.CltvExpiry,
		RouteHints:      marshalJSONText(resp.RouteHints),
		PaymentAddr:     hex.EncodeToString(resp.PaymentAddr),
		Features:        marshalJSONText(resp.Features),
	}
}

// IsExpired reports whether an invoice's expiry window has passed.
func IsExpired(inv *Invoice, now time.Time) bool {
	return now.After(time.Unix(inv.Timestamp+inv.Expiry, 0))
}

func marshalJSONText(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

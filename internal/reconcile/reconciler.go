package reconcile

import (
	"context"
	"errors"

	"ln-gateway/internal/lnd"
	"ln-gateway/pkg/logger"

	"go.uber.org/zap"
)

// WithdrawLedger is the slice of the ledger the payment reconciler writes to.
type WithdrawLedger interface {
	FinalizePayment(ctx context.Context, paymentHash, preimage string, valueSat, feeSat int64) error
	FailPayment(ctx context.Context, paymentHash, reason string) error
}

// DepositLedger is the slice of the ledger the deposit reconciler writes to.
type DepositLedger interface {
	Finalize(ctx context.Context, paymentHash, preimage string, amountSat int64) error
}

// PaymentSource opens a stream of terminal payment outcomes.
type PaymentSource interface {
	TrackPayments(ctx context.Context) (<-chan lnd.PaymentUpdate, error)
}

// InvoiceSource opens a stream of settled incoming invoices.
type InvoiceSource interface {
	PaidInvoices(ctx context.Context) (<-chan *lnd.Invoice, error)
}

// errStreamClosed signals the supervisor to resubscribe.
var errStreamClosed = errors.New("event stream closed")

// PaymentReconciler consumes payment outcomes and settles or rolls back the
// corresponding withdraws. Both ledger operations are idempotent, so a crash
// between the node event and the database write is repaired by the replay
// after restart.
type PaymentReconciler struct {
	node   PaymentSource
	ledger WithdrawLedger
}

func NewPaymentReconciler(node PaymentSource, ledger WithdrawLedger) *PaymentReconciler {
	return &PaymentReconciler{node: node, ledger: ledger}
}

// Run consumes the payment stream until it closes or ctx is cancelled.
func (r *PaymentReconciler) Run(ctx context.Context) error {
	updates, err := r.node.TrackPayments(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errStreamClosed
			}
			r.apply(ctx, update)
		}
	}
}

func (r *PaymentReconciler) apply(ctx context.Context, update lnd.PaymentUpdate) {
	switch update.State {
	case lnd.PaymentStateSucceeded:
		logger.Info("Payment succeeded",
			zap.String("payment_hash", update.PaymentHash),
			zap.Int64("value_sat", update.ValueSat),
			zap.Int64("fee_sat", update.FeeSat),
		)
		if err := r.ledger.FinalizePayment(ctx, update.PaymentHash, update.Preimage, update.ValueSat, update.FeeSat); err != nil {
			logger.Error("Failed to finalize payment",
				zap.String("payment_hash", update.PaymentHash), zap.Error(err))
		}
	case lnd.PaymentStateFailed:
		logger.Warn("Payment failed",
			zap.String("payment_hash", update.PaymentHash),
			zap.String("reason", update.FailureReason),
		)
		if err := r.ledger.FailPayment(ctx, update.PaymentHash, update.FailureReason); err != nil {
			logger.Error("Failed to roll back payment",
				zap.String("payment_hash", update.PaymentHash), zap.Error(err))
		}
	}
}

// DepositReconciler consumes settled invoices and credits the corresponding
// deposits. Settlements for invoices the ledger never issued are skipped by
// the ledger itself.
type DepositReconciler struct {
	node   InvoiceSource
	ledger DepositLedger
}

func NewDepositReconciler(node InvoiceSource, ledger DepositLedger) *DepositReconciler {
	return &DepositReconciler{node: node, ledger: ledger}
}

// Run consumes the invoice stream until it closes or ctx is cancelled.
func (r *DepositReconciler) Run(ctx context.Context) error {
	settled, err := r.node.PaidInvoices(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case inv, ok := <-settled:
			if !ok {
				return errStreamClosed
			}
			preimage := ""
			if inv.Preimage != nil {
				preimage = *inv.Preimage
			}
			logger.Info("Invoice settled",
				zap.String("payment_hash", inv.PaymentHash),
				zap.Int64("amount_sat", inv.NumSatoshis),
			)
			if err := r.ledger.Finalize(ctx, inv.PaymentHash, preimage, inv.NumSatoshis); err != nil {
				logger.Error("Failed to finalize deposit",
					zap.String("payment_hash", inv.PaymentHash), zap.Error(err))
			}
		}
	}
}

package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"ln-gateway/internal/lnd"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWithdrawLedger struct {
	finalized []lnd.PaymentUpdate
	failed    []lnd.PaymentUpdate
}

func (f *fakeWithdrawLedger) FinalizePayment(ctx context.Context, paymentHash, preimage string, valueSat, feeSat int64) error {
	f.finalized = append(f.finalized, lnd.PaymentUpdate{
		PaymentHash: paymentHash, Preimage: preimage, ValueSat: valueSat, FeeSat: feeSat,
	})
	return nil
}

func (f *fakeWithdrawLedger) FailPayment(ctx context.Context, paymentHash, reason string) error {
	f.failed = append(f.failed, lnd.PaymentUpdate{PaymentHash: paymentHash, FailureReason: reason})
	return nil
}

type fakePaymentSource struct {
	updates chan lnd.PaymentUpdate
}

func (f *fakePaymentSource) TrackPayments(ctx context.Context) (<-chan lnd.PaymentUpdate, error) {
	return f.updates, nil
}

type fakeDepositLedger struct {
	finalized []*lnd.Invoice
}

func (f *fakeDepositLedger) Finalize(ctx context.Context, paymentHash, preimage string, amountSat int64) error {
	inv := &lnd.Invoice{PaymentHash: paymentHash, NumSatoshis: amountSat}
	if preimage != "" {
		inv.Preimage = &preimage
	}
	f.finalized = append(f.finalized, inv)
	return nil
}

type fakeInvoiceSource struct {
	settled chan *lnd.Invoice
}

func (f *fakeInvoiceSource) PaidInvoices(ctx context.Context) (<-chan *lnd.Invoice, error) {
	return f.settled, nil
}

func TestPaymentReconciler_AppliesOutcomes(t *testing.T) {
	source := &fakePaymentSource{updates: make(chan lnd.PaymentUpdate, 2)}
	ledger := &fakeWithdrawLedger{}

	hash1 := strings.Repeat("a1", 32)
	hash2 := strings.Repeat("b2", 32)
	source.updates <- lnd.PaymentUpdate{
		PaymentHash: hash1,
		Preimage:    strings.Repeat("c3", 32),
		ValueSat:    60000,
		FeeSat:      12,
		State:       lnd.PaymentStateSucceeded,
	}
	source.updates <- lnd.PaymentUpdate{
		PaymentHash:   hash2,
		State:         lnd.PaymentStateFailed,
		FailureReason: "FAILURE_REASON_NO_ROUTE",
	}
	close(source.updates)

	r := NewPaymentReconciler(source, ledger)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, errStreamClosed)

	require.Len(t, ledger.finalized, 1)
	assert.Equal(t, hash1, ledger.finalized[0].PaymentHash)
	assert.Equal(t, int64(60000), ledger.finalized[0].ValueSat)
	assert.Equal(t, int64(12), ledger.finalized[0].FeeSat)

	require.Len(t, ledger.failed, 1)
	assert.Equal(t, hash2, ledger.failed[0].PaymentHash)
	assert.Equal(t, "FAILURE_REASON_NO_ROUTE", ledger.failed[0].FailureReason)
}

func TestPaymentReconciler_StopsOnCancel(t *testing.T) {
	source := &fakePaymentSource{updates: make(chan lnd.PaymentUpdate)}
	r := NewPaymentReconciler(source, &fakeWithdrawLedger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}

func TestDepositReconciler_CreditsSettledInvoices(t *testing.T) {
	source := &fakeInvoiceSource{settled: make(chan *lnd.Invoice, 1)}
	ledger := &fakeDepositLedger{}

	hash := strings.Repeat("d4", 32)
	preimage := strings.Repeat("e5", 32)
	source.settled <- &lnd.Invoice{
		PaymentHash: hash,
		Preimage:    &preimage,
		NumSatoshis: 150000,
		State:       "SETTLED",
	}
	close(source.settled)

	r := NewDepositReconciler(source, ledger)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, errStreamClosed)

	require.Len(t, ledger.finalized, 1)
	assert.Equal(t, hash, ledger.finalized[0].PaymentHash)
	assert.Equal(t, int64(150000), ledger.finalized[0].NumSatoshis)
	require.NotNil(t, ledger.finalized[0].Preimage)
	assert.Equal(t, preimage, *ledger.finalized[0].Preimage)
}

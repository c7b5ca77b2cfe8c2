package gateway

import (
	"context"

	"ln-gateway/internal/queue"
	"ln-gateway/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dispatchGroup = "pay_dispatchers"

// Payer initiates outgoing payments without waiting for settlement.
type Payer interface {
	PayInvoice(ctx context.Context, bolt11 string, feeLimitSats int64) error
}

// Consumer reads pay-dispatch messages from the stream queue.
type Consumer interface {
	DeclareStream(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, handler func(messageID string, data []byte) error) error
}

// Dispatcher drains the pay_invoice stream and hands each redeemed withdraw
// to the node. Settlement is reconciled from the payment stream, so a message
// is acked as soon as the node accepts the attempt.
type Dispatcher struct {
	queue    Consumer
	node     Payer
	consumer string
}

func NewDispatcher(q Consumer, node Payer) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		node:     node,
		consumer: "dispatcher-" + uuid.New().String(),
	}
}

// Run consumes the stream until ctx is cancelled. Suitable for running under
// the reconcile supervisor.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.queue.DeclareStream(ctx, queue.PayInvoiceStream, dispatchGroup); err != nil {
		return err
	}
	return d.queue.Consume(ctx, queue.PayInvoiceStream, dispatchGroup, d.consumer, d.handle)
}

func (d *Dispatcher) handle(messageID string, data []byte) error {
	msg, err := queue.FromJSONPayInvoice(string(data))
	if err != nil {
		// Malformed messages are acked, retrying cannot fix them.
		logger.Error("Dropping malformed pay message",
			zap.String("messageID", messageID), zap.Error(err))
		return nil
	}

	if err := d.node.PayInvoice(context.Background(), msg.Bolt11, msg.FeeLimitSat); err != nil {
		logger.Error("Failed to dispatch payment",
			zap.String("payment_hash", msg.PaymentHash), zap.Error(err))
		return err
	}

	logger.Info("Payment dispatched",
		zap.String("payment_hash", msg.PaymentHash),
		zap.Int64("fee_limit_sat", msg.FeeLimitSat),
	)
	return nil
}

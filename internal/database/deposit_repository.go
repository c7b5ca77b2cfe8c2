package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateDeposit is returned when a deposit already exists for the payment hash
var ErrDuplicateDeposit = errors.New("deposit request payment hash already exists")

// DepositRepository handles the deposit side of the ledger: requests,
// invoices and settlement transactions.
type DepositRepository struct {
	db *pgxpool.Pool
}

// NewDepositRepository creates a new deposit repository instance
func NewDepositRepository(db *DB) *DepositRepository {
	return &DepositRepository{
		db: db.pool,
	}
}

// Create inserts the deposit request together with its invoice in one
// transaction, so an issued invoice is always accounted for.
// Returns ErrDuplicateDeposit if the payment hash is already tracked.
func (r *DepositRepository) Create(ctx context.Context, req *DepositRequest, inv *Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin deposit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO deposit_requests (userid, payment_hash, status, amount, ts_created)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = tx.Exec(
		ctx,
		query,
		req.UserID,
		req.PaymentHash,
		req.Status.String(),
		req.Amount,
		req.TsCreated,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateDeposit
		}
		return fmt.Errorf("failed to create deposit request: %w", err)
	}

	if err := insertInvoice(ctx, tx, "deposit_invoices", inv); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deposit transaction: %w", err)
	}
	return nil
}

// GetByPaymentHash retrieves a deposit request by the invoice payment hash.
// Returns ErrRequestNotFound if the hash is not tracked.
func (r *DepositRepository) GetByPaymentHash(ctx context.Context, paymentHash string) (*DepositRequest, error) {
	query := `SELECT userid, payment_hash, status, amount, ts_created
		FROM deposit_requests WHERE payment_hash = $1`

	var req DepositRequest
	var statusStr string
	err := r.db.QueryRow(ctx, query, paymentHash).Scan(
		&req.UserID,
		&req.PaymentHash,
		&statusStr,
		&req.Amount,
		&req.TsCreated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get deposit request with hash %s: %w", paymentHash, err)
	}

	req.Status = ParseDepositStatus(statusStr)
	return &req, nil
}

// Finalize settles an incoming payment in one transaction: the invoice state
// and preimage are recorded, a deposit transaction is appended and the user's
// balance is credited. Unknown payment hashes are ignored so the invoice
// stream can report settlements this ledger never issued. The balance credit
// only happens when the transaction insert actually lands, which makes
// replayed settlement events no-ops.
func (r *DepositRepository) Finalize(ctx context.Context, paymentHash, preimage string, amountSat int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	lookupQuery := `SELECT userid FROM deposit_requests WHERE payment_hash = $1 FOR UPDATE`
	err = tx.QueryRow(ctx, lookupQuery, paymentHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// settlement for an invoice this ledger does not track
			return nil
		}
		return fmt.Errorf("failed to look up deposit for payment %s: %w", paymentHash, err)
	}

	now := time.Now().UTC().Unix()

	transactionQuery := `INSERT INTO deposit_transactions (payment_hash, userid, amount, ts_create)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`
	commandTag, err := tx.Exec(ctx, transactionQuery, paymentHash, userID, amountSat, now)
	if err != nil {
		return fmt.Errorf("failed to append deposit transaction for payment %s: %w", paymentHash, err)
	}

	if commandTag.RowsAffected() > 0 {
		creditQuery := `INSERT INTO balances (userid, amount)
			VALUES ($1, $2)
			ON CONFLICT (userid) DO UPDATE SET amount = balances.amount + $2`
		if _, err := tx.Exec(ctx, creditQuery, userID, amountSat); err != nil {
			return fmt.Errorf("failed to credit balance of user %s: %w", userID, err)
		}
	}

	invoiceQuery := `UPDATE deposit_invoices
		SET state = 'SETTLED',
			preimage = $2
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, invoiceQuery, paymentHash, preimage); err != nil {
		return fmt.Errorf("failed to settle invoice %s: %w", paymentHash, err)
	}

	requestQuery := `UPDATE deposit_requests
		SET status = 'SETTLED'
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, requestQuery, paymentHash); err != nil {
		return fmt.Errorf("failed to settle deposit request %s: %w", paymentHash, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}
	return nil
}

// CountTransactions returns the number of deposit transactions recorded for a
// payment hash.
func (r *DepositRepository) CountTransactions(ctx context.Context, paymentHash string) (int, error) {
	query := `SELECT COUNT(*) FROM deposit_transactions WHERE payment_hash = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, paymentHash).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count deposit transactions for payment %s: %w", paymentHash, err)
	}

	return count, nil
}

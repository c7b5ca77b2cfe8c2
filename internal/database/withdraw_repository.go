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

var (
	// ErrRequestNotFound is returned when no withdraw request matches the selector
	ErrRequestNotFound = errors.New("withdraw request not found")
	// ErrDuplicateK1 is returned when trying to create a request with an existing k1
	ErrDuplicateK1 = errors.New("withdraw request k1 already exists")
	// ErrBalanceNotFound is returned when the user has no balance row
	ErrBalanceNotFound = errors.New("balance not found")
)

const (
	uniqueViolation      = "23505"
	checkViolation       = "23514"
	serializationFailure = "40001"
)

// WithdrawRepository handles all database operations for the withdraw side of
// the ledger: requests, invoices, payments, locked balances and transactions.
type WithdrawRepository struct {
	db *pgxpool.Pool
}

// NewWithdrawRepository creates a new withdraw repository instance
func NewWithdrawRepository(db *DB) *WithdrawRepository {
	return &WithdrawRepository{
		db: db.pool,
	}
}

// Create inserts a new withdraw request with status CREATED.
// Returns ErrDuplicateK1 if the k1 already exists.
func (r *WithdrawRepository) Create(ctx context.Context, req *WithdrawRequest) error {
	query := `INSERT INTO withdraw_requests (
		userid,
		k1,
		clearnet_url,
		lnurlw,
		lnurl,
		status,
		ts_created
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(
		ctx,
		query,
		req.UserID,
		req.K1,
		req.ClearnetURL,
		req.Lnurlw,
		req.Lnurl,
		req.Status.String(),
		req.TsCreated,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateK1
		}
		return fmt.Errorf("failed to create withdraw request: %w", err)
	}

	return nil
}

const withdrawRequestColumns = `userid, k1, clearnet_url, lnurlw, lnurl, redeemed,
	status, reason, payment_hash, bolt11, amount, destination,
	ts_created, ts_invoice, ts_paid`

func scanWithdrawRequest(row pgx.Row) (*WithdrawRequest, error) {
	var req WithdrawRequest
	var statusStr string

	err := row.Scan(
		&req.UserID,
		&req.K1,
		&req.ClearnetURL,
		&req.Lnurlw,
		&req.Lnurl,
		&req.Redeemed,
		&statusStr,
		&req.Reason,
		&req.PaymentHash,
		&req.Bolt11,
		&req.Amount,
		&req.Destination,
		&req.TsCreated,
		&req.TsInvoice,
		&req.TsPaid,
	)
	if err != nil {
		return nil, err
	}

	req.Status = ParseWithdrawStatus(statusStr)
	return &req, nil
}

// GetByK1 retrieves a withdraw request by its challenge.
// Returns ErrRequestNotFound if the k1 does not exist.
func (r *WithdrawRepository) GetByK1(ctx context.Context, k1 string) (*WithdrawRequest, error) {
	query := `SELECT ` + withdrawRequestColumns + ` FROM withdraw_requests WHERE k1 = $1`

	req, err := scanWithdrawRequest(r.db.QueryRow(ctx, query, k1))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get withdraw request with k1 %s: %w", k1, err)
	}

	return req, nil
}

// CountPending returns the number of the user's withdraw requests created
// inside the window that have not reached a terminal status yet.
func (r *WithdrawRepository) CountPending(ctx context.Context, userID string, window time.Duration) (int, error) {
	query := `SELECT COUNT(k1)
		FROM withdraw_requests
		WHERE userid = $1
		AND status NOT IN ('PAID', 'SETTLED', 'REJECTED', 'PAYMENT_FAILED')
		AND ts_created > $2`

	cutoff := time.Now().UTC().Add(-window).Unix()

	var pending int
	err := r.db.QueryRow(ctx, query, userID, cutoff).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending withdraw requests for user %s: %w", userID, err)
	}

	return pending, nil
}

// MarkRejected records an invalid invoice submission: the request keeps the
// decoded invoice fields and a reason, and moves to the terminal REJECTED
// status. Only requests still awaiting a redeem can be rejected; a request
// that already reached QUEUED or later is left untouched so an in-flight
// payment keeps its ledger row.
func (r *WithdrawRepository) MarkRejected(ctx context.Context, k1 string, inv *Invoice, reason string) error {
	query := `UPDATE withdraw_requests
		SET redeemed = TRUE,
			payment_hash = $2,
			ts_invoice = $3,
			amount = $4,
			destination = $5,
			status = 'REJECTED',
			reason = $6
		WHERE k1 = $1
		AND status IN ('CREATED', 'VERIFIED')`

	now := time.Now().UTC().Unix()
	commandTag, err := r.db.Exec(ctx, query, k1, inv.PaymentHash, now, inv.NumSatoshis, inv.Destination, reason)
	if err != nil {
		return fmt.Errorf("failed to reject withdraw request with k1 %s: %w", k1, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// UpdateStatusByK1 updates a single request selected by k1.
func (r *WithdrawRepository) UpdateStatusByK1(ctx context.Context, k1 string, status WithdrawStatus, reason string) error {
	query := `UPDATE withdraw_requests
		SET status = $2,
			reason = $3
		WHERE k1 = $1`

	commandTag, err := r.db.Exec(ctx, query, k1, status.String(), reason)
	if err != nil {
		return fmt.Errorf("failed to update withdraw request with k1 %s: %w", k1, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// UpdateStatusByPaymentHash updates a single request selected by payment hash.
func (r *WithdrawRepository) UpdateStatusByPaymentHash(ctx context.Context, paymentHash string, status WithdrawStatus, reason string) error {
	query := `UPDATE withdraw_requests
		SET status = $2,
			reason = $3
		WHERE payment_hash = $1`

	commandTag, err := r.db.Exec(ctx, query, paymentHash, status.String(), reason)
	if err != nil {
		return fmt.Errorf("failed to update withdraw request with payment hash %s: %w", paymentHash, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// Redeem performs the single-shot VERIFIED -> QUEUED transition in one
// database transaction:
//
//  1. lock the VERIFIED request row for this k1 (absent -> nil)
//  2. record the invoice fields on the request and set status QUEUED
//  3. debit the user's balance, guarded against going negative (short -> nil)
//  4. reserve the amount in locked_balances
//  5. insert the withdraw invoice row
//  6. insert the payment row with status INITIATED
//
// The row lock on withdraw_requests serializes concurrent redeems of the same
// k1: the first transaction to commit wins, later callers observe no VERIFIED
// row and get nil. Losing the race is not an error.
func (r *WithdrawRepository) Redeem(ctx context.Context, k1 string, inv *Invoice) (*WithdrawRequest, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin redeem transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	selectQuery := `SELECT ` + withdrawRequestColumns + `
		FROM withdraw_requests
		WHERE k1 = $1 AND status = 'VERIFIED'
		FOR UPDATE`

	req, err := scanWithdrawRequest(tx.QueryRow(ctx, selectQuery, k1))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// not VERIFIED (anymore): expired, already redeemed, or rejected
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock withdraw request with k1 %s: %w", k1, err)
	}

	now := time.Now().UTC().Unix()

	updateQuery := `UPDATE withdraw_requests
		SET redeemed = TRUE,
			payment_hash = $2,
			bolt11 = $3,
			ts_invoice = $4,
			amount = $5,
			destination = $6,
			status = 'QUEUED'
		WHERE k1 = $1`
	if _, err := tx.Exec(ctx, updateQuery, k1, inv.PaymentHash, inv.Bolt11, now, inv.NumSatoshis, inv.Destination); err != nil {
		return nil, fmt.Errorf("failed to queue withdraw request with k1 %s: %w", k1, err)
	}

	// The amount guard in the WHERE clause keeps the balance non-negative;
	// the balances check constraint backs it up.
	debitQuery := `UPDATE balances
		SET amount = amount - $2
		WHERE userid = $1 AND amount >= $2`
	commandTag, err := tx.Exec(ctx, debitQuery, req.UserID, inv.NumSatoshis)
	if err != nil {
		if redeemConflict(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to debit balance of user %s: %w", req.UserID, err)
	}
	if commandTag.RowsAffected() == 0 {
		// missing balance row or insufficient funds: abort the redeem
		return nil, nil
	}

	lockQuery := `INSERT INTO locked_balances (payment_hash, amount)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, lockQuery, inv.PaymentHash, inv.NumSatoshis); err != nil {
		return nil, fmt.Errorf("failed to lock balance for payment %s: %w", inv.PaymentHash, err)
	}

	if err := insertInvoice(ctx, tx, "withdraw_invoices", inv); err != nil {
		return nil, err
	}

	paymentQuery := `INSERT INTO withdraw_payments (payment_hash, userid, value_sat, status, ts_create)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, paymentQuery, inv.PaymentHash, req.UserID, inv.NumSatoshis, PaymentInitiated.String(), now); err != nil {
		return nil, fmt.Errorf("failed to create payment for hash %s: %w", inv.PaymentHash, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if redeemConflict(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to commit redeem transaction: %w", err)
	}

	req.Redeemed = true
	req.Status = WithdrawQueued
	req.PaymentHash = &inv.PaymentHash
	req.Bolt11 = &inv.Bolt11
	req.Amount = &inv.NumSatoshis
	req.Destination = &inv.Destination
	req.TsInvoice = &now
	return req, nil
}

// redeemConflict reports whether the error is a lost race rather than a
// storage failure: a serialization failure or the balances check constraint.
func redeemConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == checkViolation
	}
	return false
}

func insertInvoice(ctx context.Context, tx pgx.Tx, table string, inv *Invoice) error {
	query := `INSERT INTO ` + table + ` (
		payment_hash, bolt11, state, destination, num_satoshis, timestamp, expiry,
		description, description_hash, fallback_addr, cltv_expiry, route_hints,
		payment_addr, features
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`

	_, err := tx.Exec(
		ctx,
		query,
		inv.PaymentHash,
		inv.Bolt11,
		inv.State,
		inv.Destination,
		inv.NumSatoshis,
		inv.Timestamp,
		inv.Expiry,
		inv.Description,
		inv.DescriptionHash,
		inv.FallbackAddr,
		inv.CltvExpiry,
		inv.RouteHints,
		inv.PaymentAddr,
		inv.Features,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice %s into %s: %w", inv.PaymentHash, table, err)
	}
	return nil
}

// FinalizePayment settles a succeeded outgoing payment in one transaction:
// the payment row gets its preimage, fee and SUCCEEDED status, the locked
// balance reservation is released, a withdraw transaction is appended and the
// request moves to PAID. Replays are no-ops: the transaction insert conflicts
// on payment_hash and the locked row is already gone.
func (r *WithdrawRepository) FinalizePayment(ctx context.Context, paymentHash, preimage string, valueSat, feeSat int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC().Unix()

	paymentQuery := `UPDATE withdraw_payments
		SET preimage = $2,
			fee_sat = $3,
			status = $4
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, paymentQuery, paymentHash, preimage, feeSat, PaymentSucceeded.String()); err != nil {
		return fmt.Errorf("failed to finalize payment %s: %w", paymentHash, err)
	}

	unlockQuery := `DELETE FROM locked_balances WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, unlockQuery, paymentHash); err != nil {
		return fmt.Errorf("failed to release locked balance for payment %s: %w", paymentHash, err)
	}

	transactionQuery := `INSERT INTO withdraw_transactions (payment_hash, userid, amount, ts_create)
		SELECT $1, userid, $2, $3
		FROM withdraw_requests
		WHERE payment_hash = $1
		ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, transactionQuery, paymentHash, valueSat, now); err != nil {
		return fmt.Errorf("failed to append withdraw transaction for payment %s: %w", paymentHash, err)
	}

	requestQuery := `UPDATE withdraw_requests
		SET status = 'PAID',
			ts_paid = $2
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, requestQuery, paymentHash, now); err != nil {
		return fmt.Errorf("failed to mark withdraw request paid for payment %s: %w", paymentHash, err)
	}

	invoiceQuery := `UPDATE withdraw_invoices
		SET preimage = $2
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, invoiceQuery, paymentHash, preimage); err != nil {
		return fmt.Errorf("failed to record preimage on invoice %s: %w", paymentHash, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}
	return nil
}

// FailPayment rolls a failed outgoing payment back in one transaction: the
// reservation is released, the reserved amount is credited back to the user's
// balance, and the payment and request move to their failed statuses. The
// credit is driven by the locked_balances delete, so replays cannot credit
// twice.
func (r *WithdrawRepository) FailPayment(ctx context.Context, paymentHash, reason string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin fail transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	unlockQuery := `DELETE FROM locked_balances WHERE payment_hash = $1 RETURNING amount`
	var amount int64
	err = tx.QueryRow(ctx, unlockQuery, paymentHash).Scan(&amount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to release locked balance for payment %s: %w", paymentHash, err)
	}

	if err == nil {
		creditQuery := `UPDATE balances
			SET amount = balances.amount + $2
			FROM withdraw_requests
			WHERE balances.userid = withdraw_requests.userid
			AND withdraw_requests.payment_hash = $1`
		if _, err := tx.Exec(ctx, creditQuery, paymentHash, amount); err != nil {
			return fmt.Errorf("failed to credit balance back for payment %s: %w", paymentHash, err)
		}
	}

	paymentQuery := `UPDATE withdraw_payments
		SET status = $2,
			failure_reason = $3
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, paymentQuery, paymentHash, PaymentFailed.String(), reason); err != nil {
		return fmt.Errorf("failed to fail payment %s: %w", paymentHash, err)
	}

	requestQuery := `UPDATE withdraw_requests
		SET status = 'PAYMENT_FAILED',
			reason = $2
		WHERE payment_hash = $1`
	if _, err := tx.Exec(ctx, requestQuery, paymentHash, reason); err != nil {
		return fmt.Errorf("failed to mark withdraw request failed for payment %s: %w", paymentHash, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit fail transaction: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment row by its hash.
func (r *WithdrawRepository) GetPayment(ctx context.Context, paymentHash string) (*Payment, error) {
	query := `SELECT payment_hash, userid, preimage, value_sat, status, fee_sat, ts_create, failure_reason
		FROM withdraw_payments WHERE payment_hash = $1`

	var p Payment
	var statusStr string
	err := r.db.QueryRow(ctx, query, paymentHash).Scan(
		&p.PaymentHash,
		&p.UserID,
		&p.Preimage,
		&p.ValueSat,
		&statusStr,
		&p.FeeSat,
		&p.TsCreate,
		&p.FailureReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get payment with hash %s: %w", paymentHash, err)
	}

	p.Status = ParsePaymentStatus(statusStr)
	return &p, nil
}

// Balance returns the user's spendable balance in satoshis.
// Returns ErrBalanceNotFound if the user has no balance row.
func (r *WithdrawRepository) Balance(ctx context.Context, userID string) (int64, error) {
	query := `SELECT amount FROM balances WHERE userid = $1`

	var amount int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBalanceNotFound
		}
		return 0, fmt.Errorf("failed to get balance of user %s: %w", userID, err)
	}

	return amount, nil
}

// LockedAmount returns the reserved amount for a payment hash, or 0 when no
// reservation exists.
func (r *WithdrawRepository) LockedAmount(ctx context.Context, paymentHash string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM locked_balances WHERE payment_hash = $1`

	var amount int64
	if err := r.db.QueryRow(ctx, query, paymentHash).Scan(&amount); err != nil {
		return 0, fmt.Errorf("failed to get locked amount for payment %s: %w", paymentHash, err)
	}

	return amount, nil
}

// CountTransactions returns the number of withdraw transactions recorded for
// a payment hash. Used by reconciliation checks and tests; the payment_hash
// primary key caps it at one.
func (r *WithdrawRepository) CountTransactions(ctx context.Context, paymentHash string) (int, error) {
	query := `SELECT COUNT(*) FROM withdraw_transactions WHERE payment_hash = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, paymentHash).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count withdraw transactions for payment %s: %w", paymentHash, err)
	}

	return count, nil
}

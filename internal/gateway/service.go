// Package gateway implements the withdraw and deposit state machines behind
// the LNURL handshake. Each operation is an independent entry point invoked
// by the HTTP boundary; the ledger transaction inside Redeem is the only
// authority on who wins a concurrent redeem.
package gateway

import (
	"context"
	"errors"
	"time"

	"ln-gateway/internal/crypto"
	"ln-gateway/internal/database"
	"ln-gateway/internal/lnd"
	"ln-gateway/internal/queue"
	"ln-gateway/pkg/logger"
	"ln-gateway/pkg/lnurl"

	"go.uber.org/zap"
)

// Sentinel errors of the request flow. The HTTP boundary maps them to the
// user-facing reason strings; internals stay in the logs.
var (
	ErrRateLimited         = errors.New("rate limited")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPendingRequests     = errors.New("pending requests exist")
	ErrRequestExpired      = errors.New("challenge expired")
	ErrInvalidWithdraw     = errors.New("withdraw request not in expected status")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDecodeFailure       = errors.New("invoice decode failed")
	ErrInvoiceExpired      = errors.New("invoice expired")
	ErrAuthFailure         = errors.New("session authentication failed")
	ErrNodeFailure         = errors.New("node unavailable")
)

// reason recorded on requests rejected because the session vanished mid-flow
const reasonBadInvoice = "withdraw_bad_invoice"

// WithdrawLedger is the slice of the ledger the withdraw flow needs.
type WithdrawLedger interface {
	Create(ctx context.Context, req *database.WithdrawRequest) error
	GetByK1(ctx context.Context, k1 string) (*database.WithdrawRequest, error)
	CountPending(ctx context.Context, userID string, window time.Duration) (int, error)
	MarkRejected(ctx context.Context, k1 string, inv *database.Invoice, reason string) error
	UpdateStatusByK1(ctx context.Context, k1 string, status database.WithdrawStatus, reason string) error
	Redeem(ctx context.Context, k1 string, inv *database.Invoice) (*database.WithdrawRequest, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// DepositLedger is the slice of the ledger the deposit flow needs.
type DepositLedger interface {
	Create(ctx context.Context, req *database.DepositRequest, inv *database.Invoice) error
}

// Sessions is the session cache surface shared with the auth service.
type Sessions interface {
	SetChallenge(ctx context.Context, k1, userID string, ttl time.Duration) error
	Challenge(ctx context.Context, k1 string) (string, error)
	DeleteChallenge(ctx context.Context, k1 string) error
	Lock(ctx context.Context, userID string) error
	Unlock(ctx context.Context, userID string) error
	BalanceSnapshot(ctx context.Context, userID string) (int64, bool, error)
}

// Node is the Lightning node surface the request flow needs. Paying happens
// through the dispatch queue, not here.
type Node interface {
	DecodeInvoice(ctx context.Context, bolt11 string) (*lnd.Invoice, error)
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*lnd.Invoice, error)
}

// Publisher enqueues pay-dispatch messages.
type Publisher interface {
	Publish(ctx context.Context, stream string, data []byte) (string, error)
}

// RateLimiter throttles request creation per user.
type RateLimiter interface {
	Register(key string) bool
}

// Config holds the protocol constants and public URL pieces of the flows.
type Config struct {
	Schema          string // "https://"
	Domain          string
	MinWithdrawSats int64
	FeeLimitSats    int64
	MinSendableSats int64
	MaxSendableSats int64
	MinDepositSats  int64
	ChallengeTTL    time.Duration
	PendingWindow   time.Duration
}

const (
	withdrawDescription = "Some withdraw description"
	depositDescription  = "Some deposit description"
	depositThanks       = "Thank you!"
)

// Service orchestrates the six LNURL operations over the ledger, the session
// cache, the node and the dispatch queue.
type Service struct {
	cfg       Config
	withdraws WithdrawLedger
	deposits  DepositLedger
	sessions  Sessions
	node      Node
	publisher Publisher
	limiter   RateLimiter
}

func NewService(cfg Config, withdraws WithdrawLedger, deposits DepositLedger, sessions Sessions, node Node, publisher Publisher, limiter RateLimiter) *Service {
	return &Service{
		cfg:       cfg,
		withdraws: withdraws,
		deposits:  deposits,
		sessions:  sessions,
		node:      node,
		publisher: publisher,
		limiter:   limiter,
	}
}

// WithdrawLinks is the payload returned to the authenticated user who starts
// a withdraw: the legacy lightning: QR form and the lnurlw deep link.
type WithdrawLinks struct {
	Lnurl  string `json:"lnurl"`
	Lnurlw string `json:"lnurlw"`
}

// DepositLinks is the deposit counterpart of WithdrawLinks.
type DepositLinks struct {
	Lnurl  string `json:"lnurl"`
	Lnurlp string `json:"lnurlp"`
}

// balance returns the freshest admission-control value: the cached session
// snapshot when present, the durable ledger otherwise. The redeem transaction
// re-checks against the ledger regardless.
func (s *Service) balance(ctx context.Context, userID string) (int64, error) {
	snapshot, ok, err := s.sessions.BalanceSnapshot(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return snapshot, nil
	}

	amount, err := s.withdraws.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return amount, nil
}

// CreateWithdrawRequest mints a withdraw challenge for the user and returns
// the LNURL links a wallet can scan.
func (s *Service) CreateWithdrawRequest(ctx context.Context, userID string) (*WithdrawLinks, error) {
	if s.limiter.Register("withdraw::" + userID) {
		return nil, ErrRateLimited
	}

	balance, err := s.balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < s.cfg.MinWithdrawSats {
		return nil, ErrInsufficientBalance
	}

	pending, err := s.withdraws.CountPending(ctx, userID, s.cfg.PendingWindow)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrPendingRequests
	}

	k1, err := crypto.RandomK1()
	if err != nil {
		return nil, err
	}

	clearnetURL := s.cfg.Schema + s.cfg.Domain + "/withdraw/ln/cb?k1=" + k1
	encoded, err := lnurl.Encode(clearnetURL)
	if err != nil {
		return nil, err
	}
	links := &WithdrawLinks{
		Lnurl:  "lightning:" + encoded,
		Lnurlw: "lnurlw://" + s.cfg.Domain + "/withdraw/ln/cb?k1=" + k1,
	}

	req := &database.WithdrawRequest{
		UserID:      userID,
		K1:          k1,
		ClearnetURL: clearnetURL,
		Lnurlw:      links.Lnurlw,
		Lnurl:       links.Lnurl,
		Status:      database.WithdrawCreated,
		TsCreated:   time.Now().UTC().Unix(),
	}
	if err := s.withdraws.Create(ctx, req); err != nil {
		return nil, err
	}

	if err := s.sessions.SetChallenge(ctx, k1, userID, s.cfg.ChallengeTTL); err != nil {
		return nil, err
	}

	logger.Info("Withdraw request created",
		zap.String("userid", userID),
		zap.String("k1", k1),
	)
	return links, nil
}

// LnurlwCallback answers the wallet's first call with the withdraw
// parameters. Repeating the callback for a request that is still CREATED or
// VERIFIED is legal and returns the same response.
func (s *Service) LnurlwCallback(ctx context.Context, k1 string) (*lnurl.WithdrawResponse, error) {
	userID, err := s.sessions.Challenge(ctx, k1)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrRequestExpired
	}

	req, err := s.withdraws.GetByK1(ctx, k1)
	if err != nil {
		if errors.Is(err, database.ErrRequestNotFound) {
			return nil, ErrRequestExpired
		}
		return nil, err
	}
	if req.Status != database.WithdrawCreated && req.Status != database.WithdrawVerified {
		return nil, ErrInvalidWithdraw
	}

	balance, err := s.balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < s.cfg.MinWithdrawSats {
		return nil, ErrInsufficientBalance
	}

	if req.Status == database.WithdrawCreated {
		if err := s.withdraws.UpdateStatusByK1(ctx, k1, database.WithdrawVerified, ""); err != nil {
			return nil, err
		}
	}

	resp := lnurl.NewWithdrawResponse(
		s.cfg.Schema+s.cfg.Domain+"/withdraw",
		k1,
		balance,
		s.cfg.MinWithdrawSats,
		withdrawDescription,
	)
	return &resp, nil
}

// SubmitInvoice redeems a verified withdraw against the wallet's invoice and
// enqueues the payment. The returned userid is non-empty once the session has
// been locked; the HTTP boundary must unlock it after the response is
// emitted, whatever the outcome.
func (s *Service) SubmitInvoice(ctx context.Context, k1, bolt11 string) (userID string, err error) {
	userID, err = s.sessions.Challenge(ctx, k1)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", ErrRequestExpired
	}

	inv, err := s.node.DecodeInvoice(ctx, bolt11)
	if err != nil {
		logger.Warn("Invoice decode failed", zap.String("k1", k1), zap.Error(err))
		return "", ErrDecodeFailure
	}
	if lnd.IsExpired(inv, time.Now().UTC()) {
		logger.Warn("Expired invoice submitted",
			zap.String("k1", k1), zap.String("payment_hash", inv.PaymentHash))
		return "", ErrInvoiceExpired
	}

	if err := s.sessions.Lock(ctx, userID); err != nil {
		return "", err
	}

	snapshot, ok, err := s.sessions.BalanceSnapshot(ctx, userID)
	if err != nil {
		return userID, err
	}
	if !ok {
		if markErr := s.withdraws.MarkRejected(ctx, k1, inv, reasonBadInvoice); markErr != nil {
			logger.Error("Failed to record rejected invoice", zap.String("k1", k1), zap.Error(markErr))
		}
		return userID, ErrAuthFailure
	}

	if inv.NumSatoshis < s.cfg.MinWithdrawSats || inv.NumSatoshis > snapshot {
		if markErr := s.withdraws.MarkRejected(ctx, k1, inv, "Insufficient balance"); markErr != nil {
			logger.Error("Failed to record rejected invoice", zap.String("k1", k1), zap.Error(markErr))
		}
		return userID, ErrInsufficientBalance
	}

	req, err := s.withdraws.Redeem(ctx, k1, inv)
	if err != nil {
		return userID, err
	}
	if req == nil {
		// lost the race or preconditions changed under us
		return userID, ErrInvalidRequest
	}

	// the challenge is single-use: once the redeem committed, a replay must
	// not resolve the k1 again
	if err := s.sessions.DeleteChallenge(ctx, k1); err != nil {
		logger.Error("Failed to delete consumed challenge",
			zap.String("k1", k1), zap.Error(err))
	}

	msg := queue.PayInvoiceMessage{
		K1:          k1,
		PaymentHash: inv.PaymentHash,
		Bolt11:      bolt11,
		FeeLimitSat: s.cfg.FeeLimitSats,
	}
	data, err := msg.ToJSON()
	if err != nil {
		return userID, err
	}
	if _, err := s.publisher.Publish(ctx, queue.PayInvoiceStream, []byte(data)); err != nil {
		// The redeem is committed; reconciliation will observe whatever the
		// node does. Surface the enqueue failure regardless.
		logger.Error("Failed to enqueue payment",
			zap.String("payment_hash", inv.PaymentHash), zap.Error(err))
		return userID, err
	}

	logger.Info("Withdraw redeemed",
		zap.String("userid", userID),
		zap.String("k1", k1),
		zap.String("payment_hash", inv.PaymentHash),
		zap.Int64("amount_sat", inv.NumSatoshis),
	)
	return userID, nil
}

// CreateDepositRequest mints a deposit challenge for the user and returns the
// LNURL links a wallet can scan. The durable deposit row is created later,
// once the amount is known and the invoice issued.
func (s *Service) CreateDepositRequest(ctx context.Context, userID string) (*DepositLinks, error) {
	if s.limiter.Register("deposit::" + userID) {
		return nil, ErrRateLimited
	}

	k1, err := crypto.RandomK1()
	if err != nil {
		return nil, err
	}

	clearnetURL := s.cfg.Schema + s.cfg.Domain + "/deposit/ln/cb?k1=" + k1
	encoded, err := lnurl.Encode(clearnetURL)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetChallenge(ctx, k1, userID, s.cfg.ChallengeTTL); err != nil {
		return nil, err
	}

	logger.Info("Deposit request created",
		zap.String("userid", userID),
		zap.String("k1", k1),
	)
	return &DepositLinks{
		Lnurl:  "lightning:" + encoded,
		Lnurlp: "lnurlp://" + s.cfg.Domain + "/deposit/ln/cb?k1=" + k1,
	}, nil
}

// LnurlpCallback answers the wallet's first pay call with the static sendable
// range. No state changes.
func (s *Service) LnurlpCallback(ctx context.Context, k1 string) (*lnurl.PayResponse, error) {
	userID, err := s.sessions.Challenge(ctx, k1)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrRequestExpired
	}

	resp := lnurl.NewPayResponse(
		s.cfg.Schema+s.cfg.Domain+"/deposit?k1="+k1,
		s.cfg.MinSendableSats,
		s.cfg.MaxSendableSats,
		lnurl.PayMetadata(depositDescription),
	)
	return &resp, nil
}

// IssueDepositInvoice creates the node invoice for the wallet's chosen amount
// and records the deposit so the settlement stream can credit it.
func (s *Service) IssueDepositInvoice(ctx context.Context, k1 string, amountSats int64) (*lnurl.PayActionResponse, error) {
	userID, err := s.sessions.Challenge(ctx, k1)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrRequestExpired
	}

	if amountSats <= s.cfg.MinDepositSats {
		return nil, ErrInvalidAmount
	}

	inv, err := s.node.CreateInvoice(ctx, amountSats, "Deposit to "+s.cfg.Domain)
	if err != nil {
		logger.Error("Failed to create deposit invoice",
			zap.String("userid", userID), zap.Error(err))
		return nil, ErrNodeFailure
	}

	req := &database.DepositRequest{
		UserID:      userID,
		PaymentHash: inv.PaymentHash,
		Status:      database.DepositCreated,
		Amount:      amountSats,
		TsCreated:   time.Now().UTC().Unix(),
	}
	if err := s.deposits.Create(ctx, req, inv); err != nil {
		return nil, err
	}

	logger.Info("Deposit invoice issued",
		zap.String("userid", userID),
		zap.String("payment_hash", inv.PaymentHash),
		zap.Int64("amount_sat", amountSats),
	)
	resp := lnurl.NewPayActionResponse(inv.Bolt11, lnurl.MessageAction(depositThanks))
	return &resp, nil
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ln-gateway/internal/crypto"
	"ln-gateway/internal/gateway"
	"ln-gateway/pkg/logger"
	"ln-gateway/pkg/lnurl"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Flow is the request-flow surface the handlers invoke.
type Flow interface {
	CreateWithdrawRequest(ctx context.Context, userID string) (*gateway.WithdrawLinks, error)
	LnurlwCallback(ctx context.Context, k1 string) (*lnurl.WithdrawResponse, error)
	SubmitInvoice(ctx context.Context, k1, bolt11 string) (string, error)
	CreateDepositRequest(ctx context.Context, userID string) (*gateway.DepositLinks, error)
	LnurlpCallback(ctx context.Context, k1 string) (*lnurl.PayResponse, error)
	IssueDepositInvoice(ctx context.Context, k1 string, amountSats int64) (*lnurl.PayActionResponse, error)
}

// SessionUnlocker releases the session lock after the response is emitted.
type SessionUnlocker interface {
	Unlock(ctx context.Context, userID string) error
}

// Handler holds the HTTP endpoint implementations.
type Handler struct {
	flow     Flow
	sessions SessionUnlocker
}

func NewHandler(flow Flow, sessions SessionUnlocker) *Handler {
	return &Handler{flow: flow, sessions: sessions}
}

// detail maps flow errors to the {"detail":...} body of authenticated
// endpoints.
func detail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Please try in a few minutes"})
	case errors.Is(err, gateway.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Insufficient balance"})
	case errors.Is(err, gateway.ErrPendingRequests):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "User has pending requests"})
	default:
		logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}

// reason maps flow errors to the short LNURL error reasons. Internals are
// logged, never returned.
func reason(err error) string {
	switch {
	case errors.Is(err, gateway.ErrRequestExpired):
		return "Request expired"
	case errors.Is(err, gateway.ErrInvalidWithdraw):
		return "Invalid withdraw request"
	case errors.Is(err, gateway.ErrInsufficientBalance):
		return "Insufficient balance"
	case errors.Is(err, gateway.ErrDecodeFailure):
		return "Invoice decode error"
	case errors.Is(err, gateway.ErrInvoiceExpired):
		return "Invoice expired"
	case errors.Is(err, gateway.ErrAuthFailure):
		return "Authentication error"
	case errors.Is(err, gateway.ErrInvalidAmount):
		return "Invalid amount"
	case errors.Is(err, gateway.ErrNodeFailure):
		return "Error generating invoice"
	default:
		logger.Error("Request failed", zap.Error(err))
		return "Invalid request"
	}
}

// WithdrawRequest handles GET /withdraw/ln/request (authenticated).
func (h *Handler) WithdrawRequest(c *gin.Context) {
	links, err := h.flow.CreateWithdrawRequest(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		detail(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// WithdrawCallback handles GET /withdraw/ln/cb?k1= (wallet, capability by k1).
func (h *Handler) WithdrawCallback(c *gin.Context) {
	k1 := c.Query("k1")
	if !crypto.ValidK1(k1) {
		c.JSON(http.StatusOK, lnurl.Error("Invalid request"))
		return
	}

	resp, err := h.flow.LnurlwCallback(c.Request.Context(), k1)
	if err != nil {
		c.JSON(http.StatusOK, lnurl.Error(reason(err)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// WithdrawSubmit handles GET /withdraw/ln?k1=&pr= (wallet, capability by k1).
// The session lock taken while redeeming is released after the response is
// written, on every exit path.
func (h *Handler) WithdrawSubmit(c *gin.Context) {
	k1 := c.Query("k1")
	bolt11 := c.Query("pr")
	if !crypto.ValidK1(k1) || bolt11 == "" {
		c.JSON(http.StatusOK, lnurl.Error("Invalid request"))
		return
	}

	userID, err := h.flow.SubmitInvoice(c.Request.Context(), k1, bolt11)
	defer func() {
		if userID == "" {
			return
		}
		if unlockErr := h.sessions.Unlock(context.WithoutCancel(c.Request.Context()), userID); unlockErr != nil {
			logger.Error("Failed to unlock session",
				zap.String("userid", userID), zap.Error(unlockErr))
		}
	}()

	if err != nil {
		c.JSON(http.StatusOK, lnurl.Error(reason(err)))
		return
	}
	c.JSON(http.StatusOK, lnurl.Success())
}

// DepositRequest handles GET /deposit/ln/request (authenticated).
func (h *Handler) DepositRequest(c *gin.Context) {
	links, err := h.flow.CreateDepositRequest(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		detail(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// DepositCallback handles GET /deposit/ln/cb?k1= (wallet, capability by k1).
func (h *Handler) DepositCallback(c *gin.Context) {
	k1 := c.Query("k1")
	if !crypto.ValidK1(k1) {
		c.JSON(http.StatusOK, lnurl.Error("Invalid request"))
		return
	}

	resp, err := h.flow.LnurlpCallback(c.Request.Context(), k1)
	if err != nil {
		c.JSON(http.StatusOK, lnurl.Error(reason(err)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DepositInvoice handles GET /deposit/ln?k1=&amount= (wallet, capability by k1).
func (h *Handler) DepositInvoice(c *gin.Context) {
	k1 := c.Query("k1")
	if !crypto.ValidK1(k1) {
		c.JSON(http.StatusOK, lnurl.Error("Invalid request"))
		return
	}

	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusOK, lnurl.Error("Invalid amount"))
		return
	}

	resp, err := h.flow.IssueDepositInvoice(c.Request.Context(), k1, amount)
	if err != nil {
		c.JSON(http.StatusOK, lnurl.Error(reason(err)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

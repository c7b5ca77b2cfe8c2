package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ln-gateway/internal/gateway"
	"ln-gateway/pkg/logger"
	"ln-gateway/pkg/lnurl"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type fakeFlow struct {
	withdrawLinks *gateway.WithdrawLinks
	depositLinks  *gateway.DepositLinks
	withdrawResp  *lnurl.WithdrawResponse
	payResp       *lnurl.PayResponse
	payAction     *lnurl.PayActionResponse
	submitUserID  string
	err           error

	lastUserID string
	lastK1     string
	lastBolt11 string
	lastAmount int64
}

func (f *fakeFlow) CreateWithdrawRequest(ctx context.Context, userID string) (*gateway.WithdrawLinks, error) {
	f.lastUserID = userID
	return f.withdrawLinks, f.err
}

func (f *fakeFlow) LnurlwCallback(ctx context.Context, k1 string) (*lnurl.WithdrawResponse, error) {
	f.lastK1 = k1
	return f.withdrawResp, f.err
}

func (f *fakeFlow) SubmitInvoice(ctx context.Context, k1, bolt11 string) (string, error) {
	f.lastK1 = k1
	f.lastBolt11 = bolt11
	return f.submitUserID, f.err
}

func (f *fakeFlow) CreateDepositRequest(ctx context.Context, userID string) (*gateway.DepositLinks, error) {
	f.lastUserID = userID
	return f.depositLinks, f.err
}

func (f *fakeFlow) LnurlpCallback(ctx context.Context, k1 string) (*lnurl.PayResponse, error) {
	f.lastK1 = k1
	return f.payResp, f.err
}

func (f *fakeFlow) IssueDepositInvoice(ctx context.Context, k1 string, amountSats int64) (*lnurl.PayActionResponse, error) {
	f.lastK1 = k1
	f.lastAmount = amountSats
	return f.payAction, f.err
}

type fakeUnlocker struct {
	unlocked []string
}

func (f *fakeUnlocker) Unlock(ctx context.Context, userID string) error {
	f.unlocked = append(f.unlocked, userID)
	return nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter(flow *fakeFlow, unlocker *fakeUnlocker) *gin.Engine {
	cfg := Config{
		Environment:  "development",
		JWTSecret:    testSecret,
		JWTAlgorithm: "HS256",
	}
	return NewRouter(cfg, NewHandler(flow, unlocker), okPinger{}, okPinger{})
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doRequest(router *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func testK1() string {
	return strings.Repeat("ab", 32)
}

// --- auth ---

func TestWithdrawRequest_MissingToken(t *testing.T) {
	router := newTestRouter(&fakeFlow{}, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/request", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid token"}`, w.Body.String())
}

func TestWithdrawRequest_BadSignature(t *testing.T) {
	router := newTestRouter(&fakeFlow{}, &fakeUnlocker{})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w := doRequest(router, "/withdraw/ln/request", "Bearer "+signed)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid token"}`, w.Body.String())
}

// --- /withdraw/ln/request ---

func TestWithdrawRequest_Success(t *testing.T) {
	flow := &fakeFlow{withdrawLinks: &gateway.WithdrawLinks{
		Lnurl:  "lightning:LNURL1ABC",
		Lnurlw: "lnurlw://fancy.domain/withdraw/ln/cb?k1=" + testK1(),
	}}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/request", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", flow.lastUserID)
	assert.Contains(t, w.Body.String(), `"lnurl":"lightning:LNURL1ABC"`)
	assert.Contains(t, w.Body.String(), `"lnurlw":"lnurlw://fancy.domain/withdraw/ln/cb?k1=`)
}

func TestWithdrawRequest_ErrorDetails(t *testing.T) {
	tests := []struct {
		err    error
		detail string
	}{
		{gateway.ErrRateLimited, "Please try in a few minutes"},
		{gateway.ErrInsufficientBalance, "Insufficient balance"},
		{gateway.ErrPendingRequests, "User has pending requests"},
	}

	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			router := newTestRouter(&fakeFlow{err: tt.err}, &fakeUnlocker{})

			w := doRequest(router, "/withdraw/ln/request", bearerToken(t, "u1"))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, w.Body.String())
		})
	}
}

func TestWithdrawRequest_InternalError(t *testing.T) {
	router := newTestRouter(&fakeFlow{err: errors.New("pool exhausted")}, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/request", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pool exhausted", "internals must not leak")
}

// --- /withdraw/ln/cb ---

func TestWithdrawCallback_Success(t *testing.T) {
	resp := lnurl.NewWithdrawResponse("https://fancy.domain/withdraw", testK1(), 1000000, 50000, "Some withdraw description")
	flow := &fakeFlow{withdrawResp: &resp}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/cb?k1="+testK1(), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tag":"withdrawRequest"`)
	assert.Contains(t, w.Body.String(), `"maxWithdrawable":1000000`)
	assert.Equal(t, testK1(), flow.lastK1)
}

func TestWithdrawCallback_MalformedK1(t *testing.T) {
	flow := &fakeFlow{}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/cb?k1=nothex", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ERROR","reason":"Invalid request"}`, w.Body.String())
	assert.Empty(t, flow.lastK1, "flow must not be called with malformed k1")
}

func TestWithdrawCallback_Expired(t *testing.T) {
	router := newTestRouter(&fakeFlow{err: gateway.ErrRequestExpired}, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln/cb?k1="+testK1(), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ERROR","reason":"Request expired"}`, w.Body.String())
}

// --- /withdraw/ln ---

func TestWithdrawSubmit_Success(t *testing.T) {
	flow := &fakeFlow{submitUserID: "u1"}
	unlocker := &fakeUnlocker{}
	router := newTestRouter(flow, unlocker)

	w := doRequest(router, "/withdraw/ln?k1="+testK1()+"&pr=lnbc600u1invoice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
	assert.Equal(t, "lnbc600u1invoice", flow.lastBolt11)
	assert.Equal(t, []string{"u1"}, unlocker.unlocked, "session unlocked after response")
}

// The unlock must run even when the flow fails after locking.
func TestWithdrawSubmit_UnlocksOnError(t *testing.T) {
	flow := &fakeFlow{submitUserID: "u1", err: gateway.ErrInvalidRequest}
	unlocker := &fakeUnlocker{}
	router := newTestRouter(flow, unlocker)

	w := doRequest(router, "/withdraw/ln?k1="+testK1()+"&pr=lnbc600u1invoice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ERROR","reason":"Invalid request"}`, w.Body.String())
	assert.Equal(t, []string{"u1"}, unlocker.unlocked)
}

func TestWithdrawSubmit_NoUnlockBeforeChallengeResolves(t *testing.T) {
	flow := &fakeFlow{submitUserID: "", err: gateway.ErrRequestExpired}
	unlocker := &fakeUnlocker{}
	router := newTestRouter(flow, unlocker)

	w := doRequest(router, "/withdraw/ln?k1="+testK1()+"&pr=lnbc600u1invoice", "")
	assert.JSONEq(t, `{"status":"ERROR","reason":"Request expired"}`, w.Body.String())
	assert.Empty(t, unlocker.unlocked)
}

func TestWithdrawSubmit_ErrorReasons(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{gateway.ErrDecodeFailure, "Invoice decode error"},
		{gateway.ErrInvoiceExpired, "Invoice expired"},
		{gateway.ErrAuthFailure, "Authentication error"},
		{gateway.ErrInsufficientBalance, "Insufficient balance"},
		{gateway.ErrInvalidRequest, "Invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			router := newTestRouter(&fakeFlow{submitUserID: "u1", err: tt.err}, &fakeUnlocker{})

			w := doRequest(router, "/withdraw/ln?k1="+testK1()+"&pr=lnbc1", "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"ERROR","reason":"`+tt.reason+`"}`, w.Body.String())
		})
	}
}

func TestWithdrawSubmit_MissingInvoice(t *testing.T) {
	flow := &fakeFlow{}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/withdraw/ln?k1="+testK1(), "")
	assert.JSONEq(t, `{"status":"ERROR","reason":"Invalid request"}`, w.Body.String())
	assert.Empty(t, flow.lastK1)
}

// --- deposit endpoints ---

func TestDepositRequest_Success(t *testing.T) {
	flow := &fakeFlow{depositLinks: &gateway.DepositLinks{
		Lnurl:  "lightning:LNURL1DEF",
		Lnurlp: "lnurlp://fancy.domain/deposit/ln/cb?k1=" + testK1(),
	}}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/deposit/ln/request", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lnurlp":"lnurlp://fancy.domain/deposit/ln/cb?k1=`)
}

func TestDepositCallback_Success(t *testing.T) {
	resp := lnurl.NewPayResponse("https://fancy.domain/deposit?k1="+testK1(), 10000, 100000000, lnurl.PayMetadata("Some deposit description"))
	router := newTestRouter(&fakeFlow{payResp: &resp}, &fakeUnlocker{})

	w := doRequest(router, "/deposit/ln/cb?k1="+testK1(), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tag":"payRequest"`)
	assert.Contains(t, w.Body.String(), `"minSendable":10000`)
}

func TestDepositInvoice_Success(t *testing.T) {
	action := lnurl.NewPayActionResponse("lnbc1500u1deposit", lnurl.MessageAction("Thank you!"))
	flow := &fakeFlow{payAction: &action}
	router := newTestRouter(flow, &fakeUnlocker{})

	w := doRequest(router, "/deposit/ln?k1="+testK1()+"&amount=150000", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pr":"lnbc1500u1deposit"`)
	assert.Contains(t, w.Body.String(), `"message":"Thank you!"`)
	assert.Equal(t, int64(150000), flow.lastAmount)
}

func TestDepositInvoice_BadAmount(t *testing.T) {
	flow := &fakeFlow{}
	router := newTestRouter(flow, &fakeUnlocker{})

	for _, amount := range []string{"", "abc", "-5", "0"} {
		w := doRequest(router, "/deposit/ln?k1="+testK1()+"&amount="+amount, "")
		assert.JSONEq(t, `{"status":"ERROR","reason":"Invalid amount"}`, w.Body.String())
	}
	assert.Empty(t, flow.lastK1)
}

func TestDepositInvoice_NodeFailure(t *testing.T) {
	router := newTestRouter(&fakeFlow{err: gateway.ErrNodeFailure}, &fakeUnlocker{})

	w := doRequest(router, "/deposit/ln?k1="+testK1()+"&amount=150000", "")
	assert.JSONEq(t, `{"status":"ERROR","reason":"Error generating invoice"}`, w.Body.String())
}

// --- health ---

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeFlow{}, &fakeUnlocker{})

	w := doRequest(router, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

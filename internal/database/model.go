package database

// Define new types for the status enums
type WithdrawStatus int
type DepositStatus int
type PaymentStatus int

// Withdraw request lifecycle: CREATED on /withdraw/ln/request, VERIFIED on
// the wallet callback, QUEUED once the invoice is redeemed, then PAID or
// PAYMENT_FAILED from the payment stream. REJECTED is a terminal branch for
// invalid invoices.
const (
	WithdrawCreated WithdrawStatus = iota
	WithdrawVerified
	WithdrawRejected
	WithdrawQueued
	WithdrawPaid
	WithdrawPaymentFailed
)

const (
	DepositCreated DepositStatus = iota
	DepositPaid
	DepositSettled
	DepositPaymentFailed
)

const (
	PaymentInitiated PaymentStatus = iota
	PaymentInFlight
	PaymentSucceeded
	PaymentFailed
)

// String converts the status to its database string value
func (s WithdrawStatus) String() string {
	switch s {
	case WithdrawCreated:
		return "CREATED"
	case WithdrawVerified:
		return "VERIFIED"
	case WithdrawRejected:
		return "REJECTED"
	case WithdrawQueued:
		return "QUEUED"
	case WithdrawPaid:
		return "PAID"
	case WithdrawPaymentFailed:
		return "PAYMENT_FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s DepositStatus) String() string {
	switch s {
	case DepositCreated:
		return "CREATED"
	case DepositPaid:
		return "PAID"
	case DepositSettled:
		return "SETTLED"
	case DepositPaymentFailed:
		return "PAYMENT_FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s PaymentStatus) String() string {
	switch s {
	case PaymentInitiated:
		return "INITIATED"
	case PaymentInFlight:
		return "IN_FLIGHT"
	case PaymentSucceeded:
		return "SUCCEEDED"
	case PaymentFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseWithdrawStatus converts a database string to the enum.
// Use this when reading rows.
func ParseWithdrawStatus(s string) WithdrawStatus {
	switch s {
	case "CREATED":
		return WithdrawCreated
	case "VERIFIED":
		return WithdrawVerified
	case "REJECTED":
		return WithdrawRejected
	case "QUEUED":
		return WithdrawQueued
	case "PAID":
		return WithdrawPaid
	case "PAYMENT_FAILED":
		return WithdrawPaymentFailed
	default:
		return WithdrawCreated
	}
}

func ParseDepositStatus(s string) DepositStatus {
	switch s {
	case "CREATED":
		return DepositCreated
	case "PAID":
		return DepositPaid
	case "SETTLED":
		return DepositSettled
	case "PAYMENT_FAILED":
		return DepositPaymentFailed
	default:
		return DepositCreated
	}
}

func ParsePaymentStatus(s string) PaymentStatus {
	switch s {
	case "INITIATED":
		return PaymentInitiated
	case "IN_FLIGHT":
		return PaymentInFlight
	case "SUCCEEDED":
		return PaymentSucceeded
	case "FAILED":
		return PaymentFailed
	default:
		return PaymentInitiated
	}
}

// WithdrawRequest is one lnurlw handshake, keyed by the k1 challenge.
// Invoice-derived fields are nil until the wallet submits a bolt11.
type WithdrawRequest struct {
	UserID      string         `json:"userid" db:"userid"`
	K1          string         `json:"k1" db:"k1"`
	ClearnetURL string         `json:"clearnet_url" db:"clearnet_url"`
	Lnurlw      string         `json:"lnurlw" db:"lnurlw"`
	Lnurl       string         `json:"lnurl" db:"lnurl"`
	Redeemed    bool           `json:"redeemed" db:"redeemed"`
	Status      WithdrawStatus `json:"status" db:"status"`
	Reason      *string        `json:"reason,omitempty" db:"reason"`
	PaymentHash *string        `json:"payment_hash,omitempty" db:"payment_hash"`
	Bolt11      *string        `json:"bolt11,omitempty" db:"bolt11"`
	Amount      *int64         `json:"amount,omitempty" db:"amount"` // satoshis
	Destination *string        `json:"destination,omitempty" db:"destination"`
	TsCreated   int64          `json:"ts_created" db:"ts_created"` // unix seconds
	TsInvoice   *int64         `json:"ts_invoice,omitempty" db:"ts_invoice"`
	TsPaid      *int64         `json:"ts_paid,omitempty" db:"ts_paid"`
}

// DepositRequest is one lnurlp deposit, keyed by the invoice payment hash.
type DepositRequest struct {
	UserID      string        `json:"userid" db:"userid"`
	PaymentHash string        `json:"payment_hash" db:"payment_hash"`
	Status      DepositStatus `json:"status" db:"status"`
	Amount      int64         `json:"amount" db:"amount"` // satoshis
	TsCreated   int64         `json:"ts_created" db:"ts_created"`
}

// Invoice is a decoded BOLT11 invoice row. RouteHints and Features hold the
// node's structured blobs serialized as JSON text.
type Invoice struct {
	PaymentHash     string  `json:"payment_hash" db:"payment_hash"`
	Bolt11          string  `json:"bolt11" db:"bolt11"`
	State           string  `json:"state" db:"state"`
	Preimage        *string `json:"preimage,omitempty" db:"preimage"`
	Destination     string  `json:"destination" db:"destination"`
	NumSatoshis     int64   `json:"num_satoshis" db:"num_satoshis"`
	Timestamp       int64   `json:"timestamp" db:"timestamp"`
	Expiry          int64   `json:"expiry" db:"expiry"`
	Description     string  `json:"description" db:"description"`
	DescriptionHash string  `json:"description_hash" db:"description_hash"`
	FallbackAddr    string  `json:"fallback_addr" db:"fallback_addr"`
	CltvExpiry      int64   `json:"cltv_expiry" db:"cltv_expiry"`
	RouteHints      string  `json:"route_hints" db:"route_hints"`
	PaymentAddr     string  `json:"payment_addr" db:"payment_addr"`
	Features        string  `json:"features" db:"features"`
}

// Payment is one outgoing Lightning payment, keyed by payment hash.
type Payment struct {
	PaymentHash   string        `json:"payment_hash" db:"payment_hash"`
	UserID        string        `json:"userid" db:"userid"`
	Preimage      *string       `json:"preimage,omitempty" db:"preimage"`
	ValueSat      int64         `json:"value_sat" db:"value_sat"`
	Status        PaymentStatus `json:"status" db:"status"`
	FeeSat        *int64        `json:"fee_sat,omitempty" db:"fee_sat"`
	TsCreate      int64         `json:"ts_create" db:"ts_create"`
	FailureReason *string       `json:"failure_reason,omitempty" db:"failure_reason"`
}

// LockedBalance reserves sats against an in-flight outgoing payment. A row
// here is the proof that the amount has left the user's spendable balance.
type LockedBalance struct {
	PaymentHash string `json:"payment_hash" db:"payment_hash"`
	Amount      int64  `json:"amount" db:"amount"`
}

// LedgerTransaction is an immutable entry appended on successful settlement
// of a withdraw or deposit.
type LedgerTransaction struct {
	UserID      string `json:"userid" db:"userid"`
	PaymentHash string `json:"payment_hash" db:"payment_hash"`
	Amount      int64  `json:"amount" db:"amount"`
	TsCreate    int64  `json:"ts_create" db:"ts_create"`
}

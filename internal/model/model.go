package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Local order statuses. Providers report free-text statuses which are folded
// onto this closed set before anything else looks at them.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)

const (
	ProviderActive   = "active"
	ProviderDisabled = "disabled"
)

// Audit log actions and outcomes.
const (
	LogActionStatusSync   = "status_sync"
	LogActionAddOrder     = "add_order"
	LogActionBalanceCheck = "balance_check"

	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	ID         int             `json:"id,omitempty"`
	Username   string          `json:"username,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	DollarRate decimal.Decimal `json:"dollar_rate"`
	Balance    decimal.Decimal `json:"balance"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	IsAdmin    bool            `json:"-"`
}

type Provider struct {
	ID              int
	Name            string
	APIURL          string
	APIKey          string
	HTTPMethod      string
	Status          string
	TimeoutSeconds  int
	Encoding        string
	RequestSpec     *string
	ResponseMapping *string

	// Per-operation endpoint overrides; nil falls back to APIURL.
	ServicesEndpoint *string
	AddEndpoint      *string
	StatusEndpoint   *string
	BalanceEndpoint  *string
	RefillEndpoint   *string
	CancelEndpoint   *string

	Balance          decimal.Decimal
	BalanceCurrency  string
	BalanceCheckedAt *time.Time
}

type Service struct {
	ID                int             `json:"id"`
	Name              string          `json:"name"`
	ProviderID        *int            `json:"provider_id,omitempty"`
	ProviderServiceID string          `json:"provider_service_id,omitempty"`
	RateUSD           decimal.Decimal `json:"rate_usd"`
	Min               int             `json:"min"`
	Max               int             `json:"max"`
}

type Order struct {
	ID              int             `json:"id"`
	UserID          int             `json:"-"`
	ServiceID       int             `json:"service_id"`
	ProviderID      *int            `json:"-"`
	Link            string          `json:"link"`
	Quantity        int             `json:"quantity"`
	Status          string          `json:"status"`
	ProviderOrderID *string         `json:"provider_order_id,omitempty"`
	ProviderStatus  *string         `json:"provider_status,omitempty"`
	StartCount      int             `json:"start_count"`
	Remains         int             `json:"remains"`
	Charge          decimal.Decimal `json:"charge"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	Price           decimal.Decimal `json:"price"`
	APIResponse     *string         `json:"-"`
	LastSyncAt      *time.Time      `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
}

// ProviderLinked reports whether the order has been accepted by a provider
// and is therefore eligible for reconciliation.
func (o Order) ProviderLinked() bool {
	return o.ProviderOrderID != nil && *o.ProviderOrderID != ""
}

type ProviderOrderLog struct {
	ID         int       `json:"id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	OrderID    int       `json:"order_id"`
	ProviderID int       `json:"provider_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Response   string    `json:"response,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// RemoteService is one row of a provider's service catalog.
type RemoteService struct {
	ServiceID string          `json:"service"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Rate      decimal.Decimal `json:"rate"`
	Min       int             `json:"min"`
	Max       int             `json:"max"`
	Refill    bool            `json:"refill"`
	Cancel    bool            `json:"cancel"`
}

// ProviderStatusInfo is the normalized payload of a query-status response.
type ProviderStatusInfo struct {
	Charge     decimal.Decimal `json:"charge"`
	StartCount int             `json:"start_count"`
	Status     string          `json:"status"`
	Remains    int             `json:"remains"`
	Currency   string          `json:"currency"`
}

type ProviderBalance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// OrderSyncUpdate carries the fields a status sync writes back to an order.
type OrderSyncUpdate struct {
	Status         string
	ProviderStatus string
	StartCount     int
	Remains        int
	Charge         decimal.Decimal
	APIResponse    string
}

// SyncResult is the per-order outcome of one reconciliation attempt.
type SyncResult struct {
	OrderID   int                 `json:"orderId"`
	Updated   bool                `json:"updated"`
	OldStatus string              `json:"oldStatus,omitempty"`
	NewStatus string              `json:"newStatus,omitempty"`
	Data      *ProviderStatusInfo `json:"data,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// SyncSummary aggregates one batch run.
type SyncSummary struct {
	RunID        string       `json:"runId"`
	TotalChecked int          `json:"totalChecked"`
	Updated      int          `json:"updated"`
	Unchanged    int          `json:"unchanged"`
	Errored      int          `json:"errored"`
	Results      []SyncResult `json:"results"`
}

// Compensation is the money movement triggered by a cancellation transition.
type Compensation struct {
	OrderPrice      decimal.Decimal
	SpentAdjustment decimal.Decimal
}

// CompensationResult reports what a compensation transaction actually did.
// Applied is false when the stored order row turned out to be cancelled
// already, meaning a concurrent run got there first and nothing was written.
type CompensationResult struct {
	Compensation Compensation
	Applied      bool
	UserFound    bool
}

// Applied when a user's stored dollar rate is zero.
var FallbackDollarRate = decimal.RequireFromString("121.52")

// DisplayPrice converts a USD price to the owner's display currency.
func DisplayPrice(usdPrice decimal.Decimal, currency string, dollarRate decimal.Decimal) decimal.Decimal {
	if strings.EqualFold(currency, "USD") {
		return usdPrice
	}
	rate := dollarRate
	if rate.IsZero() {
		rate = FallbackDollarRate
	}
	return usdPrice.Mul(rate)
}

// CompensationFor computes the refund for a cancelled order. The price is the
// USD price converted to the owner's display currency. total_spent is only
// reversed when the order had left pending, i.e. its price was actually
// counted as spend.
func CompensationFor(usdPrice decimal.Decimal, currency string, dollarRate decimal.Decimal, priorStatus string) Compensation {
	price := DisplayPrice(usdPrice, currency, dollarRate)

	adjustment := decimal.Zero
	if priorStatus != StatusPending {
		adjustment = price
	}

	return Compensation{OrderPrice: price, SpentAdjustment: adjustment}
}

// IsCancelledStatus treats both spellings as the cancelled state so the
// compensation transition fires at most once per order.
func IsCancelledStatus(status string) bool {
	s := strings.ToLower(status)
	return s == "cancelled" || s == "canceled"
}

// IsTerminalStatus reports whether a local status is final.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// CanTransition gates provider-driven status changes. Terminal statuses are
// sticky, with one exception: completed may be revised to partial when a
// provider closes a refill window.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if !IsTerminalStatus(from) {
		return true
	}
	return from == StatusCompleted && to == StatusPartial
}

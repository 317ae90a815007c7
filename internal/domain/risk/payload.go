package risk

import (
	"time"

	"github.com/google/uuid"
)

// IPReputation is the outcome of an external reputation lookup, gathered
// before scoring so the engine itself performs no I/O.
type IPReputation string

const (
	IPReputationUnknown     IPReputation = "unknown"
	IPReputationClean       IPReputation = "clean"
	IPReputationSuspicious  IPReputation = "suspicious"
	IPReputationBlacklisted IPReputation = "blacklisted"
)

// HourRange is a half-open [Start, End) range of local hours describing an
// account's typical activity window.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the hour falls inside the range. Ranges may wrap
// midnight (Start > End).
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// StoreDistribution describes one store's share of a multi-vendor cart.
type StoreDistribution struct {
	StoreID            uuid.UUID `json:"store_id"`
	ItemCount          int       `json:"item_count"`
	SubtotalMinorUnits int64     `json:"subtotal_minor_units"`
}

// RiskPayload is the immutable snapshot of one transaction attempt. Optional
// signals are pointers; nil means "no signal", never an error. Guests carry
// nil account fields throughout.
type RiskPayload struct {
	// Account identity
	AccountID         *uuid.UUID `json:"account_id,omitempty"`
	AccountRole       string     `json:"account_role,omitempty"`
	AccountAgeSeconds *int64     `json:"account_age_seconds,omitempty"`

	// Cart
	TotalMinorUnits int64               `json:"total_minor_units"`
	Currency        string              `json:"currency"`
	ItemCount       int                 `json:"item_count"`
	UniqueItemCount int                 `json:"unique_item_count"`
	Stores          []StoreDistribution `json:"stores"`

	// Transaction history
	TransactionCount   *int    `json:"transaction_count,omitempty"`
	SuccessfulCount    *int    `json:"successful_count,omitempty"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
	RecentFailures     *int    `json:"recent_failures,omitempty"`
	TypicalActiveHours *HourRange `json:"typical_active_hours,omitempty"`

	// Payment method novelty; nil when the account has no method history.
	NewPaymentMethod *bool `json:"new_payment_method,omitempty"`

	// Device / network signals
	IPAddress          string       `json:"ip_address,omitempty"`
	IPReputation       IPReputation `json:"ip_reputation,omitempty"`
	UserAgent          string       `json:"user_agent,omitempty"`
	ConcurrentSessions *int         `json:"concurrent_sessions,omitempty"`
	RecentFailedLogins *int         `json:"recent_failed_logins,omitempty"`
	VelocityExceeded   *bool        `json:"velocity_exceeded,omitempty"`

	ClientTime time.Time `json:"client_time"`
}

// IsGuest reports whether the attempt carries no account identity.
func (p *RiskPayload) IsGuest() bool {
	return p.AccountID == nil
}

// StoreCount returns the number of distinct stores in the cart.
func (p *RiskPayload) StoreCount() int {
	return len(p.Stores)
}

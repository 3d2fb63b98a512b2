// Package domain contains core types for the billing service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Plan codes for the seeded catalog.
const (
	PlanVIPMonthly = "vip_monthly"
	PlanVIPYearly  = "vip_yearly"
)

// Subscription statuses. Stripe statuses outside this set are collapsed
// during sync.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// SubscriptionPlan is seeded reference data, never mutated at runtime.
type SubscriptionPlan struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Code        string       `gorm:"column:code;type:text;not null;uniqueIndex"`
	DisplayName string       `gorm:"column:display_name;type:text;not null"`
	VIPTier     string       `gorm:"column:vip_tier;type:text;not null"`
	AmountCents int64        `gorm:"column:amount_cents;not null"`
	Currency    string       `gorm:"column:currency;type:text;not null;default:usd"`
	Interval    string       `gorm:"column:interval;type:text;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// Subscription mirrors the Stripe subscription for one user and plan.
// Stripe remains the source of truth; rows here are projections refreshed
// on every webhook sync.
type Subscription struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	UserID               snowflake.ID `gorm:"column:user_id;not null;index"`
	PlanID               snowflake.ID `gorm:"column:plan_id;not null"`
	Status               string       `gorm:"column:status;type:text;not null"`
	StartedAt            time.Time    `gorm:"column:started_at;not null"`
	ExpiresAt            *time.Time   `gorm:"column:expires_at"`
	AutoRenew            bool         `gorm:"column:auto_renew;not null;default:true"`
	StripeSubscriptionID string       `gorm:"column:stripe_subscription_id;type:text;not null;uniqueIndex"`
	StripePriceID        string       `gorm:"column:stripe_price_id;type:text"`
	CreatedAt            time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Payment is an append-only ledger row. SubscriptionID is null for
// invoices that do not belong to a subscription.
type Payment struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	UserID                snowflake.ID  `gorm:"column:user_id;not null;index"`
	SubscriptionID        *snowflake.ID `gorm:"column:subscription_id"`
	Provider              string        `gorm:"column:provider;type:text;not null;default:stripe"`
	ProviderTxnID         string        `gorm:"column:provider_txn_id;type:text;not null;uniqueIndex"`
	AmountCents           int64         `gorm:"column:amount_cents;not null"`
	Currency              string        `gorm:"column:currency;type:text;not null"`
	Status                string        `gorm:"column:status;type:text;not null"`
	PaidAt                time.Time     `gorm:"column:paid_at;not null"`
	StripeInvoiceID       string        `gorm:"column:stripe_invoice_id;type:text"`
	StripePaymentIntentID string        `gorm:"column:stripe_payment_intent_id;type:text"`
	CreatedAt             time.Time     `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// WebhookEvent is the dedup ledger for Stripe event ids. The raw payload
// is kept so a mishandled event can be replayed against a fix.
type WebhookEvent struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	StripeEventID string         `gorm:"column:stripe_event_id;type:text;not null;uniqueIndex"`
	EventType     string         `gorm:"column:event_type;type:text;not null"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	ReceivedAt    time.Time      `gorm:"column:received_at;not null"`
	ProcessedAt   *time.Time     `gorm:"column:processed_at"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

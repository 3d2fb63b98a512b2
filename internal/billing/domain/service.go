package domain

import (
	"context"
	"time"

	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
)

type Service interface {
	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetBillingStatus(ctx context.Context, user *authdomain.User) (*BillingStatus, error)
	CreateCheckout(ctx context.Context, user *authdomain.User, planCode string) (*CheckoutResult, error)
	CreatePortal(ctx context.Context, user *authdomain.User) (*PortalResult, error)
	IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error)
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type PortalResult struct {
	URL string `json:"url"`
}

type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
}

// SubscriptionView is the client-facing projection of the user's current
// subscription.
type SubscriptionView struct {
	PlanCode  string     `json:"planCode"`
	PlanName  string     `json:"planName"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	AutoRenew bool       `json:"autoRenew"`
}

type PaymentView struct {
	TxnID       string    `json:"txnId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PaidAt      time.Time `json:"paidAt"`
}

// BillingStatus is what the subscription page renders: the projected tier,
// the active subscription if any, and the payment history.
type BillingStatus struct {
	VIPTier      string            `json:"vipTier"`
	Subscription *SubscriptionView `json:"subscription"`
	Payments     []PaymentView     `json:"payments"`
}

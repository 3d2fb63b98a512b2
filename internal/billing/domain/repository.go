package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
)

type Repository interface {
	FindPlanByCode(ctx context.Context, code string) (*SubscriptionPlan, error)
	FindPlanByID(ctx context.Context, id snowflake.ID) (*SubscriptionPlan, error)
	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)

	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	FindActiveSubscriptionByUser(ctx context.Context, userID snowflake.ID) (*Subscription, error)

	// InsertPayment reports false when the provider transaction id was
	// already recorded.
	InsertPayment(ctx context.Context, payment *Payment) (bool, error)
	ListPaymentsByUser(ctx context.Context, userID snowflake.ID) ([]Payment, error)

	// InsertWebhookEvent reports false when the event id was already seen.
	InsertWebhookEvent(ctx context.Context, event *WebhookEvent) (bool, error)
	MarkEventProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error

	FindUserByStripeCustomer(ctx context.Context, customerID string) (*authdomain.User, error)
	SetUserStripeCustomer(ctx context.Context, userID snowflake.ID, customerID string) error
	SetUserVIPTier(ctx context.Context, userID snowflake.ID, tier string) error
}

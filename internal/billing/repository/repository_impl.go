package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"github.com/reelcomic/reelcomic/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindPlanByCode(ctx context.Context, code string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindPlanByID(ctx context.Context, id snowflake.ID) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) ListPlans(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	var plans []domain.SubscriptionPlan
	err := r.db.WithContext(ctx).Order("amount_cents ASC").Find(&plans).Error
	return plans, err
}

func (r *repo) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription writes the projection keyed by the Stripe subscription
// id. The conflict clause keeps the row id stable across syncs and makes
// concurrent first syncs of the same subscription race-free.
func (r *repo) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, plan_id, status, started_at, expires_at, auto_renew,
			stripe_subscription_id, stripe_price_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			user_id = excluded.user_id,
			plan_id = excluded.plan_id,
			status = excluded.status,
			started_at = excluded.started_at,
			expires_at = excluded.expires_at,
			auto_renew = excluded.auto_renew,
			stripe_price_id = excluded.stripe_price_id,
			updated_at = excluded.updated_at`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.StartedAt,
		sub.ExpiresAt,
		sub.AutoRenew,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		now,
		now,
	).Error
}

func (r *repo) FindActiveSubscriptionByUser(ctx context.Context, userID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{domain.StatusActive, domain.StatusTrialing}).
		Order("started_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) InsertPayment(ctx context.Context, payment *domain.Payment) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, user_id, subscription_id, provider, provider_txn_id,
			amount_cents, currency, status, paid_at,
			stripe_invoice_id, stripe_payment_intent_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_txn_id) DO NOTHING`,
		payment.ID,
		payment.UserID,
		payment.SubscriptionID,
		payment.Provider,
		payment.ProviderTxnID,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.PaidAt,
		payment.StripeInvoiceID,
		payment.StripePaymentIntentID,
		time.Now().UTC(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListPaymentsByUser(ctx context.Context, userID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("paid_at DESC").Find(&payments).Error
	return payments, err
}

func (r *repo) InsertWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, stripe_event_id, event_type, payload, received_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (stripe_event_id) DO NOTHING`,
		event.ID,
		event.StripeEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed_at = ? WHERE id = ?`,
		processedAt,
		id,
	).Error
}

func (r *repo) FindUserByStripeCustomer(ctx context.Context, customerID string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, authdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) SetUserStripeCustomer(ctx context.Context, userID snowflake.ID, customerID string) error {
	tx := r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"stripe_customer_id": customerID,
		"updated_at":         time.Now().UTC(),
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return authdomain.ErrUserNotFound
	}
	return nil
}

func (r *repo) SetUserVIPTier(ctx context.Context, userID snowflake.ID, tier string) error {
	tx := r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"vip_tier":   tier,
		"updated_at": time.Now().UTC(),
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return authdomain.ErrUserNotFound
	}
	return nil
}

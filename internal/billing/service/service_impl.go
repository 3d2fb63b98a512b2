package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"github.com/reelcomic/reelcomic/internal/billing/domain"
	"github.com/reelcomic/reelcomic/internal/billing/stripe"
	"github.com/reelcomic/reelcomic/internal/config"
	"github.com/reelcomic/reelcomic/pkg/telemetry"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const fallbackPeriod = 30 * 24 * time.Hour

type Service struct {
	log     *zap.Logger
	cfg     config.Config
	repo    domain.Repository
	client  stripe.Client
	genID   *snowflake.Node
	metrics *telemetry.Metrics
}

func New(log *zap.Logger, cfg config.Config, repo domain.Repository, client stripe.Client, genID *snowflake.Node, metrics *telemetry.Metrics) domain.Service {
	return &Service{
		log:     log.Named("billing.service"),
		cfg:     cfg,
		repo:    repo,
		client:  client,
		genID:   genID,
		metrics: metrics,
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	return s.repo.ListPlans(ctx)
}

func (s *Service) GetBillingStatus(ctx context.Context, user *authdomain.User) (*domain.BillingStatus, error) {
	status := &domain.BillingStatus{VIPTier: user.VIPTier}

	sub, err := s.repo.FindActiveSubscriptionByUser(ctx, user.ID)
	switch {
	case err == nil:
		view := &domain.SubscriptionView{
			Status:    sub.Status,
			StartedAt: sub.StartedAt,
			ExpiresAt: sub.ExpiresAt,
			AutoRenew: sub.AutoRenew,
		}
		if plan, planErr := s.repo.FindPlanByID(ctx, sub.PlanID); planErr == nil {
			view.PlanCode = plan.Code
			view.PlanName = plan.DisplayName
		}
		status.Subscription = view
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		// No active subscription reads as a free account, not an error.
	default:
		return nil, err
	}

	payments, err := s.repo.ListPaymentsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	status.Payments = make([]domain.PaymentView, 0, len(payments))
	for _, p := range payments {
		status.Payments = append(status.Payments, domain.PaymentView{
			TxnID:       p.ProviderTxnID,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			Status:      p.Status,
			PaidAt:      p.PaidAt,
		})
	}

	return status, nil
}

func (s *Service) CreateCheckout(ctx context.Context, user *authdomain.User, planCode string) (*domain.CheckoutResult, error) {
	plan, err := s.repo.FindPlanByCode(ctx, planCode)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			return nil, domain.ErrUnknownPlan
		}
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	base := s.cfg.AppBaseURL
	successURL := s.cfg.Stripe.SuccessURL
	if successURL == "" {
		successURL = base + "/#/subscription?payment=success"
	}
	cancelURL := s.cfg.Stripe.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/#/subscription?payment=cancel"
	}

	params := stripe.CheckoutParams{
		CustomerID:        customerID,
		SuccessURL:        successURL,
		CancelURL:         cancelURL,
		ClientReferenceID: user.ID.String(),
		Metadata: map[string]string{
			"userId":   user.ID.String(),
			"planCode": plan.Code,
		},
	}
	if priceID := s.configuredPriceID(plan.Code); priceID != "" {
		params.PriceID = priceID
	} else {
		params.PriceData = &stripe.PriceData{
			Currency:    plan.Currency,
			UnitAmount:  plan.AmountCents,
			Interval:    plan.Interval,
			ProductName: plan.DisplayName,
		}
	}

	session, err := s.client.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, errors.New("checkout session has no url")
	}

	s.metrics.ObserveCheckoutSession()
	return &domain.CheckoutResult{URL: session.URL, SessionID: session.ID}, nil
}

// ensureCustomer returns the user's Stripe customer id, creating and
// persisting one first if needed. Persisting before the checkout session
// keeps a retried request from minting a second customer.
func (s *Service) ensureCustomer(ctx context.Context, user *authdomain.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customer, err := s.client.CreateCustomer(ctx, stripe.CustomerParams{
		Email:  user.Email,
		Name:   user.DisplayName,
		UserID: user.ID.String(),
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.SetUserStripeCustomer(ctx, user.ID, customer.ID); err != nil {
		return "", err
	}
	user.StripeCustomerID = &customer.ID
	return customer.ID, nil
}

func (s *Service) configuredPriceID(planCode string) string {
	switch planCode {
	case domain.PlanVIPMonthly:
		return s.cfg.Stripe.PriceVIPMonthly
	case domain.PlanVIPYearly:
		return s.cfg.Stripe.PriceVIPYearly
	default:
		return ""
	}
}

func (s *Service) CreatePortal(ctx context.Context, user *authdomain.User) (*domain.PortalResult, error) {
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, domain.ErrNoBillingAccount
	}

	returnURL := s.cfg.Stripe.PortalReturnURL
	if returnURL == "" {
		returnURL = s.cfg.AppBaseURL + "/#/subscription"
	}

	session, err := s.client.CreatePortalSession(ctx, *user.StripeCustomerID, returnURL)
	if err != nil {
		return nil, err
	}
	return &domain.PortalResult{URL: session.URL}, nil
}

// webhookEvent is the envelope Stripe posts. Only the fields the dispatch
// needs are decoded; the object payload stays raw until the type is known.
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeRef is a field Stripe serializes as either a bare id or an
// expanded object.
type stripeRef struct {
	ID string
}

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		r.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) (*domain.WebhookResult, error) {
	if err := stripe.VerifySignature(s.cfg.Stripe.WebhookSecret, payload, signatureHeader); err != nil {
		return nil, domain.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.ErrInvalidPayload
	}

	record := &domain.WebhookEvent{
		ID:            s.genID.Generate(),
		StripeEventID: event.ID,
		EventType:     event.Type,
		Payload:       datatypes.JSON(payload),
		ReceivedAt:    time.Now().UTC(),
	}
	inserted, err := s.repo.InsertWebhookEvent(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.metrics.ObserveWebhookEvent(event.Type, "duplicate")
		return &domain.WebhookResult{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}

	// Past the dedup ledger the event is acknowledged no matter what:
	// Stripe retries on non-2xx, and the ledger row would shadow the
	// retry as a duplicate.
	if err := s.processEvent(ctx, event); err != nil {
		s.metrics.ObserveWebhookEvent(event.Type, "failed")
		s.log.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return &domain.WebhookResult{EventID: event.ID, EventType: event.Type}, nil
	}

	if err := s.repo.MarkEventProcessed(ctx, record.ID, time.Now().UTC()); err != nil {
		s.log.Warn("mark event processed failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	return &domain.WebhookResult{EventID: event.ID, EventType: event.Type}, nil
}

func (s *Service) processEvent(ctx context.Context, event webhookEvent) error {
	switch event.Type {
	case "checkout.session.completed":
		var session struct {
			Mode         string            `json:"mode"`
			Subscription stripeRef         `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return domain.ErrInvalidPayload
		}
		if session.Mode != "subscription" || session.Subscription.ID == "" {
			s.metrics.ObserveWebhookEvent(event.Type, "ignored")
			return nil
		}
		if err := s.syncSubscription(ctx, session.Subscription.ID, session.Metadata); err != nil {
			return err
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return domain.ErrInvalidPayload
		}
		if sub.ID == "" {
			return domain.ErrInvalidPayload
		}
		if err := s.syncSubscription(ctx, sub.ID, nil); err != nil {
			return err
		}
	case "invoice.paid":
		if err := s.recordInvoice(ctx, event.Data.Object, domain.PaymentSucceeded); err != nil {
			return err
		}
	case "invoice.payment_failed":
		if err := s.recordInvoice(ctx, event.Data.Object, domain.PaymentFailed); err != nil {
			return err
		}
	default:
		s.metrics.ObserveWebhookEvent(event.Type, "ignored")
		return nil
	}

	s.metrics.ObserveWebhookEvent(event.Type, "processed")
	return nil
}

// syncSubscription re-fetches the subscription from Stripe and projects it
// into the local tables. The event payload is never trusted for state; the
// re-fetch makes out-of-order deliveries converge on current truth.
func (s *Service) syncSubscription(ctx context.Context, subscriptionID string, sessionMetadata map[string]string) error {
	sub, err := s.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Customer == "" {
		return nil
	}

	user, err := s.repo.FindUserByStripeCustomer(ctx, sub.Customer)
	if err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			s.log.Warn("subscription customer has no local user",
				zap.String("subscription_id", subscriptionID),
				zap.String("customer_id", sub.Customer),
			)
			return nil
		}
		return err
	}

	var priceID string
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
	}
	planCode := s.resolvePlanCode(sub.Metadata, sessionMetadata, priceID)
	if planCode == "" {
		s.log.Warn("subscription has no resolvable plan",
			zap.String("subscription_id", subscriptionID),
			zap.String("price_id", priceID),
		)
		return nil
	}
	plan, err := s.repo.FindPlanByCode(ctx, planCode)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	startedAt := now
	if sub.CurrentPeriodStart > 0 {
		startedAt = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	expiresAt := now.Add(fallbackPeriod)
	if sub.CurrentPeriodEnd > 0 {
		expiresAt = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	status := mapStripeStatus(sub.Status)
	if err := s.repo.UpsertSubscription(ctx, &domain.Subscription{
		ID:                   s.genID.Generate(),
		UserID:               user.ID,
		PlanID:               plan.ID,
		Status:               status,
		StartedAt:            startedAt,
		ExpiresAt:            &expiresAt,
		AutoRenew:            !sub.CancelAtPeriodEnd,
		StripeSubscriptionID: sub.ID,
		StripePriceID:        priceID,
	}); err != nil {
		return err
	}

	tier := authdomain.TierFree
	if status == domain.StatusActive || status == domain.StatusTrialing {
		tier = plan.VIPTier
	}
	return s.repo.SetUserVIPTier(ctx, user.ID, tier)
}

func (s *Service) resolvePlanCode(subMetadata, sessionMetadata map[string]string, priceID string) string {
	if code := subMetadata["planCode"]; isPlanCode(code) {
		return code
	}
	if code := sessionMetadata["planCode"]; isPlanCode(code) {
		return code
	}
	switch {
	case priceID != "" && priceID == s.cfg.Stripe.PriceVIPMonthly:
		return domain.PlanVIPMonthly
	case priceID != "" && priceID == s.cfg.Stripe.PriceVIPYearly:
		return domain.PlanVIPYearly
	default:
		return ""
	}
}

func isPlanCode(code string) bool {
	return code == domain.PlanVIPMonthly || code == domain.PlanVIPYearly
}

func mapStripeStatus(status string) string {
	switch status {
	case "active":
		return domain.StatusActive
	case "trialing":
		return domain.StatusTrialing
	case "past_due":
		return domain.StatusPastDue
	case "canceled", "incomplete_expired":
		return domain.StatusCanceled
	default:
		return domain.StatusExpired
	}
}

func (s *Service) recordInvoice(ctx context.Context, object json.RawMessage, status string) error {
	var invoice struct {
		ID                string    `json:"id"`
		Customer          stripeRef `json:"customer"`
		PaymentIntent     stripeRef `json:"payment_intent"`
		Subscription      stripeRef `json:"subscription"`
		AmountPaid        int64     `json:"amount_paid"`
		AmountDue         int64     `json:"amount_due"`
		Currency          string    `json:"currency"`
		StatusTransitions struct {
			PaidAt int64 `json:"paid_at"`
		} `json:"status_transitions"`
	}
	if err := json.Unmarshal(object, &invoice); err != nil {
		return domain.ErrInvalidPayload
	}
	if invoice.Customer.ID == "" {
		return nil
	}

	user, err := s.repo.FindUserByStripeCustomer(ctx, invoice.Customer.ID)
	if err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			s.log.Warn("invoice customer has no local user", zap.String("customer_id", invoice.Customer.ID))
			return nil
		}
		return err
	}

	// One-off invoices carry no subscription; the payment row keeps a
	// null linkage in that case.
	var subscriptionID *snowflake.ID
	if invoice.Subscription.ID != "" {
		if sub, err := s.repo.FindSubscriptionByStripeID(ctx, invoice.Subscription.ID); err == nil {
			subscriptionID = &sub.ID
		}
	}

	providerTxnID := invoice.ID
	if providerTxnID == "" {
		providerTxnID = invoice.PaymentIntent.ID
	}
	if providerTxnID == "" {
		return nil
	}

	amount := invoice.AmountPaid
	if amount == 0 {
		amount = invoice.AmountDue
	}
	paidAt := time.Now().UTC()
	if invoice.StatusTransitions.PaidAt > 0 {
		paidAt = time.Unix(invoice.StatusTransitions.PaidAt, 0).UTC()
	}
	currency := strings.ToUpper(strings.TrimSpace(invoice.Currency))
	if currency == "" {
		currency = "USD"
	}

	inserted, err := s.repo.InsertPayment(ctx, &domain.Payment{
		ID:                    s.genID.Generate(),
		UserID:                user.ID,
		SubscriptionID:        subscriptionID,
		Provider:              "stripe",
		ProviderTxnID:         providerTxnID,
		AmountCents:           amount,
		Currency:              currency,
		Status:                status,
		PaidAt:                paidAt,
		StripeInvoiceID:       invoice.ID,
		StripePaymentIntentID: invoice.PaymentIntent.ID,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("payment already recorded", zap.String("provider_txn_id", providerTxnID))
	}
	return nil
}

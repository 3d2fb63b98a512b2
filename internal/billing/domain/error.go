package domain

import "errors"

var (
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrNoBillingAccount     = errors.New("no billing account")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
)

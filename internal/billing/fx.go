package billing

import (
	"github.com/reelcomic/reelcomic/internal/billing/repository"
	"github.com/reelcomic/reelcomic/internal/billing/service"
	"github.com/reelcomic/reelcomic/internal/billing/stripe"
	"github.com/reelcomic/reelcomic/internal/config"
	"go.uber.org/fx"
)

func newStripeClient(cfg config.Config) stripe.Client {
	return stripe.NewClient(cfg.Stripe.SecretKey)
}

var Module = fx.Module("billing.service",
	fx.Provide(repository.New),
	fx.Provide(newStripeClient),
	fx.Provide(service.New),
)

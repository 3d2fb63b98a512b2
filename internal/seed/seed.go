// Package seed inserts the reference data the service expects at runtime.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	billingdomain "github.com/reelcomic/reelcomic/internal/billing/domain"
	"gorm.io/gorm"
)

var defaultPlans = []billingdomain.SubscriptionPlan{
	{
		Code:        billingdomain.PlanVIPMonthly,
		DisplayName: "ReelComic VIP Monthly",
		VIPTier:     authdomain.TierVIPMonthly,
		AmountCents: 999,
		Currency:    "usd",
		Interval:    "month",
	},
	{
		Code:        billingdomain.PlanVIPYearly,
		DisplayName: "ReelComic VIP Yearly",
		VIPTier:     authdomain.TierVIPYearly,
		AmountCents: 9599,
		Currency:    "usd",
		Interval:    "year",
	},
}

// EnsurePlans inserts the VIP plan catalog if it is not already present.
// Existing rows are left untouched so price edits done by operators survive
// restarts.
func EnsurePlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans {
			var existing billingdomain.SubscriptionPlan
			err := tx.Where("code = ?", plan.Code).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			plan.ID = node.Generate()
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

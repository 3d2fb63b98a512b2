package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/reelcomic/reelcomic/internal/billing/domain"
	"go.uber.org/zap"
)

type planView struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	VIPTier     string `json:"vipTier"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
}

// checkoutRequest accepts either an explicit plan code or a billing cycle
// shorthand; the cycle resolves to the matching VIP plan.
type checkoutRequest struct {
	PlanCode string `json:"planCode"`
	Cycle    string `json:"cycle"`
}

func (r checkoutRequest) resolvePlanCode() string {
	if r.PlanCode != "" {
		return r.PlanCode
	}
	switch r.Cycle {
	case "monthly":
		return billingdomain.PlanVIPMonthly
	case "yearly":
		return billingdomain.PlanVIPYearly
	default:
		return ""
	}
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.billingsvc.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			Code:        p.Code,
			DisplayName: p.DisplayName,
			VIPTier:     p.VIPTier,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			Interval:    p.Interval,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": views})
}

func (s *Server) BillingStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.billingsvc.GetBillingStatus(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) CreateCheckout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	planCode := req.resolvePlanCode()
	if planCode == "" {
		AbortWithError(c, newValidationError("planCode", "required", "planCode or cycle is required"))
		return
	}

	result, err := s.billingsvc.CreateCheckout(c.Request.Context(), user, planCode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"checkoutUrl": result.URL,
		"sessionId":   result.SessionID,
	})
}

func (s *Server) CreatePortal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.billingsvc.CreatePortal(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "portalUrl": result.URL})
}

// StripeWebhook verifies and ingests one Stripe event. The raw body is read
// before any parsing because the signature covers the exact bytes sent.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvalidPayload)
		return
	}

	result, err := s.billingsvc.IngestWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

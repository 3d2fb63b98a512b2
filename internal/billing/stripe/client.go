// Package stripe is a thin form-encoded client for the handful of Stripe
// API calls the billing service needs, plus webhook signature verification.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiBaseURL = "https://api.stripe.com"

var ErrInvalidSignature = errors.New("invalid stripe signature")

// APIError carries the Stripe error message for a non-2xx response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CheckoutSession struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Price struct {
	ID string `json:"id"`
}

type SubscriptionItem struct {
	ID    string `json:"id"`
	Price Price  `json:"price"`
}

type SubscriptionItemList struct {
	Data []SubscriptionItem `json:"data"`
}

type Subscription struct {
	ID                 string               `json:"id"`
	Status             string               `json:"status"`
	Customer           string               `json:"customer"`
	CancelAtPeriodEnd  bool                 `json:"cancel_at_period_end"`
	CurrentPeriodStart int64                `json:"current_period_start"`
	CurrentPeriodEnd   int64                `json:"current_period_end"`
	Metadata           map[string]string    `json:"metadata"`
	Items              SubscriptionItemList `json:"items"`
}

type CustomerParams struct {
	Email  string
	Name   string
	UserID string
}

// PriceData describes an ad-hoc recurring price, used when no fixed price
// id is configured for a plan.
type PriceData struct {
	Currency    string
	UnitAmount  int64
	Interval    string
	ProductName string
}

type CheckoutParams struct {
	CustomerID        string
	PriceID           string
	PriceData         *PriceData
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

type Client interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
}

type client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// Option overrides client defaults.
type Option func(*client)

// WithBaseURL points the client at a different API host, used by tests.
func WithBaseURL(base string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

func NewClient(secretKey string, opts ...Option) Client {
	c := &client{
		secretKey:  secretKey,
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	form := url.Values{}
	if params.Email != "" {
		form.Set("email", params.Email)
	}
	if params.Name != "" {
		form.Set("name", params.Name)
	}
	if params.UserID != "" {
		form.Set("metadata[userId]", params.UserID)
	}

	var customer Customer
	if err := c.post(ctx, "/v1/customers", form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", params.CustomerID)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("allow_promotion_codes", "true")
	if params.ClientReferenceID != "" {
		form.Set("client_reference_id", params.ClientReferenceID)
	}

	switch {
	case params.PriceID != "":
		form.Set("line_items[0][price]", params.PriceID)
		form.Set("line_items[0][quantity]", "1")
	case params.PriceData != nil:
		form.Set("line_items[0][price_data][currency]", params.PriceData.Currency)
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.PriceData.UnitAmount, 10))
		form.Set("line_items[0][price_data][recurring][interval]", params.PriceData.Interval)
		form.Set("line_items[0][price_data][product_data][name]", params.PriceData.ProductName)
		form.Set("line_items[0][quantity]", "1")
	default:
		return nil, errors.New("stripe: checkout requires a price id or price data")
	}

	// Metadata goes on both the session and the subscription it creates,
	// so later subscription webhooks can resolve the plan without the
	// session at hand.
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
		form.Set(fmt.Sprintf("subscription_data[metadata][%s]", key), value)
	}

	var session CheckoutSession
	if err := c.post(ctx, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	if returnURL != "" {
		form.Set("return_url", returnURL)
	}

	var session PortalSession
	if err := c.post(ctx, "/v1/billing_portal/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := c.get(ctx, "/v1/subscriptions/"+url.PathEscape(id), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var wrapper struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &wrapper)
		return &APIError{
			StatusCode: resp.StatusCode,
			Type:       wrapper.Error.Type,
			Message:    wrapper.Error.Message,
		}
	}

	return json.Unmarshal(body, out)
}

// VerifySignature checks a Stripe-Signature header against the raw request
// body: HMAC-SHA256 over "<t>.<body>" keyed by the endpoint secret, matched
// against any v1 entry.
func VerifySignature(secret string, payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

// SignHeader builds a valid Stripe-Signature header, used by tests.
func SignHeader(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

// Package oauth implements the authorization-code flows for the external
// identity providers (Google, Apple).
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reelcomic/reelcomic/internal/auth/applesecret"
	"github.com/reelcomic/reelcomic/internal/config"
	"go.uber.org/zap"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"

	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"

	stateTokenBytes = 16
)

// Identity is the verified provider identity resolved from a code exchange.
type Identity struct {
	Provider       string
	Subject        string
	Email          string
	DisplayName    string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
}

type Service interface {
	Enabled(provider string) bool
	AuthCodeURL(provider, state string) (string, error)
	Exchange(ctx context.Context, provider, code string) (*Identity, error)
}

type service struct {
	cfg         config.Config
	appleSigner *applesecret.Signer
	httpClient  *http.Client
	log         *zap.Logger
}

// NewService builds the provider registry. The Apple signer is constructed
// eagerly so a broken key fails at startup, but an entirely absent Apple
// config just disables the provider.
func NewService(cfg config.Config, log *zap.Logger) (Service, error) {
	var signer *applesecret.Signer
	if cfg.AppleEnabled() {
		var err error
		signer, err = applesecret.New(cfg.Apple)
		if err != nil {
			return nil, err
		}
	}
	return &service{
		cfg:         cfg,
		appleSigner: signer,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         log.Named("auth.oauth"),
	}, nil
}

// NewState returns a high-entropy opaque state token.
func NewState() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *service) Enabled(provider string) bool {
	switch provider {
	case ProviderGoogle:
		return s.cfg.GoogleEnabled()
	case ProviderApple:
		return s.cfg.AppleEnabled()
	default:
		return false
	}
}

func (s *service) redirectURI(provider string) string {
	switch provider {
	case ProviderGoogle:
		if s.cfg.Google.RedirectURI != "" {
			return s.cfg.Google.RedirectURI
		}
	case ProviderApple:
		if s.cfg.Apple.RedirectURI != "" {
			return s.cfg.Apple.RedirectURI
		}
	}
	return fmt.Sprintf("%s/api/auth/oauth/%s/callback", s.cfg.AppBaseURL, provider)
}

func (s *service) AuthCodeURL(provider, state string) (string, error) {
	if !s.Enabled(provider) {
		return "", ErrProviderNotFound
	}
	if strings.TrimSpace(state) == "" {
		return "", ErrInvalidRequest
	}

	switch provider {
	case ProviderGoogle:
		query := url.Values{}
		query.Set("client_id", s.cfg.Google.ClientID)
		query.Set("redirect_uri", s.redirectURI(provider))
		query.Set("response_type", "code")
		query.Set("scope", "openid email profile")
		query.Set("state", state)
		query.Set("prompt", "select_account")
		return googleAuthURL + "?" + query.Encode(), nil
	case ProviderApple:
		query := url.Values{}
		query.Set("response_type", "code")
		query.Set("response_mode", "query")
		query.Set("client_id", s.cfg.Apple.ClientID)
		query.Set("redirect_uri", s.redirectURI(provider))
		query.Set("scope", "name email")
		query.Set("state", state)
		return appleAuthURL + "?" + query.Encode(), nil
	default:
		return "", ErrProviderNotFound
	}
}

func (s *service) Exchange(ctx context.Context, provider, code string) (*Identity, error) {
	if !s.Enabled(provider) {
		return nil, ErrProviderNotFound
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidRequest
	}

	switch provider {
	case ProviderGoogle:
		return s.exchangeGoogle(ctx, code)
	case ProviderApple:
		return s.exchangeApple(ctx, code)
	default:
		return nil, ErrProviderNotFound
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *service) exchangeGoogle(ctx context.Context, code string) (*Identity, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.cfg.Google.ClientID)
	form.Set("client_secret", s.cfg.Google.ClientSecret)
	form.Set("redirect_uri", s.redirectURI(ProviderGoogle))

	token, err := s.postTokenForm(ctx, googleTokenURL, form)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrExchangeFailed
	}

	profile, err := s.fetchGoogleProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	subject := claimString(profile, "sub")
	if subject == "" {
		return nil, ErrExchangeFailed
	}

	identity := &Identity{
		Provider:       ProviderGoogle,
		Subject:        subject,
		Email:          strings.ToLower(claimString(profile, "email")),
		DisplayName:    claimString(profile, "name"),
		AvatarURL:      claimString(profile, "picture"),
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: expiryFrom(token.ExpiresIn),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = "Google User"
	}
	return identity, nil
}

func (s *service) exchangeApple(ctx context.Context, code string) (*Identity, error) {
	clientSecret, err := s.appleSigner.ClientSecret(time.Now())
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.cfg.Apple.ClientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", s.redirectURI(ProviderApple))

	token, err := s.postTokenForm(ctx, appleTokenURL, form)
	if err != nil {
		return nil, err
	}
	if token.IDToken == "" {
		return nil, ErrExchangeFailed
	}

	// Apple discloses identity only inside the id_token; there is no
	// profile endpoint to call.
	claims, err := decodeJWTPayload(token.IDToken)
	if err != nil {
		return nil, ErrExchangeFailed
	}
	subject := claimString(claims, "sub")
	if subject == "" {
		return nil, ErrExchangeFailed
	}

	email := strings.ToLower(claimString(claims, "email"))
	displayName := "Apple User"
	if email != "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	return &Identity{
		Provider:       ProviderApple,
		Subject:        subject,
		Email:          email,
		DisplayName:    displayName,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: expiryFrom(token.ExpiresIn),
	}, nil
}

func (s *service) postTokenForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		s.log.Warn("token endpoint rejected exchange",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, ErrExchangeFailed
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, ErrExchangeFailed
	}
	return &token, nil
}

func (s *service) fetchGoogleProfile(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ErrExchangeFailed
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrExchangeFailed
	}
	return payload, nil
}

// decodeJWTPayload decodes the claims segment without verifying the
// signature: the token arrived over TLS directly from Apple's token
// endpoint in exchange for a one-time code.
func decodeJWTPayload(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, ErrExchangeFailed
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func claimString(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func expiryFrom(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	at := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
	return &at
}

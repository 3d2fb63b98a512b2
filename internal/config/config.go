package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	// AppBaseURL is the externally visible origin used for OAuth redirect
	// URIs and Stripe return URLs when no explicit override is set.
	AppBaseURL string

	AuthCookieSecure bool

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	Google GoogleOAuthConfig
	Apple  AppleOAuthConfig
	Stripe StripeConfig
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type AppleOAuthConfig struct {
	ClientID    string
	TeamID      string
	KeyID       string
	PrivateKey  string
	RedirectURI string
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	PriceVIPMonthly string
	PriceVIPYearly  string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "reelcomic"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		AppBaseURL:       strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:3000"), "/"),
		AuthCookieSecure: authCookieSecure,

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "reelcomic"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		Google: GoogleOAuthConfig{
			ClientID:     strings.TrimSpace(getenv("GOOGLE_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("GOOGLE_CLIENT_SECRET", "")),
			RedirectURI:  strings.TrimSpace(getenv("GOOGLE_REDIRECT_URI", "")),
		},
		Apple: AppleOAuthConfig{
			ClientID:    strings.TrimSpace(getenv("APPLE_CLIENT_ID", "")),
			TeamID:      strings.TrimSpace(getenv("APPLE_TEAM_ID", "")),
			KeyID:       strings.TrimSpace(getenv("APPLE_KEY_ID", "")),
			PrivateKey:  strings.ReplaceAll(getenv("APPLE_PRIVATE_KEY", ""), `\n`, "\n"),
			RedirectURI: strings.TrimSpace(getenv("APPLE_REDIRECT_URI", "")),
		},
		Stripe: StripeConfig{
			SecretKey:       strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:   strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			PriceVIPMonthly: strings.TrimSpace(getenv("STRIPE_PRICE_VIP_MONTHLY", "")),
			PriceVIPYearly:  strings.TrimSpace(getenv("STRIPE_PRICE_VIP_YEARLY", "")),
			SuccessURL:      strings.TrimSpace(getenv("STRIPE_SUCCESS_URL", "")),
			CancelURL:       strings.TrimSpace(getenv("STRIPE_CANCEL_URL", "")),
			PortalReturnURL: strings.TrimSpace(getenv("STRIPE_PORTAL_RETURN_URL", "")),
		},
	}
}

// Validate reports fatal configuration errors. Missing billing settings are
// surfaced once here, at startup, rather than per request.
func (c Config) Validate() error {
	if c.Stripe.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.Environment == "production" && !strings.HasPrefix(c.AppBaseURL, "https://") {
		return fmt.Errorf("APP_BASE_URL must be https in production, got %q", c.AppBaseURL)
	}
	return nil
}

// GoogleEnabled reports whether the Google OAuth path is configured.
func (c Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// AppleEnabled reports whether the Apple OAuth path is configured.
func (c Config) AppleEnabled() bool {
	return c.Apple.ClientID != "" && c.Apple.TeamID != "" && c.Apple.KeyID != "" && c.Apple.PrivateKey != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

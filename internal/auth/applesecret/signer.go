// Package applesecret builds the signed client assertion Apple's token
// endpoint requires in place of a static client secret.
package applesecret

import (
	"crypto/ecdsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/reelcomic/reelcomic/internal/config"
)

const (
	appleAudience = "https://appleid.apple.com"

	// Apple caps client secrets at six months.
	secretTTL = 180 * 24 * time.Hour
)

// Signer produces time-boxed ES256 client secrets for Apple's token endpoint.
type Signer struct {
	teamID   string
	keyID    string
	clientID string
	key      *ecdsa.PrivateKey
}

// New validates the Apple signing configuration and parses the private key.
// Missing configuration is a startup error, not a per-request one.
func New(cfg config.AppleOAuthConfig) (*Signer, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" || cfg.ClientID == "" || cfg.PrivateKey == "" {
		return nil, errors.New("apple oauth requires APPLE_TEAM_ID, APPLE_KEY_ID, APPLE_CLIENT_ID and APPLE_PRIVATE_KEY")
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, err
	}

	return &Signer{
		teamID:   cfg.TeamID,
		keyID:    cfg.KeyID,
		clientID: cfg.ClientID,
		key:      key,
	}, nil
}

// ClientSecret returns a compact JWT signed with the team's ES256 key,
// valid from now until Apple's maximum expiry.
func (s *Signer) ClientSecret(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": s.teamID,
		"sub": s.clientID,
		"aud": appleAudience,
		"iat": now.Unix(),
		"exp": now.Add(secretTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	return token.SignedString(s.key)
}

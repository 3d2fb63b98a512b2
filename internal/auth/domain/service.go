package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	FindOrCreateOAuthUser(ctx context.Context, req OAuthUserRequest) (*User, error)
	IssueSession(ctx context.Context, userID snowflake.ID, meta SessionMeta) (*SessionGrant, error)
	Authenticate(ctx context.Context, rawToken string) (*User, *Session, error)
	Logout(ctx context.Context, rawToken string) error
	FindUserByID(ctx context.Context, id snowflake.ID) (*User, error)
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	UserAgent   string
	IPAddress   string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// OAuthUserRequest carries a verified identity from a provider code
// exchange. Subject is the provider's stable user id.
type OAuthUserRequest struct {
	Provider       string
	Subject        string
	Email          string
	DisplayName    string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
}

type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// SessionGrant is a freshly minted session. RawToken is handed to the
// client exactly once and never persisted.
type SessionGrant struct {
	SessionID snowflake.ID
	RawToken  string
	ExpiresAt time.Time
}

type LoginResult struct {
	User  *User
	Grant *SessionGrant
}

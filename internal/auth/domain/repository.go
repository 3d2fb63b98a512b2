package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	FindUserByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserFields(ctx context.Context, id snowflake.ID, fields map[string]any) error

	CreateCredential(ctx context.Context, credential *Credential) error
	FindCredentialByUserID(ctx context.Context, userID snowflake.ID) (*Credential, error)

	CreateProviderAccount(ctx context.Context, account *ProviderAccount) error
	FindProviderAccount(ctx context.Context, provider, providerUserID string) (*ProviderAccount, error)
	UpdateProviderAccountFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
}

// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Roles and VIP tiers stored on the user row.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	TierFree       = "free"
	TierVIPMonthly = "vip_monthly"
	TierVIPYearly  = "vip_yearly"
)

// User represents an account. One row per person regardless of how many
// login methods are linked to it.
type User struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ExternalID       string       `gorm:"column:external_id;type:text;not null;uniqueIndex"`
	Email            string       `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName      string       `gorm:"column:display_name;type:text;not null"`
	AvatarURL        string       `gorm:"column:avatar_url;type:text"`
	Role             string       `gorm:"column:role;type:text;not null;default:user"`
	VIPTier          string       `gorm:"column:vip_tier;type:text;not null;default:free"`
	StripeCustomerID *string      `gorm:"column:stripe_customer_id;type:text"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Credential holds the password hash for email+password accounts. At most
// one row per user.
type Credential struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	UserID       snowflake.ID `gorm:"column:user_id;not null;uniqueIndex"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Credential) TableName() string { return "credentials" }

// ProviderAccount links a user to an external login method. The provider
// "credentials" marks the email+password method; "google" and "apple" carry
// the provider subject in ProviderUserID.
type ProviderAccount struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"column:user_id;not null;index"`
	Provider       string       `gorm:"column:provider;type:text;not null;uniqueIndex:idx_provider_accounts_subject"`
	ProviderUserID string       `gorm:"column:provider_user_id;type:text;not null;uniqueIndex:idx_provider_accounts_subject"`
	ProviderEmail  string       `gorm:"column:provider_email;type:text"`
	AccessToken    *string      `gorm:"column:access_token;type:text"`
	RefreshToken   *string      `gorm:"column:refresh_token;type:text"`
	TokenExpiresAt *time.Time   `gorm:"column:token_expires_at"`
	CreatedAt      time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProviderAccount) TableName() string { return "provider_accounts" }

// Session represents a persisted login session. Only the sha256 hex of the
// token is stored; the raw value lives in the client cookie.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// UserView is the wire shape returned to clients.
type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"`
	VIPTier     string `json:"vipTier"`
}

// View projects a User into its client-facing shape. External ID is the
// only identifier exposed outside the service.
func (u *User) View() UserView {
	return UserView{
		ID:          u.ExternalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		VIPTier:     u.VIPTier,
	}
}

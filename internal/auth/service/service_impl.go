package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/reelcomic/reelcomic/internal/auth/domain"
	"github.com/reelcomic/reelcomic/internal/auth/password"
	"github.com/reelcomic/reelcomic/pkg/db"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 30 * 24 * time.Hour

	minPasswordLength    = 8
	minDisplayNameLength = 2
	maxDisplayNameLength = 40

	// ProviderCredentials marks the email+password login method in the
	// provider_accounts table.
	ProviderCredentials = "credentials"

	placeholderEmailDomain = "oauth.reelcomic.local"
)

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
}

func New(log *zap.Logger, repo domain.Repository, sessionRepo domain.SessionRepository, genID *snowflake.Node) domain.Service {
	return &Service{
		log:         log.Named("auth.service"),
		repo:        repo,
		sessionRepo: sessionRepo,
		genID:       genID,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if len(displayName) < minDisplayNameLength || len(displayName) > maxDisplayNameLength {
		return nil, domain.ErrInvalidInput
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidInput
	}

	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:          s.genID.Generate(),
		ExternalID:  newExternalID(),
		Email:       email,
		DisplayName: displayName,
		Role:        domain.RoleUser,
		VIPTier:     domain.TierFree,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		// A concurrent register for the same email wins the unique index.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}

	if err := s.repo.CreateCredential(ctx, &domain.Credential{
		ID:           s.genID.Generate(),
		UserID:       user.ID,
		PasswordHash: hashed,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProviderAccount(ctx, &domain.ProviderAccount{
		ID:             s.genID.Generate(),
		UserID:         user.ID,
		Provider:       ProviderCredentials,
		ProviderUserID: email,
		ProviderEmail:  email,
	}); err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	grant, err := s.IssueSession(ctx, user.ID, domain.SessionMeta{
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Grant: grant}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	credential, err := s.repo.FindCredentialByUserID(ctx, user.ID)
	if err != nil {
		// OAuth-only accounts have no credential row. Same answer as a
		// wrong password so the response does not leak account shape.
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, credential.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	grant, err := s.IssueSession(ctx, user.ID, domain.SessionMeta{
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Grant: grant}, nil
}

// FindOrCreateOAuthUser resolves a verified provider identity to a local
// user. Resolution order: existing provider link, then email match (which
// links the provider to the existing account), then a fresh account.
func (s *Service) FindOrCreateOAuthUser(ctx context.Context, req domain.OAuthUserRequest) (*domain.User, error) {
	if req.Provider == "" || req.Subject == "" {
		return nil, domain.ErrInvalidInput
	}

	account, err := s.repo.FindProviderAccount(ctx, req.Provider, req.Subject)
	if err == nil {
		if err := s.repo.UpdateProviderAccountFields(ctx, account.ID, providerTokenFields(req)); err != nil {
			s.log.Warn("provider token refresh failed", zap.String("provider", req.Provider), zap.Error(err))
		}
		return s.repo.FindUserByID(ctx, account.UserID)
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" {
		if user, err := s.repo.FindUserByEmail(ctx, email); err == nil {
			if err := s.linkProvider(ctx, user.ID, req); err != nil {
				return nil, err
			}
			return user, nil
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	}

	user := &domain.User{
		ID:          s.genID.Generate(),
		ExternalID:  newExternalID(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
		Role:        domain.RoleUser,
		VIPTier:     domain.TierFree,
	}
	if user.Email == "" {
		// Apple can withhold the email on re-authorization; the account
		// still needs a stable unique address.
		user.Email = fmt.Sprintf("%s_%s@%s", req.Provider, req.Subject, placeholderEmailDomain)
	}
	if user.DisplayName == "" {
		user.DisplayName = strings.ToUpper(req.Provider) + " User"
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		// Lost a race on the email unique index: fall back to linking
		// the provider to whoever won.
		if db.IsDuplicateKeyErr(err) {
			winner, ferr := s.repo.FindUserByEmail(ctx, user.Email)
			if ferr != nil {
				return nil, ferr
			}
			if lerr := s.linkProvider(ctx, winner.ID, req); lerr != nil {
				return nil, lerr
			}
			return winner, nil
		}
		return nil, err
	}

	if err := s.linkProvider(ctx, user.ID, req); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) linkProvider(ctx context.Context, userID snowflake.ID, req domain.OAuthUserRequest) error {
	account := &domain.ProviderAccount{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Provider:       req.Provider,
		ProviderUserID: req.Subject,
		ProviderEmail:  strings.ToLower(strings.TrimSpace(req.Email)),
		TokenExpiresAt: req.TokenExpiresAt,
	}
	if req.AccessToken != "" {
		account.AccessToken = &req.AccessToken
	}
	if req.RefreshToken != "" {
		account.RefreshToken = &req.RefreshToken
	}
	err := s.repo.CreateProviderAccount(ctx, account)
	if err == nil {
		return nil
	}
	// A concurrent callback already created the link; refresh its tokens.
	if db.IsDuplicateKeyErr(err) {
		existing, ferr := s.repo.FindProviderAccount(ctx, req.Provider, req.Subject)
		if ferr != nil {
			return ferr
		}
		return s.repo.UpdateProviderAccountFields(ctx, existing.ID, providerTokenFields(req))
	}
	return err
}

func (s *Service) IssueSession(ctx context.Context, userID snowflake.ID, meta domain.SessionMeta) (*domain.SessionGrant, error) {
	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           userID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(meta.UserAgent),
		IPAddress:        strings.TrimSpace(meta.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.SessionGrant{
		SessionID: session.ID,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.User, *domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil, domain.ErrInvalidSession
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	if session.RevokedAt != nil {
		return nil, nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, nil, domain.ErrSessionExpired
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, nil, err
	}

	user, err := s.repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}

	return s.sessionRepo.RevokeSession(ctx, session.ID, time.Now().UTC())
}

func (s *Service) FindUserByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, id)
}

func providerTokenFields(req domain.OAuthUserRequest) map[string]any {
	fields := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if req.AccessToken != "" {
		fields["access_token"] = req.AccessToken
	}
	if req.RefreshToken != "" {
		fields["refresh_token"] = req.RefreshToken
	}
	if req.TokenExpiresAt != nil {
		fields["token_expires_at"] = *req.TokenExpiresAt
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		fields["provider_email"] = email
	}
	return fields
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func newExternalID() string {
	return uuid.NewString()
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

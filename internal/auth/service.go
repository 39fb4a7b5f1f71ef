// Package auth registers users, checks credentials and issues access tokens.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

var _ core.Presence = (*Service)(nil)

type Service struct {
	users  core.UserStore
	hasher *PasswordHasher
	tokens *TokenManager
	now    func() time.Time
}

func NewService(users core.UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Session is what a successful register or login hands back.
type Session struct {
	User  *domain.User
	Token string
}

func (s *Service) Register(ctx context.Context, username, password, email string) (*Session, error) {
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	now := s.now()
	u, err := domain.NewUser(username, email, now)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	u.Status = domain.StatusOnline

	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Info().Str("module", "auth").Str("user", string(u.ID)).Str("username", u.Username).Msg("user registered")
	return s.session(u)
}

// Authenticate never tells which of username or password was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		log.Info().Str("module", "auth").Str("username", username).Msg("bad credentials")
		return nil, ErrInvalidCredentials
	}
	if err := s.SetStatus(ctx, u.ID, domain.StatusOnline); err != nil {
		log.Warn().Err(err).Str("module", "auth").Str("user", string(u.ID)).Msg("status update failed")
	}
	u.Status = domain.StatusOnline
	log.Info().Str("module", "auth").Str("user", string(u.ID)).Msg("user logged in")
	return s.session(u)
}

func (s *Service) session(u *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

// SetStatus records presence and last-seen.
func (s *Service) SetStatus(ctx context.Context, id domain.UserID, status domain.UserStatus) error {
	return s.users.UpdateUserStatus(ctx, id, status, s.now())
}

// ParseToken resolves a bearer token to its identity.
func (s *Service) ParseToken(raw string) (domain.UserID, string, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return "", "", err
	}
	return domain.UserID(claims.UserID), claims.Username, nil
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return NewService(s, NewPasswordHasher(bcrypt.MinCost), NewTokenManager("test-secret", time.Hour)), s
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	sess, err := svc.Register(ctx, "alice", "correct horse", "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.User.Username)
	assert.NotEmpty(t, sess.Token)

	stored, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
	assert.Equal(t, domain.StatusOnline, stored.Status)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	uid, name, err := svc.ParseToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, uid)
	assert.Equal(t, "alice", name)
}

func TestService_RegisterErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Register(ctx, "alice", "correct horse", "alice@example.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		email    string
		kind     error
	}{
		{"short password", "bob", "short", "bob@example.com", domain.ErrValidation},
		{"short username", "bo", "long enough", "bob@example.com", domain.ErrValidation},
		{"bad email", "bob", "long enough", "bob-at-example", domain.ErrValidation},
		{"taken username", "alice", "long enough", "bob@example.com", domain.ErrConflict},
		{"taken email", "bob", "long enough", "ALICE@example.com", domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.password, tt.email)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	reg, err := svc.Register(ctx, "alice", "correct horse", "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, reg.User.ID, domain.StatusOffline))

	sess, err := svc.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)
	assert.Equal(t, domain.StatusOnline, sess.User.Status)

	stored, err := store.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, stored.Status)

	_, err = svc.Authenticate(ctx, "alice", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenManager(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewTokenManager("secret", time.Hour)
	m.now = func() time.Time { return issued }

	raw, err := m.Issue("u1", "alice")
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "u1", claims.Subject)

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewTokenManager("another-secret", time.Hour)
	other.now = func() time.Time { return issued }
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.True(t, h.Verify("hunter22", hash))
	assert.False(t, h.Verify("hunter23", hash))
	assert.False(t, h.Verify("hunter22", "garbage"))

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
}

// Package domain holds the chat entities and the input rules they enforce
// on construction.
package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 30
	MinPasswordLen = 8
)

// Reserved identity that authors join/leave notices and owns the default room.
const (
	SystemUserID   UserID = "system"
	SystemUsername        = "System"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type (
	UserID     string
	UserStatus string
)

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type User struct {
	ID           UserID     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	DisplayName  string     `json:"display_name"`
	Status       UserStatus `json:"status"`
	LastSeen     time.Time  `json:"last_seen"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// The password hash is filled in by the auth service.
func NewUser(username, email string, now time.Time) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, Validation("Please enter a valid email address")
	}
	return &User{
		ID:          UserID(uuid.NewString()),
		Username:    username,
		Email:       email,
		DisplayName: username,
		Status:      StatusOffline,
		LastSeen:    now,
		CreatedAt:   now,
	}, nil
}

func ValidateUsername(username string) error {
	if username == "" {
		return Validation("Username is required")
	}
	if n := utf8.RuneCountInString(username); n < MinUsernameLen || n > MaxUsernameLen {
		return Validation("Username must be between 3 and 30 characters")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return Validation("Password must be at least 8 characters")
	}
	return nil
}

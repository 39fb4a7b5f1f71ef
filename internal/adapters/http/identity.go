package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionName     = "ChatSessions"
	sessionUserID   = "user_id"
	sessionUsername = "username"

	ctxUserID   = "user_id"
	ctxUsername = "username"
)

// SessionIdentity resolves the caller from the cookie session, then from a
// bearer token (header or ?token=).
type SessionIdentity struct {
	Auth *auth.Service
}

func (i SessionIdentity) CurrentIdentity(c *gin.Context) (domain.UserID, string, bool) {
	s := sessions.Default(c)
	if uid, ok := s.Get(sessionUserID).(string); ok && uid != "" {
		name, _ := s.Get(sessionUsername).(string)
		return domain.UserID(uid), name, true
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" || token == c.GetHeader("Authorization") {
		token = c.Query("token")
	}
	if token == "" {
		return "", "", false
	}
	uid, name, err := i.Auth.ParseToken(token)
	if err != nil {
		return "", "", false
	}
	return uid, name, true
}

// Required aborts with 401 unless the caller is authenticated.
func (i SessionIdentity) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, name, ok := i.CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Set(ctxUserID, uid)
		c.Set(ctxUsername, name)
		c.Next()
	}
}

func currentUser(c *gin.Context) (domain.UserID, string) {
	uid, _ := c.Get(ctxUserID)
	id, _ := uid.(domain.UserID)
	return id, c.GetString(ctxUsername)
}

func saveSession(c *gin.Context, u *domain.User) error {
	s := sessions.Default(c)
	s.Set(sessionUserID, string(u.ID))
	s.Set(sessionUsername, u.Username)
	return s.Save()
}

func clearSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

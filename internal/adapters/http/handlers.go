package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const recentRoomsLimit = 20

type Pinger interface {
	Ping(ctx context.Context) error
}

// RecentRooms is the optional activity index.
type RecentRooms interface {
	RecentRooms(ctx context.Context, publicOnly bool, limit int) ([]domain.RoomID, error)
}

type handlers struct {
	auth     *auth.Service
	orch     *orch.Orchestrator
	identity SessionIdentity
	pinger   Pinger
	recent   RecentRooms
	history  config.HistoryConfig
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

type authResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Token    string        `json:"token"`
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAccessDenied):
		status = http.StatusForbidden
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": domain.UserMessage(err, "Internal server error")})
}

func (a *handlers) health(c *gin.Context) {
	if a.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.pinger.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *handlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
		return
	}
	sess, err := a.auth.Register(c.Request.Context(), strings.TrimSpace(req.Username), req.Password, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := saveSession(c, sess.User); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{ID: sess.User.ID, Username: sess.User.Username, Token: sess.Token})
}

func (a *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}
	sess, err := a.auth.Authenticate(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		writeError(c, err)
		return
	}
	if err := saveSession(c, sess.User); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{ID: sess.User.ID, Username: sess.User.Username, Token: sess.Token})
}

func (a *handlers) logout(c *gin.Context) {
	if uid, _, ok := a.identity.CurrentIdentity(c); ok {
		if err := a.auth.SetStatus(c.Request.Context(), uid, domain.StatusOffline); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("user", string(uid)).Msg("logout status update failed")
		}
	}
	if err := clearSession(c); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *handlers) listRooms(c *gin.Context) {
	uid, _ := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"public_rooms": a.orch.Rooms.ListPublicRooms(),
		"user_rooms":   a.orch.Rooms.ListUserRooms(uid),
	})
}

func (a *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}
	uid, _ := currentUser(c)
	name := strings.ToLower(strings.TrimSpace(req.Name))
	id, err := a.orch.Rooms.CreateRoom(c.Request.Context(), name, uid, req.Description, req.IsPrivate)
	if err != nil {
		writeError(c, err)
		return
	}
	room, ok := a.orch.Rooms.GetRoom(id)
	if !ok {
		writeError(c, domain.NotFound("Room not found"))
		return
	}
	c.JSON(http.StatusCreated, room)
}

// accessibleRoom resolves :room_id for the caller or writes the error.
func (a *handlers) accessibleRoom(c *gin.Context) (*domain.Room, bool) {
	uid, _ := currentUser(c)
	room, ok := a.orch.Rooms.GetRoom(domain.RoomID(c.Param("room_id")))
	if !ok {
		writeError(c, domain.NotFound("Room not found"))
		return nil, false
	}
	if !a.orch.Rooms.CanAccess(room, uid) {
		writeError(c, domain.AccessDenied())
		return nil, false
	}
	return room, true
}

func (a *handlers) getRoom(c *gin.Context) {
	if room, ok := a.accessibleRoom(c); ok {
		c.JSON(http.StatusOK, room)
	}
}

// deleteRoom is allowed to the creator only.
func (a *handlers) deleteRoom(c *gin.Context) {
	room, ok := a.accessibleRoom(c)
	if !ok {
		return
	}
	uid, _ := currentUser(c)
	if room.CreatedBy != uid {
		writeError(c, domain.AccessDenied())
		return
	}
	if err := a.orch.EvictRoom(c.Request.Context(), room.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *handlers) recentRooms(c *gin.Context) {
	rooms := make([]*domain.Room, 0, recentRoomsLimit)
	if a.recent != nil {
		ids, err := a.recent.RecentRooms(c.Request.Context(), true, recentRoomsLimit)
		if err == nil {
			for _, id := range ids {
				if room, ok := a.orch.Rooms.GetRoom(id); ok {
					rooms = append(rooms, room)
				}
			}
			c.JSON(http.StatusOK, gin.H{"rooms": rooms})
			return
		}
		log.Warn().Err(err).Str("module", "adapters.http").Msg("room index unavailable, using registry")
	}
	public := a.orch.Rooms.ListPublicRooms()
	rooms = append(rooms, public[:min(len(public), recentRoomsLimit)]...)
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (a *handlers) listMessages(c *gin.Context) {
	room, ok := a.accessibleRoom(c)
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(c, "per_page", a.history.PerPage)
	if perPage < 1 {
		perPage = a.history.PerPage
	}
	perPage = min(perPage, a.history.MaxPerPage)
	if _, ok := domain.PageOffset(page, perPage); !ok {
		writeError(c, domain.Validation("Page out of range"))
		return
	}

	msgs, err := a.orch.Messages.ListMessages(c.Request.Context(), room.ID, page, perPage)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]orch.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, orch.NewMessageView(m))
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id":   room.ID,
		"room_name": room.Name,
		"messages":  views,
		"page":      page,
		"per_page":  perPage,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

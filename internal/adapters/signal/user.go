package signal

import (
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/domain"
)

type whoAmIView struct {
	UserID   domain.UserID   `json:"user_id"`
	Username string          `json:"username"`
	Rooms    []domain.RoomID `json:"rooms"`
}

// handleWhoAmI reports the bound identity and live subscriptions.
func (ctl *SignalWSController) handleWhoAmI(sess *orch.Session, c *WsSignalConn) {
	id := sess.Identity
	rooms := ctl.Orch.Hub.Rooms(id.ConnID)
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	ctl.sendJSON(c, "whoami", whoAmIView{
		UserID:   id.UserID,
		Username: id.Username,
		Rooms:    rooms,
	})
}

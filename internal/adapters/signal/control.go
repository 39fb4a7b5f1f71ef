package signal

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, "pong", struct{}{})
}

package signal

import "github.com/dkeye/StreamRelay/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: core.MessagePong,
	}
	ctl.send(conn, resp)
}

func (ctl *SignalWSController) handleList(conn *WsSignalConn) {
	ctl.send(conn, core.NewStreamList(ctl.Orch.Streams()))
}

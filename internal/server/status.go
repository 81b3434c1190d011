package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the liveness payload. Diagnostic only.
type StatusResponse struct {
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Identities  int    `json:"identities"`
}

// HandleStatus reports process liveness and current counts. Connections and
// identities can differ briefly while a failed admission is being closed.
func (g *Gateway) HandleStatus(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	rooms := g.engine.RoomCount()
	conns := len(g.conns)
	idents := g.ids.Count()
	g.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:      "ok",
		Timestamp:   time.Now().UnixMilli(),
		Rooms:       rooms,
		Connections: conns,
		Identities:  idents,
	})
}

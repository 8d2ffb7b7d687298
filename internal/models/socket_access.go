package models

import (
	"strings"
	"time"
)

// SocketAccess is one live connection-to-room binding. Created on connect,
// deleted on disconnect; the counters back the per-connection rate guard.
type SocketAccess struct {
	ID             int       `json:"-"`
	RoomID         string    `json:"room_id"`
	AccessID       string    `json:"access_id"`
	UserID         *int      `json:"user_id"`
	UserName       string    `json:"user_name"`
	ConnectionName string    `json:"connection_name"`
	RequestCount   int       `json:"request_count"`
	LastRequestAt  time.Time `json:"last_request_at"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// SocketAccessEntry is the pseudonymous presence projection shown to peers.
type SocketAccessEntry struct {
	AccessID string `json:"access_id"`
	UserName string `json:"user_name"`
}

// DisplayName derives the pseudonymous handle shown to peers from an access id.
func DisplayName(accessID string) string {
	n := len(accessID)
	if n > 5 {
		n = 5
	}
	return "*" + strings.ToUpper(accessID[:n])
}

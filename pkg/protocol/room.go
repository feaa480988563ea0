package protocol

import (
	"fmt"
	"net/url"
)

// Room describes one bounded group of participants sharing a synchronized
// world. The server owns the participant counts; the client only ever stores
// the latest copy it was sent.
type Room struct {
	Name           string `json:"name"`
	MaxPlayers     int    `json:"maxPlayers"`
	CurrentPlayers int    `json:"currentPlayers"`
	CreatorID      string `json:"creatorId"`
}

// ConnectAck is the /connect response body carrying the server-assigned
// participant identifier.
type ConnectAck struct {
	PlayerID string `json:"playerId"`
}

// LeftRoom announces that a participant left the current room. Every entity
// owned by that participant must be destroyed on receipt.
type LeftRoom struct {
	PlayerID string `json:"playerId"`
}

// One-shot HTTP routes and the websocket route.
const (
	RouteConnect     = "/connect"
	RouteCreateRoom  = "/create-room"
	RouteJoinRoom    = "/join-room"
	RouteGetRoomList = "/get-room-list"
)

// Form field names for the one-shot routes and the join query string.
const (
	FieldName       = "name"
	FieldRoomName   = "roomName"
	FieldPlayerID   = "playerId"
	FieldMaxPlayers = "maxPlayers"
)

// ServerURL builds an http(s) URL for a one-shot route.
func ServerURL(addr string, secure bool, route string) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, addr, route)
}

// SocketURL builds the ws(s) URL for the room-scoped streaming connection.
func SocketURL(addr string, secure bool, roomName, playerID string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set(FieldRoomName, roomName)
	q.Set(FieldPlayerID, playerID)
	return fmt.Sprintf("%s://%s%s?%s", scheme, addr, RouteJoinRoom, q.Encode())
}

package models

// RoomInfo describes a live room as seen by this process
type RoomInfo struct {
	RoomID   string `json:"roomId"`
	Members  int    `json:"members"`
	Presence *int64 `json:"presence,omitempty"` // Members across all instances, when Redis is enabled
}

// RoomListResponse is the response for listing live rooms
type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

// TokenResponse is the response for the media token endpoint
type TokenResponse struct {
	Token string `json:"token"`
}

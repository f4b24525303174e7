package model

// MonitorResponse is the payload returned by the hub stats endpoint.
type MonitorResponse struct {
	Status      string          `json:"status"`
	Connections ConnectionStats `json:"connections"`
	Rooms       RoomStats       `json:"rooms"`
}

// ConnectionStats summarizes live socket sessions.
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"`
}

// RoomStats summarizes joined rooms across all shards.
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo describes one room and its current members.
type RoomInfo struct {
	RoomID      string   `json:"roomId"`
	MemberCount int      `json:"memberCount"`
	Members     []string `json:"members"`
}

package hub

import (
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
)

// MonitorService gathers hub statistics for the monitor endpoint.
type MonitorService struct {
	hub *Hub
}

func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats returns a snapshot of connections and room membership.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connected := ms.hub.registry.Count()

	status := "healthy"
	if connected == 0 {
		status = "idle"
	}

	total, details := ms.hub.rooms.Stats()
	rooms := model.RoomStats{
		TotalRooms:  total,
		RoomDetails: make([]model.RoomInfo, 0, len(details)),
	}
	for _, d := range details {
		rooms.RoomDetails = append(rooms.RoomDetails, model.RoomInfo{
			RoomID:      d.RoomID,
			MemberCount: len(d.Members),
			Members:     d.Members,
		})
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: model.ConnectionStats{TotalConnected: connected},
		Rooms:       rooms,
	}
}

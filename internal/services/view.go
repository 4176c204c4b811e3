package services

import (
	"roomchat/internal/membership"
	"roomchat/internal/models"
)

// RoomView is the client representation of room. The password hash never
// leaves the server; only whether one is set.
func RoomView(room *models.Room) models.RoomResponse {
	createdBy := room.CreatedBy
	if createdBy.Role == "" {
		createdBy.Role = models.RoleAdmin
	}
	visibility := room.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	return models.RoomResponse{
		ID:               room.ID,
		Name:             room.Name,
		Description:      room.Description,
		Type:             visibility,
		RequiresPassword: room.RequiresPassword(),
		Members:          membership.Normalize(room.Members, models.RoleMember).List,
		Admins:           membership.Normalize(room.Admins, models.RoleAdmin).List,
		CreatedBy:        createdBy,
		CreatedAt:        room.CreatedAt,
		UpdatedAt:        room.UpdatedAt,
	}
}

func RoomViews(rooms []*models.Room) []models.RoomResponse {
	out := make([]models.RoomResponse, len(rooms))
	for i, room := range rooms {
		out[i] = RoomView(room)
	}
	return out
}

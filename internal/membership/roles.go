package membership

import "roomchat/internal/models"

// IsAdmin reports whether memberID administers a room. The creator is always
// an admin, whether or not the admin store lists them.
func IsAdmin(memberID string, admins map[string]models.Member, createdBy models.Member) bool {
	if memberID == "" {
		return false
	}
	if _, ok := admins[memberID]; ok {
		return true
	}
	return createdBy.ID == memberID
}

func RoleFor(memberID string, admins map[string]models.Member, createdBy models.Member) models.Role {
	if IsAdmin(memberID, admins, createdBy) {
		return models.RoleAdmin
	}
	return models.RoleMember
}

// Snapshot builds the member record stored in a room for user.
func Snapshot(user *models.Identity, role models.Role) models.Member {
	return models.Member{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
		Role:   role,
	}
}

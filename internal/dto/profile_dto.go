package dto

import "github.com/noah-isme/gema-classroom/internal/models"

// RoleRef names the role attached to an account.
type RoleRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// AuthAccount is the login account behind a profile.
type AuthAccount struct {
	ID   string  `json:"_id"`
	Role RoleRef `json:"role"`
}

// ProfileResponse is the serialized user profile.
type ProfileResponse struct {
	ID      string      `json:"_id"`
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Phone   string      `json:"phone,omitempty"`
	Address string      `json:"address,omitempty"`
	AuthID  AuthAccount `json:"authId"`
}

// NewProfileResponse converts a model into a DTO.
func NewProfileResponse(model models.Profile) ProfileResponse {
	return ProfileResponse{
		ID:      model.ID,
		Name:    model.Name,
		Email:   model.Email,
		Phone:   model.Phone,
		Address: model.Address,
		AuthID: AuthAccount{
			ID:   model.AccountID,
			Role: RoleRef{ID: model.RoleID, Name: model.RoleName},
		},
	}
}

// ProfileSeed describes a profile inserted by the seed endpoint.
type ProfileSeed struct {
	ID      string `json:"_id"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Role    string `json:"role" validate:"required"`
}

// ClassSeed describes a class inserted by the seed endpoint.
type ClassSeed struct {
	ID        string   `json:"_id"`
	ClassName string   `json:"classname" validate:"required"`
	CourseID  string   `json:"courseId"`
	Teachers  []string `json:"teachers"`
	Students  []string `json:"students"`
	Quantity  int      `json:"quantity" validate:"gte=0"`
	Status    string   `json:"status"`
}

package dto

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// UpdateProfileRequest payload for PUT /api/users/profile.
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
	)
}

// UserProfileResponse wraps a single user.
type UserProfileResponse struct {
	User UserResponse `json:"user"`
}

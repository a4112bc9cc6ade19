package validation

import (
	"strings"

	"amerifund/internal/models"
)

// UserRegistration validates a registration request
func (v *Validator) UserRegistration(input *models.RegisterInput) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	v.Required("username", input.Username)
	v.MinLength("username", input.Username, MinUsernameLength)
	v.MaxLength("username", input.Username, MaxUsernameLength)
	v.Required("email", input.Email)
	v.Email("email", input.Email)
	v.Password("password", input.Password)
	v.Required("confirm_password", input.ConfirmPassword)
	v.PasswordConfirmation("confirm_password", input.Password, input.ConfirmPassword)
}

// UserLogin validates a login request
func (v *Validator) UserLogin(input *models.LoginInput) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	v.Required("email", input.Email)
	v.Email("email", input.Email)
	v.Required("password", input.Password)
}

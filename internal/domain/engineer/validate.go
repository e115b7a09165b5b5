package engineer

import (
	"regexp"
	"strings"

	"labourpanel/internal/domain/validation"
)

const (
	minUsernameLength = 4
	minPasswordLength = 6
)

var (
	phonePattern    = regexp.MustCompile(`^[0-9]{10}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Validate computes the field errors for d. It is pure; an empty result
// means the draft may be submitted.
func Validate(d Draft, mode Mode) validation.FieldErrors {
	v := validation.NewValidator()

	v.Required(FieldName, d.Name, "Name is required")

	if v.Required(FieldPhone, d.Phone, "Phone number is required") {
		v.Pattern(FieldPhone, strings.TrimSpace(d.Phone), phonePattern, "Phone number must be 10 digits")
	}
	if alt := strings.TrimSpace(d.AlternatePhone); alt != "" {
		v.Pattern(FieldAlternatePhone, alt, phonePattern, "Alternate phone number must be 10 digits")
	}

	v.Required(FieldEmployeeID, d.EmployeeID, "Employee ID is required")
	v.Required(FieldAddress, d.Address, "Address is required")

	if v.Required(FieldUsername, d.Username, "Username is required") {
		username := strings.TrimSpace(d.Username)
		v.MinLength(FieldUsername, username, minUsernameLength, "Username must be at least 4 characters")
		v.Pattern(FieldUsername, username, usernamePattern, "Username can only contain letters, numbers and underscores")
	}

	switch mode {
	case ModeCreate:
		if v.Required(FieldPassword, d.Password, "Password is required") {
			v.MinLength(FieldPassword, d.Password, minPasswordLength, "Password must be at least 6 characters")
		}
		if v.Required(FieldConfirmPassword, d.ConfirmPassword, "Please confirm the password") {
			v.Equal(FieldConfirmPassword, d.ConfirmPassword, d.Password, "Passwords do not match")
		}
	case ModeEdit:
		if d.Password != "" {
			v.MinLength(FieldPassword, d.Password, minPasswordLength, "Password must be at least 6 characters")
		}
	}

	return v.Errors()
}

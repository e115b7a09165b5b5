package engineer

import (
	"encoding/json"

	"labourpanel/internal/platform/imaging"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Field names double as the JSON keys the browser uses.
const (
	FieldName            = "name"
	FieldPhone           = "phone"
	FieldAlternatePhone  = "alternatePhone"
	FieldEmployeeID      = "employeeId"
	FieldAddress         = "address"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldImage           = "image"
)

// Draft is the in-progress engineer input.
type Draft struct {
	Name            string
	Phone           string
	AlternatePhone  string
	EmployeeID      string
	Address         string
	Username        string
	Password        string
	ConfirmPassword string
	ProfileImage    *imaging.Image
}

// Engineer is the stored record used to hydrate an edit form.
type Engineer struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	AlternatePhone  string `json:"alternatePhone,omitempty"`
	EmployeeID      string `json:"employeeId"`
	Address         string `json:"address"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profileImage,omitempty"`
}

// PasswordChange says whether an engineer's credential should change.
// The zero value is Unchanged.
type PasswordChange struct {
	set   bool
	value string
}

func Unchanged() PasswordChange {
	return PasswordChange{}
}

func NewPassword(password string) PasswordChange {
	return PasswordChange{set: true, value: password}
}

func (p PasswordChange) IsSet() bool {
	return p.set
}

func (p PasswordChange) Value() string {
	return p.value
}

// Payload is the body sent to the backend on create and update.
type Payload struct {
	Name             string
	Phone            string
	AlternatePhone   string
	EmployeeID       string
	Address          string
	Username         string
	Password         PasswordChange
	ProfileImage     string
	ProfileImageType string
}

type wirePayload struct {
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	AlternatePhone   string  `json:"alternatePhone"`
	EmployeeID       string  `json:"employeeId"`
	Address          string  `json:"address"`
	Username         string  `json:"username"`
	Password         *string `json:"password,omitempty"`
	ProfileImage     string  `json:"profileImage,omitempty"`
	ProfileImageType string  `json:"profileImageType,omitempty"`
}

// MarshalJSON leaves the password key out entirely when it is Unchanged so
// an accidental empty string can never reach the backend as a new password.
func (p Payload) MarshalJSON() ([]byte, error) {
	wire := wirePayload{
		Name:             p.Name,
		Phone:            p.Phone,
		AlternatePhone:   p.AlternatePhone,
		EmployeeID:       p.EmployeeID,
		Address:          p.Address,
		Username:         p.Username,
		ProfileImage:     p.ProfileImage,
		ProfileImageType: p.ProfileImageType,
	}
	if p.Password.IsSet() {
		value := p.Password.Value()
		wire.Password = &value
	}
	return json.Marshal(wire)
}

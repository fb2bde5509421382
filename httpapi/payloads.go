package httpapi

import (
	"errors"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var identifierRules = []validation.Rule{
	validation.Required,
	validation.Length(3, 50),
	validation.Match(identifierPattern).Error("must contain only letters, digits and underscores"),
}

// RegisterPayload is the registration request body
type RegisterPayload struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, identifierRules...),
		validation.Field(&r.Password,
			validation.Required,
			validation.RuneLength(8, 72),
			validation.By(ValidatePasswordStrength),
		),
	)
}

// LoginPayload is the login request body
type LoginPayload struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshPayload carries the refresh token
type RefreshPayload struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

// Validate will validate the payload
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required, is.PrintableASCII),
	)
}

// ChangePasswordPayload is the password change request body
type ChangePasswordPayload struct {
	CurrentPassword string `json:"currentPassword" form:"currentPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword,
			validation.Required,
			validation.RuneLength(8, 72),
			validation.By(ValidatePasswordStrength),
			validation.By(ValidateStringDiffers(r.CurrentPassword)),
		),
	)
}

// ValidatePasswordStrength requires upper, lower, digit and special
// characters and at most 72 bytes.
func ValidatePasswordStrength(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	if len(s) > 72 {
		return errors.New("must be at most 72 bytes")
	}

	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}

	if !upper || !lower || !digit || !special {
		return errors.New("must contain upper and lower case letters, a digit and a special character")
	}
	return nil
}

// ValidateStringDiffers fails when the value equals other
func ValidateStringDiffers(other string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != "" && s == other {
			return errors.New("must differ from the current password")
		}
		return nil
	}
}

package users

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minPasswordLength = 6

var (
	emailPattern  = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Mobile          string `json:"mobile"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	CompanyName     string `json:"companyName"`
}

// Validate applies the registration rules in order; the first failing rule
// is returned.
func (in RegisterInput) Validate() error {
	for _, v := range []string{in.Name, in.Email, in.Mobile, in.Password, in.ConfirmPassword, in.CompanyName} {
		if blank(v) {
			return ErrMissingFields
		}
	}
	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if !mobilePattern.MatchString(in.Mobile) {
		return ErrInvalidMobile
	}
	if !emailPattern.MatchString(in.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	if blank(in.Email) || in.Password == "" {
		return ErrMissingCredentials
	}
	if !emailPattern.MatchString(in.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// ExternalIdentity is what a third-party sign-in hands over.
type ExternalIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (in ExternalIdentity) Validate() error {
	if blank(in.Email) {
		return ErrMissingEmail
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

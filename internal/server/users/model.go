package users

import (
	"encoding/json"
	"errors"
	"time"
)

// Provider tags how a user record came to exist.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderExternal Provider = "external"
)

// UnmarshalJSON also accepts the tags written by older data files
// ("credentials" for local sign-up, "google" for Google sign-in).
func (p *Provider) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "":
		*p = ""
	case string(ProviderLocal), "credentials":
		*p = ProviderLocal
	default:
		// any third-party identity provider
		*p = ProviderExternal
	}
	return nil
}

// User is one persisted identity. It is the exact line format of the file
// store, so the hash keeps the historical "password" key.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile,omitempty"`
	PasswordHash string    `json:"password,omitempty"`
	CompanyName  string    `json:"companyName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Provider     Provider  `json:"provider"`
}

// PublicUser is a User as shown to clients: never carries the hash.
type PublicUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Mobile      string    `json:"mobile,omitempty"`
	CompanyName string    `json:"companyName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Provider    Provider  `json:"provider"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Mobile:      u.Mobile,
		CompanyName: u.CompanyName,
		CreatedAt:   u.CreatedAt,
		Provider:    u.Provider,
	}
}

// withoutSecret returns a copy with the password hash removed.
func (u *User) withoutSecret() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

var errMalformedRecord = errors.New("malformed user record")

// normalize fills in the provider of legacy records and enforces the
// record invariants.
func (u *User) normalize() error {
	if u.Provider == "" {
		if u.PasswordHash != "" {
			u.Provider = ProviderLocal
		} else {
			u.Provider = ProviderExternal
		}
	}

	switch {
	case u.ID == "" || u.Email == "":
		return errMalformedRecord
	case u.Provider == ProviderLocal && u.PasswordHash == "":
		return errMalformedRecord
	case u.Provider == ProviderExternal && u.PasswordHash != "":
		return errMalformedRecord
	}
	return nil
}

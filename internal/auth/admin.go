package auth

import (
	"crypto/subtle"
	"errors"
	"log"
	"strings"
)

// ErrInvalidCredentials is returned for any failed login, without saying which part was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AdminAuthenticator checks dashboard logins against the single configured admin account.
type AdminAuthenticator struct {
	email        string
	passwordHash string
}

// NewAdminAuthenticator creates an authenticator. An empty email, or an empty or
// malformed hash, disables login.
func NewAdminAuthenticator(email, passwordHash string) *AdminAuthenticator {
	if passwordHash != "" {
		if err := checkHash(passwordHash); err != nil {
			log.Printf("WARNING: %v; admin login disabled", err)
			passwordHash = ""
		}
	}
	return &AdminAuthenticator{email: strings.ToLower(strings.TrimSpace(email)), passwordHash: passwordHash}
}

// Enabled reports whether an admin account is configured.
func (a *AdminAuthenticator) Enabled() bool {
	return a.email != "" && a.passwordHash != ""
}

// Authenticate returns the normalised admin email when the credentials match.
func (a *AdminAuthenticator) Authenticate(email, password string) (string, error) {
	if !a.Enabled() {
		return "", ErrInvalidCredentials
	}
	candidate := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(candidate), []byte(a.email)) == 1
	// bcrypt runs even when the email is wrong.
	passwordOK := passwordMatches(a.passwordHash, password)
	if !emailOK || !passwordOK {
		return "", ErrInvalidCredentials
	}
	return a.email, nil
}

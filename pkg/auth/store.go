package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

const credentialFile = "auth.json"

// AuthCredential is the session token issued by POST /user/login together
// with the identity it belongs to.
type AuthCredential struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	BaseURL     string    `json:"base_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *AuthCredential) Valid() bool {
	return c != nil && c.AccessToken != "" && c.UserID != ""
}

func (c *AuthCredential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
	})
}

// ErrNotLoggedIn is returned by LoadCredential when no credential is stored.
var ErrNotLoggedIn = errors.New("not logged in")

func credentialPath(dir string) string {
	return filepath.Join(dir, credentialFile)
}

func LoadCredential(dir string) (*AuthCredential, error) {
	data, err := os.ReadFile(credentialPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	var cred AuthCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parsing credential: %w", err)
	}
	if !cred.Valid() {
		return nil, ErrNotLoggedIn
	}
	return &cred, nil
}

func SaveCredential(dir string, cred *AuthCredential) error {
	if !cred.Valid() {
		return errors.New("credential needs a token and a user id")
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(credentialPath(dir), data, 0o600)
}

// DeleteCredential removes the stored credential; a missing file is not an error.
func DeleteCredential(dir string) error {
	err := os.Remove(credentialPath(dir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/pkg/auth"
	"github.com/tinyland-inc/picochat/pkg/logger"
)

func loginCmd(ctx context.Context, in io.Reader, out io.Writer, email, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := internal.LoadConfig(false)
	if err != nil {
		return err
	}

	if email == "" || password == "" {
		var input io.Reader = in
		if email != "" {
			input = io.MultiReader(strings.NewReader(email+"\n"), in)
		}
		prompt, err := auth.PromptLogin(input, out)
		if err != nil {
			return err
		}
		email, password = prompt.Email, prompt.Password
	}

	client := internal.NewAPIClient(cfg, nil)
	res, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cred := &auth.AuthCredential{
		AccessToken: res.Token,
		UserID:      res.User.Identifier(),
		Username:    res.User.Username,
		Email:       res.User.Email,
		BaseURL:     cfg.Server.BaseURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := auth.SaveCredential(internal.GetHomeDir(), cred); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	logger.InfoCF("auth", "Logged in", map[string]any{
		"user_id":  cred.UserID,
		"base_url": cred.BaseURL,
	})
	fmt.Fprintf(out, "%s Logged in as %s (%s)\n", internal.Logo, displayName(cred), cred.UserID)
	return nil
}

func logoutCmd(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cred, err := auth.LoadCredential(internal.GetHomeDir())
	if errors.Is(err, auth.ErrNotLoggedIn) {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := internal.LoadConfig(false)
	if err != nil {
		return err
	}
	// The local token goes away even when the server call fails.
	if err := internal.NewAPIClient(cfg, nil).Logout(ctx, cred.AccessToken); err != nil {
		logger.WarnCF("auth", "Server logout failed", map[string]any{"error": err.Error()})
	}
	if err := auth.DeleteCredential(internal.GetHomeDir()); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out.")
	return nil
}

func statusCmd(out io.Writer) error {
	cred, err := auth.LoadCredential(internal.GetHomeDir())
	if errors.Is(err, auth.ErrNotLoggedIn) {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s (%s)\n", displayName(cred), cred.UserID)
	if cred.BaseURL != "" {
		fmt.Fprintf(out, "Server: %s\n", cred.BaseURL)
	}
	fmt.Fprintf(out, "Since: %s\n", cred.CreatedAt.Format(time.RFC1123))
	return nil
}

func displayName(cred *auth.AuthCredential) string {
	switch {
	case cred.Username != "":
		return cred.Username
	case cred.Email != "":
		return cred.Email
	default:
		return cred.UserID
	}
}

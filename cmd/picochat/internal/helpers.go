package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tinyland-inc/picochat/pkg/api"
	"github.com/tinyland-inc/picochat/pkg/auth"
	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/config"
	"github.com/tinyland-inc/picochat/pkg/logger"
)

const Logo = "💬"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// GetHomeDir returns ~/.picochat, or $PICOCHAT_HOME when set.
func GetHomeDir() string {
	if dir := os.Getenv("PICOCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picochat")
}

func GetConfigPath() string {
	return filepath.Join(GetHomeDir(), "config.json")
}

// LoadConfig loads the config and applies its logging section.
func LoadConfig(debug bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	if path := cfg.LogFilePath(); path != "" {
		if err := logger.EnableFileLogging(path); err != nil {
			return nil, fmt.Errorf("error enabling file logging: %w", err)
		}
	}
	return cfg, nil
}

// ResolveIdentity returns the stored credential, or an anonymous one for
// userID when the caller passes --as.
func ResolveIdentity(userID string) (*auth.AuthCredential, error) {
	if userID != "" {
		return &auth.AuthCredential{UserID: userID}, nil
	}
	cred, err := auth.LoadCredential(GetHomeDir())
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return nil, errors.New("not logged in; run `picochat auth login` or pass --as <user-id>")
	}
	return cred, err
}

// NewAPIClient builds the REST client, authenticated when cred carries a token.
func NewAPIClient(cfg *config.Config, cred *auth.AuthCredential) *api.Client {
	opts := []api.Option{api.WithTimeout(cfg.ServerTimeout())}
	if cred != nil && cred.AccessToken != "" {
		opts = append(opts, api.WithTokenSource(cred.TokenSource()))
	}
	return api.NewClient(cfg.Server.BaseURL, opts...)
}

// FormatMessage renders one transcript line. names maps ids to display names.
func FormatMessage(msg chat.Message, self string, names func(string) string) string {
	who := "me"
	if msg.From != self {
		who = msg.From
		if names != nil {
			if n := names(msg.From); n != "" {
				who = n
			}
		}
	}

	var body string
	switch msg.Type {
	case chat.TypeText, "":
		body = msg.Text
	case chat.TypeAudio:
		body = "[voice message]"
	default:
		ref := msg.FileURL
		if strings.HasPrefix(ref, "data:") {
			ref = "inline"
		}
		body = fmt.Sprintf("[%s] %s", msg.Type, ref)
		if msg.Text != "" {
			body += " " + msg.Text
		}
	}

	if msg.Time == "" {
		return fmt.Sprintf("%s: %s", who, body)
	}
	return fmt.Sprintf("[%s] %s: %s", msg.Time, who, body)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

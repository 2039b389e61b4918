package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgauth "github.com/tinyland-inc/picochat/pkg/auth"
)

func TestNewAuthCommand(t *testing.T) {
	cmd := NewAuthCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "auth", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())

	login, _, err := cmd.Find([]string{"login"})
	require.NoError(t, err)
	assert.NotNil(t, login.Flags().Lookup("email"))
	assert.NotNil(t, login.Flags().Lookup("password"))

	for _, name := range []string{"logout", "status"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Use)
		assert.NotNil(t, sub.RunE)
	}
}

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/user/login":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"token": "tok-1",
					"user":  map[string]any{"_id": "u1", "username": "neo", "email": "neo@example.com"},
				},
			})
		case "/user/logout":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginStatusLogout(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PICOCHAT_HOME", home)
	chdir(t, t.TempDir())
	srv := fakeServer(t)
	t.Setenv("PICOCHAT_SERVER_BASE_URL", srv.URL)

	var out bytes.Buffer
	err := loginCmd(context.Background(), strings.NewReader("secret\n"), &out, "neo@example.com", "")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Logged in as neo (u1)")

	cred, err := pkgauth.LoadCredential(home)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, srv.URL, cred.BaseURL)

	out.Reset()
	require.NoError(t, statusCmd(&out))
	assert.Contains(t, out.String(), "neo (u1)")

	out.Reset()
	require.NoError(t, logoutCmd(context.Background(), &out))
	assert.Contains(t, out.String(), "Logged out.")
	_, err = pkgauth.LoadCredential(home)
	assert.ErrorIs(t, err, pkgauth.ErrNotLoggedIn)

	out.Reset()
	require.NoError(t, statusCmd(&out))
	assert.Contains(t, out.String(), "Not logged in.")
}

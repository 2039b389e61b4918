package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tinyland-inc/picochat/pkg/chat"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("user1"))
		assert.Equal(t, "u2", r.URL.Query().Get("user2"))
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"_id": "m1", "sender_id": "u1", "recipient_id": "u2", "text": "hi", "type": "text", "timestamp": "2025-01-01T00:00:00Z"},
			{"_id": "m2", "sender_id": "u2", "recipient_id": "u1", "text": "", "type": "image", "fileUrl": "/uploads/a.png", "timestamp": "2025-01-01T00:01:00Z"},
		})
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL).History(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].Identifier())
	assert.Equal(t, chat.TypeImage, records[1].Type)
	assert.Equal(t, "/uploads/a.png", records[1].FileURL)
}

func TestHistory_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).History(context.Background(), "u1", "u2")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "fetch history", se.Op)
	assert.Contains(t, se.Error(), "boom")
}

func TestPersist(t *testing.T) {
	var got chat.PersistRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]string{"_id": "new"})
	}))
	defer srv.Close()

	req := chat.PersistRequest{SenderID: "u1", RecipientID: "u2", Text: "hello", Type: chat.TypeText}
	require.NoError(t, NewClient(srv.URL).Persist(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestDeleteHistory(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "u1", r.URL.Query().Get("user1"))
		assert.Equal(t, "u2", r.URL.Query().Get("user2"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).DeleteHistory(context.Background(), "u1", "u2"))
	assert.True(t, called.Load())
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "abc", string(data))
		writeJSON(w, http.StatusOK, map[string]string{"fileUrl": "/uploads/notes.txt"})
	}))
	defer srv.Close()

	url, err := NewClient(srv.URL).Upload(context.Background(), "notes.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/notes.txt", url)
}

func TestUpload_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Upload(context.Background(), "a.bin", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLoginLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/login":
			var body LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body.Password != "secret" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token": "tok-1",
					"user":  map[string]any{"_id": "u1", "username": "neo", "email": body.Email},
				},
			})
		case "/user/logout":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.Login(context.Background(), "neo@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "u1", res.User.Identifier())
	require.NoError(t, c.Logout(context.Background(), res.Token))

	_, err = c.Login(context.Background(), "neo@example.com", "wrong")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestWithTokenSource_SendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-9"})
	records, err := NewClient(srv.URL, WithTokenSource(ts)).History(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolveURL(t *testing.T) {
	c := NewClient("http://localhost:5000/")
	assert.Equal(t, "http://localhost:5000/uploads/a.png", c.ResolveURL("/uploads/a.png"))
	assert.Equal(t, "http://localhost:5000/uploads/a.png", c.ResolveURL("uploads/a.png"))
	assert.Equal(t, "https://cdn.example.com/x", c.ResolveURL("https://cdn.example.com/x"))
	assert.Equal(t, "data:audio/webm;base64,AA==", c.ResolveURL("data:audio/webm;base64,AA=="))
	assert.Equal(t, "", c.ResolveURL(""))
}

// Package api is the REST side of the chat backend: message history,
// persistence, bulk delete, uploads and the login/logout pair.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, body)
}

type Client struct {
	rest    *resty.Client
	baseURL string
}

type Option func(*options)

type options struct {
	timeout     time.Duration
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTokenSource authenticates every request with a bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) { o.tokenSource = ts }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	o := options{timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	var rc *resty.Client
	switch {
	case o.tokenSource != nil:
		ctx := context.Background()
		if o.httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
		}
		rc = resty.NewWithClient(oauth2.NewClient(ctx, o.tokenSource))
	case o.httpClient != nil:
		rc = resty.NewWithClient(o.httpClient)
	default:
		rc = resty.New()
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	rc.SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if r.Header.Get(requestIDHeader) == "" {
				r.SetHeader(requestIDHeader, uuid.NewString())
			}
			return nil
		})

	return &Client{rest: rc, baseURL: baseURL}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a server-relative file reference into an absolute URL.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

func (c *Client) History(ctx context.Context, user1, user2 string) ([]chat.Record, error) {
	var records []chat.Record
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"user1": user1, "user2": user2}).
		SetResult(&records).
		Get("/messages")
	if err := check("fetch history", resp, err); err != nil {
		return nil, err
	}
	logger.DebugCF("api", "History fetched", map[string]any{
		"user1": user1,
		"user2": user2,
		"count": len(records),
	})
	return records, nil
}

func (c *Client) Persist(ctx context.Context, req chat.PersistRequest) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/messages")
	return check("persist message", resp, err)
}

func (c *Client) DeleteHistory(ctx context.Context, user1, user2 string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"user1": user1, "user2": user2}).
		Delete("/messages")
	return check("delete history", resp, err)
}

type uploadResponse struct {
	FileURL string `json:"fileUrl"`
}

// Upload sends r as the multipart field "file" and returns the stored URL.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	var out uploadResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFileReader("file", name, r).
		SetResult(&out).
		Post("/upload")
	if err := check("upload", resp, err); err != nil {
		return "", err
	}
	if out.FileURL == "" {
		return "", fmt.Errorf("upload: response carried no fileUrl")
	}
	logger.DebugCF("api", "File uploaded", map[string]any{
		"name":     name,
		"file_url": out.FileURL,
	})
	return out.FileURL, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	MongoID  string `json:"_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u User) Identifier() string {
	if u.MongoID != "" {
		return u.MongoID
	}
	return u.ID
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type loginEnvelope struct {
	Data    LoginResult `json:"data"`
	Message string      `json:"message,omitempty"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var env loginEnvelope
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(LoginRequest{Email: email, Password: password}).
		SetResult(&env).
		Post("/user/login")
	if err := check("login", resp, err); err != nil {
		return nil, err
	}
	if env.Data.Token == "" {
		return nil, fmt.Errorf("login: response carried no token")
	}
	return &env.Data, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post("/user/logout")
	return check("logout", resp, err)
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return &StatusError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

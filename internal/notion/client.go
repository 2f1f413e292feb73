package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiVersion     = "2022-06-28"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client is a minimal Notion REST client covering users and webhooks.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Response is a raw API answer. Non-2xx statuses are not errors at this level.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// StatusError reports a non-200 answer from a typed call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notion: unexpected status %d", e.StatusCode)
}

// Do issues an authenticated request. err is only set for transport failures.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return Response{StatusCode: resp.StatusCode, Body: b}, nil
}

// User is the part of a Notion user object used for display.
type User struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Person *Person `json:"person,omitempty"`
}

type Person struct {
	Email string `json:"email"`
}

// DisplayName returns name, then email, then fallback.
func (u User) DisplayName(fallback string) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Person != nil && u.Person.Email != "" {
		return u.Person.Email
	}
	return fallback
}

// GetUser fetches GET /v1/users/{id}.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	if err := c.getJSON(ctx, "/v1/users/"+url.PathEscape(id), &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Me calls GET /v1/users/me and returns the raw answer for health probing.
func (c *Client) Me(ctx context.Context) (Response, error) {
	return c.Do(ctx, http.MethodGet, "/v1/users/me", nil)
}

// Webhook is the observed state of a webhook subscription.
type Webhook struct {
	ID     string `json:"id"`
	Paused bool   `json:"paused"`
}

// GetWebhook fetches GET /v1/webhooks/{id}.
func (c *Client) GetWebhook(ctx context.Context, id string) (Webhook, error) {
	var w Webhook
	if err := c.getJSON(ctx, "/v1/webhooks/"+url.PathEscape(id), &w); err != nil {
		return Webhook{}, err
	}
	return w, nil
}

// ResumeWebhook sends PATCH /v1/webhooks/{id} with {"paused": false}.
func (c *Client) ResumeWebhook(ctx context.Context, id string) (Response, error) {
	return c.Do(ctx, http.MethodPatch, "/v1/webhooks/"+url.PathEscape(id), map[string]bool{"paused": false})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

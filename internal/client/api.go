// Package client implements the account API client and the password
// form flow used by the account commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bugtrail/apiserver/types"
)

const defaultRequestTimeout = 15 * time.Second

// APIError is a server-reported failure. Field, when set, names the
// form field the error belongs to.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client is an HTTP client for the auth API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New constructs a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// SetToken sets the bearer token sent on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ClearToken drops the session token, forcing re-authentication.
func (c *Client) ClearToken() {
	c.token = ""
}

type createAccountRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
	Role        string `json:"role,omitempty"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userData struct {
	User types.User `json:"user"`
}

type loginData struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// envelope mirrors the server's response envelope.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Field   string          `json:"field,omitempty"`
}

// CreateAccount registers a new user.
func (c *Client) CreateAccount(ctx context.Context, name, email, oldPassword, newPassword, role string) (types.User, error) {
	body := createAccountRequest{
		Name:        name,
		Email:       email,
		OldPassword: oldPassword,
		NewPassword: newPassword,
		Role:        role,
	}
	var data userData
	if err := c.do(ctx, http.MethodPost, "/api/auth/create-account", body, &data); err != nil {
		return types.User{}, err
	}
	return data.User, nil
}

// ChangePassword replaces the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := changePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	return c.do(ctx, http.MethodPut, "/api/auth/change-password", body, nil)
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var data loginData
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Email: email, Password: password}, &data); err != nil {
		return types.User{}, err
	}
	c.token = data.Token
	return data.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		message := env.Error
		if message == "" {
			message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: message, Field: env.Field}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

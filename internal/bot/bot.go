package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

type Client struct {
	token  string
	httpc  *http.Client
	apiURL string
}

type ClientOption func(*Client)

// WithAPIBase points the client at another server, e.g. an httptest one.
func WithAPIBase(base string) ClientOption {
	return func(c *Client) { c.apiURL = base + "/bot" + c.token }
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:  token,
		apiURL: defaultAPIBase + "/bot" + token,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled is false when no bot token is configured.
func (c *Client) Enabled() bool { return c != nil && c.token != "" }

// APIError is a non-2xx answer from the Bot API.
type APIError struct {
	Method string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d", e.Method, e.Status)
}

// Blocked reports whether the user stopped the bot or the chat is gone.
func (e *APIError) Blocked() bool {
	return e.Status == http.StatusForbidden || e.Status == http.StatusBadRequest
}

func (c *Client) send(ctx context.Context, method string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &APIError{Method: method, Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup any) error {
	data := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		data["reply_markup"] = replyMarkup
	}
	return c.send(ctx, "sendMessage", data)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, replyMarkup any) error {
	data := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL, // the member card at /qr/members/{id}.png
	}
	if caption != "" {
		data["caption"] = caption
	}
	if replyMarkup != nil {
		data["reply_markup"] = replyMarkup
	}
	return c.send(ctx, "sendPhoto", data)
}

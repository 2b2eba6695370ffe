package appium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// W3C element reference key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// Locator strategies understood by the UiAutomator2 driver.
const (
	ByID              = "id"
	ByAccessibilityID = "accessibility id"
	ByUIAutomator     = "-android uiautomator"
	ByClassName       = "class name"
)

var ErrNoSession = errors.New("no active webdriver session")

// APIError is a WebDriver error response.
type APIError struct {
	StatusCode int
	Code       string // W3C error code, e.g. "no such element"
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webdriver error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNoSuchElement reports whether err is a lookup miss.
func IsNoSuchElement(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "no such element"
}

// IsInvalidSession reports whether the server no longer knows the session.
func IsInvalidSession(err error) bool {
	var apiErr *APIError
	return errors.Is(err, ErrNoSession) ||
		errors.As(err, &apiErr) && apiErr.Code == "invalid session id"
}

// Client speaks the W3C WebDriver protocol with the Appium extensions the
// driver needs. It holds at most one session.
type Client struct {
	baseURL   string
	http      *http.Client
	sessionID string
}

// NormalizeBaseURL adds a scheme when missing and trims the trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("appium server url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("invalid appium server url")
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String(), nil
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) SessionID() string { return c.sessionID }

// Status reports whether the server is ready to create sessions.
func (c *Client) Status(ctx context.Context) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	if err := c.call(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return false, err
	}
	return out.Ready, nil
}

// NewSession creates a session and makes it the client's current one.
func (c *Client) NewSession(ctx context.Context, caps map[string]any) (string, error) {
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": caps,
			"firstMatch":  []map[string]any{{}},
		},
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.call(ctx, http.MethodPost, "/session", body, &out); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if out.SessionID == "" {
		return "", errors.New("create session: empty session id")
	}
	c.sessionID = out.SessionID
	return out.SessionID, nil
}

// DeleteSession ends the current session. The session is forgotten even when
// the server call fails.
func (c *Client) DeleteSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	path := "/session/" + c.sessionID
	c.sessionID = ""
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) CurrentActivity(ctx context.Context) (string, error) {
	var activity string
	if err := c.sessionCall(ctx, http.MethodGet, "/appium/device/current_activity", nil, &activity); err != nil {
		return "", err
	}
	return activity, nil
}

func (c *Client) PressKeycode(ctx context.Context, keycode int) error {
	return c.sessionCall(ctx, http.MethodPost, "/appium/device/press_keycode", map[string]any{"keycode": keycode}, nil)
}

func (c *Client) HideKeyboard(ctx context.Context) error {
	return c.sessionCall(ctx, http.MethodPost, "/appium/device/hide_keyboard", map[string]any{}, nil)
}

// Execute runs an Appium "mobile:" command.
func (c *Client) Execute(ctx context.Context, script string, args map[string]any) error {
	body := map[string]any{"script": script, "args": []any{args}}
	return c.sessionCall(ctx, http.MethodPost, "/execute/sync", body, nil)
}

// FindElement returns the element id of the first match.
func (c *Client) FindElement(ctx context.Context, using, value string) (string, error) {
	var out map[string]string
	if err := c.sessionCall(ctx, http.MethodPost, "/element", map[string]any{"using": using, "value": value}, &out); err != nil {
		return "", err
	}
	if id := out[elementKey]; id != "" {
		return id, nil
	}
	if id := out["ELEMENT"]; id != "" {
		return id, nil
	}
	return "", errors.New("find element: response carries no element reference")
}

func (c *Client) Click(ctx context.Context, elementID string) error {
	return c.sessionCall(ctx, http.MethodPost, "/element/"+elementID+"/click", map[string]any{}, nil)
}

func (c *Client) Clear(ctx context.Context, elementID string) error {
	return c.sessionCall(ctx, http.MethodPost, "/element/"+elementID+"/clear", map[string]any{}, nil)
}

func (c *Client) SendKeys(ctx context.Context, elementID, text string) error {
	return c.sessionCall(ctx, http.MethodPost, "/element/"+elementID+"/value", map[string]any{"text": text}, nil)
}

func (c *Client) Attribute(ctx context.Context, elementID, name string) (string, error) {
	var value *string
	if err := c.sessionCall(ctx, http.MethodGet, "/element/"+elementID+"/attribute/"+url.PathEscape(name), nil, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// Screenshot returns the current screen as PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := c.sessionCall(ctx, http.MethodGet, "/screenshot", nil, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return data, nil
}

func (c *Client) sessionCall(ctx context.Context, method, path string, body, out any) error {
	if c.sessionID == "" {
		return ErrNoSession
	}
	return c.call(ctx, method, "/session/"+c.sessionID+path, body, out)
}

// call sends one request and decodes the "value" member of the response into
// out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var detail struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if len(envelope.Value) > 0 && json.Unmarshal(envelope.Value, &detail) == nil && detail.Error != "" {
			apiErr.Code = detail.Error
			apiErr.Message = detail.Message
		}
		return apiErr
	}

	if out == nil || len(envelope.Value) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Value, out)
}

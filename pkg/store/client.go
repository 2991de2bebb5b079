package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kraitsura/flowtree/pkg/model"
)

// WorkspaceCookie carries the workspace id between client and server.
const WorkspaceCookie = "workspace_id"

// APIError is a non-2xx response from the node API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return e.Detail
}

// Unwrap maps status codes onto the store sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return ErrValidation
	}
	return nil
}

// Client is a Store talking to a remote `ft serve`.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the server at baseURL. When workspace is
// non-empty it is sent as the workspace cookie; otherwise the server mints
// one and the cookie jar keeps it for the client's lifetime.
func NewClient(baseURL, workspace string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		jar.SetCookies(u, []*http.Cookie{{Name: WorkspaceCookie, Value: workspace, Path: "/"}})
	}
	return &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}, nil
}

// Workspace returns the workspace id currently held in the cookie jar.
func (c *Client) Workspace() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == WorkspaceCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) List(ctx context.Context) ([]model.Node, error) {
	var nodes []model.Node
	if err := c.do(ctx, http.MethodGet, "/api/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) Create(ctx context.Context, fields model.NodeFields) (model.Node, error) {
	if err := fields.Validate(); err != nil {
		return model.Node{}, err
	}
	var n model.Node
	err := c.do(ctx, http.MethodPost, "/api/nodes", fields, &n)
	return n, err
}

func (c *Client) Update(ctx context.Context, id int64, fields model.NodeFields) (model.Node, error) {
	if err := fields.ValidatePatch(); err != nil {
		return model.Node{}, err
	}
	var n model.Node
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/nodes/%d", id), fields, &n)
	return n, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/nodes/%d", id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: decodeDetail(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Subscribe connects to the server's event stream and calls onChange each
// time the workspace's nodes change. It blocks until ctx is cancelled or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context, onChange func()) error {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/nodes/ws"

	dialer := websocket.Dialer{Jar: c.http.Jar, HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if ev.Type == "nodes_changed" && onChange != nil {
			onChange()
		}
	}
}

// decodeDetail extracts {"detail": ...}. Non-string details are returned as
// raw JSON.
func decodeDetail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}

// IsNotFound reports whether err means the node does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

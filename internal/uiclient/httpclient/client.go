// Package httpclient speaks the uiclient protocol over HTTP/JSON.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Client opens sessions against a remote endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	schemas    *envelopes
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client for the endpoint at baseURL. Calls carry no
// transport timeout unless WithTimeout sets one; the caller's context deadline
// bounds each call.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	schemas, err := compileEnvelopes()
	if err != nil {
		return nil, err
	}
	client := &Client{
		httpClient: &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: make(map[string]string),
		schemas: schemas,
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

// WithTimeout sets a transport-level timeout for every call. A call cut short
// by it fails with an error matching context.DeadlineExceeded.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeader adds a header to every call.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// OpenSession authenticates and returns a remote session.
func (c *Client) OpenSession(ctx context.Context, creds uiclient.Credentials) (uiclient.Session, error) {
	body, err := c.call(ctx, http.MethodPost, "/sessions", creds)
	if err != nil {
		return nil, err
	}
	var info uiclient.SessionInfo
	if err := decode(c.schemas.session, body, &info); err != nil {
		return nil, err
	}
	return &session{client: c, id: info.Session, roleCenter: info.RoleCenter}, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%s %s: %w after %v", method, path, context.DeadlineExceeded, c.httpClient.Timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, replyError(resp.StatusCode, body)
	}
	return body, nil
}

// replyError rebuilds the protocol error carried by an error reply.
func replyError(status int, body []byte) error {
	parsed := gjson.ParseBytes(body)
	code := parsed.Get("error.code")
	if !code.Exists() {
		return &ProtocolError{Reason: fmt.Sprintf("status %d without error body", status)}
	}
	return uiclient.ErrorFromCode(code.String(), parsed.Get("error.message").String())
}

type session struct {
	client     *Client
	id         string
	roleCenter *uiclient.Form

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string { return s.id }

func (s *session) RoleCenter() *uiclient.Form { return s.roleCenter }

func (s *session) Invoke(ctx context.Context, in uiclient.Interaction) (*uiclient.Response, error) {
	if s.isClosed() {
		return nil, uiclient.ErrSessionClosed
	}
	body, err := s.client.call(ctx, http.MethodPost, "/sessions/"+s.id+"/interactions", in)
	if err != nil {
		return nil, err
	}
	var resp uiclient.Response
	if err := decode(s.client.schemas.response, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uiclient.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	_, err := s.client.call(ctx, http.MethodDelete, "/sessions/"+s.id, nil)
	return err
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Package interview is a client for the remote interview service.
//
// The service owns the interviewer model. The call only starts sessions,
// exchanges chat turns, uploads the candidate's recorded audio per turn, and
// fetches the evaluation afterwards.
package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds every request. Model replies routinely take
	// several seconds.
	DefaultTimeout = 120 * time.Second

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("interview: %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("interview: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unauthorized reports whether the service rejected the token.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// Option configures a [Client].
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the interview service. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client for baseURL, or [DefaultBaseURL] when empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("interview: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newDefaultHTTPClient(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: DefaultTimeout}
}

// Start creates a new session.
func (c *Client) Start(ctx context.Context, cfg Config) (StartResult, error) {
	var out StartResult
	err := c.postJSON(ctx, "start", "/api/interview/start", map[string]any{"config": cfg}, &out)
	if err == nil && out.SessionID == "" {
		err = fmt.Errorf("interview: start: response has no session_id")
	}
	return out, err
}

// Chat sends the candidate's turn and returns the interviewer's reply.
func (c *Client) Chat(ctx context.Context, sessionID, content string) (Reply, error) {
	var out Reply
	body := map[string]string{"session_id": sessionID, "content": content}
	err := c.postJSON(ctx, "chat", "/api/interview/chat", body, &out)
	return out, err
}

// UploadAudio uploads one recorded turn as the multipart field "blob".
func (c *Client) UploadAudio(ctx context.Context, sessionID, filename, mimeType string, blob []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="blob"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("interview: upload audio: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return fmt.Errorf("interview: upload audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("interview: upload audio: %w", err)
	}

	path := "/api/interview/" + url.PathEscape(sessionID) + "/upload-audio"
	resp, err := c.do(ctx, "upload audio", path, mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Feedback fetches the evaluation of a finished session.
func (c *Client) Feedback(ctx context.Context, sessionID string) (Feedback, error) {
	var out Feedback
	err := c.postJSON(ctx, "feedback", "/api/interview/feedback", map[string]string{"session_id": sessionID}, &out)
	return out, err
}

// ExportPDF streams the session report as PDF into w.
func (c *Client) ExportPDF(ctx context.Context, sessionID string, w io.Writer) (int64, error) {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
	resp, err := c.do(ctx, "export pdf", "/api/interview/export-pdf", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("interview: export pdf: %w", err)
	}
	return n, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("interview: %s: encode: %w", op, err)
	}
	resp, err := c.do(ctx, op, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("interview: %s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("interview: %s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interview: %s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/wesm/chatline/internal/textutil"
)

// Client talks to the chat endpoints of the backend. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Compile-time check.
var _ Service = (*Client)(nil)

// Config holds configuration for creating a Client.
type Config struct {
	URL           string
	SessionCookie string // value of the login session cookie
	CookieName    string // default "session"
	AllowInsecure bool
	Timeout       time.Duration
	RateLimitQPS  float64 // 0 disables pacing
	Logger        *slog.Logger
}

// New creates a new chat API client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	// Enforce HTTPS unless AllowInsecure is set; the session cookie
	// would otherwise travel in clear text.
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for the chat backend\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [api] base_url = \"https://social.example.com\"\n" +
			"  2. For local development: add 'allow_insecure = true' to [api] in config.toml")
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("backend URL must include a host (e.g., http://127.0.0.1:8787)")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if cfg.SessionCookie != "" {
		name := cfg.CookieName
		if name == "" {
			name = "session"
		}
		jar.SetCookies(parsedURL, []*http.Cookie{{
			Name:  name,
			Value: cfg.SessionCookie,
			Path:  "/",
		}})
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimitQPS > 0 {
		burst := int(cfg.RateLimitQPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitQPS), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// doRequest performs a request carrying the session cookie. payload, when
// non-nil, is sent as a JSON body.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "encode request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("chat api request failed", "method", method, "path", path, "error", err)
		return nil, eris.Wrap(err, "request failed")
	}
	c.logger.Debug("chat api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

// maxResponseBody bounds how much of a success body is read.
const maxResponseBody = 32 << 20

// doJSON performs a request and decodes a 2xx JSON response into out.
// A nil out discards the body.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.doRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	body = textutil.DecodeBody(body, resp.Header.Get("Content-Type"))
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

// ListConversations fetches the viewer's conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if convs == nil {
		convs = []Conversation{}
	}
	return convs, nil
}

// LoadThread fetches the message history of a conversation. The backend
// marks the conversation read as a side effect.
func (c *Client) LoadThread(ctx context.Context, conversationID ID) (*Thread, error) {
	path := "/api/conversations/" + url.PathEscape(string(conversationID)) + "/messages"
	var th Thread
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &th); err != nil {
		return nil, fmt.Errorf("load thread %s: %w", conversationID, err)
	}
	return &th, nil
}

type sendRequest struct {
	ConversationID ID     `json:"conversation_id"`
	Body           string `json:"body"`
}

// SendMessage posts a message and returns the server's canonical copy.
func (c *Client) SendMessage(ctx context.Context, conversationID ID, body string) (*Message, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	var msg Message
	req := sendRequest{ConversationID: conversationID, Body: body}
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

type startRequest struct {
	OtherUserID ID `json:"other_user_id"`
}

// StartConversation finds or creates the conversation with otherUserID.
func (c *Client) StartConversation(ctx context.Context, otherUserID ID) (*Thread, error) {
	var th Thread
	req := startRequest{OtherUserID: otherUserID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations/start", req, &th); err != nil {
		return nil, fmt.Errorf("start conversation with %s: %w", otherUserID, err)
	}
	return &th, nil
}

type deleteConversationsRequest struct {
	ConversationIDs []ID `json:"conversation_ids"`
}

// DeleteConversations hides the given conversations for the viewer.
func (c *Client) DeleteConversations(ctx context.Context, ids []ID) error {
	if ids == nil {
		ids = []ID{}
	}
	req := deleteConversationsRequest{ConversationIDs: ids}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations/delete", req, nil); err != nil {
		return fmt.Errorf("delete conversations: %w", err)
	}
	return nil
}

// DeleteMessage deletes one of the viewer's own messages.
func (c *Client) DeleteMessage(ctx context.Context, messageID ID) error {
	path := "/api/messages/" + url.PathEscape(string(messageID)) + "/delete"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

// Package portal provides a Go client for the institutional portal chat API
// and the messaging sync core that keeps a local, pollable view of it.
//
// Example:
//
//	client := portal.NewClient(token, portal.WithBaseURL("https://portal.example.edu"))
//
//	// Plain API access
//	convs, _ := client.Chat().Conversations.List(ctx)
//	msg, _ := client.Chat().Messages.Send(ctx, convs[0].ID, "Hello!")
//
//	// Sync core (polling, message cache, optimistic sends)
//	engine := portal.NewSyncEngine(client.Chat(), nil)
//	engine.Start(ctx)
//	defer engine.Stop()
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ============================================================================
// Environment
// ============================================================================

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second

	instrumentationName = "github.com/campus-portal/portal/sdk/golang"
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	tokenMu    sync.RWMutex
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	tracer     trace.Tracer
	chat       *ChatClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTracerProvider sets the provider request spans are recorded with.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// Pollers from several engines sharing one client queue behind it.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new portal client authenticated with a session token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log:    zap.NewNop(),
		tracer: otel.Tracer(instrumentationName),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.chat = newChatClient(c)
	return c
}

// SetToken replaces the session token. It is safe to call while pollers
// are issuing requests.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) currentToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Chat returns the chat API sub-client.
func (c *Client) Chat() *ChatClient {
	return c.chat
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) (_ []byte, err error) {
	route := routeLabel(path)
	ctx, span := c.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("portal.request_id", requestID))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(method, path, "error", time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	data, err := io.ReadAll(resp.Body)
	observeRequest(method, path, strconv.Itoa(resp.StatusCode), time.Since(start))
	c.log.Debug("portal request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Code
		switch {
		case envelope.Message != "":
			apiErr.Message = envelope.Message
		case envelope.Detail != "":
			apiErr.Message = envelope.Detail
		case envelope.Error != "":
			apiErr.Message = envelope.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func decodeJSON[T any](data []byte) (T, error) {
	var result T
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result, nil
}

// IsUnauthorized reports whether err means the session is no longer valid.
// Errors that do not carry a status are matched on their text.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return strings.Contains(err.Error(), "401")
}

// ============================================================================
// Chat Client (orchestrates sub-modules)
// ============================================================================

// ChatClient provides access to the chat API via sub-modules.
type ChatClient struct {
	client *Client

	Users         *UsersClient
	Conversations *ConversationsClient
	Messages      *MessagesClient
}

func newChatClient(c *Client) *ChatClient {
	ch := &ChatClient{client: c}
	ch.Users = &UsersClient{ch: ch}
	ch.Conversations = &ConversationsClient{ch: ch}
	ch.Messages = &MessagesClient{ch: ch}
	return ch
}

func do[T any](ctx context.Context, ch *ChatClient, method, path string, body interface{}, query map[string]string) (T, error) {
	data, err := ch.client.doRequest(ctx, method, path, body, query)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeJSON[T](data)
}

// ============================================================================
// Chat Sub-Clients
// ============================================================================

// UsersClient handles identity and user search.
type UsersClient struct{ ch *ChatClient }

func (u *UsersClient) Me(ctx context.Context) (*User, error) {
	return do[*User](ctx, u.ch, "GET", "/api/users/me", nil, nil)
}

func (u *UsersClient) Search(ctx context.Context, query string) ([]UserSummary, error) {
	var q map[string]string
	if query != "" {
		q = map[string]string{"search": query}
	}
	return do[[]UserSummary](ctx, u.ch, "GET", "/api/users", nil, q)
}

// ConversationsClient handles conversation management.
type ConversationsClient struct{ ch *ChatClient }

func (cv *ConversationsClient) List(ctx context.Context) ([]Conversation, error) {
	return do[[]Conversation](ctx, cv.ch, "GET", "/api/conversations", nil, nil)
}

func (cv *ConversationsClient) Create(ctx context.Context, opts *CreateConversationOptions) (*Conversation, error) {
	if opts == nil || len(opts.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("at least one participant is required")
	}
	return do[*Conversation](ctx, cv.ch, "POST", "/api/conversations", opts, nil)
}

func (cv *ConversationsClient) Delete(ctx context.Context, conversationID ServerID) error {
	_, err := cv.ch.client.doRequest(ctx, "DELETE", "/api/conversations/"+url.PathEscape(conversationID.String()), nil, nil)
	return err
}

// MessagesClient handles message history and sending.
type MessagesClient struct{ ch *ChatClient }

func messagesPath(conversationID ServerID) string {
	return "/api/conversations/" + url.PathEscape(conversationID.String()) + "/messages"
}

func (m *MessagesClient) List(ctx context.Context, conversationID ServerID) ([]Message, error) {
	return do[[]Message](ctx, m.ch, "GET", messagesPath(conversationID), nil, nil)
}

func (m *MessagesClient) Send(ctx context.Context, conversationID ServerID, content string) (*Message, error) {
	return do[*Message](ctx, m.ch, "POST", messagesPath(conversationID), map[string]string{"content": content}, nil)
}

func (m *MessagesClient) MarkAllRead(ctx context.Context, conversationID ServerID) error {
	_, err := m.ch.client.doRequest(ctx, "POST", messagesPath(conversationID)+"/read-all", nil, nil)
	return err
}

// ============================================================================
// ChatAPI adapter
// ============================================================================

// ChatAPI is the set of remote operations the sync engine depends on.
type ChatAPI interface {
	CurrentUser(ctx context.Context) (*User, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	ListMessages(ctx context.Context, conversationID ServerID) ([]Message, error)
	SendMessage(ctx context.Context, conversationID ServerID, content string) (*Message, error)
	MarkAllRead(ctx context.Context, conversationID ServerID) error
	CreateConversation(ctx context.Context, participantIDs []ServerID, title string) (*Conversation, error)
	DeleteConversation(ctx context.Context, conversationID ServerID) error
	SearchUsers(ctx context.Context, query string) ([]UserSummary, error)
}

var _ ChatAPI = (*ChatClient)(nil)

func (ch *ChatClient) CurrentUser(ctx context.Context) (*User, error) {
	return ch.Users.Me(ctx)
}

func (ch *ChatClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	return ch.Conversations.List(ctx)
}

func (ch *ChatClient) ListMessages(ctx context.Context, conversationID ServerID) ([]Message, error) {
	return ch.Messages.List(ctx, conversationID)
}

func (ch *ChatClient) SendMessage(ctx context.Context, conversationID ServerID, content string) (*Message, error) {
	return ch.Messages.Send(ctx, conversationID, content)
}

func (ch *ChatClient) MarkAllRead(ctx context.Context, conversationID ServerID) error {
	return ch.Messages.MarkAllRead(ctx, conversationID)
}

func (ch *ChatClient) CreateConversation(ctx context.Context, participantIDs []ServerID, title string) (*Conversation, error) {
	return ch.Conversations.Create(ctx, &CreateConversationOptions{ParticipantIDs: participantIDs, Title: title})
}

func (ch *ChatClient) DeleteConversation(ctx context.Context, conversationID ServerID) error {
	return ch.Conversations.Delete(ctx, conversationID)
}

func (ch *ChatClient) SearchUsers(ctx context.Context, query string) ([]UserSummary, error) {
	return ch.Users.Search(ctx, query)
}

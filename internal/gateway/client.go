package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"verdant-sync/internal/auth"
	"verdant-sync/internal/domain"
	verdant_errors "verdant-sync/pkg/errors"
)

const defaultTimeout = 15 * time.Second

// Client talks to the hosted backend's REST API.
type Client struct {
	baseURL    string
	session    *auth.Session
	httpClient *http.Client
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(baseURL string, session *auth.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values, out interface{}) error {
	op := "gateway." + method + " " + path

	token, err := c.session.Token()
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return verdant_errors.Validation(op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return verdant_errors.Validation(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are all transient from the
		// caller's point of view.
		return verdant_errors.Network(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return verdant_errors.Network(op, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		cause := fmt.Errorf("%s (status %d)", msg, resp.StatusCode)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return verdant_errors.Auth(op, cause)
		case resp.StatusCode == http.StatusNotFound:
			return verdant_errors.NotFound(op, cause)
		case resp.StatusCode < 500:
			return verdant_errors.Validation(op, cause)
		default:
			return verdant_errors.Network(op, cause)
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return verdant_errors.Network(op, err)
		}
	}
	return nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	if err := c.doRequest(ctx, http.MethodGet, "/v1/conversations", nil, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID, beforeCursor string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if beforeCursor != "" {
		query.Set("before", beforeCursor)
	}
	var msgs []domain.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, query, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].State = domain.StateConfirmed
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, draft domain.Draft) (domain.Message, error) {
	if draft.Empty() {
		return domain.Message{}, verdant_errors.Validation("gateway.send_message", verdant_errors.ErrEmptyMessage)
	}
	var msg domain.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doRequest(ctx, http.MethodPost, path, draft, nil, &msg); err != nil {
		return domain.Message{}, err
	}
	msg.State = domain.StateConfirmed
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID, uptoMessageID string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	body := map[string]string{"upto_message_id": uptoMessageID}
	return c.doRequest(ctx, http.MethodPost, path, body, nil, nil)
}

func (c *Client) StartDirectConversation(ctx context.Context, peerID string) (string, error) {
	if peerID == "" {
		return "", verdant_errors.Validation("gateway.start_direct", verdant_errors.ErrInvalidInput)
	}
	// Backed by the service's atomic find-or-create procedure.
	var resp struct {
		ConversationID string `json:"conversation_id"`
	}
	body := map[string]string{"peer_id": peerID}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/conversations/direct", body, nil, &resp); err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

var _ Gateway = (*Client)(nil)

// Package tavus provides a client for the Tavus conversational video API.
package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/avatarcall/internal/domain/call"
	"github.com/osa030/avatarcall/internal/infra/metrics"
)

const (
	// DefaultBaseURL is the Tavus API v2 base URL.
	DefaultBaseURL = "https://tavusapi.com/v2"

	// APIKeyHeader is the header carrying the API credential.
	APIKeyHeader = "x-api-key"

	// maxErrorMessageLen bounds messages surfaced from error bodies.
	maxErrorMessageLen = 200
)

// Client is a Tavus API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Config represents Tavus client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Metrics *metrics.Metrics // optional
}

// ConversationProperties represents the properties block of a conversation request.
type ConversationProperties struct {
	MaxCallDuration          int    `json:"max_call_duration"`
	ParticipantLeftTimeout   int    `json:"participant_left_timeout"`
	ParticipantAbsentTimeout int    `json:"participant_absent_timeout"`
	EnableRecording          bool   `json:"enable_recording"`
	EnableClosedCaptions     bool   `json:"enable_closed_captions"`
	ApplyGreenscreen         bool   `json:"apply_greenscreen"`
	Language                 string `json:"language"`
}

// CreateConversationRequest represents the body of POST /conversations.
type CreateConversationRequest struct {
	ReplicaID             string                 `json:"replica_id"`
	PersonaID             string                 `json:"persona_id"`
	CallbackURL           string                 `json:"callback_url"`
	ConversationName      string                 `json:"conversation_name"`
	ConversationalContext string                 `json:"conversational_context"`
	CustomGreeting        string                 `json:"custom_greeting"`
	Properties            ConversationProperties `json:"properties"`
}

// APIError represents a non-success response from the Tavus API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "tavus API error: status " + http.StatusText(e.StatusCode)
	}
	return "tavus API error: " + e.Message
}

// New creates a new Tavus client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tavus API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    cfg.Metrics,
	}, nil
}

// GetReplica retrieves a replica by ID.
// Reference: https://docs.tavus.io/api-reference/phoenix-replica-model/get-replica
func (c *Client) GetReplica(ctx context.Context, replicaID string) (*call.ReplicaInfo, error) {
	if replicaID == "" {
		return nil, errors.New("replica ID is required")
	}

	payload, err := c.do(ctx, "get_replica", http.MethodGet, "/replicas/"+url.PathEscape(replicaID), nil)
	if err != nil {
		return nil, err
	}

	var replica call.ReplicaInfo
	if err := decodePayload(payload, &replica); err != nil {
		return nil, err
	}
	if replica.ID == "" {
		replica.ID = stringField(payload, "id")
	}
	if replica.Name == "" {
		replica.Name = stringField(payload, "name")
	}
	replica.Raw = payload

	return &replica, nil
}

// GetPersona retrieves a persona by ID.
// Reference: https://docs.tavus.io/api-reference/personas/get-persona
func (c *Client) GetPersona(ctx context.Context, personaID string) (*call.PersonaInfo, error) {
	if personaID == "" {
		return nil, errors.New("persona ID is required")
	}

	payload, err := c.do(ctx, "get_persona", http.MethodGet, "/personas/"+url.PathEscape(personaID), nil)
	if err != nil {
		return nil, err
	}

	var persona call.PersonaInfo
	if err := decodePayload(payload, &persona); err != nil {
		return nil, err
	}
	if persona.ID == "" {
		persona.ID = stringField(payload, "id")
	}
	if persona.Name == "" {
		persona.Name = stringField(payload, "name")
	}
	persona.Raw = payload

	return &persona, nil
}

// CreateConversation creates a new conversation and returns its joinable URL.
// Reference: https://docs.tavus.io/api-reference/conversations/create-conversation
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*call.ConversationSession, error) {
	if req.ReplicaID == "" && req.PersonaID == "" {
		return nil, errors.New("replica ID or persona ID is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	payload, err := c.do(ctx, "create_conversation", http.MethodPost, "/conversations", body)
	if err != nil {
		return nil, err
	}

	var conversation call.ConversationSession
	if err := decodePayload(payload, &conversation); err != nil {
		return nil, err
	}
	if conversation.URL == "" {
		return nil, errors.New("response has no conversation_url")
	}
	conversation.Raw = payload

	return &conversation, nil
}

// do sends a request and returns the decoded JSON object.
func (c *Client) do(ctx context.Context, operation, method, path string, body []byte) (payload map[string]any, err error) {
	started := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveRequest(operation, time.Since(started), err)
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	zlog.Debug().Msgf("tavus request: %s %s", method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zlog.Debug().Msgf("tavus error response: operation=%s status=%d body_bytes=%d", operation, resp.StatusCode, len(respBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if payload == nil {
		return nil, errors.New("response is not a JSON object")
	}

	return payload, nil
}

// decodePayload decodes a raw payload into a typed view.
func decodePayload(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(payload); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// errorMessage extracts a human readable message from a JSON error body.
// Non-JSON bodies (proxy error pages) yield "" so the status text is used.
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		if msg := strings.TrimSpace(stringField(payload, key)); msg != "" {
			if len(msg) > maxErrorMessageLen {
				msg = strings.ToValidUTF8(msg[:maxErrorMessageLen], "") + "..."
			}
			return msg
		}
	}
	return ""
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

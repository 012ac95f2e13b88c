package tavus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	client, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestGetReplica(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/replicas/rcda3332ad7b", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get(APIKeyHeader))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"replica_id": "rcda3332ad7b",
			"replica_name": "Anna",
			"status": "completed",
			"thumbnail_video_url": "https://cdn/anna.mp4",
			"training_progress": "100/100"
		}`)
	})

	replica, err := client.GetReplica(context.Background(), "rcda3332ad7b")
	require.NoError(t, err)
	assert.Equal(t, "rcda3332ad7b", replica.ID)
	assert.Equal(t, "Anna", replica.Name)
	assert.Equal(t, "completed", replica.Status)
	assert.Equal(t, "100/100", replica.Raw["training_progress"])
}

func TestGetReplica_NameFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "r1", "name": "Rex"}`)
	})

	replica, err := client.GetReplica(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", replica.ID)
	assert.Equal(t, "Rex", replica.Name)
}

func TestGetPersona(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/personas/p742791b42e5", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get(APIKeyHeader))
		fmt.Fprint(w, `{"persona_id": "p742791b42e5", "persona_name": "Pam", "default_replica_id": "r9"}`)
	})

	persona, err := client.GetPersona(context.Background(), "p742791b42e5")
	require.NoError(t, err)
	assert.Equal(t, "p742791b42e5", persona.ID)
	assert.Equal(t, "Pam", persona.Name)
	assert.Equal(t, "r9", persona.DefaultReplicaID)
}

func TestGetPersona_EscapesID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/personas/a%2Fb", r.URL.EscapedPath())
		fmt.Fprint(w, `{"name": "Pam"}`)
	})

	_, err := client.GetPersona(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestCreateConversation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get(APIKeyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["replica_id"])
		assert.Equal(t, "p1", body["persona_id"])
		assert.Equal(t, "https://app.example/webhook", body["callback_url"])
		assert.Equal(t, "Live Conversation", body["conversation_name"])
		assert.Contains(t, body, "conversational_context")
		assert.Contains(t, body, "custom_greeting")

		props, ok := body["properties"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 3600, props["max_call_duration"])
		assert.EqualValues(t, 60, props["participant_left_timeout"])
		assert.EqualValues(t, 300, props["participant_absent_timeout"])
		assert.Equal(t, false, props["enable_recording"])
		assert.Equal(t, true, props["enable_closed_captions"])
		assert.Equal(t, false, props["apply_greenscreen"])
		assert.Equal(t, "english", props["language"])

		fmt.Fprint(w, `{
			"conversation_id": "c123",
			"conversation_name": "Live Conversation",
			"conversation_url": "https://tavus.daily.co/c123",
			"status": "active",
			"callback_url": "https://app.example/webhook",
			"created_at": "2026-10-19T10:00:00Z"
		}`)
	})

	conversation, err := client.CreateConversation(context.Background(), CreateConversationRequest{
		ReplicaID:             "r1",
		PersonaID:             "p1",
		CallbackURL:           "https://app.example/webhook",
		ConversationName:      "Live Conversation",
		ConversationalContext: "You are having a real-time video conversation.",
		CustomGreeting:        "Hello! How can I help you today?",
		Properties: ConversationProperties{
			MaxCallDuration:          3600,
			ParticipantLeftTimeout:   60,
			ParticipantAbsentTimeout: 300,
			EnableClosedCaptions:     true,
			Language:                 "english",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "c123", conversation.ID)
	assert.Equal(t, "https://tavus.daily.co/c123", conversation.URL)
	assert.Equal(t, "active", conversation.Status)
	assert.Equal(t, "2026-10-19T10:00:00Z", conversation.Raw["created_at"])
}

func TestCreateConversation_MissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation_id": "c123"}`)
	})

	_, err := client.CreateConversation(context.Background(), CreateConversationRequest{ReplicaID: "r1"})
	assert.Error(t, err)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAPIErr bool
		errMsg     string
	}{
		{
			name:       "unauthorized with message",
			status:     http.StatusUnauthorized,
			body:       `{"message": "Invalid access token"}`,
			wantAPIErr: true,
			errMsg:     "Invalid access token",
		},
		{
			name:       "server error with error field",
			status:     http.StatusInternalServerError,
			body:       `{"error": "boom"}`,
			wantAPIErr: true,
			errMsg:     "boom",
		},
		{
			name:       "not found plain text",
			status:     http.StatusNotFound,
			body:       `not here`,
			wantAPIErr: true,
			errMsg:     "status Not Found",
		},
		{
			name:       "proxy html page",
			status:     http.StatusBadGateway,
			body:       `<html><head><title>502 Bad Gateway</title></head><body><h1>502 Bad Gateway</h1></body></html>`,
			wantAPIErr: true,
			errMsg:     "status Bad Gateway",
		},
		{
			name:       "json without message",
			status:     http.StatusForbidden,
			body:       `{"code": 403}`,
			wantAPIErr: true,
			errMsg:     "status Forbidden",
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"replica_id":`,
			errMsg: "failed to parse response",
		},
		{
			name:   "json array",
			status: http.StatusOK,
			body:   `[1, 2]`,
			errMsg: "failed to parse response",
		},
		{
			name:   "json null",
			status: http.StatusOK,
			body:   `null`,
			errMsg: "not a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.GetReplica(context.Background(), "r1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			var apiErr *APIError
			assert.Equal(t, tt.wantAPIErr, errors.As(err, &apiErr))
			if tt.wantAPIErr {
				assert.Equal(t, tt.status, apiErr.StatusCode)
			}
		})
	}
}

func TestClient_ErrorMessageNeverCarriesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html><body>upstream down</body></html>")
	})

	_, err := client.GetReplica(context.Background(), "r1")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "<html>")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Empty(t, apiErr.Message)
	assert.Equal(t, "tavus API error: status Bad Gateway", apiErr.Error())
}

func TestClient_LongErrorMessageTruncated(t *testing.T) {
	long := strings.Repeat("x", 1000)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"message": %q}`, long)
	})

	_, err := client.GetReplica(context.Background(), "r1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, strings.Repeat("x", maxErrorMessageLen)+"...", apiErr.Message)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client, err := New(Config{APIKey: "test_key", BaseURL: baseURL})
	require.NoError(t, err)

	_, err = client.GetPersona(context.Background(), "p1")
	assert.Error(t, err)
}

func TestClient_RequiresIDs(t *testing.T) {
	client, err := New(Config{APIKey: "test_key", BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	_, err = client.GetReplica(context.Background(), "")
	assert.Error(t, err)
	_, err = client.GetPersona(context.Background(), "")
	assert.Error(t, err)
	_, err = client.CreateConversation(context.Background(), CreateConversationRequest{})
	assert.Error(t, err)
}

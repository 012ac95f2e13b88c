// Package webhook receives conversation callbacks from the remote service.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/avatarcall/internal/infra/metrics"
)

// maxBodyBytes bounds the size of a callback body.
const maxBodyBytes = 1 << 20

// Event types handled by the receiver.
const (
	EventSystemShutdown     = "system.shutdown"
	EventReplicaJoined      = "system.replica_joined"
	EventTranscriptionReady = "application.transcription_ready"
	EventRecordingReady     = "application.recording_ready"
	EventPerceptionAnalysis = "application.perception_analysis"
)

// Event represents a conversation callback.
type Event struct {
	ConversationID string         `json:"conversation_id"`
	MessageType    string         `json:"message_type"`
	EventType      string         `json:"event_type"`
	Timestamp      string         `json:"timestamp"`
	Properties     map[string]any `json:"properties"`
}

// ShutdownHandler is notified when a conversation shuts down remotely.
type ShutdownHandler interface {
	HandleRemoteShutdown(conversationID string) bool
}

// Handler handles POST /webhook.
type Handler struct {
	shutdown ShutdownHandler
	metrics  *metrics.Metrics
}

// NewHandler creates a webhook handler. metrics may be nil.
func NewHandler(shutdown ShutdownHandler, m *metrics.Metrics) *Handler {
	return &Handler{
		shutdown: shutdown,
		metrics:  m,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		zlog.Warn().Err(err).Msg("invalid webhook payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(eventLabel(event.EventType)).Inc()
	}

	h.handle(event)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handle(event Event) {
	switch event.EventType {
	case EventSystemShutdown:
		reason, _ := event.Properties["shutdown_reason"].(string)
		ended := h.shutdown.HandleRemoteShutdown(event.ConversationID)
		zlog.Info().Msgf("conversation shutdown: id=%s reason=%s ended_local_call=%v", event.ConversationID, reason, ended)
	case EventReplicaJoined:
		zlog.Info().Msgf("replica joined: id=%s", event.ConversationID)
	case EventTranscriptionReady, EventRecordingReady, EventPerceptionAnalysis:
		zlog.Info().Msgf("conversation artifact ready: id=%s event=%s", event.ConversationID, event.EventType)
	default:
		zlog.Debug().Msgf("webhook event: id=%s type=%s event=%s", event.ConversationID, event.MessageType, event.EventType)
	}
}

// eventLabel limits metric label cardinality to known event types.
func eventLabel(eventType string) string {
	switch eventType {
	case EventSystemShutdown, EventReplicaJoined, EventTranscriptionReady, EventRecordingReady, EventPerceptionAnalysis:
		return eventType
	default:
		return "other"
	}
}

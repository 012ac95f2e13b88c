package call

import "time"

// ReplicaInfo represents the avatar identity used for the call.
type ReplicaInfo struct {
	ID                string         `mapstructure:"replica_id"`
	Name              string         `mapstructure:"replica_name"`
	Status            string         `mapstructure:"status"`
	ThumbnailVideoURL string         `mapstructure:"thumbnail_video_url"`
	CreatedAt         string         `mapstructure:"created_at"`
	Raw               map[string]any `mapstructure:"-"` // Full service payload
}

// PersonaInfo represents the conversational behavior used for the call.
type PersonaInfo struct {
	ID               string         `mapstructure:"persona_id"`
	Name             string         `mapstructure:"persona_name"`
	SystemPrompt     string         `mapstructure:"system_prompt"`
	DefaultReplicaID string         `mapstructure:"default_replica_id"`
	CreatedAt        string         `mapstructure:"created_at"`
	Raw              map[string]any `mapstructure:"-"`
}

// ConversationSession represents one live call session created by the remote service.
type ConversationSession struct {
	ID          string         `mapstructure:"conversation_id"`
	Name        string         `mapstructure:"conversation_name"`
	URL         string         `mapstructure:"conversation_url"`
	Status      string         `mapstructure:"status"`
	CallbackURL string         `mapstructure:"callback_url"`
	CreatedAt   string         `mapstructure:"created_at"`
	Raw         map[string]any `mapstructure:"-"` // Equals the creation response payload
}

// Snapshot is an immutable view of the call state.
type Snapshot struct {
	SequenceNo   uint64
	State        State
	Replica      *ReplicaInfo
	Persona      *PersonaInfo
	Conversation *ConversationSession
	Error        string
	Loading      bool
	CanStart     bool
	UpdatedAt    time.Time
}

// IsLive returns true if the snapshot carries a joinable conversation.
func (s *Snapshot) IsLive() bool {
	return s.State == StateActive && s.Conversation != nil && s.Conversation.URL != ""
}

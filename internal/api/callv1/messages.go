// Package callv1 defines the CallService RPC contract.
package callv1

import (
	"time"

	"github.com/osa030/avatarcall/internal/domain/call"
)

// ReplicaInfo is the replica as seen by clients.
type ReplicaInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status,omitempty"`
	ThumbnailVideoURL string `json:"thumbnail_video_url,omitempty"`
}

// PersonaInfo is the persona as seen by clients.
type PersonaInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversation is the live conversation as seen by clients.
type Conversation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	URL       string         `json:"conversation_url"`
	Status    string         `json:"status,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// CallSnapshot is the call state pushed to clients.
type CallSnapshot struct {
	SequenceNo   uint64        `json:"sequence_no"`
	State        call.State    `json:"state"`
	Replica      *ReplicaInfo  `json:"replica,omitempty"`
	Persona      *PersonaInfo  `json:"persona,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Error        string        `json:"error,omitempty"`
	Loading      bool          `json:"loading"`
	CanStart     bool          `json:"can_start"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type GetStateRequest struct{}

type GetStateResponse struct {
	State *CallSnapshot `json:"state"`
}

type StartCallRequest struct{}

type StartCallResponse struct {
	State *CallSnapshot `json:"state"`
}

type EndCallRequest struct{}

type EndCallResponse struct {
	State *CallSnapshot `json:"state"`
}

type WatchStateRequest struct{}

// FromSnapshot converts a domain snapshot into its wire form.
func FromSnapshot(s call.Snapshot) *CallSnapshot {
	out := &CallSnapshot{
		SequenceNo: s.SequenceNo,
		State:      s.State,
		Error:      s.Error,
		Loading:    s.Loading,
		CanStart:   s.CanStart,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Replica != nil {
		out.Replica = &ReplicaInfo{
			ID:                s.Replica.ID,
			Name:              s.Replica.Name,
			Status:            s.Replica.Status,
			ThumbnailVideoURL: s.Replica.ThumbnailVideoURL,
		}
	}
	if s.Persona != nil {
		out.Persona = &PersonaInfo{
			ID:   s.Persona.ID,
			Name: s.Persona.Name,
		}
	}
	if s.Conversation != nil {
		out.Conversation = &Conversation{
			ID:        s.Conversation.ID,
			Name:      s.Conversation.Name,
			URL:       s.Conversation.URL,
			Status:    s.Conversation.Status,
			CreatedAt: s.Conversation.CreatedAt,
			Raw:       s.Conversation.Raw,
		}
	}
	return out
}

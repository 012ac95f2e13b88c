// Package call provides the call lifecycle controller.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/avatarcall/internal/app/notification"
	"github.com/osa030/avatarcall/internal/domain/call"
	"github.com/osa030/avatarcall/internal/infra/tavus"
)

// Errors
var (
	ErrStartNotPermitted = errors.New("call cannot be started in the current state")
	ErrEndNotPermitted   = errors.New("call is not active")
)

// API is the remote conversational video service used by the controller.
type API interface {
	GetReplica(ctx context.Context, replicaID string) (*call.ReplicaInfo, error)
	GetPersona(ctx context.Context, personaID string) (*call.PersonaInfo, error)
	CreateConversation(ctx context.Context, req tavus.CreateConversationRequest) (*call.ConversationSession, error)
}

// Config holds controller configuration.
type Config struct {
	ReplicaID   string `validate:"required"`
	PersonaID   string `validate:"required"`
	CallbackURL string `validate:"required,url"`

	// Conversation template
	ConversationName      string `default:"Live Conversation"`
	ConversationalContext string
	CustomGreeting        string
	Properties            tavus.ConversationProperties

	ResetDelay     time.Duration `default:"2s" validate:"gt=0"`
	RequestTimeout time.Duration `default:"30s" validate:"gt=0"`
}

// Controller owns the call lifecycle state machine.
type Controller struct {
	mu sync.Mutex

	api    API
	config Config

	// State
	state        call.State
	replica      *call.ReplicaInfo
	persona      *call.PersonaInfo
	conversation *call.ConversationSession
	errMsg       string
	loading      bool
	updatedAt    time.Time

	initialized bool

	// Cancel function for the ended -> disconnected timer
	resetTimerCancel func()

	notification *notification.Manager
	// Held from snapshot to end of broadcast so subscribers see transitions in order
	broadcastMu sync.Mutex

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a new call controller.
func NewController(api API, cfg Config) (*Controller, error) {
	if api == nil {
		return nil, errors.New("remote API is required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid controller config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:          api,
		config:       cfg,
		state:        call.StateDisconnected,
		updatedAt:    time.Now(),
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Init fetches the replica and persona. The two fetches run concurrently and
// each result is applied independently. Only the first call has any effect.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	return c.fetchReferences(ctx)
}

func (c *Controller) fetchReferences(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		replica, err := c.api.GetReplica(ctx, c.config.ReplicaID)
		if err != nil {
			zlog.Error().Err(err).Msgf("failed to fetch replica: replica_id=%s", c.config.ReplicaID)
			c.fail("Failed to fetch replica: " + err.Error())
			return errors.Wrap(err, "failed to fetch replica")
		}
		zlog.Info().Msgf("replica loaded: id=%s name=%s", replica.ID, replica.Name)
		c.update(func() { c.replica = replica })
		return nil
	})

	g.Go(func() error {
		persona, err := c.api.GetPersona(ctx, c.config.PersonaID)
		if err != nil {
			zlog.Error().Err(err).Msgf("failed to fetch persona: persona_id=%s", c.config.PersonaID)
			c.fail("Failed to fetch persona: " + err.Error())
			return errors.Wrap(err, "failed to fetch persona")
		}
		zlog.Info().Msgf("persona loaded: id=%s name=%s", persona.ID, persona.Name)
		c.update(func() { c.persona = persona })
		return nil
	})

	return g.Wait()
}

// Start creates a conversation. It returns ErrStartNotPermitted without any
// effect unless the replica and persona are loaded and the call is
// disconnected. A failed creation is recorded in the error state and is not
// returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.canStartLocked() {
		state := c.state
		c.mu.Unlock()
		zlog.Debug().Msgf("start rejected: state=%s", state)
		return ErrStartNotPermitted
	}
	c.errMsg = ""
	c.loading = true
	c.setStateLocked(call.StateConnecting)
	c.unlockAndBroadcast()

	attemptID := uuid.New().String()
	zlog.Info().Msgf("creating conversation: attempt=%s replica_id=%s persona_id=%s", attemptID, c.config.ReplicaID, c.config.PersonaID)

	// The caller cannot abort a connecting attempt; only the timeout or Close can.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.RequestTimeout)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	conversation, err := c.api.CreateConversation(reqCtx, c.conversationRequest())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		zlog.Debug().Msgf("discarding conversation result after close: attempt=%s", attemptID)
		return nil
	}
	c.loading = false
	if err != nil {
		zlog.Error().Err(err).Msgf("conversation error: attempt=%s", attemptID)
		c.errMsg = "Failed to start conversation: " + err.Error()
		c.conversation = nil
		c.setStateLocked(call.StateDisconnected)
	} else {
		zlog.Info().Msgf("conversation URL: attempt=%s id=%s url=%s", attemptID, conversation.ID, conversation.URL)
		c.conversation = conversation
		c.setStateLocked(call.StateActive)
	}
	c.unlockAndBroadcast()

	return nil
}

// End ends the active call locally. The remote conversation is not terminated.
// The state returns to disconnected after the reset delay.
func (c *Controller) End() error {
	c.mu.Lock()
	if c.closed || c.state != call.StateActive {
		c.mu.Unlock()
		return ErrEndNotPermitted
	}
	c.endLocked()
	c.unlockAndBroadcast()

	return nil
}

// HandleRemoteShutdown ends the call when the remote service reports that the
// active conversation has shut down. Returns true if the call was ended.
func (c *Controller) HandleRemoteShutdown(conversationID string) bool {
	c.mu.Lock()
	if c.closed || c.state != call.StateActive || c.conversation == nil || c.conversation.ID != conversationID {
		c.mu.Unlock()
		return false
	}
	zlog.Info().Msgf("remote conversation shut down: id=%s", conversationID)
	c.endLocked()
	c.unlockAndBroadcast()

	return true
}

// endLocked clears the conversation and schedules the reset.
// Must be called with c.mu held.
func (c *Controller) endLocked() {
	if c.conversation != nil {
		zlog.Info().Msgf("ending call: id=%s", c.conversation.ID)
	}
	c.conversation = nil
	c.setStateLocked(call.StateEnded)

	if c.resetTimerCancel != nil {
		c.resetTimerCancel()
	}
	c.resetTimerCancel = c.startTimer(c.config.ResetDelay, c.onResetTimer)
}

func (c *Controller) onResetTimer() {
	c.mu.Lock()
	c.resetTimerCancel = nil
	if c.closed || c.state != call.StateEnded {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(call.StateDisconnected)
	c.unlockAndBroadcast()
}

// startTimer runs fn after d unless the returned cancel function is called
// or the controller is closed first.
func (c *Controller) startTimer(d time.Duration, fn func()) func() {
	ctx, cancel := context.WithCancel(c.ctx)
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn()
		}
	}()
	return cancel
}

// conversationRequest builds the creation request from the configured template.
func (c *Controller) conversationRequest() tavus.CreateConversationRequest {
	return tavus.CreateConversationRequest{
		ReplicaID:             c.config.ReplicaID,
		PersonaID:             c.config.PersonaID,
		CallbackURL:           c.config.CallbackURL,
		ConversationName:      c.config.ConversationName,
		ConversationalContext: c.config.ConversationalContext,
		CustomGreeting:        c.config.CustomGreeting,
		Properties:            c.config.Properties,
	}
}

// fail records an error message and broadcasts the new state.
func (c *Controller) fail(msg string) {
	c.update(func() { c.errMsg = msg })
}

// update applies fn under the lock and broadcasts the result.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn()
	c.updatedAt = time.Now()
	c.unlockAndBroadcast()
}

// unlockAndBroadcast snapshots the state, releases c.mu and broadcasts.
// Must be called with c.mu held.
func (c *Controller) unlockAndBroadcast() {
	snapshot := c.snapshotLocked()
	c.broadcastMu.Lock()
	c.mu.Unlock()
	defer c.broadcastMu.Unlock()
	c.notification.Broadcast(snapshot)
}

// setStateLocked changes the state.
// Must be called with c.mu held.
func (c *Controller) setStateLocked(s call.State) {
	if c.state != s {
		zlog.Info().Msgf("call state: %s -> %s", c.state, s)
	}
	c.state = s
	c.updatedAt = time.Now()
}

func (c *Controller) canStartLocked() bool {
	return c.state == call.StateDisconnected && c.replica != nil && c.persona != nil
}

// snapshotLocked copies the current state.
// Must be called with c.mu held.
func (c *Controller) snapshotLocked() call.Snapshot {
	return call.Snapshot{
		State:        c.state,
		Replica:      c.replica,
		Persona:      c.persona,
		Conversation: c.conversation,
		Error:        c.errMsg,
		Loading:      c.loading,
		CanStart:     c.canStartLocked(),
		UpdatedAt:    c.updatedAt,
	}
}

// Snapshot returns the current call state.
func (c *Controller) Snapshot() call.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.snapshotLocked()
	snapshot.SequenceNo = c.notification.NextSequenceNo()
	return snapshot
}

// State returns the current call state.
func (c *Controller) State() call.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanStart returns true if Start would be permitted.
func (c *Controller) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.canStartLocked()
}

// Subscribe registers a stream for state broadcasts.
func (c *Controller) Subscribe(stream notification.Stream) string {
	return c.notification.Subscribe(stream)
}

// Unsubscribe removes a stream.
func (c *Controller) Unsubscribe(subscriptionID string) {
	c.notification.Unsubscribe(subscriptionID)
}

// Done returns a channel closed when the controller is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close stops the reset timer, cancels in-flight requests and drops subscribers.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.resetTimerCancel != nil {
		c.resetTimerCancel()
		c.resetTimerCancel = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.notification.Close()
}

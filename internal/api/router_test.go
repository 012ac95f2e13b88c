package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcall "github.com/osa030/avatarcall/internal/app/call"
	"github.com/osa030/avatarcall/internal/domain/call"
	"github.com/osa030/avatarcall/internal/infra/metrics"
	"github.com/osa030/avatarcall/internal/infra/tavus"
)

type stubAPI struct{}

func (stubAPI) GetReplica(ctx context.Context, id string) (*call.ReplicaInfo, error) {
	return &call.ReplicaInfo{ID: id, Name: "Rex"}, nil
}

func (stubAPI) GetPersona(ctx context.Context, id string) (*call.PersonaInfo, error) {
	return &call.PersonaInfo{ID: id, Name: "Pam"}, nil
}

func (stubAPI) CreateConversation(ctx context.Context, req tavus.CreateConversationRequest) (*call.ConversationSession, error) {
	return &call.ConversationSession{ID: "c1", URL: "https://x/y"}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *appcall.Controller) {
	t.Helper()
	controller, err := appcall.NewController(stubAPI{}, appcall.Config{
		ReplicaID:   "r1",
		PersonaID:   "p1",
		CallbackURL: "http://localhost:8080/webhook",
		ResetDelay:  time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(controller.Close)
	require.NoError(t, controller.Init(context.Background()))

	return NewRouter(RouterConfig{Controller: controller, Metrics: metrics.New()}), controller
}

func TestRouter_Endpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		header     map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK, wantBody: "go_goroutines"},
		{name: "page", method: http.MethodGet, path: "/", wantStatus: http.StatusOK, wantBody: "Start Video Call"},
		{
			name:       "get state over plain json",
			method:     http.MethodPost,
			path:       "/avatarcall.v1.CallService/GetState",
			body:       "{}",
			header:     map[string]string{"Content-Type": "application/json"},
			wantStatus: http.StatusOK,
			wantBody:   `"can_start":true`,
		},
		{
			name:       "webhook",
			method:     http.MethodPost,
			path:       "/webhook",
			body:       `{"conversation_id":"c9","event_type":"system.replica_joined"}`,
			wantStatus: http.StatusOK,
		},
		{name: "webhook get", method: http.MethodGet, path: "/webhook", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_WebhookShutdownEndsCall(t *testing.T) {
	router, controller := newTestRouter(t)
	require.NoError(t, controller.Start(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"conversation_id":"c1","message_type":"system","event_type":"system.shutdown"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, call.StateEnded, controller.State())
}

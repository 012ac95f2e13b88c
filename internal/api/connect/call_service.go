package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/avatarcall/internal/api/callv1"
	appcall "github.com/osa030/avatarcall/internal/app/call"
	"github.com/osa030/avatarcall/internal/app/notification"
	"github.com/osa030/avatarcall/internal/domain/call"
	"github.com/osa030/avatarcall/internal/infra/metrics"
)

var errStreamClosed = errors.New("stream closed")

// Controller is the call controller used by the service.
type Controller interface {
	Snapshot() call.Snapshot
	Start(ctx context.Context) error
	End() error
	Subscribe(stream notification.Stream) string
	Unsubscribe(subscriptionID string)
	Done() <-chan struct{}
}

// CallService implements the CallService RPC.
type CallService struct {
	controller Controller
	metrics    *metrics.Metrics
}

// NewCallService creates a new CallService. metrics may be nil.
func NewCallService(controller Controller, m *metrics.Metrics) *CallService {
	return &CallService{
		controller: controller,
		metrics:    m,
	}
}

// Ensure CallService implements the interface.
var _ callv1.CallServiceHandler = (*CallService)(nil)

// GetState returns the current call state.
func (s *CallService) GetState(
	ctx context.Context,
	req *connect.Request[callv1.GetStateRequest],
) (*connect.Response[callv1.GetStateResponse], error) {
	return connect.NewResponse(&callv1.GetStateResponse{
		State: callv1.FromSnapshot(s.controller.Snapshot()),
	}), nil
}

// StartCall starts a call. A failed conversation creation is reported in the
// returned state, not as an RPC error.
func (s *CallService) StartCall(
	ctx context.Context,
	req *connect.Request[callv1.StartCallRequest],
) (*connect.Response[callv1.StartCallResponse], error) {
	if err := s.controller.Start(ctx); err != nil {
		if errors.Is(err, appcall.ErrStartNotPermitted) {
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&callv1.StartCallResponse{
		State: callv1.FromSnapshot(s.controller.Snapshot()),
	}), nil
}

// EndCall ends the active call.
func (s *CallService) EndCall(
	ctx context.Context,
	req *connect.Request[callv1.EndCallRequest],
) (*connect.Response[callv1.EndCallResponse], error) {
	if err := s.controller.End(); err != nil {
		if errors.Is(err, appcall.ErrEndNotPermitted) {
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&callv1.EndCallResponse{
		State: callv1.FromSnapshot(s.controller.Snapshot()),
	}), nil
}

// WatchState streams the current state followed by every change.
func (s *CallService) WatchState(
	ctx context.Context,
	req *connect.Request[callv1.WatchStateRequest],
	stream *connect.ServerStream[callv1.CallSnapshot],
) error {
	// Subscribe before taking the initial snapshot so no change is missed.
	adapter := &snapshotStream{
		ch:   make(chan *call.Snapshot, 16),
		done: ctx.Done(),
	}
	subscriptionID := s.controller.Subscribe(adapter)
	defer s.controller.Unsubscribe(subscriptionID)

	if s.metrics != nil {
		s.metrics.StreamSubscribers.Inc()
		defer s.metrics.StreamSubscribers.Dec()
	}

	initial := s.controller.Snapshot()
	if err := stream.Send(callv1.FromSnapshot(initial)); err != nil {
		return err
	}
	lastSeq := initial.SequenceNo

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.controller.Done():
			return nil
		case snapshot := <-adapter.ch:
			if snapshot.SequenceNo <= lastSeq {
				continue
			}
			lastSeq = snapshot.SequenceNo
			if err := stream.Send(callv1.FromSnapshot(*snapshot)); err != nil {
				zlog.Debug().Msgf("watch stream send failed: subscription=%s err=%v", subscriptionID, err)
				return err
			}
		}
	}
}

// snapshotStream adapts a channel to notification.Stream.
type snapshotStream struct {
	ch   chan *call.Snapshot
	done <-chan struct{}
}

func (a *snapshotStream) Send(snapshot *call.Snapshot) error {
	select {
	case a.ch <- snapshot:
		return nil
	case <-a.done:
		return errStreamClosed
	}
}

package callv1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// CallServiceName is the fully-qualified name of the CallService service.
	CallServiceName = "avatarcall.v1.CallService"
)

// Procedure names, in the form "/Service/Method".
const (
	CallServiceGetStateProcedure   = "/avatarcall.v1.CallService/GetState"
	CallServiceStartCallProcedure  = "/avatarcall.v1.CallService/StartCall"
	CallServiceEndCallProcedure    = "/avatarcall.v1.CallService/EndCall"
	CallServiceWatchStateProcedure = "/avatarcall.v1.CallService/WatchState"
)

// CallServiceHandler is implemented by the server.
type CallServiceHandler interface {
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	StartCall(context.Context, *connect.Request[StartCallRequest]) (*connect.Response[StartCallResponse], error)
	EndCall(context.Context, *connect.Request[EndCallRequest]) (*connect.Response[EndCallResponse], error)
	WatchState(context.Context, *connect.Request[WatchStateRequest], *connect.ServerStream[CallSnapshot]) error
}

// NewCallServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewCallServiceHandler(svc CallServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	getState := connect.NewUnaryHandler(CallServiceGetStateProcedure, svc.GetState, opts...)
	startCall := connect.NewUnaryHandler(CallServiceStartCallProcedure, svc.StartCall, opts...)
	endCall := connect.NewUnaryHandler(CallServiceEndCallProcedure, svc.EndCall, opts...)
	watchState := connect.NewServerStreamHandler(CallServiceWatchStateProcedure, svc.WatchState, opts...)

	return "/" + CallServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CallServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		case CallServiceStartCallProcedure:
			startCall.ServeHTTP(w, r)
		case CallServiceEndCallProcedure:
			endCall.ServeHTTP(w, r)
		case CallServiceWatchStateProcedure:
			watchState.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CallServiceClient is a client for the CallService.
type CallServiceClient interface {
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	StartCall(context.Context, *connect.Request[StartCallRequest]) (*connect.Response[StartCallResponse], error)
	EndCall(context.Context, *connect.Request[EndCallRequest]) (*connect.Response[EndCallResponse], error)
	WatchState(context.Context, *connect.Request[WatchStateRequest]) (*connect.ServerStreamForClient[CallSnapshot], error)
}

// NewCallServiceClient constructs a client for the CallService at baseURL
// (for example, http://localhost:8080).
func NewCallServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) CallServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &callServiceClient{
		getState:   connect.NewClient[GetStateRequest, GetStateResponse](httpClient, baseURL+CallServiceGetStateProcedure, opts...),
		startCall:  connect.NewClient[StartCallRequest, StartCallResponse](httpClient, baseURL+CallServiceStartCallProcedure, opts...),
		endCall:    connect.NewClient[EndCallRequest, EndCallResponse](httpClient, baseURL+CallServiceEndCallProcedure, opts...),
		watchState: connect.NewClient[WatchStateRequest, CallSnapshot](httpClient, baseURL+CallServiceWatchStateProcedure, opts...),
	}
}

type callServiceClient struct {
	getState   *connect.Client[GetStateRequest, GetStateResponse]
	startCall  *connect.Client[StartCallRequest, StartCallResponse]
	endCall    *connect.Client[EndCallRequest, EndCallResponse]
	watchState *connect.Client[WatchStateRequest, CallSnapshot]
}

func (c *callServiceClient) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *callServiceClient) StartCall(ctx context.Context, req *connect.Request[StartCallRequest]) (*connect.Response[StartCallResponse], error) {
	return c.startCall.CallUnary(ctx, req)
}

func (c *callServiceClient) EndCall(ctx context.Context, req *connect.Request[EndCallRequest]) (*connect.Response[EndCallResponse], error) {
	return c.endCall.CallUnary(ctx, req)
}

func (c *callServiceClient) WatchState(ctx context.Context, req *connect.Request[WatchStateRequest]) (*connect.ServerStreamForClient[CallSnapshot], error) {
	return c.watchState.CallServerStream(ctx, req)
}

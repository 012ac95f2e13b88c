// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"

	"github.com/osa030/avatarcall/internal/api/callv1"
)

const (
	// ControlTokenHeader is the header name for the call control token.
	ControlTokenHeader = "X-Control-Token"
)

// controlProcedures are the procedures that change the call state.
var controlProcedures = map[string]bool{
	callv1.CallServiceStartCallProcedure: true,
	callv1.CallServiceEndCallProcedure:   true,
}

// NewControlAuthInterceptor creates an interceptor that validates the control
// token for StartCall and EndCall. An empty token disables the check.
func NewControlAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token == "" || !controlProcedures[req.Spec().Procedure] {
				return next(ctx, req)
			}

			// Extract token from metadata
			got := req.Header().Get(ControlTokenHeader)
			if got == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}

			// Validate token
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}

			return next(ctx, req)
		}
	}
}

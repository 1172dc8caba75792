// Package gateway implements the per-signalling-call dispatch that picks
// an edge node for an incoming session, relays the RPC, and reports route
// outcomes to the connector telemetry channel.
package gateway

import "connectrpc.com/connect"

// ErrorCode is the core's error taxonomy, independent of any RPC
// transport. HTTP/TLS adapters outside this package map these to
// status codes; Connect-RPC callers get them via connect.CodeOf.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrPoolEmpty
	ErrTimeout
	ErrEndpointNotFound
	ErrParseError
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrPoolEmpty:
		return "pool_empty"
	case ErrTimeout:
		return "timeout"
	case ErrEndpointNotFound:
		return "endpoint_not_found"
	case ErrParseError:
		return "parse_error"
	case ErrInternal:
		return "internal"
	default:
		return "none"
	}
}

// connectCode maps the core error taxonomy onto connect.Code, used only
// at the RPC boundary. Internal dispatch logic works with ErrorCode.
func (c ErrorCode) connectCode() connect.Code {
	switch c {
	case ErrPoolEmpty:
		return connect.CodeUnavailable
	case ErrTimeout:
		return connect.CodeDeadlineExceeded
	case ErrEndpointNotFound:
		return connect.CodeNotFound
	case ErrParseError:
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

// AsConnectError wraps msg as a connect.Error carrying c's mapped code.
func (c ErrorCode) AsConnectError(msg string) error {
	return connect.NewError(c.connectCode(), errorString(msg))
}

type errorString string

func (e errorString) Error() string { return string(e) }

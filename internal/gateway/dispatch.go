package gateway

import (
	"context"
	"time"

	"github.com/relaymesh/media-cluster/internal/clusterid"
	"github.com/relaymesh/media-cluster/internal/telemetry"
)

// RouteEventKind names a stage of the per-session route state machine.
type RouteEventKind int

const (
	RouteBegin RouteEventKind = iota
	RouteSuccess
	RouteError
)

// RouteEvent is the structured telemetry emitted at each stage of a
// route. RouteBegin/RouteSuccess/RouteError are emitted regardless of
// whether the underlying error is surfaced to the caller.
type RouteEvent struct {
	Kind     RouteEventKind
	RemoteIP string
	DestNode string
	AfterMs  int64
	Err      ErrorCode
}

// EdgeRPCClient forwards a signalling request to a chosen edge node. The
// wire transport (HTTP/Connect-RPC, in practice) is outside the core;
// this interface is all the dispatcher needs from it.
type EdgeRPCClient interface {
	Forward(ctx context.Context, nodeAddr string, method string, payload []byte) ([]byte, error)
}

// Dispatch implements the Gateway Dispatch: pick a node, forward the RPC,
// and emit route telemetry, for new-session signalling; and relay
// directly by ClusterConnId for session-continuation signalling.
type Dispatch struct {
	Geo       GeoLocator
	Selector  NodeSelector
	RPC       EdgeRPCClient
	Telemetry *telemetry.Channel[RouteEvent]
	Timeout   time.Duration

	now func() time.Time
}

// NewDispatch creates a Dispatch. A nil GeoLocator defaults to
// NoopGeoLocator; a zero Timeout defaults to 5 seconds.
func NewDispatch(geo GeoLocator, selector NodeSelector, rpc EdgeRPCClient, tel *telemetry.Channel[RouteEvent], timeout time.Duration) *Dispatch {
	if geo == nil {
		geo = NoopGeoLocator{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatch{Geo: geo, Selector: selector, RPC: rpc, Telemetry: tel, Timeout: timeout, now: time.Now}
}

// Route dispatches a new-session signalling request (whip_connect,
// whep_connect, webrtc_connect, rtp_engine_create_offer,
// rtp_engine_create_answer): selects a node for kind, forwards method
// with payload, and reports RouteBegin/RouteSuccess/RouteError telemetry.
func (d *Dispatch) Route(ctx context.Context, kind ServiceKind, remoteIP, method string, payload []byte) ([]byte, error) {
	started := d.now()

	if err := d.Telemetry.Send(ctx, RouteEvent{Kind: RouteBegin, RemoteIP: remoteIP}); err != nil {
		return nil, err
	}

	loc, ok := d.Geo.Lookup(remoteIP)
	var hint *Location
	if ok {
		hint = &loc
	}

	node, ok := d.Selector.Select(kind, hint)
	if !ok {
		d.emitError(ctx, started, "", ErrPoolEmpty)
		return nil, ErrPoolEmpty.AsConnectError("no candidate node for service " + kind.String())
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	resp, err := d.RPC.Forward(rpcCtx, node, method, payload)
	if err != nil {
		if rpcCtx.Err() != nil {
			d.emitError(ctx, started, node, ErrTimeout)
			return nil, ErrTimeout.AsConnectError("node " + node + " did not respond in time")
		}
		d.emitError(ctx, started, node, ErrInternal)
		return nil, ErrInternal.AsConnectError(err.Error())
	}

	_ = d.Telemetry.Send(ctx, RouteEvent{
		Kind:     RouteSuccess,
		RemoteIP: remoteIP,
		DestNode: node,
		AfterMs:  d.elapsedMs(started),
	})
	return resp, nil
}

// RouteContinuation relays a session-continuation signalling request
// (remote_ice, close, restart_ice, set_answer, delete) directly to the
// node named by connId, without route telemetry.
func (d *Dispatch) RouteContinuation(ctx context.Context, connId, method string, payload []byte) ([]byte, error) {
	parsed, err := clusterid.ParseConnId(connId)
	if err != nil {
		return nil, ErrParseError.AsConnectError(err.Error())
	}

	resp, err := d.RPC.Forward(ctx, parsed.NodeId, method, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout.AsConnectError("node " + parsed.NodeId + " did not respond in time")
		}
		return nil, ErrEndpointNotFound.AsConnectError(err.Error())
	}
	return resp, nil
}

func (d *Dispatch) emitError(ctx context.Context, started time.Time, node string, code ErrorCode) {
	_ = d.Telemetry.Send(ctx, RouteEvent{
		Kind:     RouteError,
		DestNode: node,
		AfterMs:  d.elapsedMs(started),
		Err:      code,
	})
}

func (d *Dispatch) elapsedMs(started time.Time) int64 {
	return d.now().Sub(started).Milliseconds()
}

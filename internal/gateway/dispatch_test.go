package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/relaymesh/media-cluster/internal/telemetry"
)

type stubRPC struct {
	resp []byte
	err  error
	slow time.Duration
}

func (s *stubRPC) Forward(ctx context.Context, nodeAddr, method string, payload []byte) ([]byte, error) {
	if s.slow > 0 {
		select {
		case <-time.After(s.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.resp, s.err
}

func drainAll[T any](c *telemetry.Channel[T], n int) []T {
	out := make([]T, 0, n)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		v, err := c.Recv(ctx)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}

func TestDispatchRouteSuccess(t *testing.T) {
	tel := telemetry.NewChannel[RouteEvent](4, nil)
	selector := NewStaticSelector(map[ServiceKind][]string{ServiceWhip: {"edge-1"}})
	rpc := &stubRPC{resp: []byte("ok")}
	d := NewDispatch(nil, selector, rpc, tel, time.Second)

	resp, err := d.Route(context.Background(), ServiceWhip, "203.0.113.5", "whip_connect", []byte("offer"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if string(resp) != "ok" {
		t.Errorf("got resp %q, want %q", resp, "ok")
	}

	events := drainAll(tel, 2)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != RouteBegin {
		t.Errorf("event[0].Kind = %v, want RouteBegin", events[0].Kind)
	}
	if events[1].Kind != RouteSuccess || events[1].DestNode != "edge-1" {
		t.Errorf("event[1] = %+v, want RouteSuccess/edge-1", events[1])
	}
}

// TestDispatchRoutePoolEmpty covers the gateway pool-empty scenario: the
// selector has no candidate node for the requested service kind, so the
// dispatcher emits RouteBegin then RouteError{PoolEmpty, dest_node=""}
// and returns an Unavailable error without ever calling the RPC client.
func TestDispatchRoutePoolEmpty(t *testing.T) {
	tel := telemetry.NewChannel[RouteEvent](4, nil)
	selector := NewStaticSelector(nil)
	rpc := &stubRPC{resp: []byte("unreachable")}
	d := NewDispatch(nil, selector, rpc, tel, time.Second)

	resp, err := d.Route(context.Background(), ServiceWhip, "203.0.113.5", "whip_connect", []byte("offer"))
	if err == nil {
		t.Fatal("expected an error when the node pool is empty")
	}
	if resp != nil {
		t.Errorf("got resp %v, want nil", resp)
	}
	if connect.CodeOf(err) != connect.CodeUnavailable {
		t.Errorf("got code %v, want CodeUnavailable", connect.CodeOf(err))
	}

	events := drainAll(tel, 2)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != RouteBegin {
		t.Errorf("event[0].Kind = %v, want RouteBegin", events[0].Kind)
	}
	want := events[1]
	if want.Kind != RouteError || want.Err != ErrPoolEmpty || want.DestNode != "" {
		t.Errorf("event[1] = %+v, want RouteError{Err:PoolEmpty, DestNode:\"\"}", want)
	}
}

func TestDispatchRouteTimeout(t *testing.T) {
	tel := telemetry.NewChannel[RouteEvent](4, nil)
	selector := NewStaticSelector(map[ServiceKind][]string{ServiceWhip: {"edge-1"}})
	rpc := &stubRPC{slow: 50 * time.Millisecond}
	d := NewDispatch(nil, selector, rpc, tel, 5*time.Millisecond)

	_, err := d.Route(context.Background(), ServiceWhip, "203.0.113.5", "whip_connect", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if connect.CodeOf(err) != connect.CodeDeadlineExceeded {
		t.Errorf("got code %v, want CodeDeadlineExceeded", connect.CodeOf(err))
	}

	events := drainAll(tel, 2)
	if len(events) != 2 || events[1].Err != ErrTimeout {
		t.Fatalf("events = %+v, want RouteError{Err:Timeout} second", events)
	}
}

func TestDispatchRouteContinuation(t *testing.T) {
	rpc := &stubRPC{resp: []byte("done")}
	d := NewDispatch(nil, NewStaticSelector(nil), rpc, telemetry.NewChannel[RouteEvent](1, nil), time.Second)

	resp, err := d.RouteContinuation(context.Background(), "edge-7-abc123", "close", nil)
	if err != nil {
		t.Fatalf("RouteContinuation: %v", err)
	}
	if string(resp) != "done" {
		t.Errorf("got %q, want %q", resp, "done")
	}
}

func TestDispatchRouteContinuationMalformedConnId(t *testing.T) {
	rpc := &stubRPC{resp: []byte("done")}
	d := NewDispatch(nil, NewStaticSelector(nil), rpc, telemetry.NewChannel[RouteEvent](1, nil), time.Second)

	_, err := d.RouteContinuation(context.Background(), "noHyphenAtAll", "close", nil)
	if err == nil {
		t.Fatal("expected an error for a malformed ClusterConnId")
	}
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("got code %v, want CodeInvalidArgument", connect.CodeOf(err))
	}
}

func TestDispatchRouteContinuationRPCFailure(t *testing.T) {
	rpc := &stubRPC{err: errors.New("connection refused")}
	d := NewDispatch(nil, NewStaticSelector(nil), rpc, telemetry.NewChannel[RouteEvent](1, nil), time.Second)

	_, err := d.RouteContinuation(context.Background(), "edge-7-abc123", "close", nil)
	if err == nil {
		t.Fatal("expected an error when the node rejects the RPC")
	}
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("got code %v, want CodeNotFound", connect.CodeOf(err))
	}
}

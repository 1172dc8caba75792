package cluster

import (
	"testing"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

func TestEngineJoinLeaveLifecycle(t *testing.T) {
	e := NewEngine[int](0)
	hash := clusterid.RoomHash(1)
	meta := []byte("peer-info")

	e.OnEndpointControl(hash, func(r *Room[int]) {
		r.OnJoin(1, "peer1", meta, JoinFlags{PublishPeer: true, SubscribePeers: true}, false)
	})

	set := mustPopOut(t, e).(SdnOutput)
	if set.Op != OpSet || set.Map != clusterid.PeersMapKey(hash) || set.Key != clusterid.PeersKey("peer1") {
		t.Fatalf("got %+v, want Set on peers map for peer1", set)
	}
	if string(set.Value) != "peer-info" {
		t.Fatalf("got value %q, want %q", set.Value, "peer-info")
	}

	sub := mustPopOut(t, e).(SdnOutput)
	if sub.Op != OpSub || sub.Map != clusterid.PeersMapKey(hash) {
		t.Fatalf("got %+v, want Sub on peers map", sub)
	}
	mustNoMoreOut(t, e)

	e.OnSdnEvent(SdnUserData{RoomHash: hash}, SdnEvent{Kind: SdnEventPeerSet, Peer: "peer1", Value: meta})
	joined := mustPopOut(t, e).(EndpointOutput[int])
	if joined.Endpoint != 1 || joined.Kind != EventPeerJoined || joined.Peer != "peer1" || string(joined.Meta) != "peer-info" {
		t.Fatalf("got %+v, want PeerJoined(peer1) to endpoint 1", joined)
	}
	mustNoMoreOut(t, e)

	e.OnEndpointControl(hash, func(r *Room[int]) { r.OnLeave(1) })

	del := mustPopOut(t, e).(SdnOutput)
	if del.Op != OpDel {
		t.Fatalf("got %+v, want Del", del)
	}
	unsub := mustPopOut(t, e).(SdnOutput)
	if unsub.Op != OpUnsub {
		t.Fatalf("got %+v, want Unsub", unsub)
	}
	cont := mustPopOut(t, e)
	if _, ok := cont.(ContinueOutput); !ok {
		t.Fatalf("got %#v, want ContinueOutput (room destruction)", cont)
	}
	mustNoMoreOut(t, e)

	if e.RoomCount() != 0 {
		t.Fatalf("got %d rooms, want 0 after room destruction", e.RoomCount())
	}
}

func TestEngineSdnEventForUnknownRoomIsNoop(t *testing.T) {
	e := NewEngine[int](0)
	e.OnSdnEvent(SdnUserData{RoomHash: clusterid.RoomHash(999)}, SdnEvent{Kind: SdnEventPeerSet, Peer: "x"})
	mustNoMoreOut(t, e)
}

func TestEngineShutdownEmptyEventOnce(t *testing.T) {
	e := NewEngine[int](0)
	e.Shutdown()

	first, ok := e.PopOutput()
	if !ok {
		t.Fatal("expected one ResourceEmptyOutput after shutdown with no rooms")
	}
	if ro, ok := first.(ResourceEmptyOutput); !ok || !ro.Engine {
		t.Fatalf("got %#v, want engine-level ResourceEmptyOutput", first)
	}
	mustNoMoreOut(t, e)
}

func mustPopOut(t *testing.T, e *Engine[int]) Output {
	t.Helper()
	o, ok := e.PopOutput()
	if !ok {
		t.Fatal("expected an output, got none")
	}
	return o
}

func mustNoMoreOut(t *testing.T, e *Engine[int]) {
	t.Helper()
	if o, ok := e.PopOutput(); ok {
		t.Fatalf("expected no further output, got %#v", o)
	}
}

package cluster

import (
	"testing"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

func popRoom(t *testing.T, r *Room[int]) Output {
	t.Helper()
	o, ok := r.PopOutput()
	if !ok {
		t.Fatal("expected an output, got none")
	}
	return o
}

func noMoreRoom(t *testing.T, r *Room[int]) {
	t.Helper()
	if o, ok := r.PopOutput(); ok {
		t.Fatalf("expected no further output, got %#v", o)
	}
}

// A join's side effects must drain in the documented order: the peer's
// own directory Set, the peers subscription, the tracks subscription, and
// finally the mixer attach catch-up.
func TestRoomJoinOutputOrdering(t *testing.T) {
	r := NewRoom[int](clusterid.RoomHash(1), 2)

	// Occupy a mixer slot before the join so the mixer attach has a
	// catch-up event to emit.
	r.RegisterAudioSource("peer0", "audio_main")
	noMoreRoom(t, r) // nobody attached yet, so the slot assignment is silent

	r.OnJoin(1, "peer1", []byte("meta"), JoinFlags{
		PublishPeer:     true,
		SubscribePeers:  true,
		SubscribeTracks: true,
	}, true)

	set := popRoom(t, r).(SdnOutput)
	if set.Op != OpSet || set.Map != clusterid.PeersMapKey(r.Hash) {
		t.Fatalf("output 1 = %+v, want Set on peers map", set)
	}
	peersSub := popRoom(t, r).(SdnOutput)
	if peersSub.Op != OpSub || peersSub.Map != clusterid.PeersMapKey(r.Hash) {
		t.Fatalf("output 2 = %+v, want Sub on peers map", peersSub)
	}
	tracksSub := popRoom(t, r).(SdnOutput)
	if tracksSub.Op != OpSub || tracksSub.Map != clusterid.TracksMapKey(r.Hash) {
		t.Fatalf("output 3 = %+v, want Sub on tracks map", tracksSub)
	}
	slot := popRoom(t, r).(EndpointOutput[int])
	if slot.Kind != EventSlotSet || slot.Endpoint != 1 || slot.SlotIndex != 0 || slot.Peer != "peer0" {
		t.Fatalf("output 4 = %+v, want SlotSet(0, peer0) to endpoint 1", slot)
	}
	noMoreRoom(t, r)
}

func TestRoomTrackPublishMirrorsDirectory(t *testing.T) {
	r := NewRoom[int](clusterid.RoomHash(1), 0)
	r.OnJoin(2, "peer1", nil, JoinFlags{PublishTracks: true}, false)
	noMoreRoom(t, r)

	r.OnTrackPublish(2, 3, "peer1", "audio_main")

	start := popRoom(t, r).(PubsubOutput)
	if start.Op != OpPubStart {
		t.Fatalf("output 1 = %+v, want PubStart", start)
	}
	dirSet := popRoom(t, r).(SdnOutput)
	if dirSet.Op != OpSet || dirSet.Map != clusterid.TracksMapKey(r.Hash) {
		t.Fatalf("output 2 = %+v, want Set on tracks map", dirSet)
	}
	noMoreRoom(t, r)

	// Track directory events fan out to subscribed endpoints.
	r.OnJoin(5, "peer2", nil, JoinFlags{SubscribeTracks: true}, false)
	popRoom(t, r) // tracks Sub
	noMoreRoom(t, r)

	ch := clusterid.GenTrackChannelId(r.Hash, "peer1", "audio_main")
	r.OnTrackSet("peer1", "audio_main", ch)
	started := popRoom(t, r).(EndpointOutput[int])
	if started.Endpoint != 5 || started.Kind != EventTrackStarted || started.Channel != ch {
		t.Fatalf("got %+v, want TrackStarted(peer1/audio_main) to endpoint 5", started)
	}
	noMoreRoom(t, r)
}

// Leaving releases every track the endpoint still holds, so an abrupt
// session termination needs no per-track cleanup calls first.
func TestRoomLeaveReleasesTracks(t *testing.T) {
	r := NewRoom[int](clusterid.RoomHash(1), 0)
	r.OnJoin(2, "peer1", nil, JoinFlags{PublishPeer: true, PublishTracks: true}, false)
	popRoom(t, r) // peers Set
	r.OnTrackPublish(2, 3, "peer1", "audio_main")
	popRoom(t, r) // PubStart
	popRoom(t, r) // tracks Set
	noMoreRoom(t, r)

	r.OnLeave(2)

	sawPubStop := false
	for {
		o, ok := r.PopOutput()
		if !ok {
			break
		}
		if ps, isPs := o.(PubsubOutput); isPs && ps.Op == OpPubStop {
			sawPubStop = true
		}
		if _, isEmpty := o.(ResourceEmptyOutput); isEmpty {
			break
		}
	}
	if !sawPubStop {
		t.Fatal("expected Leave to unpublish the endpoint's remaining track")
	}
	if !r.IsEmpty() {
		t.Fatal("expected room to be empty after the only endpoint left")
	}
}

func TestRoomJoinLeaveRestoresEmptyState(t *testing.T) {
	r := NewRoom[int](clusterid.RoomHash(9), 0)
	r.OnJoin(1, "peer1", []byte("m"), JoinFlags{PublishPeer: true, SubscribePeers: true}, false)
	for {
		if _, ok := r.PopOutput(); !ok {
			break
		}
	}
	r.OnLeave(1)
	for {
		if _, ok := r.PopOutput(); !ok {
			break
		}
	}
	if !r.IsEmpty() {
		t.Fatal("expected room state to return to empty after Join then Leave")
	}
}

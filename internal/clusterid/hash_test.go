package clusterid

import "testing"

func TestRoomHashMultiTenantIsolation(t *testing.T) {
	root := NewRoomHash("root", "same_room")
	app1 := NewRoomHash("app1", "same_room")
	app2 := NewRoomHash("app2", "same_room")

	if root == app1 || root == app2 || app1 == app2 {
		t.Fatalf("expected pairwise distinct hashes, got root=%d app1=%d app2=%d", root, app1, app2)
	}
}

func TestRoomHashStable(t *testing.T) {
	a := NewRoomHash("tenant", "room-1")
	b := NewRoomHash("tenant", "room-1")
	if a != b {
		t.Fatalf("expected identical (app, name) to hash identically, got %d != %d", a, b)
	}
}

func TestGenTrackChannelIdStable(t *testing.T) {
	room := NewRoomHash("tenant", "room-1")
	a := GenTrackChannelId(room, "peer1", "audio_main")
	b := GenTrackChannelId(room, "peer1", "audio_main")
	if a != b {
		t.Fatalf("expected identical inputs to produce identical channel id, got %d != %d", a, b)
	}

	other := GenTrackChannelId(room, "peer1", "video_main")
	if a == other {
		t.Fatalf("expected different track names to produce different channel ids")
	}
}

func TestPeersMapKeyDistinctFromTracksMapKey(t *testing.T) {
	room := NewRoomHash("tenant", "room-1")
	if PeersMapKey(room) == TracksMapKey(room) {
		t.Fatal("expected peers map key and tracks map key to differ")
	}
}

func TestParseConnId(t *testing.T) {
	id, err := ParseConnId("node-42-session-abc")
	if err != nil {
		t.Fatalf("ParseConnId: %v", err)
	}
	if id.NodeId != "node" {
		t.Errorf("got NodeId %q, want %q", id.NodeId, "node")
	}
	if id.SessionTag != "42-session-abc" {
		t.Errorf("got SessionTag %q, want %q", id.SessionTag, "42-session-abc")
	}
}

func TestParseConnIdMalformed(t *testing.T) {
	for _, s := range []string{"", "noHyphen", "-leading", "trailing-"} {
		if _, err := ParseConnId(s); err == nil {
			t.Errorf("ParseConnId(%q): expected error", s)
		}
	}
}

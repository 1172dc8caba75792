package worker

import (
	"context"
	"net"
	"testing"
)

// fakeEndpoint is a minimal EndpointTask stand-in so Group's
// bookkeeping (session lookup, reap, shutdown) can be tested without
// standing up real ICE/DTLS transports.
type fakeEndpoint struct {
	index    int
	ufrag    string
	empty    bool
	iceCalls int
}

func (f *fakeEndpoint) Index() int                                          { return f.index }
func (f *fakeEndpoint) Ufrag() string                                       { return f.ufrag }
func (f *fakeEndpoint) HandleOffer(context.Context, string) (string, error) { return "", nil }
func (f *fakeEndpoint) AddICECandidate(string) error                        { f.iceCalls++; return nil }
func (f *fakeEndpoint) Disconnect()                                         { f.empty = true }
func (f *fakeEndpoint) IsEmpty() bool                                       { return f.empty }

func testGroup() *Group {
	return &Group{
		demux:     NewDemux(),
		tasks:     make(map[int]EndpointTask),
		bySession: make(map[string]int),
	}
}

func TestGroupRemoteIceRoutesToSession(t *testing.T) {
	g := testGroup()
	ep := &fakeEndpoint{index: 0}
	g.tasks[0] = ep
	g.bySession["sess-1"] = 0

	if err := g.RemoteIce("sess-1", `{"candidate":"..."}`); err != nil {
		t.Fatalf("RemoteIce: %v", err)
	}
	if ep.iceCalls != 1 {
		t.Errorf("got %d ICE calls, want 1", ep.iceCalls)
	}
}

func TestGroupRemoteIceUnknownSessionFails(t *testing.T) {
	g := testGroup()
	if err := g.RemoteIce("missing", "{}"); err != ErrEndpointNotFound {
		t.Fatalf("got %v, want ErrEndpointNotFound", err)
	}
}

func TestGroupDisconnectRemovesNothingUntilReap(t *testing.T) {
	g := testGroup()
	ep := &fakeEndpoint{index: 0}
	g.tasks[0] = ep
	g.bySession["sess-1"] = 0

	if err := g.Disconnect("sess-1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !ep.empty {
		t.Fatal("expected endpoint to be marked empty after Disconnect")
	}
	if g.TaskCount() != 1 {
		t.Fatalf("got task count %d before Reap, want 1", g.TaskCount())
	}

	g.Reap()
	if g.TaskCount() != 0 {
		t.Fatalf("got task count %d after Reap, want 0", g.TaskCount())
	}
	if _, ok := g.bySession["sess-1"]; ok {
		t.Fatal("expected session mapping to be dropped on Reap")
	}
}

func TestGroupReapDropsDemuxRegistrations(t *testing.T) {
	g := testGroup()
	ep := &fakeEndpoint{index: 5, empty: true}
	g.tasks[5] = ep
	g.demux.RegisterUfrag("ufrag5", 5)

	g.Reap()

	if _, ok := g.demux.byUfrag["ufrag5"]; ok {
		t.Fatal("expected demux ufrag registration to be dropped on Reap")
	}
}

func TestGroupHandlePacketCachesLiveTaskAddress(t *testing.T) {
	g := testGroup()
	g.tasks[3] = &fakeEndpoint{index: 3}
	g.demux.RegisterUfrag("live", 3)

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6000}
	g.HandlePacket(addr, stunBindingRequest(t, "live:remote"))

	if idx, ok := g.demux.byAddr[addr.String()]; !ok || idx != 3 {
		t.Fatalf("got addr cache (%d, %v), want (3, true)", idx, ok)
	}
}

func TestGroupHandlePacketDropsStaleRegistrations(t *testing.T) {
	g := testGroup()
	g.demux.RegisterUfrag("stale", 4) // task 4 already reaped

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6001}
	g.HandlePacket(addr, stunBindingRequest(t, "stale:remote"))

	if _, ok := g.demux.byUfrag["stale"]; ok {
		t.Fatal("expected the orphaned ufrag registration to be dropped")
	}
	if _, ok := g.demux.byAddr[addr.String()]; ok {
		t.Fatal("expected no cached address for a reaped task")
	}
}

func TestGroupIsEmptyRequiresShutdownAndNoTasks(t *testing.T) {
	g := testGroup()
	if g.IsEmpty() {
		t.Fatal("a fresh, non-shutdown group must not report empty")
	}

	g.Shutdown()
	if !g.IsEmpty() {
		t.Fatal("a shutdown group with no tasks must report empty")
	}

	g2 := testGroup()
	g2.tasks[0] = &fakeEndpoint{index: 0}
	g2.Shutdown()
	if g2.IsEmpty() {
		t.Fatal("Shutdown disconnects but does not remove tasks; must not be empty until Reap")
	}
}

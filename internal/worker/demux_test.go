package worker

import (
	"net"
	"testing"

	"github.com/pion/stun/v3"
)

func stunBindingRequest(t *testing.T, username string) []byte {
	t.Helper()
	msg, err := stun.Build(
		stun.TransactionID,
		stun.BindingRequest,
		stun.Username(username),
		stun.Fingerprint,
	)
	if err != nil {
		t.Fatalf("stun.Build: %v", err)
	}
	return msg.Raw
}

func TestDemuxRoutesByUfragThenCachesAddr(t *testing.T) {
	d := NewDemux()
	d.RegisterUfrag("serverufrag", 3)

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000}
	packet := stunBindingRequest(t, "serverufrag:remoteufrag")

	idx, ok := d.Route(addr, packet)
	if !ok || idx != 3 {
		t.Fatalf("Route = (%d, %v), want (3, true)", idx, ok)
	}

	// A subsequent non-STUN packet from the same address should still
	// resolve, from the cached address index.
	idx, ok = d.Route(addr, []byte{0x80, 0x00, 0x00, 0x00})
	if !ok || idx != 3 {
		t.Fatalf("cached Route = (%d, %v), want (3, true)", idx, ok)
	}
}

func TestDemuxUnknownUfragDrops(t *testing.T) {
	d := NewDemux()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5001}
	packet := stunBindingRequest(t, "unknown:remote")

	_, ok := d.Route(addr, packet)
	if ok {
		t.Fatal("expected no match for an unregistered ufrag")
	}
}

func TestDemuxGarbageIsDropped(t *testing.T) {
	d := NewDemux()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5002}

	_, ok := d.Route(addr, []byte{0x01, 0x02, 0x03})
	if ok {
		t.Fatal("expected no match for a non-STUN packet with no cached address")
	}
}

func TestDemuxUnregisterDropsBothIndexes(t *testing.T) {
	d := NewDemux()
	d.RegisterUfrag("serverufrag", 9)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5003}
	packet := stunBindingRequest(t, "serverufrag:remoteufrag")

	if _, ok := d.Route(addr, packet); !ok {
		t.Fatal("expected initial route to succeed")
	}

	d.Unregister(9)

	if _, ok := d.Route(addr, []byte{0x80}); ok {
		t.Fatal("expected cached address to be dropped after Unregister")
	}
	if _, ok := d.Route(addr, packet); ok {
		t.Fatal("expected ufrag registration to be dropped after Unregister")
	}
}

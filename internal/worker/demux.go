package worker

import (
	"net"
	"sync"

	"github.com/pion/stun/v3"
)

// Demux routes inbound UDP packets to the endpoint task that owns the
// connection they belong to. The first packet of a new connection is
// always a STUN binding request; the demux extracts the local ufrag
// from its USERNAME attribute, looks up the task that registered that
// ufrag, and from then on caches the mapping by source address so later
// packets (DTLS, SRTP) skip STUN parsing entirely.
type Demux struct {
	mu      sync.Mutex
	byUfrag map[string]int
	byAddr  map[string]int
}

// NewDemux creates an empty Demux.
func NewDemux() *Demux {
	return &Demux{
		byUfrag: make(map[string]int),
		byAddr:  make(map[string]int),
	}
}

// RegisterUfrag associates a server-side ICE ufrag with an endpoint
// task index, ahead of that endpoint's first STUN binding request.
func (d *Demux) RegisterUfrag(ufrag string, taskIndex int) {
	d.mu.Lock()
	d.byUfrag[ufrag] = taskIndex
	d.mu.Unlock()
}

// Unregister drops every ufrag and cached address pointing at
// taskIndex. Called when the worker reaps the endpoint.
func (d *Demux) Unregister(taskIndex int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ufrag, idx := range d.byUfrag {
		if idx == taskIndex {
			delete(d.byUfrag, ufrag)
		}
	}
	for addr, idx := range d.byAddr {
		if idx == taskIndex {
			delete(d.byAddr, addr)
		}
	}
}

// Route resolves the endpoint task index owning a packet received from
// addr. A cache hit on the address index skips parsing entirely; on a
// miss it attempts to parse data as a STUN message and extract the
// ufrag half of its USERNAME attribute ("ufrag:remote_ufrag"). No match
// means the packet is for a connection this worker doesn't know about
// and must be dropped by the caller.
func (d *Demux) Route(addr net.Addr, data []byte) (taskIndex int, ok bool) {
	key := addr.String()

	d.mu.Lock()
	if idx, hit := d.byAddr[key]; hit {
		d.mu.Unlock()
		return idx, true
	}
	d.mu.Unlock()

	ufrag, ok := parseStunUsername(data)
	if !ok {
		return 0, false
	}

	d.mu.Lock()
	idx, hit := d.byUfrag[ufrag]
	if hit {
		d.byAddr[key] = idx
	}
	d.mu.Unlock()
	return idx, hit
}

// parseStunUsername extracts the local ufrag (the half before the
// colon) from a STUN binding request's USERNAME attribute.
func parseStunUsername(data []byte) (ufrag string, ok bool) {
	msg := &stun.Message{Raw: append([]byte(nil), data...)}
	if err := msg.Decode(); err != nil {
		return "", false
	}

	var username stun.Username
	if err := username.GetFrom(msg); err != nil {
		return "", false
	}

	full := string(username)
	for i := 0; i < len(full); i++ {
		if full[i] == ':' {
			return full[:i], true
		}
	}
	return full, true
}

package cluster

import "github.com/relaymesh/media-cluster/internal/clusterid"

// SdnEventKind names a DHT event delivered from the overlay.
type SdnEventKind int

const (
	SdnEventPeerSet SdnEventKind = iota
	SdnEventPeerDel
	SdnEventTrackSet
	SdnEventTrackDel
)

// SdnUserData addresses a room within the engine; every on_sdn_event call
// carries one so the engine knows which room's directory to update.
type SdnUserData struct {
	RoomHash clusterid.RoomHash
}

// SdnEvent is a DHT KV event the overlay delivers back into the engine,
// echoing an earlier Set/Del (possibly issued by another node).
type SdnEvent struct {
	Kind    SdnEventKind
	Peer    string
	Name    string
	Channel clusterid.ChannelId
	Value   []byte
}

// Engine owns the set of rooms on this node, keyed by room hash. It
// lazily creates rooms on the first endpoint control that names them, and
// reaps them once they report ResourceEmptyOutput.
type Engine[E comparable] struct {
	rooms map[clusterid.RoomHash]*Room[E]
	order []clusterid.RoomHash

	mixerSlots int
	shutdown   bool

	emittedEmpty bool
}

// NewEngine creates an empty Cluster Engine. mixerSlots is the audio
// mixer slot-table size newly created rooms get.
func NewEngine[E comparable](mixerSlots int) *Engine[E] {
	return &Engine[E]{rooms: make(map[clusterid.RoomHash]*Room[E]), mixerSlots: mixerSlots}
}

// RoomCount reports how many rooms currently exist.
func (e *Engine[E]) RoomCount() int { return len(e.rooms) }

// getOrCreateRoom returns the room for hash, creating and registering it
// if this is the first reference to it.
func (e *Engine[E]) getOrCreateRoom(hash clusterid.RoomHash) *Room[E] {
	if r, ok := e.rooms[hash]; ok {
		return r
	}
	r := NewRoom[E](hash, e.mixerSlots)
	e.rooms[hash] = r
	e.order = append(e.order, hash)
	e.emittedEmpty = false
	return r
}

// OnEndpointControl dispatches a room-scoped control to room hash,
// creating the room first if it does not yet exist.
func (e *Engine[E]) OnEndpointControl(hash clusterid.RoomHash, fn func(r *Room[E])) {
	fn(e.getOrCreateRoom(hash))
}

// OnSdnEvent dispatches a DHT event to the room named by userdata. Events
// for a room that does not currently exist are dropped.
func (e *Engine[E]) OnSdnEvent(userdata SdnUserData, event SdnEvent) {
	r, ok := e.rooms[userdata.RoomHash]
	if !ok {
		return
	}
	switch event.Kind {
	case SdnEventPeerSet:
		r.OnPeerSet(event.Peer, event.Value)
	case SdnEventPeerDel:
		r.OnPeerDel(event.Peer)
	case SdnEventTrackSet:
		r.OnTrackSet(event.Peer, event.Name, event.Channel)
	case SdnEventTrackDel:
		r.OnTrackDel(event.Peer, event.Name)
	}
}

// Shutdown requests the engine wind down. It is level-triggered and
// idempotent.
func (e *Engine[E]) Shutdown() {
	e.shutdown = true
}

// IsEmpty reports whether the engine is shut down and holds no rooms.
func (e *Engine[E]) IsEmpty() bool {
	return e.shutdown && len(e.rooms) == 0
}

// PopOutput cooperatively polls rooms in creation order. When a room
// reports ResourceEmptyOutput, the engine removes it and returns
// ContinueOutput so the caller knows to poll again; every other output is
// passed through unchanged. Once the engine itself is empty, it emits its
// own ResourceEmptyOutput exactly once.
func (e *Engine[E]) PopOutput() (Output, bool) {
	for _, hash := range e.order {
		r, ok := e.rooms[hash]
		if !ok {
			continue
		}
		o, ok := r.PopOutput()
		if !ok {
			continue
		}
		if empty, isEmpty := o.(ResourceEmptyOutput); isEmpty && !empty.Engine {
			delete(e.rooms, hash)
			e.order = removeHash(e.order, hash)
			return ContinueOutput{}, true
		}
		return o, true
	}

	if !e.emittedEmpty && e.IsEmpty() {
		e.emittedEmpty = true
		return ResourceEmptyOutput{Engine: true}, true
	}
	return nil, false
}

func removeHash(order []clusterid.RoomHash, hash clusterid.RoomHash) []clusterid.RoomHash {
	for i, h := range order {
		if h == hash {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

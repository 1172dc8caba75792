package cluster

import "github.com/relaymesh/media-cluster/internal/clusterid"

// JoinFlags controls which of the room's DHT-mirrored directories a
// joining endpoint publishes itself into and subscribes to.
type JoinFlags struct {
	PublishPeer     bool
	PublishTracks   bool
	SubscribePeers  bool
	SubscribeTracks bool
}

type peerState[E comparable] struct {
	peer  string
	flags JoinFlags
}

// PeerDirectory mirrors room membership and track presence into the
// cluster's shared DHT KV, and turns incoming DHT events back into
// endpoint notifications for whoever in the room subscribed to them.
type PeerDirectory[E comparable] struct {
	room clusterid.RoomHash

	endpoints map[E]peerState[E]

	subscribersPeers  *orderedSet[E]
	subscribersTracks *orderedSet[E]

	out []Output
}

// NewPeerDirectory creates a Peer Directory for the given room.
func NewPeerDirectory[E comparable](room clusterid.RoomHash) *PeerDirectory[E] {
	return &PeerDirectory[E]{
		room:              room,
		endpoints:         make(map[E]peerState[E]),
		subscribersPeers:  newOrderedSet[E](),
		subscribersTracks: newOrderedSet[E](),
	}
}

func (d *PeerDirectory[E]) push(o Output) {
	d.out = append(d.out, o)
}

// PopOutput removes and returns the next queued output, if any.
func (d *PeerDirectory[E]) PopOutput() (Output, bool) {
	if len(d.out) == 0 {
		return nil, false
	}
	o := d.out[0]
	d.out = d.out[1:]
	return o, true
}

// IsEmpty reports whether no endpoint holds a directory membership and
// nothing is queued.
func (d *PeerDirectory[E]) IsEmpty() bool {
	return len(d.endpoints) == 0 && len(d.out) == 0
}

// Join registers endpoint as peer in the room's directories per flags.
// Output order is fixed: publisher-peer-set, then peer-subscribe, then
// track-subscribe.
func (d *PeerDirectory[E]) Join(endpoint E, peer string, meta []byte, flags JoinFlags) {
	d.endpoints[endpoint] = peerState[E]{peer: peer, flags: flags}

	if flags.PublishPeer {
		d.push(SdnOutput{
			Map:   clusterid.PeersMapKey(d.room),
			Key:   clusterid.PeersKey(peer),
			Value: meta,
			Op:    OpSet,
		})
	}
	if flags.SubscribePeers {
		d.push(SdnOutput{Map: clusterid.PeersMapKey(d.room), Op: OpSub})
		d.subscribersPeers.add(endpoint)
	}
	if flags.SubscribeTracks {
		d.push(SdnOutput{Map: clusterid.TracksMapKey(d.room), Op: OpSub})
		d.subscribersTracks.add(endpoint)
	}
}

// Leave tears down endpoint's directory memberships: a Del for a prior
// Set, an Unsub for each prior Sub.
func (d *PeerDirectory[E]) Leave(endpoint E) {
	st, ok := d.endpoints[endpoint]
	if !ok {
		return
	}
	delete(d.endpoints, endpoint)

	if st.flags.PublishPeer {
		d.push(SdnOutput{
			Map: clusterid.PeersMapKey(d.room),
			Key: clusterid.PeersKey(st.peer),
			Op:  OpDel,
		})
	}
	if st.flags.SubscribePeers {
		d.push(SdnOutput{Map: clusterid.PeersMapKey(d.room), Op: OpUnsub})
		d.subscribersPeers.remove(endpoint)
	}
	if st.flags.SubscribeTracks {
		d.push(SdnOutput{Map: clusterid.TracksMapKey(d.room), Op: OpUnsub})
		d.subscribersTracks.remove(endpoint)
	}
}

// OnPeerSet notifies every endpoint subscribed to the peers directory
// that peer joined (or updated its metadata).
func (d *PeerDirectory[E]) OnPeerSet(peer string, meta []byte) {
	for _, ep := range d.subscribersPeers.snapshot() {
		d.push(EndpointOutput[E]{Endpoint: ep, Kind: EventPeerJoined, Peer: peer, Meta: meta})
	}
}

// OnPeerDel notifies every endpoint subscribed to the peers directory
// that peer left.
func (d *PeerDirectory[E]) OnPeerDel(peer string) {
	for _, ep := range d.subscribersPeers.snapshot() {
		d.push(EndpointOutput[E]{Endpoint: ep, Kind: EventPeerLeaved, Peer: peer})
	}
}

// PublishTrack mirrors a newly started track into the tracks directory on
// behalf of owner, if owner joined with PublishTracks set. Other nodes
// observe this through their own OnTrackSet once the DHT echoes it back.
func (d *PeerDirectory[E]) PublishTrack(owner E, peer, name string) {
	if st, ok := d.endpoints[owner]; ok && st.flags.PublishTracks {
		d.push(SdnOutput{Map: clusterid.TracksMapKey(d.room), Key: trackDirKey(peer, name), Op: OpSet})
	}
}

// UnpublishTrack mirrors a stopped track into the tracks directory.
func (d *PeerDirectory[E]) UnpublishTrack(owner E, peer, name string) {
	if st, ok := d.endpoints[owner]; ok && st.flags.PublishTracks {
		d.push(SdnOutput{Map: clusterid.TracksMapKey(d.room), Key: trackDirKey(peer, name), Op: OpDel})
	}
}

// OnTrackSet notifies every endpoint subscribed to the tracks directory
// that (peer, name) started publishing on channel.
func (d *PeerDirectory[E]) OnTrackSet(peer, name string, channel clusterid.ChannelId) {
	for _, ep := range d.subscribersTracks.snapshot() {
		d.push(EndpointOutput[E]{Endpoint: ep, Kind: EventTrackStarted, Peer: peer, Name: name, Channel: channel})
	}
}

// OnTrackDel notifies every endpoint subscribed to the tracks directory
// that (peer, name) stopped publishing.
func (d *PeerDirectory[E]) OnTrackDel(peer, name string) {
	for _, ep := range d.subscribersTracks.snapshot() {
		d.push(EndpointOutput[E]{Endpoint: ep, Kind: EventTrackStopped, Peer: peer, Name: name})
	}
}

func trackDirKey(peer, name string) string {
	return "track." + peer + "." + name
}

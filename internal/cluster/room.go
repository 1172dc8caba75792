package cluster

import (
	"github.com/relaymesh/media-cluster/internal/clusterid"
	"github.com/relaymesh/media-cluster/internal/protocol"
)

type publishedTrackRef struct {
	track uint64
	peer  string
	name  string
}

// Room composes the Channel Publisher, Channel Subscriber, Peer
// Directory, Audio Mixer, and Message Channel layers that together own
// one room's peers, tracks, mixer slots, and message channels. All
// side-effects from a single call are drained via PopOutput before the
// caller processes the next input, per the ordering guarantee in the
// concurrency model.
type Room[E comparable] struct {
	Hash clusterid.RoomHash

	publisher  *Publisher[E]
	subscriber *Subscriber[E]
	peerDir    *PeerDirectory[E]
	mixer      *AudioMixer[E]
	msgChan    *MessageChannel[E]

	publishedByEndpoint  map[E][]publishedTrackRef
	subscribedByEndpoint map[E][]uint64
	mixerAttached        map[E]bool

	emittedEmpty bool
}

// NewRoom creates an empty Room for hash with a mixer slot table of
// mixerSlots slots (0 disables the audio mixer for this room).
func NewRoom[E comparable](hash clusterid.RoomHash, mixerSlots int) *Room[E] {
	return &Room[E]{
		Hash:                 hash,
		publisher:            NewPublisher[E](hash),
		subscriber:           NewSubscriber[E](hash),
		peerDir:              NewPeerDirectory[E](hash),
		mixer:                NewAudioMixer[E](mixerSlots),
		msgChan:              NewMessageChannel[E](hash),
		publishedByEndpoint:  make(map[E][]publishedTrackRef),
		subscribedByEndpoint: make(map[E][]uint64),
		mixerAttached:        make(map[E]bool),
	}
}

// IsEmpty reports whether the room holds no peers, no tracks, no mixer
// attachments, and no pending outputs in any layer: the condition under
// which the room auto-destructs.
func (r *Room[E]) IsEmpty() bool {
	return r.peerDir.IsEmpty() && r.publisher.IsEmpty() && r.subscriber.IsEmpty() &&
		r.mixer.IsEmpty() && r.msgChan.IsEmpty()
}

// PopOutput drains the room's layers in a fixed priority order
// (publisher, subscriber, peer directory, audio mixer, message channel),
// which is what makes a single input's side effects observable in the
// documented order (e.g. Join: peer-set, peer-subscribe, track-subscribe,
// mixer-attach). Once every layer is drained and the room is empty, it
// emits a one-time ResourceEmptyOutput for the owning engine to collect.
func (r *Room[E]) PopOutput() (Output, bool) {
	if o, ok := r.publisher.PopOutput(); ok {
		return o, true
	}
	if o, ok := r.subscriber.PopOutput(); ok {
		return o, true
	}
	if o, ok := r.peerDir.PopOutput(); ok {
		return o, true
	}
	if o, ok := r.mixer.PopOutput(); ok {
		return o, true
	}
	if o, ok := r.msgChan.PopOutput(); ok {
		return o, true
	}
	if !r.emittedEmpty && r.IsEmpty() {
		r.emittedEmpty = true
		return ResourceEmptyOutput{RoomHash: r.Hash}, true
	}
	return nil, false
}

// OnJoin admits endpoint as peer into the room's directories, then
// attaches it to the audio mixer if attachMixer is set.
func (r *Room[E]) OnJoin(endpoint E, peer string, meta []byte, flags JoinFlags, attachMixer bool) {
	r.peerDir.Join(endpoint, peer, meta, flags)
	if attachMixer {
		r.mixer.Attach(endpoint)
		r.mixerAttached[endpoint] = true
	}
}

// OnLeave releases every track and mixer attachment endpoint held, then
// removes it from the directories.
func (r *Room[E]) OnLeave(endpoint E) {
	for _, ref := range r.publishedByEndpoint[endpoint] {
		_ = r.publisher.OnTrackUnpublish(endpoint, ref.track)
		r.peerDir.UnpublishTrack(endpoint, ref.peer, ref.name)
	}
	delete(r.publishedByEndpoint, endpoint)

	for _, track := range r.subscribedByEndpoint[endpoint] {
		_ = r.subscriber.Unsubscribe(endpoint, track)
	}
	delete(r.subscribedByEndpoint, endpoint)

	if r.mixerAttached[endpoint] {
		r.mixer.Detach(endpoint)
		delete(r.mixerAttached, endpoint)
	}

	r.peerDir.Leave(endpoint)
}

// OnTrackPublish publishes endpoint/track as (peer, name) and mirrors it
// into the track directory.
func (r *Room[E]) OnTrackPublish(endpoint E, track uint64, peer, name string) {
	r.publisher.OnTrackPublish(endpoint, track, peer, name)
	r.peerDir.PublishTrack(endpoint, peer, name)
	r.publishedByEndpoint[endpoint] = append(r.publishedByEndpoint[endpoint], publishedTrackRef{track: track, peer: peer, name: name})
}

// OnTrackSet delivers a tracks-directory DHT Set event.
func (r *Room[E]) OnTrackSet(peer, name string, channel clusterid.ChannelId) {
	r.peerDir.OnTrackSet(peer, name, channel)
}

// OnTrackDel delivers a tracks-directory DHT Del event.
func (r *Room[E]) OnTrackDel(peer, name string) { r.peerDir.OnTrackDel(peer, name) }

// OnTrackUnpublish unpublishes endpoint/track.
func (r *Room[E]) OnTrackUnpublish(endpoint E, track uint64) error {
	refs := r.publishedByEndpoint[endpoint]
	for i, ref := range refs {
		if ref.track != track {
			continue
		}
		if err := r.publisher.OnTrackUnpublish(endpoint, track); err != nil {
			return err
		}
		r.peerDir.UnpublishTrack(endpoint, ref.peer, ref.name)
		r.publishedByEndpoint[endpoint] = append(refs[:i], refs[i+1:]...)
		return nil
	}
	return r.publisher.OnTrackUnpublish(endpoint, track)
}

// OnTrackData forwards a media frame for endpoint/track.
func (r *Room[E]) OnTrackData(endpoint E, track uint64, packet protocol.MediaPacket) {
	r.publisher.OnTrackData(endpoint, track, packet)
}

// OnTrackFeedback decodes and fans out feedback received on channel.
func (r *Room[E]) OnTrackFeedback(channel clusterid.ChannelId, fb protocol.Feedback) {
	r.publisher.OnTrackFeedback(channel, fb)
}

// OnSubscribe subscribes endpoint/localTrack to (targetPeer, targetName).
func (r *Room[E]) OnSubscribe(endpoint E, localTrack uint64, targetPeer, targetName string) {
	r.subscriber.Subscribe(endpoint, localTrack, targetPeer, targetName)
	r.subscribedByEndpoint[endpoint] = append(r.subscribedByEndpoint[endpoint], localTrack)
}

// OnUnsubscribe unsubscribes endpoint/localTrack.
func (r *Room[E]) OnUnsubscribe(endpoint E, localTrack uint64) error {
	if err := r.subscriber.Unsubscribe(endpoint, localTrack); err != nil {
		return err
	}
	tracks := r.subscribedByEndpoint[endpoint]
	for i, t := range tracks {
		if t == localTrack {
			r.subscribedByEndpoint[endpoint] = append(tracks[:i], tracks[i+1:]...)
			break
		}
	}
	return nil
}

// OnChannelMedia fans out media received on channel to local subscribers.
func (r *Room[E]) OnChannelMedia(channel clusterid.ChannelId, seq uint64, data []byte) {
	r.subscriber.OnChannelMedia(channel, seq, data)
}

// OnRequestKeyFrame requests a keyframe on behalf of endpoint/localTrack.
func (r *Room[E]) OnRequestKeyFrame(endpoint E, localTrack uint64) {
	r.subscriber.RequestKeyFrame(endpoint, localTrack)
}

// OnSetDesiredBitrate records endpoint/localTrack's desired bitrate.
func (r *Room[E]) OnSetDesiredBitrate(endpoint E, localTrack uint64, bps uint64) {
	r.subscriber.SetDesiredBitrate(endpoint, localTrack, bps)
}

// OnPeerSet delivers a peers-directory DHT Set event.
func (r *Room[E]) OnPeerSet(peer string, meta []byte) { r.peerDir.OnPeerSet(peer, meta) }

// OnPeerDel delivers a peers-directory DHT Del event.
func (r *Room[E]) OnPeerDel(peer string) { r.peerDir.OnPeerDel(peer) }

// OnAudioLevel feeds a fresh loudness reading into the audio mixer.
func (r *Room[E]) OnAudioLevel(peer, name string, level int8) {
	r.mixer.UpdateLevel(peer, name, level)
}

// RegisterAudioSource registers (peer, name) as an audio mixer candidate.
func (r *Room[E]) RegisterAudioSource(peer, name string) { r.mixer.RegisterSource(peer, name) }

// UnregisterAudioSource removes (peer, name) from the audio mixer.
func (r *Room[E]) UnregisterAudioSource(peer, name string) { r.mixer.UnregisterSource(peer, name) }

// StartMessagePublish registers endpoint as a publisher of label.
func (r *Room[E]) StartMessagePublish(endpoint E, label string) {
	r.msgChan.StartPublish(endpoint, label)
}

// StopMessagePublish removes endpoint as a publisher of label.
func (r *Room[E]) StopMessagePublish(endpoint E, label string) {
	r.msgChan.StopPublish(endpoint, label)
}

// SubscribeMessage registers endpoint as a subscriber of label.
func (r *Room[E]) SubscribeMessage(endpoint E, label string) { r.msgChan.Subscribe(endpoint, label) }

// UnsubscribeMessage removes endpoint as a subscriber of label.
func (r *Room[E]) UnsubscribeMessage(endpoint E, label string) {
	r.msgChan.Unsubscribe(endpoint, label)
}

// PublishMessageData publishes a labelled message on behalf of peer.
func (r *Room[E]) PublishMessageData(label, peer string, data []byte) {
	r.msgChan.PublishData(label, peer, data)
}

package cluster

import (
	"fmt"

	"github.com/relaymesh/media-cluster/internal/clusterid"
	"github.com/relaymesh/media-cluster/internal/protocol"
)

// Sink identifies one local track subscribed through a room, scoped to
// the endpoint that owns it.
type Sink[E comparable] struct {
	Endpoint E
	Track    uint64
}

type subscriberFeedback struct {
	desiredBitrate    uint64
	keyFrameRequested bool
}

// Subscriber is the per-room Channel Subscriber, symmetric to Publisher:
// it maps local tracks to cluster channels, fans out received media, and
// aggregates per-track feedback into a single upstream message per
// channel.
type Subscriber[E comparable] struct {
	room clusterid.RoomHash

	byTrack   map[Sink[E]]clusterid.ChannelId
	byChannel map[clusterid.ChannelId]*orderedSet[Sink[E]]
	feedback  map[Sink[E]]subscriberFeedback

	out []Output
}

// NewSubscriber creates a Channel Subscriber for the given room.
func NewSubscriber[E comparable](room clusterid.RoomHash) *Subscriber[E] {
	return &Subscriber[E]{
		room:      room,
		byTrack:   make(map[Sink[E]]clusterid.ChannelId),
		byChannel: make(map[clusterid.ChannelId]*orderedSet[Sink[E]]),
		feedback:  make(map[Sink[E]]subscriberFeedback),
	}
}

func (s *Subscriber[E]) push(o Output) {
	s.out = append(s.out, o)
}

// PopOutput removes and returns the next queued output, if any.
func (s *Subscriber[E]) PopOutput() (Output, bool) {
	if len(s.out) == 0 {
		return nil, false
	}
	o := s.out[0]
	s.out = s.out[1:]
	return o, true
}

// IsEmpty reports whether the subscriber holds no local tracks and has
// nothing queued.
func (s *Subscriber[E]) IsEmpty() bool {
	return len(s.byTrack) == 0 && len(s.byChannel) == 0 && len(s.out) == 0
}

// Subscribe maps endpoint/localTrack to the channel addressing
// (targetPeer, targetName). If this is the first local track on that
// channel, a SubStart is emitted.
func (s *Subscriber[E]) Subscribe(endpoint E, localTrack uint64, targetPeer, targetName string) {
	ch := clusterid.GenTrackChannelId(s.room, targetPeer, targetName)
	sink := Sink[E]{Endpoint: endpoint, Track: localTrack}
	s.byTrack[sink] = ch

	set, ok := s.byChannel[ch]
	if !ok {
		set = newOrderedSet[Sink[E]]()
		s.byChannel[ch] = set
	}
	wasEmpty := set.len() == 0
	set.add(sink)
	if wasEmpty {
		s.push(PubsubOutput{Channel: ch, Op: OpSubStart})
	}
}

// Unsubscribe removes endpoint/localTrack. If it was the last local track
// on its channel, a SubStop is emitted.
func (s *Subscriber[E]) Unsubscribe(endpoint E, localTrack uint64) error {
	sink := Sink[E]{Endpoint: endpoint, Track: localTrack}
	ch, ok := s.byTrack[sink]
	if !ok {
		return fmt.Errorf("cluster: subscriber invariant violation: unsubscribe of unknown sink %v/%d", endpoint, localTrack)
	}
	delete(s.byTrack, sink)
	delete(s.feedback, sink)

	set := s.byChannel[ch]
	set.remove(sink)
	if set.len() == 0 {
		delete(s.byChannel, ch)
		s.push(PubsubOutput{Channel: ch, Op: OpSubStop})
	}
	return nil
}

// OnChannelMedia fans out media received on channel to every local track
// currently subscribed to it.
func (s *Subscriber[E]) OnChannelMedia(channel clusterid.ChannelId, seq uint64, data []byte) {
	set, ok := s.byChannel[channel]
	if !ok {
		return
	}
	for _, sink := range set.snapshot() {
		s.push(LocalTrackOutput[E]{Endpoint: sink.Endpoint, Track: sink.Track, Seq: seq, Packet: data})
	}
}

// RequestKeyFrame marks a keyframe request pending for endpoint/localTrack
// and re-emits the channel's aggregated feedback. Unknown sinks are a
// silent no-op.
func (s *Subscriber[E]) RequestKeyFrame(endpoint E, localTrack uint64) {
	sink := Sink[E]{Endpoint: endpoint, Track: localTrack}
	ch, ok := s.byTrack[sink]
	if !ok {
		return
	}
	fb := s.feedback[sink]
	fb.keyFrameRequested = true
	s.feedback[sink] = fb
	s.emitAggregateFeedback(ch)
}

// SetDesiredBitrate records endpoint/localTrack's desired bitrate and
// re-emits the channel's aggregated feedback (the max across all local
// tracks on that channel). Unknown sinks are a silent no-op.
func (s *Subscriber[E]) SetDesiredBitrate(endpoint E, localTrack uint64, bps uint64) {
	sink := Sink[E]{Endpoint: endpoint, Track: localTrack}
	ch, ok := s.byTrack[sink]
	if !ok {
		return
	}
	fb := s.feedback[sink]
	fb.desiredBitrate = bps
	s.feedback[sink] = fb
	s.emitAggregateFeedback(ch)
}

func (s *Subscriber[E]) emitAggregateFeedback(ch clusterid.ChannelId) {
	set := s.byChannel[ch]
	var maxBitrate uint64
	var anyKeyFrame bool
	for _, sink := range set.snapshot() {
		fb := s.feedback[sink]
		if fb.desiredBitrate > maxBitrate {
			maxBitrate = fb.desiredBitrate
		}
		anyKeyFrame = anyKeyFrame || fb.keyFrameRequested
	}

	if anyKeyFrame {
		s.push(PubsubOutput{Channel: ch, Op: OpFeedbackAuto, Data: protocol.EncodeFeedback(protocol.Feedback{
			Kind:  protocol.FeedbackKeyFrameRequest,
			Value: 1,
		})})
		for _, sink := range set.snapshot() {
			fb := s.feedback[sink]
			fb.keyFrameRequested = false
			s.feedback[sink] = fb
		}
		return
	}

	if maxBitrate > 0 {
		s.push(PubsubOutput{Channel: ch, Op: OpFeedbackAuto, Data: protocol.EncodeFeedback(protocol.Feedback{
			Kind:  protocol.FeedbackBitrate,
			Value: maxBitrate,
		})})
	}
}

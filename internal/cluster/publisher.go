package cluster

import (
	"fmt"

	"github.com/relaymesh/media-cluster/internal/clusterid"
	"github.com/relaymesh/media-cluster/internal/protocol"
)

// Source identifies one remote track a publisher tracks, scoped to the
// endpoint that owns it. Track ids are only unique per-endpoint, so the
// pair is the real key.
type Source[E comparable] struct {
	Endpoint E
	Track    uint64
}

type publisherEntry struct {
	Peer    string
	Name    string
	Channel clusterid.ChannelId
}

// Publisher is the per-room Channel Publisher: it registers remote tracks
// as cluster pub/sub channels, forwards media frames, and decodes
// subscriber feedback back to the owning endpoints.
//
// All methods are synchronous and non-blocking; results are pushed onto
// an internal FIFO drained by PopOutput.
type Publisher[E comparable] struct {
	room clusterid.RoomHash

	byTrack   map[Source[E]]publisherEntry
	byChannel map[clusterid.ChannelId]*orderedSet[Source[E]]

	out []Output
}

// NewPublisher creates a Channel Publisher for the given room.
func NewPublisher[E comparable](room clusterid.RoomHash) *Publisher[E] {
	return &Publisher[E]{
		room:      room,
		byTrack:   make(map[Source[E]]publisherEntry),
		byChannel: make(map[clusterid.ChannelId]*orderedSet[Source[E]]),
	}
}

func (p *Publisher[E]) push(o Output) {
	p.out = append(p.out, o)
}

// PopOutput removes and returns the next queued output, if any.
func (p *Publisher[E]) PopOutput() (Output, bool) {
	if len(p.out) == 0 {
		return nil, false
	}
	o := p.out[0]
	p.out = p.out[1:]
	return o, true
}

// IsEmpty reports whether the publisher holds no tracked sources and has
// nothing queued. A publisher torn down while non-empty has leaked state.
func (p *Publisher[E]) IsEmpty() bool {
	return len(p.byTrack) == 0 && len(p.byChannel) == 0 && len(p.out) == 0
}

// OnTrackPublish registers endpoint/track as a source of (peer, name),
// computing the channel id deterministically. If this is the first source
// on the channel, a PubStart is emitted.
func (p *Publisher[E]) OnTrackPublish(endpoint E, track uint64, peer, name string) {
	ch := clusterid.GenTrackChannelId(p.room, peer, name)
	src := Source[E]{Endpoint: endpoint, Track: track}

	p.byTrack[src] = publisherEntry{Peer: peer, Name: name, Channel: ch}

	set, ok := p.byChannel[ch]
	if !ok {
		set = newOrderedSet[Source[E]]()
		p.byChannel[ch] = set
	}
	wasEmpty := set.len() == 0
	set.add(src)
	if wasEmpty {
		p.push(PubsubOutput{Channel: ch, Op: OpPubStart})
	}
}

// OnTrackUnpublish removes endpoint/track. It is an internal invariant
// violation to unpublish a source that was never published; the caller
// gets an error rather than a silent no-op.
func (p *Publisher[E]) OnTrackUnpublish(endpoint E, track uint64) error {
	src := Source[E]{Endpoint: endpoint, Track: track}
	entry, ok := p.byTrack[src]
	if !ok {
		return fmt.Errorf("cluster: publisher invariant violation: unpublish of unknown source %v/%d", endpoint, track)
	}
	delete(p.byTrack, src)

	set := p.byChannel[entry.Channel]
	set.remove(src)
	if set.len() == 0 {
		delete(p.byChannel, entry.Channel)
		p.push(PubsubOutput{Channel: entry.Channel, Op: OpPubStop})
	}
	return nil
}

// OnTrackData forwards a media frame for endpoint/track. A track missing
// from the index (e.g. late arrival racing an unpublish) is a silent
// drop, not an error.
func (p *Publisher[E]) OnTrackData(endpoint E, track uint64, packet protocol.MediaPacket) {
	src := Source[E]{Endpoint: endpoint, Track: track}
	entry, ok := p.byTrack[src]
	if !ok {
		return
	}
	p.push(PubsubOutput{Channel: entry.Channel, Op: OpPubData, Data: protocol.EncodeMediaPacket(packet)})
}

// OnTrackFeedback decodes feedback received on channel and fans it out as
// an EndpointOutput to every current source on that channel. Unknown
// feedback kinds, and feedback on a channel with no current sources, are
// silently dropped.
func (p *Publisher[E]) OnTrackFeedback(channel clusterid.ChannelId, fb protocol.Feedback) {
	set, ok := p.byChannel[channel]
	if !ok {
		return
	}

	switch fb.Kind {
	case protocol.FeedbackBitrate:
		for _, src := range set.snapshot() {
			p.push(EndpointOutput[E]{
				Endpoint: src.Endpoint,
				Track:    src.Track,
				Kind:     EventLimitBitrate,
				Min:      fb.Value,
				Max:      fb.Value,
			})
		}
	case protocol.FeedbackKeyFrameRequest:
		for _, src := range set.snapshot() {
			p.push(EndpointOutput[E]{
				Endpoint: src.Endpoint,
				Track:    src.Track,
				Kind:     EventRequestKeyFrame,
			})
		}
	default:
		// forward-compatible: unknown kinds produce no endpoint output.
	}
}

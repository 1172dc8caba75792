package cluster

import (
	"encoding/binary"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

// MessageChannel is the room's labelled pub/sub for arbitrary binary
// payloads (chat, data-channel relay, application signalling). Each
// label maps directly to a cluster channel keyed by (room_hash, label).
type MessageChannel[E comparable] struct {
	room clusterid.RoomHash

	publishers  map[string]*orderedSet[E]
	subscribers map[string]*orderedSet[E]

	out []Output
}

// NewMessageChannel creates a Message Channel layer for the given room.
func NewMessageChannel[E comparable](room clusterid.RoomHash) *MessageChannel[E] {
	return &MessageChannel[E]{
		room:        room,
		publishers:  make(map[string]*orderedSet[E]),
		subscribers: make(map[string]*orderedSet[E]),
	}
}

func (m *MessageChannel[E]) push(o Output) {
	m.out = append(m.out, o)
}

// PopOutput removes and returns the next queued output, if any.
func (m *MessageChannel[E]) PopOutput() (Output, bool) {
	if len(m.out) == 0 {
		return nil, false
	}
	o := m.out[0]
	m.out = m.out[1:]
	return o, true
}

// IsEmpty reports whether no label has any publisher or subscriber and
// nothing is queued.
func (m *MessageChannel[E]) IsEmpty() bool {
	return len(m.publishers) == 0 && len(m.subscribers) == 0 && len(m.out) == 0
}

// StartPublish registers endpoint as a publisher of label, emitting
// PubStart on the first publisher.
func (m *MessageChannel[E]) StartPublish(endpoint E, label string) {
	set := m.setFor(m.publishers, label)
	wasEmpty := set.len() == 0
	set.add(endpoint)
	if wasEmpty {
		m.push(PubsubOutput{Channel: clusterid.MessageChannelId(m.room, label), Op: OpPubStart})
	}
}

// StopPublish removes endpoint as a publisher of label, emitting PubStop
// when the last publisher leaves.
func (m *MessageChannel[E]) StopPublish(endpoint E, label string) {
	set, ok := m.publishers[label]
	if !ok || !set.remove(endpoint) {
		return
	}
	if set.len() == 0 {
		delete(m.publishers, label)
		m.push(PubsubOutput{Channel: clusterid.MessageChannelId(m.room, label), Op: OpPubStop})
	}
}

// Subscribe registers endpoint as a subscriber of label, emitting
// SubStart on the first subscriber.
func (m *MessageChannel[E]) Subscribe(endpoint E, label string) {
	set := m.setFor(m.subscribers, label)
	wasEmpty := set.len() == 0
	set.add(endpoint)
	if wasEmpty {
		m.push(PubsubOutput{Channel: clusterid.MessageChannelId(m.room, label), Op: OpSubStart})
	}
}

// Unsubscribe removes endpoint as a subscriber of label, emitting SubStop
// when the last subscriber leaves.
func (m *MessageChannel[E]) Unsubscribe(endpoint E, label string) {
	set, ok := m.subscribers[label]
	if !ok || !set.remove(endpoint) {
		return
	}
	if set.len() == 0 {
		delete(m.subscribers, label)
		m.push(PubsubOutput{Channel: clusterid.MessageChannelId(m.room, label), Op: OpSubStop})
	}
}

// PublishData publishes bytes on label, tagged with the originating
// peer's id so subscribers can attribute it without a directory lookup.
func (m *MessageChannel[E]) PublishData(label, peer string, data []byte) {
	m.push(PubsubOutput{Channel: clusterid.MessageChannelId(m.room, label), Op: OpPubData, Data: encodeMessagePayload(peer, data)})
}

// DecodeMessagePayload splits a received message payload back into its
// originating peer id and raw bytes.
func DecodeMessagePayload(payload []byte) (peer string, data []byte) {
	if len(payload) < 2 {
		return "", nil
	}
	n := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload) < 2+n {
		return "", nil
	}
	return string(payload[2 : 2+n]), payload[2+n:]
}

func encodeMessagePayload(peer string, data []byte) []byte {
	buf := make([]byte, 2+len(peer)+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(peer)))
	copy(buf[2:], peer)
	copy(buf[2+len(peer):], data)
	return buf
}

func (m *MessageChannel[E]) setFor(tbl map[string]*orderedSet[E], label string) *orderedSet[E] {
	set, ok := tbl[label]
	if !ok {
		set = newOrderedSet[E]()
		tbl[label] = set
	}
	return set
}

package cluster

import "github.com/relaymesh/media-cluster/internal/clusterid"

// Output is the tagged-variant type every component in this package
// pushes into its FIFO. Components never call back into their parent
// directly; the parent drains pop_output cooperatively and translates or
// re-emits what it sees.
type Output interface {
	isOutput()
}

// PubsubOp names one of the cluster pub/sub operations a component wants
// issued against a channel.
type PubsubOp int

const (
	OpPubStart PubsubOp = iota
	OpPubStop
	OpPubData
	OpSubStart
	OpSubStop
	OpFeedbackAuto
)

// PubsubOutput asks the scheduler to perform a pub/sub operation against
// the overlay. Data is only set for OpPubData and OpFeedbackAuto.
type PubsubOutput struct {
	Channel clusterid.ChannelId
	Op      PubsubOp
	Data    []byte
}

func (PubsubOutput) isOutput() {}

// EndpointEventKind names the kind of control event delivered to an
// endpoint as a result of upstream feedback.
type EndpointEventKind int

const (
	EventLimitBitrate EndpointEventKind = iota
	EventRequestKeyFrame
	EventPeerJoined
	EventPeerLeaved
	EventTrackStarted
	EventTrackStopped
	EventSlotSet
	EventSlotUnset
)

// EndpointOutput[E] is a control/data event addressed to one local
// endpoint, generic over the endpoint handle type the worker layer
// chooses.
type EndpointOutput[E comparable] struct {
	Endpoint E
	Track    uint64
	Kind     EndpointEventKind

	Min, Max uint64 // EventLimitBitrate

	Peer    string              // EventPeerJoined / EventPeerLeaved
	Meta    []byte              // EventPeerJoined
	Name    string              // EventTrackStarted / EventTrackStopped
	Channel clusterid.ChannelId // EventTrackStarted / EventTrackStopped

	SlotIndex int // EventSlotSet / EventSlotUnset
}

func (EndpointOutput[E]) isOutput() {}

// LocalTrackOutput[E] carries media received on a channel to the local
// track it was subscribed through.
type LocalTrackOutput[E comparable] struct {
	Endpoint E
	Track    uint64
	Seq      uint64
	Packet   []byte // encoded MediaPacket, already validated by the subscriber
}

func (LocalTrackOutput[E]) isOutput() {}

// SdnOutput asks the scheduler to perform a DHT KV operation against the
// overlay's shared directory.
type SdnOp int

const (
	OpSet SdnOp = iota
	OpDel
	OpSub
	OpUnsub
)

type SdnOutput struct {
	Map   string // DHT map key, e.g. clusterid.PeersMapKey(room)
	Key   string // sub-key; unused for Sub/Unsub
	Value []byte // unused except for Set
	Op    SdnOp
}

func (SdnOutput) isOutput() {}

// ContinueOutput signals the parent should keep polling without handing
// a value back to its own caller (used when a room finishes destruction
// mid-poll and the engine must move on to the next room).
type ContinueOutput struct{}

func (ContinueOutput) isOutput() {}

// ResourceEmptyOutput signals the component holding a given handle wants
// to be torn down: a room for a RoomHash, or the whole engine when it has
// no rooms left.
type ResourceEmptyOutput struct {
	RoomHash clusterid.RoomHash
	Engine   bool
}

func (ResourceEmptyOutput) isOutput() {}

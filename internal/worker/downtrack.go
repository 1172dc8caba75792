package worker

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/relaymesh/media-cluster/internal/protocol"
)

// DownTrack is a local track fed by cluster media rather than a remote
// pion TrackRemote: its source is a subscriber's LocalTrackOutput
// stream off the pub/sub fabric, possibly originating on a different
// node entirely. It owns no forwarding goroutine of its own; the
// endpoint task passes LocalTrackOutput.Packet to WriteEncoded, which
// decodes it.
type DownTrack struct {
	local *webrtc.TrackLocalStaticRTP
	rid   string
	muted bool
	limit LayerLimit
}

// NewDownTrack creates a DownTrack with the given codec capability and
// stream identity, matching whatever the channel's originating publisher
// announced out of band (there is no live TrackRemote to read it from
// locally, unlike a single-node forwarder).
func NewDownTrack(capability webrtc.RTPCodecCapability, trackID, streamID string) (*DownTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(capability, trackID, streamID)
	if err != nil {
		return nil, fmt.Errorf("worker: new down track: %w", err)
	}
	return &DownTrack{local: local, limit: LayerLimit{MaxSpatial: -1, MaxTemporal: -1}}, nil
}

// NewSimulcastDownTrack is NewDownTrack for a specific RTP stream id
// (RID), used when the subscriber only wants one simulcast layer.
func NewSimulcastDownTrack(capability webrtc.RTPCodecCapability, trackID, streamID, rid string) (*DownTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(capability, trackID, streamID, webrtc.WithRTPStreamID(rid))
	if err != nil {
		return nil, fmt.Errorf("worker: new simulcast down track: %w", err)
	}
	return &DownTrack{local: local, rid: rid, limit: LayerLimit{MaxSpatial: -1, MaxTemporal: -1}}, nil
}

// LocalTrack returns the local track for adding to a PeerConnection.
func (d *DownTrack) LocalTrack() *webrtc.TrackLocalStaticRTP { return d.local }

// SetMuted mutes or unmutes the track without tearing down the
// subscription; WriteEncoded becomes a no-op while muted.
func (d *DownTrack) SetMuted(muted bool) { d.muted = muted }

// SetLayerLimit bounds which SVC/simulcast layers WriteEncoded forwards.
func (d *DownTrack) SetLayerLimit(limit LayerLimit) { d.limit = limit }

// WriteEncoded decodes an encoded protocol.MediaPacket (as delivered in
// a cluster.LocalTrackOutput), rebuilds it as an RTP packet, and writes
// it to the local track, respecting the muted flag and the configured
// layer limit.
func (d *DownTrack) WriteEncoded(encoded []byte) error {
	if d.muted {
		return nil
	}
	pkt, err := protocol.DecodeMediaPacket(encoded)
	if err != nil {
		return fmt.Errorf("worker: decode media packet: %w", err)
	}
	if !ShouldForward(pkt, d.limit) {
		return nil
	}
	return d.local.WriteRTP(rtpPacketFromMedia(pkt))
}

// rtpPacketFromMedia reassembles the RTP packet a MediaPacket was built
// from. BuildMediaPacket split the header fields out on the publishing
// node; the subscribing node puts them back so the local track's write
// path sees a complete packet. SSRC and payload type are left zero:
// TrackLocalStaticRTP stamps both per binding on write.
func rtpPacketFromMedia(pkt protocol.MediaPacket) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         pkt.Marker,
			SequenceNumber: pkt.Seq,
			Timestamp:      pkt.Timestamp,
		},
		Payload: pkt.Data,
	}
}

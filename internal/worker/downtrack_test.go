package worker

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/relaymesh/media-cluster/internal/protocol"
)

func testDownTrack(t *testing.T) *DownTrack {
	t.Helper()
	dt, err := NewDownTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "track1", "stream1")
	if err != nil {
		t.Fatalf("NewDownTrack: %v", err)
	}
	return dt
}

func TestDownTrackWriteEncodedDecodeError(t *testing.T) {
	dt := testDownTrack(t)
	if err := dt.WriteEncoded([]byte{0xff}); err == nil {
		t.Fatal("expected a decode error for a truncated payload")
	}
}

func TestDownTrackWriteEncodedUnmuted(t *testing.T) {
	dt := testDownTrack(t)

	pkt := protocol.MediaPacket{
		Timestamp: 90000,
		Seq:       42,
		Marker:    true,
		Meta:      protocol.MetaOpus,
		Data:      []byte("rtp-payload"),
	}
	if err := dt.WriteEncoded(protocol.EncodeMediaPacket(pkt)); err != nil {
		t.Fatalf("WriteEncoded: %v", err)
	}
}

// The header fields split out on the publishing node must come back as a
// complete, parseable RTP packet on the subscribing node.
func TestRTPPacketFromMediaRoundTrips(t *testing.T) {
	pkt := protocol.MediaPacket{
		Timestamp: 90000,
		Seq:       42,
		Marker:    true,
		Meta:      protocol.MetaOpus,
		Data:      []byte("rtp-payload"),
	}
	rebuilt := rtpPacketFromMedia(pkt)

	raw, err := rebuilt.Marshal()
	if err != nil {
		t.Fatalf("rtp marshal: %v", err)
	}
	var parsed rtp.Packet
	if err := parsed.Unmarshal(raw); err != nil {
		t.Fatalf("rtp unmarshal: %v", err)
	}
	if parsed.Version != 2 || parsed.SequenceNumber != 42 || parsed.Timestamp != 90000 || !parsed.Marker {
		t.Fatalf("got header %+v, want seq=42 ts=90000 marker", parsed.Header)
	}
	if !bytes.Equal(parsed.Payload, pkt.Data) {
		t.Fatalf("got payload %q, want %q", parsed.Payload, pkt.Data)
	}
}

func TestDownTrackMutedSkipsWrite(t *testing.T) {
	dt := testDownTrack(t)
	dt.SetMuted(true)

	// Unmuted, this payload fails to decode (see
	// TestDownTrackWriteEncodedDecodeError); a non-nil error here would
	// mean the mute check did not return before decoding and writing.
	encoded := []byte{0xff}

	if err := dt.WriteEncoded(encoded); err != nil {
		t.Fatalf("WriteEncoded while muted should not error: %v", err)
	}
}

package worker

import (
	"fmt"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/relaymesh/media-cluster/internal/protocol"
)

// audioLevelExtensionID is the RTP header extension ID for the RFC 6464
// audio level. This should match the ID registered in the MediaEngine.
const audioLevelExtensionID = 1

// BuildMediaPacket parses one raw RTP packet read off a remote track and
// converts it into the cluster wire representation: header fields carried
// over directly, codec metadata (audio level, keyframe flag, SVC layer)
// extracted from the payload so subscribing nodes never re-parse RTP.
func BuildMediaPacket(mimeType string, raw []byte) (protocol.MediaPacket, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		return protocol.MediaPacket{}, fmt.Errorf("worker: unmarshal rtp packet: %w", err)
	}

	out := protocol.MediaPacket{
		Timestamp: pkt.Timestamp,
		Seq:       pkt.SequenceNumber,
		Marker:    pkt.Marker,
		Data:      pkt.Payload,
	}

	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		out.Meta = protocol.MetaOpus
		if rawExt := pkt.Header.GetExtension(audioLevelExtensionID); rawExt != nil {
			var ext rtp.AudioLevelExtension
			if err := ext.Unmarshal(rawExt); err == nil {
				out.Opus = protocol.OpusMeta{AudioLevel: int8(ext.Level), HasAudioLevel: true}
			}
		}

	case strings.ToLower(webrtc.MimeTypeVP8):
		out.Meta = protocol.MetaVP8
		out.Nackable = true
		var vp8 codecs.VP8Packet
		if payload, err := vp8.Unmarshal(pkt.Payload); err == nil && len(payload) > 0 {
			out.VP8 = protocol.VP8Meta{
				IsKeyFrame: payload[0]&0x01 == 0,
				PictureId:  vp8.PictureID,
			}
		}

	case strings.ToLower(webrtc.MimeTypeVP9):
		out.Meta = protocol.MetaVP9
		out.Nackable = true
		var vp9 codecs.VP9Packet
		if _, err := vp9.Unmarshal(pkt.Payload); err == nil {
			out.VP9 = protocol.VP9Meta{
				IsKeyFrame:    !vp9.P && vp9.B,
				SpatialLayer:  int8(vp9.SID),
				TemporalLayer: int8(vp9.TID),
			}
			out.Layers = &protocol.LayerInfo{Spatial: int8(vp9.SID), Temporal: int8(vp9.TID)}
		}

	case strings.ToLower(webrtc.MimeTypeH264):
		out.Meta = protocol.MetaH264
		out.Nackable = true
		out.H264 = protocol.H264Meta{IsKeyFrame: h264IsKeyFrame(pkt.Payload)}

	default:
		return protocol.MediaPacket{}, fmt.Errorf("worker: unsupported codec %q", mimeType)
	}

	return out, nil
}

// h264IsKeyFrame reports whether an H.264 RTP payload starts a keyframe:
// an IDR or SPS NALU, either bare or inside a STAP-A aggregate.
func h264IsKeyFrame(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	const (
		naluTypeSPS   = 7
		naluTypeIDR   = 5
		naluTypeStapA = 24
	)
	naluType := payload[0] & 0x1F
	switch naluType {
	case naluTypeSPS, naluTypeIDR:
		return true
	case naluTypeStapA:
		i := 1
		for i+2 < len(payload) {
			size := int(payload[i])<<8 | int(payload[i+1])
			i += 2
			if i >= len(payload) || size == 0 {
				break
			}
			t := payload[i] & 0x1F
			if t == naluTypeSPS || t == naluTypeIDR {
				return true
			}
			i += size
		}
	}
	return false
}

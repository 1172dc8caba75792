package worker

import "github.com/relaymesh/media-cluster/internal/protocol"

// LayerLimit bounds which SVC/simulcast layers a subscriber wants
// forwarded. A negative field means "no limit" on that dimension.
type LayerLimit struct {
	MaxSpatial  int
	MaxTemporal int
}

// ShouldForward reports whether pkt's layer falls within limit. Packets
// with no layer metadata (non-SVC codecs, or SVC packets the publisher
// side chose not to tag) always forward: layer filtering is a quality
// optimization, not a correctness requirement.
func ShouldForward(pkt protocol.MediaPacket, limit LayerLimit) bool {
	if pkt.Layers == nil {
		return true
	}
	if limit.MaxSpatial >= 0 && int(pkt.Layers.Spatial) > limit.MaxSpatial {
		return false
	}
	if limit.MaxTemporal >= 0 && int(pkt.Layers.Temporal) > limit.MaxTemporal {
		return false
	}
	return true
}

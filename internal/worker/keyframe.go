package worker

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// pliDebounce limits outbound Picture Loss Indication requests to at
// most one per interval per upstream track, so a burst of subscriber
// keyframe requests collapses into a single PLI to the publisher.
type pliDebounce struct {
	mu       sync.Mutex
	lastSent map[uint64]time.Time
	interval time.Duration
}

func newPLIDebounce(interval time.Duration) *pliDebounce {
	return &pliDebounce{lastSent: make(map[uint64]time.Time), interval: interval}
}

func (d *pliDebounce) allow(track uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if last, ok := d.lastSent[track]; ok && now.Sub(last) < d.interval {
		return false
	}
	d.lastSent[track] = now
	return true
}

// sendPLI writes a Picture Loss Indication for ssrc to the publisher's
// transport. Errors are not actionable here: a dropped PLI just means
// the encoder keeps sending delta frames until the next request.
func sendPLI(pc *webrtc.PeerConnection, ssrc webrtc.SSRC) {
	_ = pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
	})
}

package protocol

import (
	"encoding/binary"
	"fmt"
)

// FeedbackKind distinguishes the two feedback messages subscribers can send
// upstream to a publisher. Any other value is ignored by both sides, which
// keeps the wire format forward-compatible.
type FeedbackKind uint8

const (
	FeedbackBitrate         FeedbackKind = 0
	FeedbackKeyFrameRequest FeedbackKind = 1
)

// Feedback is the wire-level feedback message exchanged over the cluster
// pub/sub fabric's FeedbackAuto operation. For FeedbackBitrate, the
// cluster publisher uses Value as both the minimum and the maximum of the
// bitrate limit it hands to endpoints; Min and Max are carried on the wire
// but nothing in this repository reads them.
type Feedback struct {
	Kind  FeedbackKind
	Value uint64
	Min   uint64
	Max   uint64
}

const feedbackWireSize = 1 + 8 + 8 + 8

// EncodeFeedback serializes f into its fixed-width wire form.
func EncodeFeedback(f Feedback) []byte {
	buf := make([]byte, feedbackWireSize)
	buf[0] = byte(f.Kind)
	binary.BigEndian.PutUint64(buf[1:9], f.Value)
	binary.BigEndian.PutUint64(buf[9:17], f.Min)
	binary.BigEndian.PutUint64(buf[17:25], f.Max)
	return buf
}

// DecodeFeedback parses the fixed-width wire form produced by
// EncodeFeedback. Unknown kinds still decode successfully; callers decide
// whether to act on them, per the "unknown kinds are ignored" wire policy.
func DecodeFeedback(b []byte) (Feedback, error) {
	if len(b) != feedbackWireSize {
		return Feedback{}, fmt.Errorf("protocol: feedback wire size %d, want %d", len(b), feedbackWireSize)
	}
	return Feedback{
		Kind:  FeedbackKind(b[0]),
		Value: binary.BigEndian.Uint64(b[1:9]),
		Min:   binary.BigEndian.Uint64(b[9:17]),
		Max:   binary.BigEndian.Uint64(b[17:25]),
	}, nil
}

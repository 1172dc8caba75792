package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"

	"github.com/relaymesh/media-cluster/internal/protocol"
)

// MediaSink receives cluster-ready media packets read off an endpoint's
// remote tracks, keyed by the worker-assigned track id. The worker layer
// points this at the room engine's OnTrackData path.
type MediaSink func(track uint64, pkt protocol.MediaPacket)

// Variant distinguishes the signalling flavor an endpoint task was
// spawned for; it shapes which defaults (recvonly vs sendrecv
// transceivers, bitrate ceilings) the task applies.
type Variant int

const (
	VariantWhip Variant = iota
	VariantWhep
	VariantWebrtc
)

// SpawnParams are the inputs to spawning a new endpoint task.
type SpawnParams struct {
	SessionId  string
	RemoteIP   string
	Variant    Variant
	OfferSDP   string
	Record     bool
	MaxBitrate uint64
}

// SpawnResult is returned from a successful spawn.
type SpawnResult struct {
	AnswerSDP string
	IceLite   bool
	Ufrag     string
}

// EndpointTask is one session's worker-owned slot: a WebRTC transport
// paired with the media-core room hookups it feeds. HandleOffer blocks
// until ICE gathering completes or ctx ends; WebrtcEndpoint also starts
// one read goroutine per remote track, on top of pion/webrtc's own.
type EndpointTask interface {
	Index() int
	Ufrag() string
	HandleOffer(ctx context.Context, offerSDP string) (answerSDP string, err error)
	AddICECandidate(candidateJSON string) error
	Disconnect()
	IsEmpty() bool
}

// WebrtcEndpoint is the pion/webrtc-backed EndpointTask, grounded on
// the same offer/answer and connection-state-change plumbing a
// standalone SFU peer uses, adapted to the worker's index-addressed
// task-group slot instead of owning its own room reference directly.
type WebrtcEndpoint struct {
	index   int
	id      string
	ufrag   string
	variant Variant
	pc      *webrtc.PeerConnection
	closed  bool

	mu          sync.Mutex
	ssrcByTrack map[string]webrtc.SSRC
	nextTrack   uint64
	sink        MediaSink
	pli         *pliDebounce
}

// NewWebrtcEndpoint spawns a PeerConnection for params at task slot
// index, using api to construct it (so ICE settings, such as the
// server-side ufrag/pwd pair, are controlled by the caller).
func NewWebrtcEndpoint(index int, api *webrtc.API, cfg webrtc.Configuration, params SpawnParams) (*WebrtcEndpoint, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("worker: create peer connection: %w", err)
	}

	id := params.SessionId
	if id == "" {
		id = xid.New().String()
	}

	e := &WebrtcEndpoint{
		index:       index,
		id:          id,
		variant:     params.Variant,
		pc:          pc,
		ssrcByTrack: make(map[string]webrtc.SSRC),
		pli:         newPLIDebounce(500 * time.Millisecond),
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.mu.Lock()
		e.ssrcByTrack[track.ID()] = track.SSRC()
		trackId := e.nextTrack
		e.nextTrack++
		e.mu.Unlock()
		go e.readLoop(track, trackId)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			e.closed = true
		}
	})

	return e, nil
}

// SetMediaSink points the endpoint's remote-track reads at sink. Must be
// set before the remote peer starts sending; packets read while no sink
// is configured are dropped.
func (e *WebrtcEndpoint) SetMediaSink(sink MediaSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// readLoop reads RTP off one remote track, converts each packet into the
// cluster wire representation, and hands it to the media sink. Packets
// that fail to parse are skipped rather than terminating the loop.
func (e *WebrtcEndpoint) readLoop(remote *webrtc.TrackRemote, trackId uint64) {
	mime := remote.Codec().MimeType
	buf := make([]byte, 1500)
	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			return
		}
		e.mu.Lock()
		sink := e.sink
		e.mu.Unlock()
		if sink == nil {
			continue
		}
		pkt, err := BuildMediaPacket(mime, buf[:n])
		if err != nil {
			continue
		}
		sink(trackId, pkt)
	}
}

// RequestKeyFrame sends a debounced Picture Loss Indication to the
// publisher of trackID with track as its cluster-side track identity
// (used only to key the debounce window per cluster track rather than
// per local SSRC, since a restarted publisher reuses the same cluster
// track id with a fresh SSRC).
func (e *WebrtcEndpoint) RequestKeyFrame(trackID string, track uint64) {
	if !e.pli.allow(track) {
		return
	}
	e.mu.Lock()
	ssrc, ok := e.ssrcByTrack[trackID]
	e.mu.Unlock()
	if !ok {
		return
	}
	sendPLI(e.pc, ssrc)
}

func (e *WebrtcEndpoint) Index() int { return e.index }

// Ufrag returns the server-side ICE ufrag once the local description
// has been set; until then it is empty.
func (e *WebrtcEndpoint) Ufrag() string { return e.ufrag }

func (e *WebrtcEndpoint) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("worker: set remote description: %w", err)
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("worker: create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("worker: set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(e.pc):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := e.pc.LocalDescription()
	if ufrag, pwd, ok := parseIceUfragPwd(local.SDP); ok {
		e.ufrag = ufrag
		_ = pwd
	}
	return local.SDP, nil
}

func (e *WebrtcEndpoint) AddICECandidate(candidateJSON string) error {
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidateJSON})
}

func (e *WebrtcEndpoint) Disconnect() {
	if e.closed {
		return
	}
	e.closed = true
	e.pc.Close()
}

func (e *WebrtcEndpoint) IsEmpty() bool { return e.closed }

// parseIceUfragPwd extracts the ice-ufrag attribute's value from a
// locally-generated SDP. pion/webrtc always emits one "a=ice-ufrag:"
// line per session-level attribute block.
func parseIceUfragPwd(sdp string) (ufrag, pwd string, ok bool) {
	const ufragPrefix = "a=ice-ufrag:"
	const pwdPrefix = "a=ice-pwd:"
	lines := splitLines(sdp)
	for _, line := range lines {
		switch {
		case len(line) > len(ufragPrefix) && line[:len(ufragPrefix)] == ufragPrefix:
			ufrag = trimCR(line[len(ufragPrefix):])
		case len(line) > len(pwdPrefix) && line[:len(pwdPrefix)] == pwdPrefix:
			pwd = trimCR(line[len(pwdPrefix):])
		}
	}
	return ufrag, pwd, ufrag != ""
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

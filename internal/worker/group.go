package worker

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ErrEndpointNotFound is returned by RemoteIce/Disconnect when the
// named endpoint has already been reaped or never existed.
var ErrEndpointNotFound = fmt.Errorf("worker: endpoint not found")

// Group is a Per-Session Worker Group: one shared UDP socket, a Shared
// UDP Demux over it, and the endpoint tasks multiplexed on top. The
// socket is handed to an ICE UDP mux shared by every PeerConnection the
// group spawns, so all sessions' STUN/DTLS/SRTP traffic arrives on the
// one bound port; a read tap ahead of the mux feeds each inbound packet
// through the Demux to keep the worker's own packet-to-task index
// current.
type Group struct {
	conn   net.PacketConn
	demux  *Demux
	udpMux ice.UDPMux
	api    *webrtc.API
	cfg    webrtc.Configuration

	mu        sync.Mutex
	tasks     map[int]EndpointTask
	bySession map[string]int
	nextIndex int
	shutdown  bool
}

// NewGroup takes ownership of conn (already listening) as the shared UDP
// socket and creates an empty task group on top of it. The returned
// group's WebRTC API is configured so every spawned PeerConnection
// gathers its host candidate on conn's port instead of binding ephemeral
// sockets of its own.
func NewGroup(conn net.PacketConn, cfg webrtc.Configuration) (*Group, error) {
	g := &Group{
		conn:      conn,
		demux:     NewDemux(),
		cfg:       cfg,
		tasks:     make(map[int]EndpointTask),
		bySession: make(map[string]int),
	}

	g.udpMux = webrtc.NewICEUDPMux(nil, &tapPacketConn{PacketConn: conn, tap: g.HandlePacket})

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("worker: register default codecs: %w", err)
	}
	if err := mediaEngine.RegisterHeaderExtension(
		webrtc.RTPHeaderExtensionCapability{URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level"},
		webrtc.RTPCodecTypeAudio,
	); err != nil {
		return nil, fmt.Errorf("worker: register audio level extension: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("worker: register default interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetICEUDPMux(g.udpMux)
	settingEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	g.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithInterceptorRegistry(registry),
	)
	return g, nil
}

// tapPacketConn passes every successfully read packet to tap before
// handing it to the ICE UDP mux's read loop, which owns the socket.
type tapPacketConn struct {
	net.PacketConn
	tap func(addr net.Addr, data []byte)
}

func (c *tapPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	n, addr, err := c.PacketConn.ReadFrom(p)
	if err == nil && n > 0 {
		c.tap(addr, p[:n])
	}
	return n, addr, err
}

// Spawn creates a new endpoint task for a whip/whep/webrtc signalling
// request, answers its offer, and registers its ufrag with the demux
// so the first inbound STUN binding request routes to it.
func (g *Group) Spawn(ctx context.Context, params SpawnParams) (SpawnResult, error) {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return SpawnResult{}, fmt.Errorf("worker: group is shutting down")
	}
	index := g.nextIndex
	g.nextIndex++
	g.mu.Unlock()

	ep, err := NewWebrtcEndpoint(index, g.api, g.cfg, params)
	if err != nil {
		return SpawnResult{}, err
	}

	answer, err := ep.HandleOffer(ctx, params.OfferSDP)
	if err != nil {
		ep.Disconnect()
		return SpawnResult{}, err
	}

	g.mu.Lock()
	g.tasks[index] = ep
	if params.SessionId != "" {
		g.bySession[params.SessionId] = index
	}
	g.mu.Unlock()

	if ufrag := ep.Ufrag(); ufrag != "" {
		g.demux.RegisterUfrag(ufrag, index)
	}

	return SpawnResult{AnswerSDP: answer, Ufrag: ep.Ufrag()}, nil
}

// RestartIce spawns a replacement endpoint task for an existing
// session without tearing down the old one. The caller is responsible
// for eventually disconnecting it once the new one is confirmed live.
func (g *Group) RestartIce(ctx context.Context, params SpawnParams) (SpawnResult, error) {
	return g.Spawn(ctx, params)
}

// RemoteIce routes a remote ICE candidate to the session's endpoint
// task.
func (g *Group) RemoteIce(sessionId, candidateJSON string) error {
	ep, ok := g.lookupBySession(sessionId)
	if !ok {
		return ErrEndpointNotFound
	}
	return ep.AddICECandidate(candidateJSON)
}

// Disconnect tears down the session's endpoint task, if it exists.
func (g *Group) Disconnect(sessionId string) error {
	ep, ok := g.lookupBySession(sessionId)
	if !ok {
		return ErrEndpointNotFound
	}
	ep.Disconnect()
	return nil
}

func (g *Group) lookupBySession(sessionId string) (EndpointTask, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	index, ok := g.bySession[sessionId]
	if !ok {
		return nil, false
	}
	ep, ok := g.tasks[index]
	return ep, ok
}

// HandlePacket is the Shared UDP Demux's packet entrypoint, called for
// every inbound packet on the shared socket ahead of the ICE UDP mux's
// own read loop. It resolves addr/data to an endpoint task index,
// caching the source address on the first STUN binding request so later
// DTLS/SRTP packets resolve without parsing. The packet itself continues
// into the mux, which feeds the matched session's ICE/DTLS/SRTP stack;
// packets no registered task claims resolve to nothing and are left for
// the mux to discard.
func (g *Group) HandlePacket(addr net.Addr, data []byte) {
	index, ok := g.demux.Route(addr, data)
	if !ok {
		return
	}
	g.mu.Lock()
	_, exists := g.tasks[index]
	g.mu.Unlock()
	if !exists {
		g.demux.Unregister(index)
	}
}

// Reap removes every endpoint task that has gone empty (disconnected,
// failed, or closed) from the task group and drops its demux
// registrations. Called once per worker tick.
func (g *Group) Reap() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for index, ep := range g.tasks {
		if !ep.IsEmpty() {
			continue
		}
		delete(g.tasks, index)
		for session, idx := range g.bySession {
			if idx == index {
				delete(g.bySession, session)
			}
		}
		g.demux.Unregister(index)
	}
}

// Shutdown marks the group as shutting down and disconnects every
// remaining endpoint task; callers must keep calling Reap until
// IsEmpty reports true.
func (g *Group) Shutdown() {
	g.mu.Lock()
	g.shutdown = true
	tasks := make([]EndpointTask, 0, len(g.tasks))
	for _, ep := range g.tasks {
		tasks = append(tasks, ep)
	}
	g.mu.Unlock()

	for _, ep := range tasks {
		ep.Disconnect()
	}
}

// IsEmpty reports whether the group has been asked to shut down, has
// drained its task group, and holds no live endpoint tasks.
func (g *Group) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shutdown && len(g.tasks) == 0
}

// TaskCount reports the number of live endpoint tasks, for tests and
// diagnostics.
func (g *Group) TaskCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

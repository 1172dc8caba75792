package gateway

// ServiceKind names the signalling variant a session is being dispatched
// for.
type ServiceKind int

const (
	ServiceWhip ServiceKind = iota
	ServiceWhep
	ServiceWebrtc
	ServiceRtpEngine
)

func (k ServiceKind) String() string {
	switch k {
	case ServiceWhip:
		return "whip"
	case ServiceWhep:
		return "whep"
	case ServiceWebrtc:
		return "webrtc"
	case ServiceRtpEngine:
		return "rtp_engine"
	default:
		return "unknown"
	}
}

// NodeSelector picks an edge node address offering kind, optionally
// informed by a geo-IP hint. Returning ok=false means no candidate node
// is available (PoolEmpty).
type NodeSelector interface {
	Select(kind ServiceKind, hint *Location) (nodeAddr string, ok bool)
}

// StaticSelector is a NodeSelector backed by a fixed pool of node
// addresses per service kind, round-robined on each Select call. It is
// the in-memory stand-in for whatever service-discovery integration a
// deployment wires in; tests use it directly.
type StaticSelector struct {
	pools map[ServiceKind][]string
	next  map[ServiceKind]int
}

// NewStaticSelector creates a StaticSelector with the given node pools.
func NewStaticSelector(pools map[ServiceKind][]string) *StaticSelector {
	return &StaticSelector{pools: pools, next: make(map[ServiceKind]int)}
}

// Select implements NodeSelector, ignoring hint (no geo-awareness).
func (s *StaticSelector) Select(kind ServiceKind, _ *Location) (string, bool) {
	pool := s.pools[kind]
	if len(pool) == 0 {
		return "", false
	}
	i := s.next[kind] % len(pool)
	s.next[kind] = i + 1
	return pool[i], true
}

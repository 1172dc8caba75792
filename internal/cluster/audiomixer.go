package cluster

import "sort"

// audioSource is one track registered as a candidate for a mixer slot.
type audioSource struct {
	peer  string
	name  string
	level int8
	slot  int // -1 if unassigned
}

func audioSourceKey(peer, name string) string { return peer + "\x00" + name }

// AudioMixer implements the room's fixed-size top-N loudest-speaker slot
// table. Endpoints that attach receive SlotSet/SlotUnset events whenever
// the set of loudest registered sources changes.
type AudioMixer[E comparable] struct {
	slotCount int
	slotOf    []string // slotOf[i] = source key occupying slot i, "" if empty

	sources map[string]*audioSource

	attached *orderedSet[E]

	out []Output
}

// NewAudioMixer creates an Audio Mixer with slotCount slots.
func NewAudioMixer[E comparable](slotCount int) *AudioMixer[E] {
	return &AudioMixer[E]{
		slotCount: slotCount,
		slotOf:    make([]string, slotCount),
		sources:   make(map[string]*audioSource),
		attached:  newOrderedSet[E](),
	}
}

func (m *AudioMixer[E]) push(o Output) {
	m.out = append(m.out, o)
}

// PopOutput removes and returns the next queued output, if any.
func (m *AudioMixer[E]) PopOutput() (Output, bool) {
	if len(m.out) == 0 {
		return nil, false
	}
	o := m.out[0]
	m.out = m.out[1:]
	return o, true
}

// IsEmpty reports whether no endpoint is attached, no sources are
// registered, and nothing is queued.
func (m *AudioMixer[E]) IsEmpty() bool {
	return m.attached.len() == 0 && len(m.sources) == 0 && len(m.out) == 0
}

// Attach registers endpoint to receive this room's slot events and
// catches it up with every currently-occupied slot.
func (m *AudioMixer[E]) Attach(endpoint E) {
	m.attached.add(endpoint)
	for i, key := range m.slotOf {
		if key == "" {
			continue
		}
		src := m.sources[key]
		m.push(EndpointOutput[E]{Endpoint: endpoint, Kind: EventSlotSet, SlotIndex: i, Peer: src.peer, Name: src.name})
	}
}

// Detach stops sending endpoint slot events.
func (m *AudioMixer[E]) Detach(endpoint E) {
	m.attached.remove(endpoint)
}

// RegisterSource adds (peer, name) as a candidate speaker with level 0.
func (m *AudioMixer[E]) RegisterSource(peer, name string) {
	key := audioSourceKey(peer, name)
	if _, ok := m.sources[key]; ok {
		return
	}
	m.sources[key] = &audioSource{peer: peer, name: name, slot: -1}
	m.recompute()
}

// UnregisterSource removes (peer, name); if it held a slot, the slot is
// freed and a replacement is promoted if one exists.
func (m *AudioMixer[E]) UnregisterSource(peer, name string) {
	key := audioSourceKey(peer, name)
	if _, ok := m.sources[key]; !ok {
		return
	}
	delete(m.sources, key)
	m.recompute()
}

// UpdateLevel records a fresh loudness reading for (peer, name) and
// recomputes slot assignment.
func (m *AudioMixer[E]) UpdateLevel(peer, name string, level int8) {
	key := audioSourceKey(peer, name)
	src, ok := m.sources[key]
	if !ok {
		return
	}
	src.level = level
	m.recompute()
}

// recompute picks the top slotCount loudest sources and emits the
// SlotUnset/SlotSet diff against the current table, in ascending slot
// index order.
func (m *AudioMixer[E]) recompute() {
	ranked := make([]*audioSource, 0, len(m.sources))
	for _, s := range m.sources {
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].level > ranked[j].level
	})
	if len(ranked) > m.slotCount {
		ranked = ranked[:m.slotCount]
	}

	wantKey := make(map[string]bool, len(ranked))
	for _, s := range ranked {
		wantKey[audioSourceKey(s.peer, s.name)] = true
	}

	for i, key := range m.slotOf {
		if key != "" && !wantKey[key] {
			// key may belong to a source UnregisterSource just removed.
			if src, ok := m.sources[key]; ok {
				src.slot = -1
			}
			m.slotOf[i] = ""
			for _, ep := range m.attached.snapshot() {
				m.push(EndpointOutput[E]{Endpoint: ep, Kind: EventSlotUnset, SlotIndex: i})
			}
		}
	}

	for _, s := range ranked {
		if s.slot != -1 {
			continue
		}
		idx := -1
		for i, key := range m.slotOf {
			if key == "" {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		key := audioSourceKey(s.peer, s.name)
		m.slotOf[idx] = key
		s.slot = idx
		for _, ep := range m.attached.snapshot() {
			m.push(EndpointOutput[E]{Endpoint: ep, Kind: EventSlotSet, SlotIndex: idx, Peer: s.peer, Name: s.name})
		}
	}
}

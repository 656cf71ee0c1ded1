package origin

// Map associates element identities with their render origin. It is owned
// and mutated exclusively by the Classifier; entries are created once per
// element and never deleted while the classifier lives.
type Map struct {
	tags map[NodeID]Tag
}

func newMap() *Map {
	return &Map{tags: make(map[NodeID]Tag)}
}

// get returns the stored tag and whether an entry exists.
func (m *Map) get(id NodeID) (Tag, bool) {
	t, ok := m.tags[id]
	return t, ok
}

// markServer records a server entry. Idempotent: confirming an existing
// server entry is a no-op, and a server mark never downgrades to client
// later, so there is no conflict branch here.
func (m *Map) markServer(id NodeID) {
	m.tags[id] = TagServer
}

// markClientIfNew records a client entry only when the identity has never
// been classified. An existing server entry models a relocation — a known
// server-rendered node reattached elsewhere in the tree — and is preserved.
// Reports whether a new entry was created.
func (m *Map) markClientIfNew(id NodeID) bool {
	if _, ok := m.tags[id]; ok {
		return false
	}
	m.tags[id] = TagClient
	return true
}

// len is the number of classified identities.
func (m *Map) len() int {
	return len(m.tags)
}

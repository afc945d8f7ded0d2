package cache

import "sort"

// orderedSlotMap is a bounded map keyed by Slot, kept in ascending sorted
// order so the oldest (smallest) slot can be evicted in O(log n) + O(n)
// (the shift cost is paid rarely since inserts are nearly always at the
// tail). No ordered-map library is used here — see DESIGN.md: none of the
// example repos pull one in, and the teacher's own state types use plain
// maps with manual bookkeeping for comparable structures.
type orderedSlotMap[T any] struct {
	keys []uint64
	vals map[uint64]T
	cap  int
}

func newOrderedSlotMap[T any](capacity int) *orderedSlotMap[T] {
	return &orderedSlotMap[T]{vals: make(map[uint64]T), cap: capacity}
}

func (m *orderedSlotMap[T]) contains(slot uint64) bool {
	_, ok := m.vals[slot]
	return ok
}

// insert is idempotent: if slot is already present it is a no-op and
// reports inserted=false, matching spec.md §4.3's "idempotent insertion"
// contract for the slot-keyed stores.
func (m *orderedSlotMap[T]) insert(slot uint64, v T) (inserted bool) {
	if m.contains(slot) {
		return false
	}
	i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= slot })
	m.keys = append(m.keys, 0)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = slot
	m.vals[slot] = v

	for len(m.keys) > m.cap {
		oldest := m.keys[0]
		m.keys = m.keys[1:]
		delete(m.vals, oldest)
	}
	return true
}

func (m *orderedSlotMap[T]) get(slot uint64) (T, bool) {
	v, ok := m.vals[slot]
	return v, ok
}

// orderedTimeMap is a bounded map keyed by MessageStateTime, kept in
// ascending lexicographic order to support the four lookup modes of
// spec.md §4.3.
type orderedTimeMap struct {
	keys []MessageStateTime
	vals map[MessageStateTime]MessageState
	cap  int
}

func newOrderedTimeMap(capacity int) *orderedTimeMap {
	return &orderedTimeMap{vals: make(map[MessageStateTime]MessageState), cap: capacity}
}

func (m *orderedTimeMap) search(k MessageStateTime) int {
	return sort.Search(len(m.keys), func(i int) bool { return !m.keys[i].Less(k) })
}

// insert writes state at its (publish_time, slot) key, overwriting any
// existing entry for that exact key, then evicts the lowest-ordered entries
// until the bucket is back at or under capacity.
func (m *orderedTimeMap) insert(state MessageState) {
	key := state.Time()
	i := m.search(key)
	if i < len(m.keys) && m.keys[i] == key {
		m.vals[key] = state
		return
	}
	m.keys = append(m.keys, MessageStateTime{})
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = key
	m.vals[key] = state

	for len(m.keys) > m.cap {
		oldest := m.keys[0]
		m.keys = m.keys[1:]
		delete(m.vals, oldest)
	}
}

func (m *orderedTimeMap) latest() (MessageState, bool) {
	if len(m.keys) == 0 {
		return MessageState{}, false
	}
	return m.vals[m.keys[len(m.keys)-1]], true
}

// latestTimeEarliestSlot returns the entry with the maximum publish_time
// and, among those sharing it, the minimum slot.
func (m *orderedTimeMap) latestTimeEarliestSlot() (MessageState, bool) {
	if len(m.keys) == 0 {
		return MessageState{}, false
	}
	maxPT := m.keys[len(m.keys)-1].PublishTime
	candidate := m.keys[len(m.keys)-1]
	for i := len(m.keys) - 2; i >= 0; i-- {
		if m.keys[i].PublishTime != maxPT {
			break
		}
		if m.keys[i].Slot < candidate.Slot {
			candidate = m.keys[i]
		}
	}
	return m.vals[candidate], true
}

// firstAfter returns the first entry with publish_time >= t. It fails if
// the earliest cached entry's publish_time is already past t, since in
// that case the cache cannot prove the returned entry is truly the first
// (an earlier one may have been evicted).
func (m *orderedTimeMap) firstAfter(t int64) (MessageState, bool) {
	if len(m.keys) == 0 {
		return MessageState{}, false
	}
	if m.keys[0].PublishTime > t {
		return MessageState{}, false
	}
	idx := m.search(MessageStateTime{PublishTime: t, Slot: 0})
	if idx == len(m.keys) {
		return MessageState{}, false
	}
	return m.vals[m.keys[idx]], true
}

// atSlot reverse-iterates for the first (highest-ordered) entry whose slot
// matches s.
func (m *orderedTimeMap) atSlot(s uint64) (MessageState, bool) {
	for i := len(m.keys) - 1; i >= 0; i-- {
		if m.keys[i].Slot == s {
			return m.vals[m.keys[i]], true
		}
	}
	return MessageState{}, false
}

func (m *orderedTimeMap) len() int {
	return len(m.keys)
}

package vaa

import "sync"

// observedCacheSize bounds the deduplication set, matching
// original_source/hermes/src/network/wormhole.rs's OBSERVED_CACHE_SIZE.
const observedCacheSize = 1000

// seenSequences is a bounded set of VAA sequence
// numbers already processed. On overflow it evicts the smallest sequence —
// not the oldest-inserted — matching the reference's use of an ordered set
// with pop_first.
type seenSequences struct {
	mu      sync.Mutex
	present map[uint64]struct{}
}

func newSeenSequences() *seenSequences {
	return &seenSequences{present: make(map[uint64]struct{}, observedCacheSize+1)}
}

// contains reports whether sequence has already been recorded, without
// modifying the set.
func (s *seenSequences) contains(sequence uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.present[sequence]
	return ok
}

// record inserts sequence, trimming the set back to observedCacheSize by
// dropping the smallest remaining sequence numbers. Callers must only
// record a sequence once it has actually been stored (i.e. passed quorum),
// matching store_vaa's record-on-success behavior — recording a VAA that
// later fails verification would permanently poison that sequence number.
func (s *seenSequences) record(sequence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.present[sequence] = struct{}{}

	for len(s.present) > observedCacheSize {
		var smallest uint64
		first := true
		for seq := range s.present {
			if first || seq < smallest {
				smallest = seq
				first = false
			}
		}
		delete(s.present, smallest)
	}
}

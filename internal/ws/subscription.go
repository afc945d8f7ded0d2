package ws

import (
	"sync"
	"sync/atomic"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// SubscriptionIndex maps a feed ID to its current subscribers, so a
// completion broadcast only iterates the clients that actually asked for
// that feed instead of every connected client. Adapted from the teacher's
// internal/shared/connection.go SubscriptionIndex: each feed's subscriber
// list is an atomic.Value holding an immutable slice, swapped
// copy-on-write on Add/Remove so Get is a lock-free read on the broadcast
// hot path.
type SubscriptionIndex struct {
	mu   sync.RWMutex
	subs map[wire.FeedID]*atomic.Value
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{subs: make(map[wire.FeedID]*atomic.Value)}
}

// Add and Remove hold the index-wide lock for the whole read-modify-store,
// same as the teacher: subscribe/unsubscribe happen far less often than
// broadcasts, so the simpler coarse lock is worth it to avoid the
// lost-update race a per-feed CAS retry loop would need to handle.
func (idx *SubscriptionIndex) Add(feedID wire.FeedID, c *Client) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	v, ok := idx.subs[feedID]
	if !ok {
		v = &atomic.Value{}
		idx.subs[feedID] = v
	}
	old, _ := v.Load().([]*Client)
	for _, existing := range old {
		if existing == c {
			return
		}
	}
	next := make([]*Client, len(old)+1)
	copy(next, old)
	next[len(old)] = c
	v.Store(next)
}

func (idx *SubscriptionIndex) Remove(feedID wire.FeedID, c *Client) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	v, ok := idx.subs[feedID]
	if !ok {
		return
	}
	old, _ := v.Load().([]*Client)
	for i, existing := range old {
		if existing == c {
			next := make([]*Client, 0, len(old)-1)
			next = append(next, old[:i]...)
			next = append(next, old[i+1:]...)
			v.Store(next)
			return
		}
	}
}

// RemoveClient drops c from every feed it is subscribed to, on disconnect.
func (idx *SubscriptionIndex) RemoveClient(c *Client) {
	idx.mu.RLock()
	feeds := make([]wire.FeedID, 0, len(idx.subs))
	for feedID := range idx.subs {
		feeds = append(feeds, feedID)
	}
	idx.mu.RUnlock()
	for _, feedID := range feeds {
		idx.Remove(feedID, c)
	}
}

// Get returns the current subscriber snapshot for feedID. The returned
// slice is immutable and must not be modified by the caller.
func (idx *SubscriptionIndex) Get(feedID wire.FeedID) []*Client {
	idx.mu.RLock()
	v, ok := idx.subs[feedID]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}
	out, _ := v.Load().([]*Client)
	return out
}

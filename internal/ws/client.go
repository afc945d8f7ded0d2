package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// Client is one Subscriber connection: a single per-connection actor
// reading client frames and writing completion pushes, adapted from the
// teacher's shared.Client down to the fields the cache/aggregate domain
// actually needs (no sequence/replay-buffer bookkeeping — Hermes clients
// resync via a fresh "replay" request against the cache instead of a
// per-connection sequence log).
type Client struct {
	id          uint64
	conn        net.Conn
	ip          string
	send        chan []byte
	closeOnce   sync.Once
	connectedAt time.Time

	subsMu        sync.Mutex
	subscriptions map[wire.FeedID]SubscriberConfig

	sendAttempts int32 // consecutive non-blocking send failures; 3 strikes disconnects
}

const sendBufferSize = 256

func newClient(id uint64, conn net.Conn, ip string) *Client {
	return &Client{
		id:            id,
		conn:          conn,
		ip:            ip,
		send:          make(chan []byte, sendBufferSize),
		connectedAt:   time.Now(),
		subscriptions: make(map[wire.FeedID]SubscriberConfig),
	}
}

// subscribe installs cfg for every id, overwriting any prior config for
// that (client, feed) pair, matching the teacher's insert-on-subscribe
// PriceFeedClientConfig semantics.
func (c *Client) subscribe(ids []wire.FeedID, cfg SubscriberConfig) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, id := range ids {
		c.subscriptions[id] = cfg
	}
}

func (c *Client) unsubscribe(ids []wire.FeedID) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, id := range ids {
		delete(c.subscriptions, id)
	}
}

// configFor returns the client's stored config for feedID and whether the
// client is currently subscribed to it.
func (c *Client) configFor(feedID wire.FeedID) (SubscriberConfig, bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	cfg, ok := c.subscriptions[feedID]
	return cfg, ok
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// recordSendResult tracks the 3-strike slow-client policy: each failed
// non-blocking send increments the counter, any success resets it. The
// caller disconnects once this returns a count of 3 or more.
func (c *Client) recordSendResult(ok bool) int32 {
	if ok {
		atomic.StoreInt32(&c.sendAttempts, 0)
		return 0
	}
	return atomic.AddInt32(&c.sendAttempts, 1)
}

// Package ws implements Hermes's WebSocket Subscriber fan-out, adapted
// from the teacher's server.go/internal/shared connection-handling idiom
// (gobwas/ws upgrade, readPump/writePump actors per client, a
// copy-on-write subscription index) and retargeted from Kafka price-tick
// broadcast to aggregate.Aggregator completion events, per spec.md §4.5.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/limits"
	"github.com/pyth-network/hermes-go/internal/wire"
)

const (
	writeWait             = 5 * time.Second
	pongWait              = 30 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	maxConnectionDuration = 24 * time.Hour
	maxClientMessageSize  = 1024 * 1024
	slowClientStrikes     = 3
)

type Config struct {
	MaxConnections int
	BytesPerSecond int // per-IP outbound byte budget, spec.md §4.5
	ClientIPHeader string
}

func DefaultConfig() Config {
	return Config{MaxConnections: 20000, BytesPerSecond: limits.DefaultBytesPerSecond}
}

// Server accepts WebSocket connections and fans out price feed updates as
// the Aggregator completes each slot.
type Server struct {
	cfg        Config
	aggregator *aggregate.Aggregator
	limiter    *limits.ByIP
	log        zerolog.Logger

	clients sync.Map // map[uint64]*Client
	index   *SubscriptionIndex

	nextID       uint64
	connectionsN int32
	shuttingDown int32
}

func NewServer(cfg Config, aggregator *aggregate.Aggregator, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		aggregator: aggregator,
		limiter:    limits.NewByIP(cfg.BytesPerSecond),
		log:        log,
		index:      NewSubscriptionIndex(),
	}
}

// HandleWebSocket is the http.HandlerFunc that upgrades an incoming
// connection and starts its read/write actors.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if int(atomic.LoadInt32(&s.connectionsN)) >= s.cfg.MaxConnections {
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := atomic.AddUint64(&s.nextID, 1)
	ip := clientIP(r, s.cfg.ClientIPHeader)
	client := newClient(id, conn, ip)

	atomic.AddInt32(&s.connectionsN, 1)
	s.clients.Store(id, client)

	go s.writePump(client)
	go s.readPump(client)
}

func clientIP(r *http.Request, header string) string {
	if header != "" {
		if v := r.Header.Get(header); v != "" {
			return strings.TrimSpace(strings.Split(v, ",")[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) disconnect(c *Client, reason string) {
	s.index.RemoveClient(c)
	s.clients.Delete(c.id)
	s.limiter.Remove(c.ip)
	atomic.AddInt32(&s.connectionsN, -1)
	c.close()
	s.log.Debug().Uint64("client_id", c.id).Str("reason", reason).Dur("duration", time.Since(c.connectedAt)).Msg("client disconnected")
}

func (s *Server) readPump(c *Client) {
	reason := "read_error"
	defer func() { s.disconnect(c, reason) }()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		msg, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText:
			if len(msg) > maxClientMessageSize {
				reason = "message_too_large"
				return
			}
			s.handleClientMessage(c, msg)
		case ws.OpClose:
			reason = "client_closed"
			return
		}
	}
}

func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	deadline := time.NewTimer(maxConnectionDuration)
	defer func() {
		ticker.Stop()
		deadline.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpText, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		case <-deadline.C:
			wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
			return
		}
	}
}

func (s *Server) handleClientMessage(c *Client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, "BAD_REQUEST", "invalid json")
		return
	}

	switch msg.Type {
	case "subscribe":
		var req subscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(c, "BAD_REQUEST", "invalid subscribe payload")
			return
		}
		ids, err := parseFeedIDs(req.IDs)
		if err != nil {
			s.sendError(c, "BAD_REQUEST", err.Error())
			return
		}

		known := s.aggregator.KnownFeedIDs()
		found := make([]wire.FeedID, 0, len(ids))
		var notFound []string
		for _, id := range ids {
			if _, ok := known[id]; ok {
				found = append(found, id)
			} else {
				notFound = append(notFound, feedIDHex(id))
			}
		}

		// If any requested id is unknown, subscribe to none of them and
		// report the error explicitly, unless the client asked to ignore
		// invalid ids (spec.md §4.6's ignore_invalid_price_ids).
		if len(notFound) > 0 && !req.IgnoreInvalidFeedIDs {
			s.sendError(c, "NOT_FOUND", fmt.Sprintf("price feed(s) with id(s) %v not found", notFound))
			return
		}

		cfg := SubscriberConfig{Verbose: req.Verbose, Binary: req.Binary, AllowOutOfOrder: req.AllowOutOfOrder}
		c.subscribe(found, cfg)
		for _, id := range found {
			s.index.Add(id, c)
		}
		s.sendJSON(c, responseMessage{Type: "response", Status: "subscribed", IDs: req.IDs})

	case "unsubscribe":
		var req subscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(c, "BAD_REQUEST", "invalid unsubscribe payload")
			return
		}
		ids, err := parseFeedIDs(req.IDs)
		if err != nil {
			s.sendError(c, "BAD_REQUEST", err.Error())
			return
		}
		c.unsubscribe(ids)
		for _, id := range ids {
			s.index.Remove(id, c)
		}
		s.sendJSON(c, responseMessage{Type: "response", Status: "unsubscribed", IDs: req.IDs})

	case "heartbeat":
		s.sendJSON(c, pongMessage{Type: "pong", TS: time.Now().UnixMilli()})

	case "replay":
		var req replayRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(c, "BAD_REQUEST", "invalid replay payload")
			return
		}
		ids, err := parseFeedIDs(req.IDs)
		if err != nil {
			s.sendError(c, "BAD_REQUEST", err.Error())
			return
		}
		updates, err := s.aggregator.GetPriceFeedsWithUpdateData(context.Background(), ids, req.RequestTime.toAggregate())
		if err != nil {
			s.sendError(c, "NOT_FOUND", err.Error())
			return
		}
		for _, u := range updates {
			s.sendJSON(c, toPriceUpdateMessage(u.FeedID, u.Price, u.UpdateData))
		}

	default:
		s.sendError(c, "UNKNOWN_TYPE", "unknown message type")
	}
}

func (s *Server) sendError(c *Client, code, message string) {
	s.sendJSON(c, errorMessage{Type: "error", Code: code, Message: message})
}

func (s *Server) sendJSON(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func toPriceUpdateMessage(id wire.FeedID, price wire.PriceFeedMessage, updateData []byte) priceUpdateMessage {
	return priceUpdateMessage{
		Type:        "price_update",
		ID:          feedIDHex(id),
		Price:       price.Price,
		Conf:        price.Conf,
		Exponent:    price.Exponent,
		PublishTime: price.PublishTime,
		EmaPrice:    price.EmaPrice,
		EmaConf:     price.EmaConf,
		UpdateData:  base64.StdEncoding.EncodeToString(updateData),
	}
}

// Run subscribes to the aggregator's completion bus and pushes price
// updates to every subscriber of a newly-completed slot's feeds, until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, events <-chan aggregate.AggregationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.pushCompletion(ctx, ev)
		}
	}
}

// pushCompletion delivers ev to every subscriber of its feeds, fetching
// each feed's state as of the exact completed slot (spec.md §4.5 step 1).
// A NotFound fetch means a feed was dropped from the cache after a client
// subscribed to it; the teacher's ws.rs re-intersects against the
// aggregator's live feed id set and retries the same batched fetch exactly
// once with the surviving ids. OutOfOrder completions are only delivered to
// subscribers whose stored config for that feed has AllowOutOfOrder set;
// EventNew always delivers.
func (s *Server) pushCompletion(ctx context.Context, ev aggregate.AggregationEvent) {
	for _, id := range ev.FeedIDs {
		subscribers := s.index.Get(id)
		if len(subscribers) == 0 {
			continue
		}

		rt := aggregate.RequestTime{Kind: aggregate.RequestAtSlot, Slot: ev.Slot}
		updates, err := s.aggregator.GetPriceFeedsWithUpdateData(ctx, []wire.FeedID{id}, rt)
		if err != nil {
			if _, ok := s.aggregator.KnownFeedIDs()[id]; !ok {
				continue
			}
			updates, err = s.aggregator.GetPriceFeedsWithUpdateData(ctx, []wire.FeedID{id}, rt)
			if err != nil || len(updates) == 0 {
				continue
			}
		} else if len(updates) == 0 {
			continue
		}

		msg := toPriceUpdateMessage(id, updates[0].Price, updates[0].UpdateData)
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		for _, c := range subscribers {
			if ev.Kind == aggregate.EventOutOfOrder {
				cfg, ok := c.configFor(id)
				if !ok || !cfg.AllowOutOfOrder {
					continue
				}
			}
			s.sendToClient(c, data)
		}
	}
}

// sendToClient applies the per-IP byte budget and the 3-strike slow-client
// policy before a non-blocking send, mirroring the teacher's broadcast().
func (s *Server) sendToClient(c *Client, data []byte) {
	if !s.limiter.Allow(c.ip, len(data)) {
		return
	}
	select {
	case c.send <- data:
		c.recordSendResult(true)
	default:
		// Closing the connection (not the channel) lets readPump/writePump
		// notice and run the normal disconnect path; closing c.send here
		// instead would race with handleClientMessage's sendJSON on the
		// same channel from the read goroutine.
		if c.recordSendResult(false) >= slowClientStrikes {
			c.close()
		}
	}
}

// Shutdown marks the server as draining and closes every open connection.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shuttingDown, 1)
	s.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		c.close()
		return true
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

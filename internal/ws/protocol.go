package ws

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/wire"
)

// ClientMessage is the envelope every inbound text frame is parsed into,
// grounded on the teacher's handleClientMessage's {type, data} dispatch.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subscribeRequest struct {
	IDs                  []string `json:"ids"`
	Verbose              bool     `json:"verbose"`
	Binary               bool     `json:"binary"`
	AllowOutOfOrder      bool     `json:"allow_out_of_order"`
	IgnoreInvalidFeedIDs bool     `json:"ignore_invalid_price_ids"`
}

// SubscriberConfig is the per-(client, feed) delivery contract a subscribe
// request installs, grounded on the teacher's PriceFeedClientConfig: Binary
// and Verbose shape the outbound message (left for a future wire-format
// pass — today every push uses the JSON priceUpdateMessage regardless),
// AllowOutOfOrder gates whether late-arriving completions for this feed
// reach this client at all (spec.md §4.5/§4.6).
type SubscriberConfig struct {
	Verbose         bool
	Binary          bool
	AllowOutOfOrder bool
}

type replayRequest struct {
	IDs         []string         `json:"ids"`
	RequestTime requestTimeShape `json:"request_time"`
}

type requestTimeShape struct {
	Kind string `json:"kind"` // "latest" | "first_after"
	Time int64  `json:"time"`
}

func (r requestTimeShape) toAggregate() aggregate.RequestTime {
	if r.Kind == "first_after" {
		return aggregate.RequestTime{Kind: aggregate.RequestFirstAfter, Time: r.Time}
	}
	return aggregate.RequestTime{Kind: aggregate.RequestLatest}
}

func parseFeedIDs(hexIDs []string) ([]wire.FeedID, error) {
	out := make([]wire.FeedID, len(hexIDs))
	for i, s := range hexIDs {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("ws: invalid feed id %q", s)
		}
		copy(out[i][:], b)
	}
	return out, nil
}

func feedIDHex(id wire.FeedID) string {
	return hex.EncodeToString(id[:])
}

// priceUpdateMessage is the outbound frame pushed to subscribers whenever
// a feed's aggregation completes.
type priceUpdateMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Exponent    int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
	EmaPrice    int64  `json:"ema_price"`
	EmaConf     uint64 `json:"ema_conf"`
	UpdateData  string `json:"update_data"` // base64
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type responseMessage struct {
	Type   string   `json:"type"`
	Status string   `json:"status"`
	IDs    []string `json:"ids,omitempty"`
}

type pongMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

package ws

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyth-network/hermes-go/internal/wire"
)

func TestSubscriptionIndex_AddGetRemove(t *testing.T) {
	idx := NewSubscriptionIndex()
	var feed wire.FeedID
	feed[0] = 1
	c1 := newClient(1, nil, "1.1.1.1")
	c2 := newClient(2, nil, "2.2.2.2")

	idx.Add(feed, c1)
	idx.Add(feed, c2)
	require.ElementsMatch(t, []*Client{c1, c2}, idx.Get(feed))

	idx.Remove(feed, c1)
	require.Equal(t, []*Client{c2}, idx.Get(feed))

	idx.Remove(feed, c2)
	require.Empty(t, idx.Get(feed))
}

func TestSubscriptionIndex_RemoveClientDropsAllFeeds(t *testing.T) {
	idx := NewSubscriptionIndex()
	var feedA, feedB wire.FeedID
	feedA[0], feedB[0] = 1, 2
	c := newClient(1, nil, "1.1.1.1")

	idx.Add(feedA, c)
	idx.Add(feedB, c)
	idx.RemoveClient(c)

	require.Empty(t, idx.Get(feedA))
	require.Empty(t, idx.Get(feedB))
}

func TestSubscriptionIndex_AddIsIdempotent(t *testing.T) {
	idx := NewSubscriptionIndex()
	var feed wire.FeedID
	feed[0] = 1
	c := newClient(1, nil, "1.1.1.1")
	idx.Add(feed, c)
	idx.Add(feed, c)
	require.Len(t, idx.Get(feed), 1)
}

func TestParseFeedIDs_RoundTrip(t *testing.T) {
	var feed wire.FeedID
	feed[0], feed[31] = 0xAB, 0xCD
	ids, err := parseFeedIDs([]string{feedIDHex(feed)})
	require.NoError(t, err)
	require.Equal(t, feed, ids[0])
}

func TestParseFeedIDs_RejectsMalformed(t *testing.T) {
	_, err := parseFeedIDs([]string{"not-hex"})
	require.Error(t, err)

	_, err = parseFeedIDs([]string{"ab"}) // too short
	require.Error(t, err)
}

func TestClient_RecordSendResult_StrikesAndResets(t *testing.T) {
	c := newClient(1, nil, "1.1.1.1")
	require.EqualValues(t, 1, c.recordSendResult(false))
	require.EqualValues(t, 2, c.recordSendResult(false))
	require.EqualValues(t, 0, c.recordSendResult(true))
	require.EqualValues(t, 1, c.recordSendResult(false))
}

func TestClient_SubscribeStoresPerFeedConfig(t *testing.T) {
	c := newClient(1, nil, "1.1.1.1")
	var feedA, feedB wire.FeedID
	feedA[0], feedB[0] = 1, 2

	c.subscribe([]wire.FeedID{feedA}, SubscriberConfig{AllowOutOfOrder: true})
	c.subscribe([]wire.FeedID{feedB}, SubscriberConfig{AllowOutOfOrder: false})

	cfgA, ok := c.configFor(feedA)
	require.True(t, ok)
	require.True(t, cfgA.AllowOutOfOrder)

	cfgB, ok := c.configFor(feedB)
	require.True(t, ok)
	require.False(t, cfgB.AllowOutOfOrder)

	c.unsubscribe([]wire.FeedID{feedA})
	_, ok = c.configFor(feedA)
	require.False(t, ok)
}

func TestToPriceUpdateMessage_EncodesUpdateData(t *testing.T) {
	var feed wire.FeedID
	feed[0] = 9
	msg := toPriceUpdateMessage(feed, wire.PriceFeedMessage{FeedID: feed, Price: 42, PublishTime: 7}, []byte{1, 2, 3})
	require.Equal(t, "price_update", msg.Type)
	require.Equal(t, int64(42), msg.Price)
	require.Equal(t, feedIDHex(feed), msg.ID)
	require.NotEmpty(t, msg.UpdateData)
}

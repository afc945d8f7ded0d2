package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// fakeSource is a scriptable Source: OpenStream returns a channel the test
// feeds manually, SingleLookup resolves from a pre-seeded map.
type fakeSource struct {
	streamCh    chan StreamUpdate
	lookups     map[int64]StreamUpdate
	lookupErr   map[int64]error
	openedCount int
}

func newFakeSource() *fakeSource {
	return &fakeSource{streamCh: make(chan StreamUpdate, 8), lookups: make(map[int64]StreamUpdate), lookupErr: make(map[int64]error)}
}

func (s *fakeSource) OpenStream(ctx context.Context, feedID wire.FeedID) (<-chan StreamUpdate, error) {
	s.openedCount++
	return s.streamCh, nil
}

func (s *fakeSource) SingleLookup(ctx context.Context, feedID wire.FeedID, timestamp int64) (StreamUpdate, error) {
	if err, ok := s.lookupErr[timestamp]; ok {
		return StreamUpdate{}, err
	}
	return s.lookups[timestamp], nil
}

func setupFetcher(t *testing.T) (*Fetcher, *fakeSource, chan PriceResponse, context.CancelFunc) {
	t.Helper()
	src := newFakeSource()
	responses := make(chan PriceResponse, 16)
	f := New(wire.FeedID{}, src, responses, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)
	return f, src, responses, cancel
}

func recvResponse(t *testing.T, ch chan PriceResponse) PriceResponse {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return PriceResponse{}
	}
}

// Scenario 5: a request for a timestamp older than the first stream update
// is served by a single lookup, which that first stream update triggers;
// the stream update itself does not answer it.
func TestScenario5_PastTimestampRequestUsesSingleLookup(t *testing.T) {
	f, src, responses, cancel := setupFetcher(t)
	defer cancel()

	src.lookups[100] = StreamUpdate{PublishTime: 100, UpdateData: []byte("historical")}

	f.Requests() <- PriceRequest{Timestamp: 100, Context: "req-1"}
	time.Sleep(20 * time.Millisecond) // let the actor register the pending request

	src.streamCh <- StreamUpdate{PublishTime: 106, PrevPublishTime: 105, UpdateData: []byte("live")}

	resp := recvResponse(t, responses)
	require.NoError(t, resp.Err)
	require.Equal(t, "req-1", resp.Context)
	require.Equal(t, []byte("historical"), resp.UpdateData)
}

func TestFetcher_StreamUpdateFulfillsWindow(t *testing.T) {
	f, src, responses, cancel := setupFetcher(t)
	defer cancel()

	f.Requests() <- PriceRequest{Timestamp: 50, Context: "a"}
	time.Sleep(20 * time.Millisecond) // let the actor register the pending request

	src.streamCh <- StreamUpdate{PublishTime: 60, PrevPublishTime: 0, UpdateData: []byte("v1")}

	resp := recvResponse(t, responses)
	require.Equal(t, "a", resp.Context)
	require.Equal(t, []byte("v1"), resp.UpdateData)
}

func TestFetcher_DuplicateUpdateIgnored(t *testing.T) {
	f, src, responses, cancel := setupFetcher(t)
	defer cancel()

	f.Requests() <- PriceRequest{Timestamp: 50, Context: "a"}
	time.Sleep(20 * time.Millisecond)

	src.streamCh <- StreamUpdate{PublishTime: 60, PrevPublishTime: 60, UpdateData: []byte("dup")}

	select {
	case resp := <-responses:
		t.Fatalf("expected no response for duplicate update, got %+v", resp)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFetcher_SingleLookupErrorDropsRequest(t *testing.T) {
	f, src, responses, cancel := setupFetcher(t)
	defer cancel()

	src.lookupErr[5] = errBoom

	f.Requests() <- PriceRequest{Timestamp: 5, Context: "will-fail"}
	time.Sleep(20 * time.Millisecond) // let the actor register the pending request

	// The first stream update triggers the single lookup for the older request.
	src.streamCh <- StreamUpdate{PublishTime: 10, PrevPublishTime: 9, UpdateData: []byte("live")}

	resp := recvResponse(t, responses)
	require.Error(t, resp.Err)
	require.Equal(t, "will-fail", resp.Context)
}

var errBoom = &fakeErr{"boom"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/chain/stub"
)

// fakeWS hands out one channel per subscription. Subscription number failAt fails when set.
type fakeWS struct {
	mu           sync.Mutex
	subs         []chan chain.Log
	filters      []chain.LogFilter
	failAt       int
	calls        int
	unsubscribed int
}

func (f *fakeWS) SubscribeLogs(_ context.Context, filter chain.LogFilter) (<-chan chain.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("subscription refused")
	}
	ch := make(chan chain.Log, 10)
	f.subs = append(f.subs, ch)
	f.filters = append(f.filters, filter)
	return ch, nil
}

func (f *fakeWS) Unsubscribe(ch <-chan chain.Log) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == ch {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			f.unsubscribed++
			return nil
		}
	}
	return nil
}

func (f *fakeWS) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
	return nil
}

func TestWatcher_DeliversEachTransactionOnce(t *testing.T) {
	client := stub.NewRPCClient()
	addTransfer(client, "0xaa", 100, userAddr, userAddr, 5)
	addTransfer(client, "0xbb", 101, otherAddr, userAddr, 7)

	ws := &fakeWS{}
	w := NewWatcher(WatcherOptions{WS: ws, Client: client, Network: "ethereum", Address: userAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := w.Watch(ctx)
	require.NoError(t, err)
	require.Len(t, ws.filters, 2)
	assert.Equal(t, []string{chain.AddressTopic(userAddr)}, ws.filters[0].Topics[1])
	assert.Nil(t, ws.filters[1].Topics[1])

	// the self transfer shows up on both subscriptions
	ws.subs[0] <- client.Receipts["0xaa"].Logs[0]
	ws.subs[1] <- client.Receipts["0xaa"].Logs[0]
	ws.subs[1] <- chain.Log{TransactionHash: "0xbb", Removed: true}
	ws.subs[1] <- client.Receipts["0xbb"].Logs[0]

	var got []string
	for len(got) < 2 {
		select {
		case tx := <-out:
			got = append(got, tx.Hash)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.ElementsMatch(t, []string{"0xaa", "0xbb"}, got)

	require.NoError(t, ws.Close())
	_, open := <-out
	assert.False(t, open, "output closes after subscriptions end")
}

func TestWatcher_FailedSubscribeReleasesEarlierOne(t *testing.T) {
	ws := &fakeWS{failAt: 2}
	w := NewWatcher(WatcherOptions{WS: ws, Client: stub.NewRPCClient(), Network: "ethereum", Address: userAddr})

	out, err := w.Watch(context.Background())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, ws.unsubscribed)
	assert.Zero(t, ws.active())
}

func TestWatcher_CancelReleasesSubscriptions(t *testing.T) {
	ws := &fakeWS{}
	w := NewWatcher(WatcherOptions{WS: ws, Client: stub.NewRPCClient(), Network: "ethereum", Address: userAddr})

	ctx, cancel := context.WithCancel(context.Background())
	out, err := w.Watch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, ws.active())

	cancel()
	for range out {
	}
	assert.Zero(t, ws.active())
}

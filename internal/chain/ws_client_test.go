package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWSClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		drain(conn)
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.closed.Load())
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "logs" {
			t.Errorf("unexpected params %v", req.Params)
		}

		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1"})

		time.Sleep(50 * time.Millisecond)
		_ = c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xsub1",
				"result": map[string]interface{}{
					"address":         "0xtoken",
					"topics":          []string{TransferTopic},
					"data":            "0x01",
					"blockNumber":     "0x64",
					"transactionHash": "0xtx",
					"logIndex":        "0x0",
				},
			},
		})

		drain(c)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogFilter{Topics: [][]string{{TransferTopic}}})
	require.NoError(t, err)

	select {
	case lg := <-ch:
		assert.Equal(t, "0xtx", lg.TransactionHash)
		assert.Equal(t, uint64(100), uint64(lg.BlockNumber))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		drain(c) // never confirms
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 100 * time.Millisecond
	client, err := NewWSClient(context.Background(), wsURL(server), &cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeLogs(context.Background(), LogFilter{})
	assert.Error(t, err)
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		drain(c)
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "second close is a no-op")

	_, err = client.SubscribeLogs(context.Background(), LogFilter{})
	assert.Error(t, err)
}

func TestWSClient_Unsubscribe(t *testing.T) {
	unsubscribed := make(chan []interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1"})

		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if req.Method == "eth_unsubscribe" {
			unsubscribed <- req.Params
		}
		drain(c)
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeLogs(context.Background(), LogFilter{})
	require.NoError(t, err)
	require.NoError(t, client.Unsubscribe(ch))

	select {
	case params := <-unsubscribed:
		assert.Equal(t, []interface{}{"0xsub1"}, params)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for eth_unsubscribe")
	}

	client.subsMu.RLock()
	assert.Empty(t, client.subs)
	client.subsMu.RUnlock()
	client.activeFiltersMu.RLock()
	assert.Empty(t, client.activeFilters)
	client.activeFiltersMu.RUnlock()

	assert.NoError(t, client.Unsubscribe(ch), "second unsubscribe is a no-op")
}

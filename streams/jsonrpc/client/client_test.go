package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/defistate/statespace/chainfeed"
)

// mockNode is a minimal JSON-RPC-over-websocket server exercising just
// enough of the Ethereum node API surface for the Client to drive.
type mockNode struct {
	upgrader websocket.Upgrader
}

func newMockNode() *mockNode {
	return &mockNode{upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}}
}

func (m *mockNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		switch req.Method {
		case "eth_subscribe":
			_ = writeJSON(map[string]any{"id": req.ID, "result": "0xSUB1"})
			go func() {
				time.Sleep(20 * time.Millisecond)
				writeJSON(map[string]any{
					"method": "eth_subscription",
					"params": map[string]any{
						"subscription": "0xSUB1",
						"result": map[string]any{
							"number":     "0x2a",
							"hash":       "0x" + "11",
							"parentHash": "0x" + "22",
						},
					},
				})
			}()
		case "eth_getLogs":
			_ = writeJSON(map[string]any{"id": req.ID, "result": []map[string]any{
				{
					"address":          "0x0000000000000000000000000000000000000001",
					"blockNumber":      "0x1",
					"blockHash":        "0x" + strings.Repeat("55", 32),
					"transactionHash":  "0x" + strings.Repeat("66", 32),
					"transactionIndex": "0x0",
					"logIndex":         "0x0",
					"data":             "0x",
					"topics":           []string{},
				},
			}})
		case "eth_getBlockByNumber":
			_ = writeJSON(map[string]any{"id": req.ID, "result": map[string]any{
				"number":     "0x64",
				"hash":       "0x" + "33",
				"parentHash": "0x" + "44",
			}})
		default:
			_ = writeJSON(map[string]any{"id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
		}
	}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + ts.URL[len("http"):]
}

func TestClientSubscribeHeadsReceivesNotification(t *testing.T) {
	node := newMockNode()
	ts := httptest.NewServer(node)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewClient(ctx, Config{URL: wsURL(ts)})
	require.NoError(t, err)

	heads, err := c.SubscribeHeads(ctx)
	require.NoError(t, err)

	select {
	case head := <-heads:
		require.Equal(t, uint64(0x2a), head.Number)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for head notification")
	}
}

func TestClientLogsReturnsPopulatedChannel(t *testing.T) {
	node := newMockNode()
	ts := httptest.NewServer(node)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewClient(ctx, Config{URL: wsURL(ts)})
	require.NoError(t, err)

	logCh, err := c.Logs(ctx, chainfeed.LogFilter{FromBlock: 0, ToBlock: 1})
	require.NoError(t, err)

	var count int
	for range logCh {
		count++
	}
	require.Equal(t, 1, count)
}

func TestClientGetBlockResolvesLatest(t *testing.T) {
	node := newMockNode()
	ts := httptest.NewServer(node)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewClient(ctx, Config{URL: wsURL(ts)})
	require.NoError(t, err)

	blk, err := c.GetBlock(ctx, "latest")
	require.NoError(t, err)
	require.Equal(t, uint64(0x64), blk.Number)
}

// Package client is the reference chainfeed.LogSource adapter (spec §6.1):
// a JSON-RPC-over-websocket client speaking the standard Ethereum node
// subscription API (eth_subscribe("newHeads"), eth_getLogs,
// eth_getBlockByNumber/Hash). Grounded on the teacher's own
// streams/jsonrpc/client.Client (reconnect-with-backoff loop, a minimal
// Logger, a Config-plus-validate() construction pattern), generalized here
// from the teacher's bespoke state/diff subscription protocol to the
// engine's LogSource contract, using gorilla/websocket directly for the
// transport rather than go-ethereum's rpc.Client so the reconnect and
// resubscribe logic stays in this package instead of being hidden inside
// go-ethereum's own client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"

	"github.com/defistate/statespace/chainfeed"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines the minimal structured-logging surface this package
// depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Client.
type Config struct {
	// URL is the node's websocket endpoint ("ws://" or "wss://").
	URL string

	Logger Logger
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	return nil
}

// Client is a chainfeed.LogSource backed by one reconnecting websocket
// connection to a single EVM node.
type Client struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	pending  map[uint64]chan inboundMessage
	headSubs map[string]chan chainfeed.Block

	nextID   atomic.Uint64
	headsOut chan chainfeed.Block // survives reconnects; nil until SubscribeHeads is first called
}

// NewClient dials url once and starts the background reconnect loop.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[uint64]chan inboundMessage),
		headSubs: make(map[string]chan chainfeed.Block),
	}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	go c.run(ctx)
	return c, nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.cfg.URL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// run owns the connection lifecycle: read until the connection drops, then
// redial with exponential backoff and re-issue any live head subscription.
func (c *Client) run(ctx context.Context) {
	delay := initialReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("client: connection lost, reconnecting", "err", err, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = minDuration(delay*2, maxReconnectDelay)

		if err := c.dial(ctx); err != nil {
			c.logger.Error("client: reconnect failed", "err", err)
			continue
		}
		delay = initialReconnectDelay
		c.resubscribeHeads(ctx)
	}
}

func (c *Client) resubscribeHeads(ctx context.Context) {
	if c.headsOut == nil {
		return
	}
	subID, err := c.subscribe(ctx, "newHeads")
	if err != nil {
		c.logger.Error("client: failed to resubscribe to new heads", "err", err)
		return
	}
	c.mu.Lock()
	c.headSubs[subID] = c.headsOut
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("client: malformed message", "err", err)
			continue
		}

		switch {
		case msg.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			if ok {
				delete(c.pending, *msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
			}

		case msg.Method == "eth_subscription":
			var p subscriptionParams
			if err := json.Unmarshal(msg.Params, &p); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.headSubs[p.Subscription]
			c.mu.Unlock()
			if !ok {
				continue
			}
			var hdr wireHeader
			if err := json.Unmarshal(p.Result, &hdr); err != nil {
				c.logger.Warn("client: malformed newHeads payload", "err", err)
				continue
			}
			select {
			case ch <- hdr.toBlock():
			default:
				c.logger.Warn("client: head subscriber slow, dropping head", "number", hdr.Number)
			}
		}
	}
}

// call issues one JSON-RPC request and blocks for its response.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	respCh := make(chan inboundMessage, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	conn := c.conn
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("client: write %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("client: %s: %s", method, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) subscribe(ctx context.Context, name string) (string, error) {
	result, err := c.call(ctx, "eth_subscribe", []any{name})
	if err != nil {
		return "", err
	}
	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return "", fmt.Errorf("client: malformed subscription id: %w", err)
	}
	return subID, nil
}

// SubscribeHeads implements chainfeed.LogSource. The returned channel is
// stable across reconnects; the client re-subscribes transparently.
func (c *Client) SubscribeHeads(ctx context.Context) (<-chan chainfeed.Block, error) {
	c.mu.Lock()
	existing := c.headsOut
	c.mu.Unlock()
	if existing != nil {
		return existing, nil
	}

	ch := make(chan chainfeed.Block, 16)
	c.mu.Lock()
	c.headsOut = ch
	c.mu.Unlock()

	subID, err := c.subscribe(ctx, "newHeads")
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.headSubs[subID] = ch
	c.mu.Unlock()
	return ch, nil
}

// Logs implements chainfeed.LogSource via one eth_getLogs call; the
// returned channel is already fully populated and closed (historic scans
// don't need a live stream).
func (c *Client) Logs(ctx context.Context, filter chainfeed.LogFilter) (<-chan types.Log, error) {
	params := map[string]any{
		"fromBlock": uint64ToHex(filter.FromBlock),
		"toBlock":   uint64ToHex(filter.ToBlock),
		"address":   filter.Addresses,
		"topics":    [][]common.Hash{filter.Topics},
	}
	result, err := c.call(ctx, "eth_getLogs", []any{params})
	if err != nil {
		return nil, err
	}
	var logs []types.Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("client: malformed eth_getLogs result: %w", err)
	}
	ch := make(chan types.Log, len(logs))
	for _, lg := range logs {
		ch <- lg
	}
	close(ch)
	return ch, nil
}

// LogsForBlock implements chainfeed.LogSource via eth_getLogs filtered by
// blockHash.
func (c *Client) LogsForBlock(ctx context.Context, blockHash common.Hash) ([]types.Log, error) {
	params := map[string]any{"blockHash": blockHash}
	result, err := c.call(ctx, "eth_getLogs", []any{params})
	if err != nil {
		return nil, err
	}
	var logs []types.Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("client: malformed eth_getLogs result: %w", err)
	}
	return logs, nil
}

// GetBlock implements chainfeed.LogSource. numberOrHash is a uint64, a
// common.Hash, or the literal string "latest".
func (c *Client) GetBlock(ctx context.Context, numberOrHash any) (chainfeed.Block, error) {
	var result json.RawMessage
	var err error
	switch v := numberOrHash.(type) {
	case uint64:
		result, err = c.call(ctx, "eth_getBlockByNumber", []any{uint64ToHex(v), false})
	case string:
		result, err = c.call(ctx, "eth_getBlockByNumber", []any{v, false})
	case common.Hash:
		result, err = c.call(ctx, "eth_getBlockByHash", []any{v, false})
	default:
		return chainfeed.Block{}, fmt.Errorf("client: unsupported GetBlock argument %T", numberOrHash)
	}
	if err != nil {
		return chainfeed.Block{}, err
	}
	var hdr wireHeader
	if err := json.Unmarshal(result, &hdr); err != nil {
		return chainfeed.Block{}, fmt.Errorf("client: malformed block result: %w", err)
	}
	return hdr.toBlock(), nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

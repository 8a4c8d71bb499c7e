package client

import (
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/chainfeed"
)

// rpcRequest is one outgoing JSON-RPC 2.0 call.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcError is the standard JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// inboundMessage covers both shapes a server sends unsolicited: a call
// response (ID set) and a subscription notification (Method ==
// "eth_subscription", Params holds a subscriptionParams envelope).
type inboundMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// wireHeader is the subset of eth_getBlockByNumber/eth_subscription(newHeads)
// fields the engine needs, decoded from the node's hex-string encoding.
type wireHeader struct {
	Number     string `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
}

func (h wireHeader) toBlock() chainfeed.Block {
	return chainfeed.Block{
		Number:     hexToUint64(h.Number),
		Hash:       common.HexToHash(h.Hash),
		ParentHash: common.HexToHash(h.ParentHash),
	}
}

func hexToUint64(s string) uint64 {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	n, _ := strconv.ParseUint(s, 16, 64)
	return n
}

func uint64ToHex(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

// Package chainfeed defines the Log Source consumed interface (spec §6.1):
// the engine's only window onto a live chain. Discovery uses Logs/GetBlock
// for historic scanning; the Synchronizer uses SubscribeHeads/LogsForBlock
// for live tracking. Both collaborators (discovery.Engine,
// synchronizer.Synchronizer) depend on this package rather than on each
// other, so a concrete adapter (streams/jsonrpc, reader/ethclient's sibling)
// can satisfy either without the core packages importing a transport.
package chainfeed

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the minimal header identity the engine needs to classify a new
// head against its own last-synced block (spec §3's Block tuple).
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
}

// LogFilter scopes a historic log query the way Discovery issues it: one
// factory address, one event signature, one block range.
type LogFilter struct {
	Addresses []common.Address
	Topics    []common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// LogSource is the engine's consumed interface onto chain data (spec §6.1).
type LogSource interface {
	// Logs streams every log matching filter, closing the channel when the
	// range has been fully delivered or ctx is cancelled.
	Logs(ctx context.Context, filter LogFilter) (<-chan types.Log, error)

	// SubscribeHeads streams new chain heads as they arrive.
	SubscribeHeads(ctx context.Context) (<-chan Block, error)

	// LogsForBlock returns every log from one block, in
	// (tx_index, log_index) order, used by the Synchronizer to re-fetch a
	// block's logs once SubscribeHeads has told it a new head exists.
	LogsForBlock(ctx context.Context, blockHash common.Hash) ([]types.Log, error)

	// GetBlock resolves a block by number, hash, or the literal string
	// "latest" (numberOrHash is a uint64, a common.Hash, or "latest").
	// The walk-back a reorg classification performs only ever passes a
	// uint64; StateSpaceBuilder.Sync passes "latest" once, to resolve its
	// own starting block when none is configured.
	GetBlock(ctx context.Context, numberOrHash any) (Block, error)
}

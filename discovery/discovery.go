// Package discovery implements the Discovery Engine (spec §4.5/C5): the
// one-shot historic scan that turns each configured factory's creation logs
// into fully populated pools, inserted into the registry. Grounded on
// original_source/src/state_space/discovery.rs's DiscoveryManager shape
// (one target-event set per factory, chunked population). Factories are
// scanned one after another, and each factory's pools are populated chunk
// by chunk, at the chunk granularity the Batch State Reader imposes, in the
// calling goroutine; no chunks are fetched concurrently.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/chainfeed"
	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/factory"
	"github.com/defistate/statespace/metrics"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/reader"
	"github.com/defistate/statespace/registry"
)

// Logger is the minimal structured-logging surface discovery depends on
// (populate failures are common and expected; they are logged, not
// propagated, since a handful of bad pools must never abort the scan).
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

// Config configures one Engine run.
type Config struct {
	// Factories is every factory the engine scans, one historic log query
	// per entry.
	Factories []factory.Factory

	// Reader populates pool shells with static and dynamic state.
	Reader reader.StateReader

	// LogSource supplies the historic creation logs.
	LogSource chainfeed.LogSource

	// ChunkSize overrides reader.BatchSize(kind) when non-nil and it
	// returns a positive size for the given kind.
	ChunkSize func(pool.Kind) int

	Metrics *metrics.Discovery
	Logger  Logger
}

// Engine runs the historic discovery scan described by a Config.
type Engine struct {
	cfg Config
}

// New returns an Engine for cfg. A nil cfg.Logger is replaced with a no-op.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Engine{cfg: cfg}
}

// Run scans every configured factory's creation-log range from its own
// CreationBlock through toBlock (inclusive), populates the survivors, and
// inserts them into reg. It returns the number of pools reg held after the
// run (existing entries are left untouched; Insert rejects an address reg
// already holds with registry.ErrDuplicateAddress, which Run skips, so Run
// is safe to call again with a higher toBlock to pick up newly created
// pools).
func (e *Engine) Run(ctx context.Context, reg *registry.Registry, toBlock uint64) (int, error) {
	for _, f := range e.cfg.Factories {
		if err := e.scanFactory(ctx, f, reg, toBlock); err != nil {
			return reg.Len(), err
		}
	}
	return reg.Len(), nil
}

func (e *Engine) scanFactory(ctx context.Context, f factory.Factory, reg *registry.Registry, toBlock uint64) error {
	started := time.Now()
	kind := f.PoolVariantDefault()

	filter := chainfeed.LogFilter{
		Addresses: []common.Address{f.Address()},
		Topics:    []common.Hash{f.PoolCreationEventSignature()},
		FromBlock: f.CreationBlock(),
		ToBlock:   toBlock,
	}
	logCh, err := e.cfg.LogSource.Logs(ctx, filter)
	if err != nil {
		return &errs.ReaderError{Op: "discovery.Logs", Attempt: 1, Err: err}
	}

	var addrs []common.Address
drain:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lg, ok := <-logCh:
			if !ok {
				break drain
			}
			shell, err := f.CreatePoolShell(&lg)
			if err != nil {
				e.countDropped(kind, "parse_failed")
				e.cfg.Logger.Warn("discovery: creation log parse failed", "factory", f.Address(), "err", err)
				continue
			}
			e.countFound(f.Address())
			addrs = append(addrs, shell.Address())
		}
	}

	if err := e.populate(ctx, addrs, kind, reg, toBlock); err != nil {
		return err
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ScanDuration.WithLabelValues(f.Address().Hex()).Observe(time.Since(started).Seconds())
	}
	return nil
}

// populate chunks addrs per reader.BatchSize (or Config.ChunkSize), reads
// static then dynamic state for each chunk, and inserts every survivor into
// reg. A chunk is never allowed to abort the whole run: only a reader-level
// transport error does that, never an individual pool's populate failure.
func (e *Engine) populate(ctx context.Context, addrs []common.Address, kind pool.Kind, reg *registry.Registry, block uint64) error {
	if len(addrs) == 0 {
		return nil
	}
	size := reader.BatchSize(kind)
	if e.cfg.ChunkSize != nil {
		if s := e.cfg.ChunkSize(kind); s > 0 {
			size = s
		}
	}

	for _, chunk := range reader.Chunk(addrs, size) {
		started := time.Now()

		statics, err := e.cfg.Reader.ReadStatic(ctx, chunk, kind)
		if err != nil {
			return &errs.ReaderError{Op: "discovery.ReadStatic", Attempt: 1, Err: err}
		}
		live := make([]common.Address, 0, len(chunk))
		for i, addr := range chunk {
			if statics[i] == nil {
				e.countDropped(kind, "static_populate_failed")
				continue
			}
			live = append(live, addr)
		}
		if len(live) == 0 {
			continue
		}

		dynamics, err := e.cfg.Reader.ReadDynamic(ctx, live, kind, block)
		if err != nil {
			return &errs.ReaderError{Op: "discovery.ReadDynamic", Attempt: 1, Err: err}
		}
		for _, p := range dynamics {
			if p == nil {
				e.countDropped(kind, "dynamic_populate_failed")
				continue
			}
			if err := reg.Insert(p); err != nil {
				if errors.Is(err, registry.ErrDuplicateAddress) {
					continue
				}
				return err
			}
			e.countPopulated(kind)
		}

		if e.cfg.Metrics != nil {
			e.cfg.Metrics.ChunkDuration.WithLabelValues(kind.String()).Observe(time.Since(started).Seconds())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (e *Engine) countFound(factoryAddr common.Address) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ShellsFound.WithLabelValues(factoryAddr.Hex()).Inc()
	}
}

func (e *Engine) countDropped(kind pool.Kind, reason string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.PoolsDropped.WithLabelValues(kind.String(), reason).Inc()
	}
}

func (e *Engine) countPopulated(kind pool.Kind) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.PoolsPopulated.WithLabelValues(kind.String()).Inc()
	}
}

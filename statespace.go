// Package statespace is the engine's top-level package (spec §6.2):
// StateSpaceBuilder assembles the Factory set, Log Source, State Reader,
// and optional liquidity filter into a running StateSpaceManager, driving
// Discovery and the Value Filter once, then handing off to a live
// Synchronizer. Grounded on original_source/src/state_space/mod.rs's
// StateSpaceManager loop structure (build once, then run forever) and on
// the teacher's own top-level system.Config → system.New two-phase
// construction.
package statespace

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/statespace/chainfeed"
	"github.com/defistate/statespace/discovery"
	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/factory"
	"github.com/defistate/statespace/metrics"
	"github.com/defistate/statespace/reader"
	"github.com/defistate/statespace/registry"
	"github.com/defistate/statespace/statechange"
	"github.com/defistate/statespace/synchronizer"
	"github.com/defistate/statespace/valuefilter"
)

// Re-exported so external callers spell these types as statespace.Block,
// statespace.LogFilter, statespace.LogSource, statespace.StateReader per
// spec §6.1, while discovery and synchronizer depend on the cycle-free
// chainfeed leaf package instead of on this one (this package imports
// both of them; they cannot import back).
type (
	Block       = chainfeed.Block
	LogFilter   = chainfeed.LogFilter
	LogSource   = chainfeed.LogSource
	StateReader = reader.StateReader
)

// StateChangeNotification is the payload delivered to Manager.Subscribe,
// aliasing synchronizer.Notification so a caller never needs to import the
// synchronizer package directly.
type StateChangeNotification = synchronizer.Notification

// Logger is the engine-wide logging sink (spec's ambient logging
// concern). Any value satisfying this method set also satisfies
// discovery.Logger and synchronizer.Logger, so a Builder's Logger flows
// straight into both collaborators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ValueFilterConfig is the Builder's `liquidity_filter: Option<(ref_token,
// threshold)>` option (spec §6.2), realized as the valuefilter package's
// Config minus the registry it is applied against (the Builder supplies
// that at sync() time).
type ValueFilterConfig struct {
	ReferenceToken    common.Address
	ProbeAmount       *big.Int
	MinRoundTripValue *big.Int
}

// DefaultReorgDepth mirrors spec §6.2's reorg_depth default.
const DefaultReorgDepth = synchronizer.DefaultReorgDepth

// DefaultNotificationChannelCapacity mirrors spec §6.2's
// notification_channel_capacity default.
const DefaultNotificationChannelCapacity = 64

// Builder is StateSpaceBuilder (spec §6.2): every field is a recognized
// construction option, a zero value meaning "use the spec'd default".
type Builder struct {
	Factories []factory.Factory

	// Block pins discovery's upper bound and the synchronizer's starting
	// cursor; nil means "resolve the current head via LogSource.GetBlock".
	Block *uint64

	ReorgDepth                  uint32
	LiquidityFilter             *ValueFilterConfig
	LogSource                   LogSource
	StateReader                 StateReader
	NotificationChannelCapacity int
	Logger                      Logger
	Registry                    prometheus.Registerer
}

// Sync drives Discovery, then the optional Value Filter, against
// b.LogSource/b.StateReader up to the resolved starting block, and spawns
// a Synchronizer goroutine from there, returning a Manager the caller uses
// to read the registry, subscribe to changes, and shut down. It is spec
// §6.2's `sync() → Result<StateSpaceManager, SetupError>`.
func (b *Builder) Sync(ctx context.Context) (*Manager, error) {
	if b.LogSource == nil || b.StateReader == nil {
		return nil, errs.ErrInvalidInput
	}

	startBlock, err := b.resolveStartBlock(ctx)
	if err != nil {
		return nil, err
	}
	startHead, err := b.LogSource.GetBlock(ctx, startBlock)
	if err != nil {
		return nil, &errs.ReaderError{Op: "get_start_block", Attempt: 1, Err: err}
	}

	reorgDepth := b.ReorgDepth
	if reorgDepth == 0 {
		reorgDepth = DefaultReorgDepth
	}
	notifyCap := b.NotificationChannelCapacity
	if notifyCap == 0 {
		notifyCap = DefaultNotificationChannelCapacity
	}

	reg := registry.New()

	var discoveryMetrics *metrics.Discovery
	var syncMetrics *metrics.Synchronizer
	var cacheMetrics *metrics.Cache
	if b.Registry != nil {
		discoveryMetrics = metrics.NewDiscovery(b.Registry)
		syncMetrics = metrics.NewSynchronizer(b.Registry)
		cacheMetrics = metrics.NewCache(b.Registry)
	}

	engine := discovery.New(discovery.Config{
		Factories: b.Factories,
		Reader:    b.StateReader,
		LogSource: b.LogSource,
		Metrics:   discoveryMetrics,
		Logger:    b.Logger,
	})
	if _, err := engine.Run(ctx, reg, startBlock); err != nil {
		return nil, err
	}

	if b.LiquidityFilter != nil {
		vf := valuefilter.New(valuefilter.Config{
			ReferenceToken:    b.LiquidityFilter.ReferenceToken,
			ProbeAmount:       b.LiquidityFilter.ProbeAmount,
			MinRoundTripValue: b.LiquidityFilter.MinRoundTripValue,
		})
		vf.Apply(reg)
	}

	cache := statechange.New(int(reorgDepth))
	if cacheMetrics != nil {
		cache.SetMetrics(cacheMetrics)
	}

	sync := synchronizer.New(synchronizer.Config{
		LogSource:                   b.LogSource,
		Registry:                    reg,
		Cache:                       cache,
		ReorgDepth:                  reorgDepth,
		NotificationChannelCapacity: notifyCap,
		Metrics:                     syncMetrics,
		Logger:                      b.Logger,
	}, startHead.Number, startHead.Hash)

	m := &Manager{
		reg:  reg,
		sync: sync,
		head: startHead,
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := sync.Run(runCtx)
		m.mu.Lock()
		m.runErr = err
		m.mu.Unlock()
	}()

	return m, nil
}

func (b *Builder) resolveStartBlock(ctx context.Context) (uint64, error) {
	if b.Block != nil {
		return *b.Block, nil
	}
	head, err := b.LogSource.GetBlock(ctx, "latest")
	if err != nil {
		return 0, &errs.ReaderError{Op: "get_latest_block", Attempt: 1, Err: err}
	}
	return head.Number, nil
}

// Manager is StateSpaceManager (spec §6.2): the live handle a successful
// Builder.Sync returns. Registry reads are safe for concurrent use from any
// number of goroutines while the Synchronizer goroutine keeps mutating it,
// per the single-writer/many-reader design (spec §5).
type Manager struct {
	reg  *registry.Registry
	sync *synchronizer.Synchronizer
	head chainfeed.Block

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runErr error
}

// Registry returns the shared read handle onto every discovered pool
// (spec's `registry() → SharedReadHandle<Registry>`).
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// Subscribe returns the channel of state-change notifications (spec's
// `subscribe() → Receiver<StateChangeNotification>`).
func (m *Manager) Subscribe() <-chan StateChangeNotification {
	return m.sync.Notifications()
}

// Head returns the last block number and hash the Synchronizer has
// applied (spec's `head() → (block_number, block_hash)`).
func (m *Manager) Head() (uint64, common.Hash) {
	return m.sync.LastSyncedBlock(), m.headHash()
}

func (m *Manager) headHash() common.Hash {
	// The synchronizer's cursor hash is set once at least one block has
	// been applied; before that, the head block the Manager started from
	// is reported.
	if hash, ok := m.sync.CursorHash(); ok {
		return hash
	}
	return m.head.Hash
}

// State reports the Synchronizer's current run state.
func (m *Manager) State() synchronizer.State {
	return m.sync.State()
}

// DroppedNotifications reports how many state-change notifications were
// dropped for backpressure since startup (spec §5's backpressure counter).
func (m *Manager) DroppedNotifications() uint64 {
	return m.sync.DroppedNotifications()
}

// Shutdown stops the Synchronizer goroutine and waits for it to exit,
// spec's `shutdown()`. It returns the Synchronizer's terminal error, which
// is errs.ErrCancelled on a clean shutdown.
func (m *Manager) Shutdown() error {
	m.cancel()
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runErr == nil || errors.Is(m.runErr, context.Canceled) {
		return errs.ErrCancelled
	}
	return m.runErr
}

// Package metrics defines the Prometheus instrumentation for the engine's
// three stateful subsystems (discovery, synchronizer, state change cache),
// one Metrics struct per subsystem, three-tier layout (block/queue
// progress gauges, error counters, timing histograms), grounded directly
// on Iwinswap-iwinswap-uniswap-v2-system/metrics.go's own three-tier
// layout and on defistate's differ.StateDifferConfig.Registry
// prometheus.Registerer wiring convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discovery holds the metrics the Discovery Engine reports during its
// one-shot historic scan.
type Discovery struct {
	ShellsFound      *prometheus.CounterVec
	PoolsPopulated   *prometheus.CounterVec
	PoolsDropped     *prometheus.CounterVec
	ChunkDuration    *prometheus.HistogramVec
	ScanDuration     *prometheus.HistogramVec
	ReaderRetries    *prometheus.CounterVec
}

// NewDiscovery registers and returns the discovery engine's metrics.
func NewDiscovery(reg prometheus.Registerer) *Discovery {
	return &Discovery{
		ShellsFound: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "discovery",
			Name:      "shells_found_total",
			Help:      "Pool-creation logs turned into empty pool shells, labeled by factory address.",
		}, []string{"factory"}),
		PoolsPopulated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "discovery",
			Name:      "pools_populated_total",
			Help:      "Pool shells successfully populated by the state reader, labeled by kind.",
		}, []string{"kind"}),
		PoolsDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "discovery",
			Name:      "pools_dropped_total",
			Help:      "Pool shells dropped during discovery, labeled by kind and drop reason.",
		}, []string{"kind", "reason"}),
		ChunkDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "discovery",
			Name:      "chunk_duration_seconds",
			Help:      "Time to read static+dynamic state for one batch-reader chunk.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ScanDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "discovery",
			Name:      "scan_duration_seconds",
			Help:      "Time to walk one factory's full historic creation-log range.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"factory"}),
		ReaderRetries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "discovery",
			Name:      "reader_retries_total",
			Help:      "Retries issued after a transient reader error, labeled by operation.",
		}, []string{"op"}),
	}
}

// Synchronizer holds the metrics the Synchronizer reports while tracking
// chain head.
type Synchronizer struct {
	HeadBlock          *prometheus.GaugeVec
	BlocksApplied       *prometheus.CounterVec
	ReorgsTotal         *prometheus.CounterVec
	ReorgDepth          *prometheus.HistogramVec
	LogsApplied         *prometheus.CounterVec
	LogMismatchesTotal  *prometheus.CounterVec
	BlockApplyDuration  *prometheus.HistogramVec
	NotificationsDropped *prometheus.CounterVec
	FaultsTotal         *prometheus.CounterVec
}

// NewSynchronizer registers and returns the synchronizer's metrics.
func NewSynchronizer(reg prometheus.Registerer) *Synchronizer {
	return &Synchronizer{
		HeadBlock: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "synchronizer",
			Name:      "head_block",
			Help:      "The block number of the synchronizer's current canonical head.",
		}, []string{}),
		BlocksApplied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "blocks_applied_total",
			Help:      "Blocks applied to the registry, labeled by classification (extend/reorg/gap).",
		}, []string{"classification"}),
		ReorgsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "reorgs_total",
			Help:      "Chain reorganizations observed.",
		}, []string{}),
		ReorgDepth: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "synchronizer",
			Name:      "reorg_depth_blocks",
			Help:      "Number of blocks rewound per reorg.",
			Buckets:   []float64{1, 2, 3, 5, 7, 10, 12},
		}, []string{}),
		LogsApplied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "logs_applied_total",
			Help:      "Logs successfully routed to a pool's Sync method.",
		}, []string{}),
		LogMismatchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "log_mismatches_total",
			Help:      "Logs dropped because the target pool did not recognize the topic0.",
		}, []string{}),
		BlockApplyDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "synchronizer",
			Name:      "block_apply_duration_seconds",
			Help:      "Time to snapshot, apply, and notify for one block.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		NotificationsDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "notifications_dropped_total",
			Help:      "Change notifications dropped because a subscriber's channel was full.",
		}, []string{}),
		FaultsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "synchronizer",
			Name:      "faults_total",
			Help:      "Terminal faults, labeled by cause (reorg_too_deep/reader_error).",
		}, []string{"cause"}),
	}
}

// Cache holds the metrics the state change cache reports.
type Cache struct {
	Depth            *prometheus.GaugeVec
	RewindsTotal      *prometheus.CounterVec
	RewindTooDeep     *prometheus.CounterVec
}

// NewCache registers and returns the state change cache's metrics.
func NewCache(reg prometheus.Registerer) *Cache {
	return &Cache{
		Depth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "statechange_cache",
			Name:      "depth_blocks",
			Help:      "Number of blocks currently held in the reorg window.",
		}, []string{}),
		RewindsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "statechange_cache",
			Name:      "rewinds_total",
			Help:      "Successful rewind_to operations.",
		}, []string{}),
		RewindTooDeep: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "statechange_cache",
			Name:      "rewind_too_deep_total",
			Help:      "rewind_to calls that exceeded the cached reorg window.",
		}, []string{}),
	}
}

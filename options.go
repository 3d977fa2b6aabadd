package mosaico

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/handlers"
)

// options configures Connect: explicit functional options win, falling
// back to MOSAICO_*-prefixed environment variables, falling back to
// built-in defaults.
type options struct {
	connectionPoolSize  int
	workerLaneCount     int
	dialTimeout         time.Duration
	maxBatchSizeBytes   int
	maxBatchSizeRecords int
	onError             handlers.OnErrorPolicy
	logger              *slog.Logger
}

// Option configures a Client.Connect call.
type Option func(*options)

// WithConnectionPoolSize overrides the data-plane connection pool size.
func WithConnectionPoolSize(n int) Option {
	return func(o *options) { o.connectionPoolSize = n }
}

// WithWorkerLaneCount overrides the serialization worker-lane pool size.
func WithWorkerLaneCount(n int) Option {
	return func(o *options) { o.workerLaneCount = n }
}

// WithDialTimeout overrides the bounded wait-for-available timeout used to
// open the control connection and every pooled data connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithDefaultBatchSizeBytes overrides B, the byte-mode flush threshold.
func WithDefaultBatchSizeBytes(n int) Option {
	return func(o *options) { o.maxBatchSizeBytes = n }
}

// WithDefaultBatchSizeRecords overrides N, the count-mode flush threshold.
func WithDefaultBatchSizeRecords(n int) Option {
	return func(o *options) { o.maxBatchSizeRecords = n }
}

// WithOnErrorPolicy overrides the default sequence-writer error policy.
func WithOnErrorPolicy(p handlers.OnErrorPolicy) Option {
	return func(o *options) { o.onError = p }
}

// WithLogger overrides the package-level logger threaded through every
// component (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// envLayer reads MOSAICO_*-prefixed environment variables via a per-call
// viper.New() rather than a single global instance, so concurrent Connect
// calls never race on shared viper state.
func envLayer() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MOSAICO")
	v.AutomaticEnv()
	return v
}

// resolveOptions applies functional options over the environment layer
// over the built-in defaults, in that increasing-priority order.
func resolveOptions(numCPU int, opts []Option) options {
	env := envLayer()

	o := options{
		connectionPoolSize:  defaultOr(env.GetInt("CONNECTION_POOL_SIZE"), comm.DefaultConnectionPoolSize(numCPU)),
		workerLaneCount:     defaultOr(env.GetInt("WORKER_LANE_COUNT"), comm.DefaultExecutorPoolSize(numCPU)),
		dialTimeout:         durationOr(env.GetInt("DIAL_TIMEOUT_MS"), 10*time.Second),
		maxBatchSizeBytes:   defaultOr(env.GetInt("MAX_BATCH_SIZE_BYTES"), comm.DefaultMaxBatchBytes),
		maxBatchSizeRecords: defaultOr(env.GetInt("MAX_BATCH_SIZE_RECORDS"), comm.DefaultMaxBatchSizeRecords),
		onError:             handlers.OnErrorReport,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func defaultOr(envValue, fallback int) int {
	if envValue > 0 {
		return envValue
	}
	return fallback
}

func durationOr(envMillis int, fallback time.Duration) time.Duration {
	if envMillis > 0 {
		return time.Duration(envMillis) * time.Millisecond
	}
	return fallback
}

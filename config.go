package dmxp

import "go.uber.org/zap"

// DefaultPath is the well-known POSIX tmpfs location spec §6 names as
// typical for the backing file.
const DefaultPath = "/dev/shm/dmxp_alloc"

// DefaultSize is the default region size, 128 MiB per spec §6.
const DefaultSize int64 = 128 << 20

// DefaultSpinBudget bounds how many times a producer rechecks a slot's
// sequence before giving up with Full, per spec §4.3 step 3's
// "configured budget".
const DefaultSpinBudget = 50_000

// DefaultSpinYieldAfter is how many busy-spin iterations a wait loop
// performs before calling runtime.Gosched(), per spec §5's
// "PAUSE/yield_now escalating to short sleeps".
const DefaultSpinYieldAfter = 64

// Config holds the knobs spec.md leaves as constants or caller-supplied
// arguments. applyOptions starts from the Default* values and applies
// each Option in turn; a value an Option sets, zero included, is kept.
type Config struct {
	Path           string
	Size           int64
	SpinBudget     int
	SpinYieldAfter int
	Logger         *zap.Logger
}

func defaultConfig() Config {
	return Config{
		Path:           DefaultPath,
		Size:           DefaultSize,
		SpinBudget:     DefaultSpinBudget,
		SpinYieldAfter: DefaultSpinYieldAfter,
		Logger:         zap.NewNop(),
	}
}

// Option customizes a Config. Functional options, rather than a config
// struct passed by the caller directly, so OpenOrCreate's signature
// stays stable as knobs are added.
type Option func(*Config)

// WithSize overrides the region size used when creating a fresh region.
// Ignored when attaching to an existing region (its on-disk size wins).
func WithSize(size int64) Option {
	return func(c *Config) { c.Size = size }
}

// WithSpinBudget overrides the producer spin budget.
func WithSpinBudget(budget int) Option {
	return func(c *Config) { c.SpinBudget = budget }
}

// WithSpinYieldAfter overrides the busy-spin-to-Gosched threshold.
func WithSpinYieldAfter(n int) Option {
	return func(c *Config) { c.SpinYieldAfter = n }
}

// WithLogger sets the boundary logger. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func applyOptions(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

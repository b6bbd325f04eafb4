// Package channel is the rate-limited, cached read/write link to the
// shared key-value store the remote process also uses.
//
// Reads are served from a short-lived cache. Non-forced writes are limited
// per path class; a write made too soon is deferred and kept as the latest
// pending value for its path until Flush can send it. Forced writes bypass
// the limiter. When the store is unreachable the channel retries on a fixed
// backoff instead of failing, and forced writes made while offline are
// replayed on reconnect.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/coeftune/internal/config"
	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
	"github.com/Iron-Ham/coeftune/internal/logging"
	"github.com/Iron-Ham/coeftune/internal/metrics"
)

// DefaultClass is the class of paths that match no configured pattern.
const DefaultClass = "default"

// WriteResult is the outcome of a Write.
type WriteResult int

const (
	// WriteApplied means the value reached the store.
	WriteApplied WriteResult = iota
	// WriteDeferred means the class limiter refused a non-forced write (or
	// the link was down); the value is pending until Flush sends it.
	WriteDeferred
	// WriteQueued means a forced write could not reach the store and will be
	// replayed after reconnect.
	WriteQueued
)

func (r WriteResult) String() string {
	switch r {
	case WriteApplied:
		return "applied"
	case WriteDeferred:
		return "deferred"
	case WriteQueued:
		return "queued"
	default:
		return fmt.Sprintf("WriteResult(%d)", int(r))
	}
}

// Class limits non-forced writes to paths matching Pattern.
type Class struct {
	Name      string
	Pattern   string
	MaxRateHz float64
}

// Options configures a Channel.
type Options struct {
	// Address is reported in connectivity errors.
	Address        string
	Classes        []Class
	DefaultRateHz  float64
	CacheTTL       time.Duration
	ReconnectDelay time.Duration
	OpTimeout      time.Duration

	Now    func() time.Time
	Logger *logging.Logger
}

// OptionsFromConfig maps the channel config section onto Options.
func OptionsFromConfig(cfg config.ChannelConfig) Options {
	classes := make([]Class, 0, len(cfg.WriteClasses))
	for _, wc := range cfg.WriteClasses {
		classes = append(classes, Class{Name: wc.Name, Pattern: wc.Pattern, MaxRateHz: wc.MaxRateHz})
	}
	return Options{
		Address:        cfg.ResolveAddress(),
		Classes:        classes,
		DefaultRateHz:  cfg.DefaultRateHz,
		CacheTTL:       cfg.ReadCacheTTL(),
		ReconnectDelay: cfg.ReconnectDelay(),
		OpTimeout:      cfg.OpTimeout(),
	}
}

type pathClass struct {
	name    string
	matcher glob.Glob
	limiter *rate.Limiter
}

type cacheEntry struct {
	value any
	found bool
	at    time.Time
}

type pendingWrite struct {
	value any
	force bool
}

// Channel is safe for concurrent use, though the coordinator's control
// loop is its only caller in the daemon.
type Channel struct {
	store Store
	opts  Options
	now   func() time.Time
	log   *logging.Logger

	classes      []pathClass
	defaultClass pathClass

	mu          sync.Mutex
	connected   bool
	nextAttempt time.Time
	lastErr     error
	cache       map[string]cacheEntry
	pending     map[string]pendingWrite
	order       []string
}

// New creates a channel over store. It fails with a ConfigurationError if a
// class pattern does not compile or a rate is not positive. The channel
// starts disconnected; the first operation (or Connect) dials.
func New(store Store, opts Options) (*Channel, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.DefaultRateHz <= 0 {
		return nil, tunerrors.NewConfigurationError("default write rate must be positive", nil).
			WithField("channel.default_rate_hz")
	}

	c := &Channel{
		store:   store,
		opts:    opts,
		now:     opts.Now,
		log:     opts.Logger.WithComponent("channel"),
		cache:   make(map[string]cacheEntry),
		pending: make(map[string]pendingWrite),
		defaultClass: pathClass{
			name:    DefaultClass,
			limiter: rate.NewLimiter(rate.Limit(opts.DefaultRateHz), 1),
		},
	}
	for i, cl := range opts.Classes {
		field := fmt.Sprintf("channel.write_classes[%d]", i)
		g, err := glob.Compile(cl.Pattern, '/')
		if err != nil {
			return nil, tunerrors.NewConfigurationError("invalid path pattern", err).WithField(field + ".pattern")
		}
		if cl.MaxRateHz <= 0 {
			return nil, tunerrors.NewConfigurationError("write rate must be positive", nil).WithField(field + ".max_rate_hz")
		}
		c.classes = append(c.classes, pathClass{
			name:    cl.Name,
			matcher: g,
			limiter: rate.NewLimiter(rate.Limit(cl.MaxRateHz), 1),
		})
	}
	return c, nil
}

// ClassOf returns the name of the write class path belongs to. The first
// matching pattern wins.
func (c *Channel) ClassOf(path string) string {
	return c.classFor(path).name
}

func (c *Channel) classFor(path string) *pathClass {
	for i := range c.classes {
		if c.classes[i].matcher.Match(path) {
			return &c.classes[i]
		}
	}
	return &c.defaultClass
}

// Connect pings the store immediately, ignoring the reconnect backoff, and
// reports whether it is reachable.
func (c *Channel) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

// Connected reports whether the last store operation succeeded.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the most recent connectivity error, or nil once the
// link has recovered.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Address returns the configured store address.
func (c *Channel) Address() string {
	return c.opts.Address
}

func (c *Channel) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.OpTimeout)
}

// ensureLocked returns true when the link is up, dialing if the backoff
// has elapsed.
func (c *Channel) ensureLocked(ctx context.Context) bool {
	if c.connected {
		return true
	}
	if c.now().Before(c.nextAttempt) {
		return false
	}
	return c.dialLocked(ctx)
}

func (c *Channel) dialLocked(ctx context.Context) bool {
	opCtx, cancel := c.opContext(ctx)
	err := c.store.Ping(opCtx)
	cancel()
	if err != nil {
		c.failLocked(err, "")
		return false
	}

	if !c.connected {
		c.log.Info("channel connected", "address", c.opts.Address)
	}
	c.connected = true
	c.lastErr = nil
	c.replayQueuedLocked(ctx)
	return c.connected
}

// failLocked records a failed store call, drops the cache and schedules
// the next reconnect attempt.
func (c *Channel) failLocked(cause error, path string) {
	err := tunerrors.NewConnectivityError("store unreachable", cause).WithAddress(c.opts.Address).WithPath(path)
	if c.connected {
		c.log.Warn("channel disconnected", "error", err, "retry_in", c.opts.ReconnectDelay)
	}
	c.connected = false
	c.lastErr = err
	c.nextAttempt = c.now().Add(c.opts.ReconnectDelay)
	clear(c.cache)
}

// replayQueuedLocked sends forced writes that were queued while offline.
func (c *Channel) replayQueuedLocked(ctx context.Context) {
	for _, path := range append([]string(nil), c.order...) {
		pw := c.pending[path]
		if !pw.force {
			continue
		}
		if !c.storeSetLocked(ctx, path, pw.value) {
			return
		}
		c.dropPendingLocked(path)
		c.log.Debug("replayed queued write", "path", path)
	}
}

// Read returns the value at path, from cache when fresh. found is false
// when the key is absent or the link is down.
func (c *Channel) Read(ctx context.Context, path string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ensureLocked(ctx) {
		metrics.ChannelReads.WithLabelValues("offline").Inc()
		return nil, false
	}

	now := c.now()
	if e, ok := c.cache[path]; ok && now.Sub(e.at) < c.opts.CacheTTL {
		metrics.ChannelReads.WithLabelValues("cache").Inc()
		return e.value, e.found
	}

	opCtx, cancel := c.opContext(ctx)
	v, found, err := c.store.Get(opCtx, path)
	cancel()
	if err != nil {
		metrics.ChannelReads.WithLabelValues("error").Inc()
		c.failLocked(err, path)
		return nil, false
	}
	metrics.ChannelReads.WithLabelValues("store").Inc()
	c.cache[path] = cacheEntry{value: v, found: found, at: now}
	return v, found
}

// ReadFloat reads a numeric value.
func (c *Channel) ReadFloat(ctx context.Context, path string) (float64, bool) {
	v, ok := c.Read(ctx, path)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// ReadBool reads a boolean value.
func (c *Channel) ReadBool(ctx context.Context, path string) (bool, bool) {
	v, ok := c.Read(ctx, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ReadString reads a string value.
func (c *Channel) ReadString(ctx context.Context, path string) (string, bool) {
	v, ok := c.Read(ctx, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AsFloat converts a stored numeric scalar to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Write sends value to path. Non-forced writes go through the path's class
// limiter and are deferred when it refuses. Forced writes are never
// limited; if the link is down they are queued for replay.
func (c *Channel) Write(ctx context.Context, path string, value any, force bool) WriteResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	class := c.classFor(path)
	result := c.writeLocked(ctx, class, path, value, force)
	metrics.ChannelWrites.WithLabelValues(class.name, result.String()).Inc()
	return result
}

func (c *Channel) writeLocked(ctx context.Context, class *pathClass, path string, value any, force bool) WriteResult {
	if !force && !class.limiter.AllowN(c.now(), 1) {
		c.deferLocked(path, value, false)
		return WriteDeferred
	}
	if !c.ensureLocked(ctx) || !c.storeSetLocked(ctx, path, value) {
		c.deferLocked(path, value, force)
		if force {
			return WriteQueued
		}
		return WriteDeferred
	}
	c.dropPendingLocked(path)
	return WriteApplied
}

func (c *Channel) storeSetLocked(ctx context.Context, path string, value any) bool {
	opCtx, cancel := c.opContext(ctx)
	err := c.store.Set(opCtx, path, value)
	cancel()
	if err != nil {
		c.failLocked(err, path)
		return false
	}
	c.cache[path] = cacheEntry{value: value, found: true, at: c.now()}
	return true
}

// deferLocked keeps value as the latest pending write for path. A forced
// write keeps its forced flag even if a later non-forced value replaces it.
func (c *Channel) deferLocked(path string, value any, force bool) {
	if prev, ok := c.pending[path]; ok {
		c.pending[path] = pendingWrite{value: value, force: force || prev.force}
		return
	}
	c.pending[path] = pendingWrite{value: value, force: force}
	c.order = append(c.order, path)
}

func (c *Channel) dropPendingLocked(path string) {
	if _, ok := c.pending[path]; !ok {
		return
	}
	delete(c.pending, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Delete removes path from the store, bypassing the limiter, and drops any
// pending write for it.
func (c *Channel) Delete(ctx context.Context, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ensureLocked(ctx) {
		return false
	}
	opCtx, cancel := c.opContext(ctx)
	err := c.store.Delete(opCtx, path)
	cancel()
	if err != nil {
		c.failLocked(err, path)
		return false
	}
	c.dropPendingLocked(path)
	c.cache[path] = cacheEntry{found: false, at: c.now()}
	return true
}

// Flush retries pending writes in the order they were first deferred and
// returns how many reached the store. Each non-forced write still needs a
// token from its class limiter.
func (c *Channel) Flush(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 || !c.ensureLocked(ctx) {
		return 0
	}

	sent := 0
	paths := append([]string(nil), c.order...)
	for _, path := range paths {
		pw, ok := c.pending[path]
		if !ok {
			continue
		}
		class := c.classFor(path)
		if !pw.force && !class.limiter.AllowN(c.now(), 1) {
			continue
		}
		if !c.storeSetLocked(ctx, path, pw.value) {
			break
		}
		c.dropPendingLocked(path)
		metrics.ChannelWrites.WithLabelValues(class.name, "flushed").Inc()
		sent++
	}
	return sent
}

// Pending returns the number of writes waiting to be sent.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// PendingValue returns the pending value for path, if any.
func (c *Channel) PendingValue(path string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pw, ok := c.pending[path]
	return pw.value, ok
}

// Close closes the underlying store.
func (c *Channel) Close() error {
	return c.store.Close()
}

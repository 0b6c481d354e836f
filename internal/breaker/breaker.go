// Package breaker implements the per-replica circuit breaker fronting the
// remote-KV client: each replica owns a CircuitState that starts Healthy,
// trips to Tripped after a run of consecutive failures, and is reset back to
// Healthy by a background ticker once the retry window has elapsed.
package breaker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/linkforge/shortlink/internal/metrics"
)

// Config tunes breaker thresholds. Zero values fall back to sane defaults.
type Config struct {
	// MaxFailures is the consecutive-failure count that trips a replica.
	MaxFailures int
	// RetryInterval is how long a Tripped replica must go untouched before
	// the background resetter returns it to Healthy.
	RetryInterval time.Duration
	// ResetCheckPeriod is how often the background resetter scans replicas.
	ResetCheckPeriod time.Duration
}

func (c Config) normalize() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}
	if c.ResetCheckPeriod <= 0 {
		c.ResetCheckPeriod = time.Second
	}
	return c
}

// state is the mutable per-replica circuit-state record.
type state struct {
	consecutiveFailures int
	lastFailure         time.Time
	healthy             bool
}

// Breaker tracks circuit state for a fixed set of replica identifiers.
// Safe for concurrent use.
type Breaker struct {
	cfg Config

	mu    sync.RWMutex
	state map[string]*state

	metrics *metrics.Registry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Breaker covering replicas and starts its background
// resetter goroutine. m may be nil. Call Close to stop the resetter.
func New(replicas []string, cfg Config, m *metrics.Registry) *Breaker {
	cfg = cfg.normalize()
	b := &Breaker{
		cfg:     cfg,
		state:   make(map[string]*state, len(replicas)),
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	for _, r := range replicas {
		b.state[r] = &state{healthy: true}
	}
	go b.resetLoop()
	return b
}

// Close stops the background resetter. Idempotent.
func (b *Breaker) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *Breaker) resetLoop() {
	t := time.NewTicker(b.cfg.ResetCheckPeriod)
	defer t.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-t.C:
			b.resetEligible()
		}
	}
}

func (b *Breaker) resetEligible() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for replica, s := range b.state {
		if !s.healthy && now.Sub(s.lastFailure) > b.cfg.RetryInterval {
			s.healthy = true
			s.consecutiveFailures = 0
			if b.metrics != nil {
				b.metrics.BreakerResets.WithLabelValues(replica).Inc()
			}
		}
	}
}

// RecordFailure registers a failed operation against replica, tripping it
// once consecutive_failures reaches MaxFailures.
func (b *Breaker) RecordFailure(replica string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateLocked(replica)
	s.consecutiveFailures++
	s.lastFailure = time.Now()
	wasHealthy := s.healthy
	if s.consecutiveFailures >= b.cfg.MaxFailures {
		s.healthy = false
	}
	if b.metrics != nil {
		b.metrics.BreakerRequests.WithLabelValues(replica, "fail").Inc()
		if wasHealthy && !s.healthy {
			b.metrics.BreakerTrips.WithLabelValues(replica).Inc()
		}
	}
}

// RecordSuccess resets replica's consecutive-failure count to 0.
func (b *Breaker) RecordSuccess(replica string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateLocked(replica)
	s.consecutiveFailures = 0
	if b.metrics != nil {
		b.metrics.BreakerRequests.WithLabelValues(replica, "ok").Inc()
	}
}

// stateLocked returns replica's state, lazily creating a Healthy entry for
// replicas not present at construction time. Callers must hold b.mu.
func (b *Breaker) stateLocked(replica string) *state {
	s, ok := b.state[replica]
	if !ok {
		s = &state{healthy: true}
		b.state[replica] = s
	}
	return s
}

// IsHealthy reports whether replica is currently in the Healthy state.
func (b *Breaker) IsHealthy(replica string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.state[replica]
	return !ok || s.healthy
}

// GetHealthyNode returns a random pick from the set of replicas that are
// either Healthy or Tripped-but-past-their-retry-window.
// Returns ("", false) if that set is empty.
func (b *Breaker) GetHealthyNode(replicas []string) (string, bool) {
	now := time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()

	var eligible []string
	for _, r := range replicas {
		s, ok := b.state[r]
		if !ok || s.healthy || now.Sub(s.lastFailure) > b.cfg.RetryInterval {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}
	return eligible[rand.Intn(len(eligible))], true
}

// Package registry tracks live sessions, starts exactly one state machine
// per connection and closes sessions that go idle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/service/capture"
	"ai-voice-gateway/internal/service/session"
)

var (
	ErrTooManySessions  = errors.New("too many sessions")
	ErrDuplicateSession = errors.New("session id already registered")
	ErrShuttingDown     = errors.New("registry is shutting down")
)

// Config controls the registry.
type Config struct {
	MaxSessions       int
	InactivityTimeout time.Duration
	// SweepSchedule is a cron spec, e.g. "@every 30s".
	SweepSchedule string
	Session       session.Config
}

// Registry maps connection identity to a running session machine.
type Registry struct {
	cfg  Config
	deps session.Deps

	mu       sync.RWMutex
	sessions map[string]*session.Machine
	closing  bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Registry. deps are shared read-only by every session.
func New(cfg Config, deps session.Deps) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*session.Machine),
		ctx:      ctx,
		cancel:   cancel,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("registry"),
	}
}

// Start schedules the inactivity sweeper. It is a no-op when no schedule or
// inactivity timeout is configured.
func (r *Registry) Start() error {
	if r.cfg.SweepSchedule == "" || r.cfg.InactivityTimeout <= 0 {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.SweepSchedule, func() { r.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", r.cfg.SweepSchedule, err)
	}
	c.Start()

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	r.logger.Info().
		Str("schedule", r.cfg.SweepSchedule).
		Dur("inactivityTimeout", r.cfg.InactivityTimeout).
		Msg("Session sweeper started")
	return nil
}

// Open registers a new session and starts its machine. device, when
// non-nil, replaces the shared capture device for this session.
func (r *Registry) Open(id string, device capture.Device) (*session.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return nil, ErrShuttingDown
	}
	if _, ok := r.sessions[id]; ok {
		return nil, ErrDuplicateSession
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.metrics.RecordSessionRejected()
		r.logger.Warn().Int("maxSessions", r.cfg.MaxSessions).Msg("Session rejected, registry full")
		return nil, ErrTooManySessions
	}

	deps := r.deps
	if device != nil {
		deps.Device = device
	}
	m := session.NewMachine(id, r.cfg.Session, deps)
	r.sessions[id] = m
	r.metrics.RecordSessionOpened()

	r.wg.Add(1)
	go r.run(m)

	r.logger.Debug().Str("sessionId", id).Int("active", len(r.sessions)).Msg("Session registered")
	return m, nil
}

func (r *Registry) run(m *session.Machine) {
	defer r.wg.Done()
	cause := m.Run(r.ctx)

	r.mu.Lock()
	delete(r.sessions, m.Session().ID())
	r.mu.Unlock()

	r.logger.Debug().Str("sessionId", m.Session().ID()).Str("reason", session.CloseReason(cause)).Msg("Session evicted")
}

// Get returns the machine for id.
func (r *Registry) Get(id string) (*session.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[id]
	return m, ok
}

// Close asks the session to close with cause. Unknown ids are ignored.
func (r *Registry) Close(id string, cause error) {
	if m, ok := r.Get(id); ok {
		m.RequestExit(cause)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns every live session, oldest first.
func (r *Registry) Snapshot() []session.Info {
	r.mu.RLock()
	out := make([]session.Info, 0, len(r.sessions))
	for _, m := range r.sessions {
		out = append(out, m.Session().Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep closes sessions with no inbound activity since now minus the
// inactivity timeout and returns how many it closed.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.InactivityTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.cfg.InactivityTimeout)

	r.mu.RLock()
	var idle []*session.Machine
	for _, m := range r.sessions {
		if m.Session().LastActivity().Before(cutoff) {
			idle = append(idle, m)
		}
	}
	r.mu.RUnlock()

	for _, m := range idle {
		r.logger.Info().Str("sessionId", m.Session().ID()).Msg("Closing inactive session")
		m.RequestExit(session.ErrInactivityTimeout)
	}
	return len(idle)
}

// Shutdown stops the sweeper, closes every session and waits for their
// machines to finish or ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	c := r.cron
	machines := make([]*session.Machine, 0, len(r.sessions))
	for _, m := range r.sessions {
		machines = append(machines, m)
	}
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, m := range machines {
		m.RequestExit(session.ErrShutdown)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info().Int("closed", len(machines)).Msg("All sessions closed")
		return nil
	case <-ctx.Done():
		r.cancel()
		return fmt.Errorf("registry shutdown: %w", ctx.Err())
	}
}

// Ready reports whether new sessions are accepted.
func (r *Registry) Ready() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closing {
		return ErrShuttingDown
	}
	return nil
}

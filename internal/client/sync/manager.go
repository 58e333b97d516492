package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openmined/photosync/internal/client/config"
)

var ErrSyncAlreadyRunning = errors.New("sync already running")

// Manager owns the single in-flight pass of the process: not-running, running,
// finished. A second start while running is rejected.
type Manager struct {
	config    *config.Holder
	open      OpenFunc
	observers *Observers
	progress  *Progress
	clock     clockwork.Clock

	mu      sync.Mutex
	running bool
	cancel  context.CancelCauseFunc
	done    chan struct{}
	report  *Report
	err     error

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

type ManagerOption func(*Manager)

// WithOpenFunc replaces OpenEngine.
func WithOpenFunc(open OpenFunc) ManagerOption {
	return func(m *Manager) {
		m.open = open
	}
}

func WithManagerClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

func NewManager(cfg *config.Holder, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:     cfg,
		open:       OpenEngine,
		observers:  NewObservers(),
		progress:   NewProgress(),
		clock:      clockwork.NewRealClock(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.observers.Add("progress", m.progress)
	m.observers.Add("log", LogObserver())
	return m
}

// Observers is the listener list every pass notifies.
func (m *Manager) Observers() *Observers {
	return m.observers
}

func (m *Manager) Progress() *Progress {
	return m.progress
}

func (m *Manager) Config() *config.Holder {
	return m.config
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start runs a pass in the background. The pass outlives the caller's request;
// stop it with Cancel or Close.
func (m *Manager) Start(opts RunOptions) error {
	ctx, done, err := m.begin(m.baseCtx)
	if err != nil {
		return err
	}
	go func() {
		report, err := m.runPass(ctx, opts)
		done(report, err)
	}()
	return nil
}

// Run runs a pass in the caller's goroutine.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	ctx, done, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}
	report, err := m.runPass(ctx, opts)
	done(report, err)
	return report, err
}

var errCancelledByUser = errors.New("sync cancelled by user")

// Cancel asks the running pass to stop before its next photo. It reports
// whether a pass was running.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.cancel(errCancelledByUser)
	return true
}

// Wait blocks until the running pass, if any, finishes and returns the result
// of the last finished pass.
func (m *Manager) Wait() (*Report, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report, m.err
}

// Close cancels a running pass and waits for it.
func (m *Manager) Close() {
	m.baseCancel()
	m.Wait()
}

func (m *Manager) begin(parent context.Context) (context.Context, func(*Report, error), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, nil, ErrSyncAlreadyRunning
	}

	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done

	finish := func(report *Report, err error) {
		cancel(nil)
		m.mu.Lock()
		m.running = false
		m.report, m.err = report, err
		m.mu.Unlock()
		close(done)
	}
	return ctx, finish, nil
}

func (m *Manager) runPass(ctx context.Context, opts RunOptions) (*Report, error) {
	cfg := m.config.Get()

	engine, closer, err := m.open(cfg, m.observers)
	if err != nil {
		slog.Error("sync open", "error", err)
		now := m.clock.Now()
		report := &Report{StartedAt: now, FinishedAt: now, Error: err.Error()}
		m.observers.Notify(Event{Type: EventSyncError, Timestamp: now, Message: err.Error(), Report: report})
		return report, err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			slog.Warn("sync close", "error", err)
		}
	}()

	return engine.Run(ctx, opts)
}

// RunScheduler runs a pass now and then again interval after each pass ends,
// reading interval from the current config each time. A tick that finds a pass
// already running is skipped. It returns when ctx is done.
func (m *Manager) RunScheduler(ctx context.Context) error {
	slog.Info("sync scheduler start", "interval", m.config.Get().PollInterval)

	m.scheduledPass(ctx)

	// timer, not ticker: a pass longer than the interval must not queue ticks
	timer := m.clock.NewTimer(m.config.Get().PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stop")
			return ctx.Err()
		case <-timer.Chan():
			m.scheduledPass(ctx)
			timer.Reset(m.config.Get().PollInterval)
		}
	}
}

func (m *Manager) scheduledPass(ctx context.Context) {
	_, err := m.Run(ctx, RunOptions{})
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncAlreadyRunning):
		slog.Info("sync scheduler skip", "reason", err)
	case errors.Is(err, context.Canceled), errors.Is(err, errCancelledByUser):
	default:
		slog.Warn("scheduled sync failed", "error", err, "next", m.clock.Now().Add(m.config.Get().PollInterval).Format(time.RFC3339))
	}
}

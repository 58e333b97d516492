package sync

import (
	"fmt"
	"log/slog"
	"sync"
)

// Observer receives engine events synchronously and in order. Implementations
// must not block for long; the pass waits for every call.
type Observer interface {
	Notify(e Event) error
}

type ObserverFunc func(e Event) error

func (f ObserverFunc) Notify(e Event) error {
	return f(e)
}

// Observers fans one event out to independent listeners. A listener that
// fails or panics is removed and logged; the others and the pass continue.
type Observers struct {
	mu        sync.Mutex
	listeners map[string]Observer
	order     []string
}

func NewObservers() *Observers {
	return &Observers{listeners: make(map[string]Observer)}
}

// Add registers o under name, replacing an earlier listener with the same name.
func (m *Observers) Add(name string, o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[name]; !ok {
		m.order = append(m.order, name)
	}
	m.listeners[name] = o
}

func (m *Observers) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(name)
}

func (m *Observers) removeLocked(name string) {
	if _, ok := m.listeners[name]; !ok {
		return
	}
	delete(m.listeners, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Observers) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Notify never fails; listener errors only affect that listener.
func (m *Observers) Notify(e Event) error {
	m.mu.Lock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	listeners := make([]Observer, len(names))
	for i, n := range names {
		listeners[i] = m.listeners[n]
	}
	m.mu.Unlock()

	for i, o := range listeners {
		if err := notifySafely(o, e); err != nil {
			slog.Warn("observer removed", "observer", names[i], "event", e.Type, "error", err)
			m.Remove(names[i])
		}
	}
	return nil
}

func notifySafely(o Observer, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return o.Notify(e)
}

type logObserver struct{}

// LogObserver writes every event to the default logger.
func LogObserver() Observer {
	return logObserver{}
}

func (logObserver) Notify(e Event) error {
	switch e.Type {
	case EventSyncError:
		slog.Error("sync event", "type", e.Type, "run", e.RunID, "message", e.Message)
	case EventDownloadFailed:
		slog.Warn("sync event", "type", e.Type, "run", e.RunID, "photo", e.PhotoID, "current", e.Current, "total", e.Total)
	case EventDownloading, EventDownloaded, EventSkipped:
		slog.Debug("sync event", "type", e.Type, "run", e.RunID, "photo", e.PhotoID, "current", e.Current, "total", e.Total)
	default:
		slog.Info("sync event", "type", e.Type, "run", e.RunID, "message", e.Message)
	}
	return nil
}

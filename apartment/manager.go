package apartment

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
)

// ManagerConfig configures the threads a Manager creates.
type ManagerConfig struct {
	Initializer comruntime.Initializer
	IdleTimeout time.Duration
}

// Manager creates apartment threads lazily by name and recreates them
// after an idle exit.
type Manager struct {
	threads map[string]*Thread
	cfg     ManagerConfig
	mu      sync.Mutex
	closed  bool
}

// NewManager creates a manager with no running threads.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		threads: make(map[string]*Thread),
	}
}

// Get returns the running thread for name, starting one if needed.
func (m *Manager) Get(name string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Closed("apartment manager")
	}
	if t, ok := m.threads[name]; ok && t.touch() {
		return t, nil
	}

	t, err := newThread(Config{
		Name:        name,
		IdleTimeout: m.cfg.IdleTimeout,
		Initializer: m.cfg.Initializer,
	}, m.retire)
	if err != nil {
		return nil, err
	}
	m.threads[name] = t
	return t, nil
}

// Current returns the thread whose worker is running the caller, or nil.
func (m *Manager) Current() *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		if t.IsCurrent() {
			return t
		}
	}
	return nil
}

// Threads returns the running threads sorted by name.
func (m *Manager) Threads() []*Thread {
	m.mu.Lock()
	out := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, t)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Close closes every thread concurrently and combines their errors.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	threads := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.threads = map[string]*Thread{}
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs error
	)
	for _, t := range threads {
		wg.Add(1)
		go func(t *Thread) {
			defer wg.Done()
			if err := t.Close(ctx); err != nil {
				emu.Lock()
				errs = multierr.Append(errs, err)
				emu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return errs
}

func (m *Manager) retire(t *Thread) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !t.tryRetire() {
		return false
	}
	if m.threads[t.Name()] == t {
		delete(m.threads, t.Name())
	}
	return true
}

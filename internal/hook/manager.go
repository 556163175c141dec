package hook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/ayusman/fingerspell/internal/log"
)

// ErrHookNotFound is returned when a requested hook does not exist.
var ErrHookNotFound = errors.New("hook not found")

const queueSize = 16

// Manager discovers hooks and delivers prediction events to them.
type Manager struct {
	dir      string
	executor *Executor

	mu    sync.RWMutex
	hooks map[string]*Hook

	queue chan Event
}

// NewManager creates a Manager for hooks under dir.
func NewManager(dir string, executor *Executor) *Manager {
	if executor == nil {
		executor = NewExecutor(0)
	}
	return &Manager{
		dir:      dir,
		executor: executor,
		hooks:    make(map[string]*Hook),
		queue:    make(chan Event, queueSize),
	}
}

// Discover scans the hook directory for manifests, replacing the current set.
// A missing directory yields no hooks.
func (m *Manager) Discover() error {
	hooks := make(map[string]*Hook)

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.mu.Lock()
			m.hooks = hooks
			m.mu.Unlock()
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}
		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.Warn(log.Fields{"dir": path, "error": err.Error()}, "skipping hook with invalid manifest")
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			continue
		}
		hooks[manifest.Name] = &Hook{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	m.mu.Lock()
	m.hooks = hooks
	m.mu.Unlock()
	log.Info(log.Fields{"dir": m.dir, "count": len(hooks)}, "hooks discovered")
	return nil
}

// Get returns a hook by name.
func (m *Manager) Get(name string) (*Hook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hooks[name]
	if !ok {
		return nil, ErrHookNotFound
	}
	return h, nil
}

// List returns the discovered hooks sorted by name.
func (m *Manager) List() []*Hook {
	m.mu.RLock()
	out := make([]*Hook, 0, len(m.hooks))
	for _, h := range m.hooks {
		out = append(out, h)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Dir returns the hook directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Deliver runs every hook with ev in name order and returns their combined errors.
func (m *Manager) Deliver(ctx context.Context, ev Event) error {
	var errs error
	for _, h := range m.List() {
		if _, err := m.executor.Execute(ctx, h, &ev); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Notify queues a prediction for delivery by Run. When the queue is full the
// event is dropped. It has the publish.NotifyFunc signature.
func (m *Manager) Notify(letter string, confidence float64, points [][3]float64) {
	select {
	case m.queue <- Event{Letter: letter, Confidence: confidence, Points: points}:
	default:
		log.Warn(log.Fields{"letter": letter}, "hook queue full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			if err := m.Deliver(ctx, ev); err != nil {
				for _, e := range multierr.Errors(err) {
					log.Warn(log.Fields{"letter": ev.Letter, "error": e.Error()}, "hook delivery failed")
				}
			}
		}
	}
}

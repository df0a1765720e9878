package activity

import (
	"context"
	"fmt"

	"github.com/Allen-B1/monitor-v3/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized (process, title) pairs.
const DefaultCacheSize = 1024

// WindowHandle is an opaque window identifier issued by a WindowBackend.
type WindowHandle uint64

// WindowInfo is the raw data a backend reports for one window.
type WindowInfo struct {
	Process string
	Title   string
}

// WindowBackend enumerates windows on the local display.
type WindowBackend interface {
	// ListWindows returns the visible top-level windows.
	ListWindows(ctx context.Context) ([]WindowHandle, error)
	// FocusedWindow returns the window that has input focus.
	FocusedWindow(ctx context.Context) (WindowHandle, error)
	// Describe returns the process and title of a window. A nil result means
	// the window must not be counted (e.g. it is not a normal window).
	Describe(ctx context.Context, handle WindowHandle) (*WindowInfo, error)
}

// LockGate is implemented by backends that can tell whether the user session
// is locked. Nothing is counted while it is.
type LockGate interface {
	SessionLocked(ctx context.Context) (bool, error)
}

// Tally counts tick units for one or more polling ticks.
type Tally struct {
	Active map[ActiveProgramKey]uint32
	Open   map[ProgramKey]uint32
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{
		Active: make(map[ActiveProgramKey]uint32),
		Open:   make(map[ProgramKey]uint32),
	}
}

// Empty reports whether nothing has been counted.
func (t *Tally) Empty() bool {
	return len(t.Active) == 0 && len(t.Open) == 0
}

type keyPair struct {
	open   ProgramKey
	active ActiveProgramKey
}

// Builder turns window observations into usage keys.
type Builder struct {
	registry *Registry
	cache    *lru.Cache[WindowInfo, keyPair]
}

// NewBuilder creates a Builder backed by registry. Classification results are
// memoized for up to cacheSize distinct windows.
func NewBuilder(registry *Registry, cacheSize int) (*Builder, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[WindowInfo, keyPair](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}

	return &Builder{registry: registry, cache: cache}, nil
}

// Keys returns the open and active keys for a window.
func (b *Builder) Keys(info WindowInfo) (ProgramKey, ActiveProgramKey) {
	if pair, ok := b.cache.Get(info); ok {
		metrics.ClassifierCacheHits.Inc()
		return pair.open, pair.active
	}
	metrics.ClassifierCacheMisses.Inc()

	program := Normalize(info.Process)
	pair := keyPair{
		open: ProgramKey{Program: program},
		active: ActiveProgramKey{
			Program:    program,
			Subprogram: b.registry.Classify(info.Process, info.Title),
		},
	}
	b.cache.Add(info, pair)

	return pair.open, pair.active
}

// Tick observes the backend once and returns what it counted. Every reported
// window adds one unit to its open key; the focused window also adds one unit
// to its active key. Any backend error discards the whole tick.
func (b *Builder) Tick(ctx context.Context, backend WindowBackend) (*Tally, error) {
	tally := NewTally()

	if gate, ok := backend.(LockGate); ok {
		locked, err := gate.SessionLocked(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query session lock state: %w", err)
		}
		if locked {
			return tally, nil
		}
	}

	focused, err := backend.FocusedWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get focused window: %w", err)
	}

	windows, err := backend.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}

	for _, handle := range windows {
		info, err := backend.Describe(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("failed to describe window %#x: %w", uint64(handle), err)
		}
		if info == nil {
			continue
		}

		open, active := b.Keys(*info)
		tally.Open[open]++
		if handle == focused {
			tally.Active[active]++
		}
	}

	return tally, nil
}

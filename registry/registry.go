// Package registry owns the set of configured sources and the lazily built,
// cached connection handle for each. Mutating a source invalidates its
// cached handle, so the next use rebuilds against the fresh configuration.
package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/storage"
)

// Store persists the source set. Implementations must return an empty slice,
// not an error, when no configuration exists yet.
type Store interface {
	LoadSources() ([]infimount.Source, error)
	SaveSources([]infimount.Source) error
}

// Registry maps source ids to sources and live connection handles.
//
// The source map and the handle cache are guarded independently, and neither
// lock is ever held across backend or store I/O. A reader racing a writer
// sees the pre- or post-mutation state, never a torn one.
type Registry struct {
	log   *zap.Logger
	store Store

	srcMu   sync.RWMutex
	sources map[string]infimount.Source

	handleMu sync.RWMutex
	handles  map[string]storage.Handle
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore attaches a persistence collaborator. Every mutation saves the
// full source set through it. Without a store the registry is memory-only.
func WithStore(store Store) Option {
	return func(r *Registry) { r.store = store }
}

// WithLogger attaches a logger. Without it the registry is silent.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// New builds a registry seeded with the given sources. Seeding does not
// validate or persist; it mirrors loading previously saved configuration,
// which may contain kinds this build cannot construct.
func New(sources []infimount.Source, opts ...Option) *Registry {
	r := &Registry{
		log:     zap.NewNop(),
		sources: make(map[string]infimount.Source, len(sources)),
		handles: make(map[string]storage.Handle),
	}
	for _, src := range sources {
		r.sources[src.ID] = src
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListSources returns a snapshot of all configured sources. Order is not
// guaranteed.
func (r *Registry) ListSources() []infimount.Source {
	r.srcMu.RLock()
	defer r.srcMu.RUnlock()

	out := make([]infimount.Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	return out
}

// AddSource validates and inserts a source, replacing any existing source
// with the same id, then persists the full set. On validation failure the
// source is not added.
func (r *Registry) AddSource(ctx context.Context, src infimount.Source) error {
	return r.upsert(ctx, src, "registry.add")
}

// UpdateSource validates and replaces a source by id (inserting when
// missing), invalidates its cached handle, then persists.
func (r *Registry) UpdateSource(ctx context.Context, src infimount.Source) error {
	return r.upsert(ctx, src, "registry.update")
}

func (r *Registry) upsert(ctx context.Context, src infimount.Source, op string) error {
	if err := validateSource(src); err != nil {
		return errors.New(op, err).WithPath(src.ID)
	}

	r.srcMu.Lock()
	r.sources[src.ID] = src
	r.srcMu.Unlock()

	r.dropHandle(src.ID)

	r.log.Debug("source upserted", zap.String("id", src.ID), zap.Stringer("kind", src.Kind))
	return r.persist(ctx)
}

// RemoveSource deletes a source and its cached handle, then persists.
// Removing an unknown id is a no-op, not an error.
func (r *Registry) RemoveSource(ctx context.Context, id string) error {
	r.srcMu.Lock()
	delete(r.sources, id)
	r.srcMu.Unlock()

	r.dropHandle(id)

	r.log.Debug("source removed", zap.String("id", id))
	return r.persist(ctx)
}

// ReplaceSources validates every entry first (all-or-nothing), then swaps
// the whole source set, clears the entire handle cache, and persists.
// Duplicate ids within the input resolve last-write-wins.
func (r *Registry) ReplaceSources(ctx context.Context, sources []infimount.Source) error {
	for _, src := range sources {
		if err := validateSource(src); err != nil {
			return errors.New("registry.replace", err).WithPath(src.ID)
		}
	}

	next := make(map[string]infimount.Source, len(sources))
	for _, src := range sources {
		next[src.ID] = src
	}

	r.srcMu.Lock()
	r.sources = next
	r.srcMu.Unlock()

	r.handleMu.Lock()
	r.handles = make(map[string]storage.Handle)
	r.handleMu.Unlock()

	r.log.Debug("sources replaced", zap.Int("count", len(next)))
	return r.persist(ctx)
}

// GetOperator returns the cached connection handle for a source id, building
// and caching one on first use. Two goroutines racing a cache miss may both
// build; the first insert wins and the loser's handle is discarded.
func (r *Registry) GetOperator(ctx context.Context, id string) (storage.Handle, error) {
	r.handleMu.RLock()
	h, ok := r.handles[id]
	r.handleMu.RUnlock()
	if ok {
		return h, nil
	}

	r.srcMu.RLock()
	src, ok := r.sources[id]
	r.srcMu.RUnlock()
	if !ok {
		return nil, errors.NewPath("registry.get", id, errors.ErrSourceNotFound)
	}

	built, err := buildHandle(ctx, src)
	if err != nil {
		return nil, err
	}

	r.handleMu.Lock()
	defer r.handleMu.Unlock()
	if existing, ok := r.handles[id]; ok {
		return existing, nil
	}
	r.handles[id] = built

	r.log.Debug("handle built", zap.String("id", id), zap.Stringer("kind", src.Kind))
	return built, nil
}

// VerifySource validates and builds a connection for a source without
// caching or persisting anything, then probes it with one listing of the
// root to surface auth or endpoint misconfiguration early. A NotFound on the
// bare root is retried with an explicit trailing separator before failing.
func (r *Registry) VerifySource(ctx context.Context, src infimount.Source) error {
	if err := validateSource(src); err != nil {
		return errors.New("registry.verify", err).WithPath(src.ID)
	}

	h, err := buildHandle(ctx, src)
	if err != nil {
		return err
	}

	if _, err := h.List(ctx, ""); err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		if _, err := h.List(ctx, "/"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) dropHandle(id string) {
	r.handleMu.Lock()
	delete(r.handles, id)
	r.handleMu.Unlock()
}

// persist saves a snapshot of the source set. It runs without holding any
// lock so slow store I/O never blocks concurrent reads.
func (r *Registry) persist(_ context.Context) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveSources(r.ListSources()); err != nil {
		return errors.New("registry.persist", errors.ErrConfig).WithMessage(err.Error())
	}
	return nil
}

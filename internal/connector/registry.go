package connector

import (
	"sync"

	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

// Factory builds the connector of a venue.
type Factory func(venue string) (Connector, error)

type handle struct {
	conn Connector
	refs int
}

// Registry caches one connector handle per venue and counts the agents using it. The
// handle is closed when the last user releases it.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	handles map[string]*handle
	log     *logger.Logger
}

func NewRegistry(factory Factory, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}

	return &Registry{
		factory: factory,
		handles: make(map[string]*handle),
		log:     log,
	}
}

// Acquire returns the venue's handle, building it on first use.
func (r *Registry) Acquire(venue string) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[venue]; ok {
		h.refs++

		return h.conn, nil
	}

	conn, err := r.factory(venue)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeUnknown {
			return nil, errors.Wrapf(errors.ErrCodeUnsupportedVenue, err, "failed to create connector for venue %s", venue)
		}

		return nil, err
	}

	r.handles[venue] = &handle{conn: conn, refs: 1}
	r.log.Info("Connector created", zap.String("venue", venue))

	return conn, nil
}

// Peek returns the cached handle without taking a reference.
func (r *Registry) Peek(venue string) (Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[venue]
	if !ok {
		return nil, false
	}

	return h.conn, true
}

// Release drops one reference. Releasing an unknown venue is a no-op.
func (r *Registry) Release(venue string) error {
	r.mu.Lock()

	h, ok := r.handles[venue]
	if !ok {
		r.mu.Unlock()

		return nil
	}

	h.refs--
	if h.refs > 0 {
		r.mu.Unlock()

		return nil
	}

	delete(r.handles, venue)
	r.mu.Unlock()

	r.log.Info("Connector released", zap.String("venue", venue))

	if c, ok := h.conn.(Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrapf(errors.ErrCodeConnectorFatal, err, "failed to close connector for venue %s", venue)
		}
	}

	return nil
}

// Refs returns the reference count of venue.
func (r *Registry) Refs(venue string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[venue]; ok {
		return h.refs
	}

	return 0
}

// Venues returns the venues with a live handle.
func (r *Registry) Venues() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.handles))
	for venue := range r.handles {
		out = append(out, venue)
	}

	return out
}

// CloseAll closes every cached handle regardless of references.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*handle)
	r.mu.Unlock()

	var firstErr error

	for venue, h := range handles {
		if c, ok := h.conn.(Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(errors.ErrCodeConnectorFatal, err, "failed to close connector for venue %s", venue)
			}
		}
	}

	return firstErr
}

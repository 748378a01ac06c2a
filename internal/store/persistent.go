package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Option configures a Persistent value.
type Option func(*options)

type options struct {
	onPersistError func(key string, err error)
}

// WithPersistErrorHook is called whenever a write back to the backend fails.
func WithPersistErrorHook(fn func(key string, err error)) Option {
	return func(o *options) { o.onPersistError = fn }
}

// Persistent is an in-memory value mirrored to a Backend under one key.
// Every Update writes the new value back before returning. Write failures
// leave the in-memory value in place and are reported through Err.
//
// A value whose backend could not be read is unhydrated: updates are kept
// in memory and not written, so the stored value is never replaced by one
// built on the default. They are replayed onto the stored value by the
// first Update or Reload that manages to read it.
type Persistent[T any] struct {
	mu       sync.Mutex
	key      string
	def      T
	value    T
	backend  Backend
	codec    Codec
	opts     options
	lastErr  error
	hydrated bool
	pending  []func(T) T
}

// Load hydrates a value from the backend, falling back to def when nothing
// usable is stored. It never fails; an unreadable backend shows up in Err.
func Load[T any](ctx context.Context, backend Backend, codec Codec, key string, def T, opts ...Option) *Persistent[T] {
	p := &Persistent[T]{key: key, def: def, value: def, backend: backend, codec: codec}
	for _, opt := range opts {
		opt(&p.opts)
	}
	p.mu.Lock()
	p.hydrate(ctx)
	p.mu.Unlock()
	return p
}

// Key returns the storage key.
func (p *Persistent[T]) Key() string { return p.key }

// Get returns the current in-memory value.
func (p *Persistent[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Update replaces the value with fn(current) and persists it.
func (p *Persistent[T]) Update(ctx context.Context, fn func(T) T) T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hydrated && !p.hydrate(ctx) {
		p.pending = append(p.pending, fn)
		p.value = fn(p.value)
		return p.value
	}
	p.value = fn(p.value)
	p.persist(ctx)
	return p.value
}

// Reload re-reads the stored value, keeping the current one if nothing is
// stored. An unhydrated value is hydrated and its held updates written.
func (p *Persistent[T]) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hydrated {
		held := len(p.pending)
		if !p.hydrate(ctx) {
			return p.lastErr
		}
		if held > 0 {
			p.persist(ctx)
		}
		return nil
	}

	data, err := p.backend.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var v T
	if err := p.codec.Decode(data, &v); err != nil {
		return fmt.Errorf("decode %q: %w", p.key, err)
	}
	p.value = v
	return nil
}

// Err reports the last read or write failure, or nil once the backend has
// been read and written again.
func (p *Persistent[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// hydrate must be called with mu held. It reports whether the stored value
// could be read; absent or malformed values count as read and yield def.
func (p *Persistent[T]) hydrate(ctx context.Context) bool {
	data, err := p.backend.Get(ctx, p.key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.lastErr = fmt.Errorf("load %q: %w", p.key, err)
		log.Printf("warning: %v; holding writes in memory until it can be read", p.lastErr)
		return false
	}

	base := p.def
	if err == nil {
		var v T
		if err := p.codec.Decode(data, &v); err != nil {
			log.Printf("warning: stored value under %q ignored, using default: decode: %v", p.key, err)
		} else {
			base = v
		}
	}
	for _, fn := range p.pending {
		base = fn(base)
	}
	p.value = base
	p.pending = nil
	p.hydrated = true
	p.lastErr = nil
	return true
}

// persist must be called with mu held.
func (p *Persistent[T]) persist(ctx context.Context) {
	data, err := p.codec.Encode(p.value)
	if err == nil {
		err = p.backend.Set(ctx, p.key, data)
	}
	if err != nil {
		err = fmt.Errorf("persist %q: %w", p.key, err)
		log.Printf("warning: %v; keeping in-memory value only", err)
		if p.opts.onPersistError != nil {
			p.opts.onPersistError(p.key, err)
		}
	}
	p.lastErr = err
}

// Package store provides a crash-safe single-value file store with async
// load and serialized background writes.
//
// A DataFile holds one JSON-serialized value. Durability comes from writing
// a temporary file and atomically renaming it over the canonical path, so a
// reader never observes a partially-written file. Writes are coalesced: if a
// new write arrives while a previous one is in flight, only the latest
// payload is eventually persisted.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotLoaded is returned by Write before the initial load has completed.
var ErrNotLoaded = errors.New("store: initial load not complete")

type payload struct {
	seq  uint64
	data []byte
}

// DataFile is a persistent single-value store for values of type T.
type DataFile[T any] struct {
	path    string
	tmpPath string

	mu          sync.Mutex
	cond        *sync.Cond
	contents    T
	loaded      bool
	fatal       error
	onLoaded    []func()
	lastQueued  uint64
	lastWritten uint64
	closed      bool

	pending chan payload
	stop    chan struct{}
}

// New creates a DataFile backed by the given path and kicks off the
// asynchronous initial load. A missing file is not an error; the store
// starts from defaultValue.
//
// Load-completion callbacks registered via OnLoaded run on the store's
// background worker goroutine.
func New[T any](path string, defaultValue T) (*DataFile[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	d := &DataFile[T]{
		path:     path,
		tmpPath:  path + ".tmp",
		contents: defaultValue,
		pending:  make(chan payload, 1),
		stop:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)

	go d.worker(defaultValue)

	return d, nil
}

// worker performs the initial load, then serializes durable writes.
func (d *DataFile[T]) worker(defaultValue T) {
	initial := defaultValue
	if data, err := os.ReadFile(d.path); err == nil {
		var decoded T
		if err := json.Unmarshal(data, &decoded); err != nil {
			d.fail(fmt.Errorf("store: parse %s: %w", d.path, err))
			return
		}
		initial = decoded
	} else if !os.IsNotExist(err) {
		d.fail(fmt.Errorf("store: read %s: %w", d.path, err))
		return
	}

	d.mu.Lock()
	d.contents = initial
	d.loaded = true
	callbacks := d.onLoaded
	d.onLoaded = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	for {
		select {
		case <-d.stop:
			return
		case p := <-d.pending:
			if err := d.persist(p.data); err != nil {
				d.fail(err)
				return
			}
			d.mu.Lock()
			d.lastWritten = p.seq
			d.cond.Broadcast()
			d.mu.Unlock()
		}
	}
}

// persist writes data to the temp file and renames it over the canonical
// path. A failed rename is fatal to the store.
func (d *DataFile[T]) persist(data []byte) error {
	if err := os.WriteFile(d.tmpPath, data, 0644); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := os.Rename(d.tmpPath, d.path); err != nil {
		os.Remove(d.tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

func (d *DataFile[T]) fail(err error) {
	d.mu.Lock()
	d.fatal = err
	d.loaded = true
	d.cond.Broadcast()
	callbacks := d.onLoaded
	d.onLoaded = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Contents returns the cached value and whether the initial load has
// completed.
func (d *DataFile[T]) Contents() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contents, d.loaded && d.fatal == nil
}

// OnLoaded registers a callback to run once the initial load completes,
// or immediately if it already has.
func (d *DataFile[T]) OnLoaded(cb func()) {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		cb()
		return
	}
	d.onLoaded = append(d.onLoaded, cb)
	d.mu.Unlock()
}

// Write updates the in-memory cache synchronously and enqueues an
// asynchronous durable write. If a previous write is still pending, its
// payload is discarded and only this value is persisted.
//
// Write must not be called before the initial load completes.
func (d *DataFile[T]) Write(v T) error {
	d.mu.Lock()
	if d.fatal != nil {
		err := d.fatal
		d.mu.Unlock()
		return err
	}
	if !d.loaded {
		d.mu.Unlock()
		return ErrNotLoaded
	}
	if d.closed {
		d.mu.Unlock()
		return errors.New("store: closed")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("store: marshal: %w", err)
	}

	d.contents = v
	d.lastQueued++
	p := payload{seq: d.lastQueued, data: data}
	d.mu.Unlock()

	d.offer(p)
	return nil
}

// offer places p in the one-slot pending queue, displacing any older
// payload that has not started writing yet.
func (d *DataFile[T]) offer(p payload) {
	for {
		select {
		case d.pending <- p:
			return
		default:
			select {
			case stale := <-d.pending:
				_ = stale
			default:
			}
		}
	}
}

// Flush blocks until every queued write has been persisted, or the store
// has failed.
func (d *DataFile[T]) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.fatal == nil && d.lastWritten < d.lastQueued {
		d.cond.Wait()
	}
	return d.fatal
}

// Err returns the store's fatal error, if any. A store with a non-nil Err
// no longer accepts writes.
func (d *DataFile[T]) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

// Close flushes pending writes and stops the background worker.
func (d *DataFile[T]) Close() error {
	err := d.Flush()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return err
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	return err
}

// Path returns the canonical file path of the store.
func (d *DataFile[T]) Path() string {
	return d.path
}

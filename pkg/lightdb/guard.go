package lightdb

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/calvinalkan/lightdb/pkg/fs"
)

// core holds the state and locking shared by Store and EncryptedStore.
// encode turns the aggregate into the exact bytes committed to path; it
// runs with mu held.
type core[T any] struct {
	mu     sync.RWMutex
	data   T
	closed bool

	path   string
	opts   Options
	writer *fs.AtomicWriter
	encode func(*T) ([]byte, error)
}

func newCore[T any](path string, opts Options, encode func(*T) ([]byte, error)) *core[T] {
	return &core[T]{
		path:   path,
		opts:   opts,
		writer: fs.NewAtomicWriter(opts.FS),
		encode: encode,
	}
}

// commitLocked writes the aggregate to disk. No-op for in-memory stores.
// Failures are logged and returned.
func (c *core[T]) commitLocked(op string) error {
	if c.path == "" {
		return nil
	}

	data, err := c.encode(&c.data)
	if err != nil {
		return c.commitFailed(op, fmt.Errorf("encode: %w", err))
	}

	return c.persistLocked(op, data)
}

// persistLocked atomically replaces the file at path with data.
func (c *core[T]) persistLocked(op string, data []byte) error {
	err := c.writer.Write(c.path, bytes.NewReader(data), c.opts.writeOptions())
	if err != nil {
		return c.commitFailed(op, err)
	}

	c.opts.Logger.Debug("lightdb: committed", "op", op, "path", c.path, "bytes", len(data))

	return nil
}

func (c *core[T]) commitFailed(op string, err error) error {
	err = withContext(err, op, c.path)
	c.opts.Logger.Error("lightdb: commit failed", "op", op, "path", c.path, "error", err)

	return err
}

func (c *core[T]) read() (*ReadGuard[T], error) {
	c.mu.RLock()

	if c.closed {
		c.mu.RUnlock()

		return nil, withContext(ErrClosed, "read", c.path)
	}

	return &ReadGuard[T]{c: c}, nil
}

func (c *core[T]) write() (*WriteGuard[T], error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil, withContext(ErrClosed, "write", c.path)
	}

	return &WriteGuard[T]{c: c}, nil
}

func (c *core[T]) view(fn func(*T) error) error {
	g, err := c.read()
	if err != nil {
		return err
	}

	defer g.Release()

	return fn(g.Data())
}

func (c *core[T]) update(fn func(*T) error) (err error) {
	g, err := c.write()
	if err != nil {
		return err
	}

	defer func() {
		releaseErr := g.Release()

		switch {
		case releaseErr == nil:
		case err == nil:
			err = releaseErr
		default:
			err = errors.Join(err, releaseErr)
		}
	}()

	return fn(g.Data())
}

// close waits for outstanding guards, commits once more and marks the store
// closed. then runs under the lock after the final commit. Idempotent.
func (c *core[T]) close(then func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	err := c.commitLocked("close")

	if then != nil {
		then()
	}

	return err
}

// ReadGuard is shared read access to the aggregate.
//
// Hold it briefly: writers wait until every read guard is released.
type ReadGuard[T any] struct {
	c    *core[T]
	once sync.Once
}

// Data returns the aggregate. It must not be modified, and must not be used
// after Release.
func (g *ReadGuard[T]) Data() *T {
	return &g.c.data
}

// Release gives up read access. Calls after the first are no-ops.
func (g *ReadGuard[T]) Release() {
	g.once.Do(g.c.mu.RUnlock)
}

// WriteGuard is exclusive access to the aggregate.
//
// Release commits the aggregate to disk and then unlocks, exactly once.
// Prefer [Store.Update] where a closure fits; it releases on every exit
// path, including panics.
type WriteGuard[T any] struct {
	c    *core[T]
	once sync.Once
	err  error
}

// Data returns the aggregate for modification. It must not be used after
// Release.
func (g *WriteGuard[T]) Data() *T {
	return &g.c.data
}

// Release commits and gives up write access. It returns the commit error;
// later calls return the same error without committing again. The lock is
// released even when the commit fails, and the in-memory state is kept.
func (g *WriteGuard[T]) Release() error {
	g.once.Do(func() {
		defer g.c.mu.Unlock()

		g.err = g.c.commitLocked("commit")
	})

	return g.err
}

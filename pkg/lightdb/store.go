package lightdb

import (
	"fmt"
	"log/slog"

	"github.com/calvinalkan/lightdb/pkg/fs"
)

// Store persists an aggregate of type T as a single encoded file.
//
// All methods are safe for concurrent use.
type Store[T any] struct {
	c *core[T]
}

// Open loads the database at path, or creates it with a zero T if the file
// does not exist.
func Open[T any](path string, opts Options) (*Store[T], error) {
	opts = opts.withDefaults(JSON)

	exists, err := opts.FS.Exists(path)
	if err != nil {
		return nil, withContext(err, "open", path)
	}

	if exists {
		return Load[T](path, opts)
	}

	return Create[T](path, opts)
}

// Create writes a zero T to path. It fails with [ErrAlreadyExists] if path
// or its staging file already exists.
func Create[T any](path string, opts Options) (*Store[T], error) {
	opts = opts.withDefaults(JSON)

	if err := checkVacant(opts, "create", path); err != nil {
		return nil, err
	}

	s := newStore[T](path, opts)

	if err := s.c.commitLocked("create"); err != nil {
		return nil, err
	}

	opts.Logger.Info("lightdb: created", "path", path, "codec", opts.Codec.Name())

	return s, nil
}

// Load reads the database at path.
//
// It fails with [ErrNotFound] if the file is missing, [ErrAlreadyExists] if
// an orphan staging file is present, and [ErrCorruptData] if the contents do
// not decode. After a successful decode the aggregate is committed once,
// which normalizes the encoding and checks that the location is writable.
func Load[T any](path string, opts Options) (*Store[T], error) {
	opts = opts.withDefaults(JSON)

	if err := checkStaging(opts, "load", path); err != nil {
		return nil, err
	}

	raw, err := opts.FS.ReadFile(path)
	if err != nil {
		return nil, withContext(err, "load", path)
	}

	s := newStore[T](path, opts)

	if err := opts.Codec.Unmarshal(raw, &s.c.data); err != nil {
		return nil, withContext(fmt.Errorf("%w: %w", ErrCorruptData, err), "load", path)
	}

	if err := s.c.commitLocked("load"); err != nil {
		return nil, err
	}

	opts.Logger.Info("lightdb: loaded", "path", path, "codec", opts.Codec.Name(), "bytes", len(raw))

	return s, nil
}

// OpenInMemory returns a store without a file. Commits are no-ops and the
// data is lost on Close.
func OpenInMemory[T any](opts Options) *Store[T] {
	return newStore[T]("", opts.withDefaults(JSON))
}

func newStore[T any](path string, opts Options) *Store[T] {
	codec := opts.Codec

	return &Store[T]{c: newCore(path, opts, func(data *T) ([]byte, error) {
		return codec.Marshal(data)
	})}
}

// Path returns the database file path, or "" for in-memory stores.
func (s *Store[T]) Path() string {
	return s.c.path
}

// Read acquires shared read access. Returns [ErrClosed] after Close.
func (s *Store[T]) Read() (*ReadGuard[T], error) {
	return s.c.read()
}

// Write acquires exclusive write access. Releasing the guard commits.
// Returns [ErrClosed] after Close.
func (s *Store[T]) Write() (*WriteGuard[T], error) {
	return s.c.write()
}

// View runs fn with read access.
func (s *Store[T]) View(fn func(data *T) error) error {
	return s.c.view(fn)
}

// Update runs fn with write access and commits afterwards, whether fn
// returns an error, succeeds or panics. The returned error joins fn's error
// and the commit error.
func (s *Store[T]) Update(fn func(data *T) error) error {
	return s.c.update(fn)
}

// Close waits for outstanding guards, commits a final time and closes the
// store. Later guard requests return [ErrClosed]. Calling Close again
// returns nil.
func (s *Store[T]) Close() error {
	return s.c.close(nil)
}

// checkStaging reports an orphan staging file next to path.
func checkStaging(opts Options, op, path string) error {
	staging := fs.StagingPath(path)

	exists, err := opts.FS.Exists(staging)
	if err != nil {
		return withContext(err, op, path)
	}

	if !exists {
		return nil
	}

	opts.Logger.Error(
		"lightdb: staging file present; a previous commit did not finish or another process is committing. "+
			"Inspect it, then delete it or promote it with 'lightdb repair'",
		slog.String("path", path),
		slog.String("staging", staging),
	)

	return withContext(fmt.Errorf("%w: staging file %s", ErrAlreadyExists, staging), op, path)
}

// checkVacant fails if path or its staging file exists.
func checkVacant(opts Options, op, path string) error {
	if err := checkStaging(opts, op, path); err != nil {
		return err
	}

	exists, err := opts.FS.Exists(path)
	if err != nil {
		return withContext(err, op, path)
	}

	if exists {
		return withContext(fmt.Errorf("%w: %s", ErrAlreadyExists, path), op, path)
	}

	return nil
}

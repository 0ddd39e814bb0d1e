package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced after rename.
//
// When returned, the new file is in place but durability is not guaranteed.
// Callers can detect this with errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// ErrStagingExists indicates the staging file for a path is already present.
//
// The staging file is never overwritten. Its presence means a previous commit
// crashed between writing and renaming (the final file is still the old,
// intact version), or another instance is committing right now. Errors
// carrying this sentinel also satisfy errors.Is(err, os.ErrExist).
var ErrStagingExists = errors.New("staging file exists")

// StagingPath returns the sibling path a commit to path is staged at:
// the base name prefixed with "." and suffixed with "~".
//
//	StagingPath("/data/app.db") == "/data/.app.db~"
//
// The name is deterministic so a leftover file is found on the next open.
func StagingPath(path string) string {
	dir, base := filepath.Split(path)
	if base == "" {
		base = "db"
	}

	return filepath.Join(dir, "."+base+"~")
}

// AtomicWriter writes files atomically using a staging file and rename.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter that uses the given filesystem.
// Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// AtomicWriteOptions configures Write behavior.
type AtomicWriteOptions struct {
	// SyncDir controls whether the parent directory is synced after rename.
	// Default: true.
	SyncDir bool

	// Perm specifies the file permissions. Must be non-zero.
	// The file is always explicitly chmod'd to this mode, regardless of umask.
	Perm os.FileMode
}

// Write writes data from r to path atomically and durably.
//
// It exclusively creates [StagingPath](path), writes and syncs it, renames it
// over path, then syncs the parent directory (if opts.SyncDir is true).
//
// If the staging file already exists, nothing is written and the error
// satisfies errors.Is(err, ErrStagingExists).
//
// A failed write or sync removes the staging file again. A failed rename
// leaves it in place: the staged bytes are complete, and the next writer
// reports the leftover instead of silently discarding it.
//
// If the directory sync step fails, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync).
func (w *AtomicWriter) Write(path string, reader io.Reader, opts AtomicWriteOptions) error {
	if reader == nil {
		panic("reader is nil")
	}

	if path == "" {
		return errors.New("path is empty")
	}

	if opts.Perm == 0 {
		return errors.New("opts.Perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == string(os.PathSeparator) || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)
	stagingPath := StagingPath(path)

	stagingFile, err := w.fs.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, opts.Perm)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %q: %w", ErrStagingExists, stagingPath, err)
		}

		return fmt.Errorf("create staging file: %w", err)
	}

	discard := func() error {
		closeErr := closeStagingFile(stagingPath, stagingFile)
		removeErr := removeStagingFile(w.fs, stagingPath)

		return errors.Join(closeErr, removeErr)
	}

	chmodErr := stagingFile.Chmod(opts.Perm)
	if chmodErr != nil {
		return errors.Join(
			fmt.Errorf("chmod staging file %q: %w", stagingPath, chmodErr),
			discard(),
		)
	}

	writeErr := writeAndSyncStagingFile(stagingFile, stagingPath, reader)
	if writeErr != nil {
		return errors.Join(
			writeErr,
			discard(),
		)
	}

	closeErr := closeStagingFile(stagingPath, stagingFile)
	if closeErr != nil {
		return errors.Join(closeErr, removeStagingFile(w.fs, stagingPath))
	}

	renameErr := w.fs.Rename(stagingPath, path)
	if renameErr != nil {
		return fmt.Errorf("rename %q: %w", stagingPath, renameErr)
	}

	if opts.SyncDir {
		err := fsyncDir(w.fs, dir)
		if err != nil {
			return err
		}
	}

	return nil
}

// Promote renames the staging file of path over path and syncs the parent
// directory. It finishes a commit that was interrupted between sync and
// rename. The caller is responsible for checking the staging content.
func (w *AtomicWriter) Promote(path string) error {
	if path == "" {
		return fmt.Errorf("path is invalid: %q", path)
	}

	stagingPath := StagingPath(path)

	err := w.fs.Rename(stagingPath, path)
	if err != nil {
		return fmt.Errorf("rename %q: %w", stagingPath, err)
	}

	return fsyncDir(w.fs, filepath.Dir(path))
}

// WriteWithDefaults writes content atomically using default options.
func (w *AtomicWriter) WriteWithDefaults(path string, r io.Reader) error {
	return w.Write(path, r, w.DefaultOptions())
}

// DefaultOptions returns the default atomic write options.
func (*AtomicWriter) DefaultOptions() AtomicWriteOptions {
	return AtomicWriteOptions{
		SyncDir: true,
		Perm:    0o600,
	}
}

func writeAndSyncStagingFile(file File, path string, r io.Reader) error {
	_, copyErr := io.Copy(file, r)
	if copyErr != nil {
		return fmt.Errorf("write staging file %q: %w", path, copyErr)
	}

	err := file.Sync()
	if err != nil {
		return fmt.Errorf("sync staging file %q: %w", path, err)
	}

	return nil
}

func fsyncDir(fs FS, dirPath string) error {
	dirFd, err := fs.Open(dirPath)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dirPath, err))
	}

	syncErr := dirFd.Sync()
	if syncErr == nil {
		return closeDir(dirPath, dirFd)
	}

	return errors.Join(
		ErrAtomicWriteDirSync,
		fmt.Errorf("%q: %w", dirPath, syncErr),
		closeDir(dirPath, dirFd),
	)
}

func closeDir(dir string, file File) error {
	err := file.Close()
	if err == nil {
		return nil
	}

	return fmt.Errorf("close dir %q: %w", dir, err)
}

func closeStagingFile(path string, file File) error {
	err := file.Close()
	if err == nil {
		return nil
	}

	return fmt.Errorf("close staging file %q: %w", path, err)
}

func removeStagingFile(fs FS, path string) error {
	err := fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging file %q: %w", path, err)
	}

	return nil
}

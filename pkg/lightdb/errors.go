package lightdb

import (
	"errors"
	iofs "io/fs"
	"strings"
)

var (
	// ErrNotFound means the database file does not exist. Only [Load] and
	// [LoadEncrypted] report it; Open creates the file instead.
	ErrNotFound = iofs.ErrNotExist

	// ErrAlreadyExists means a create targeted an occupied path, or an
	// orphan staging file from an interrupted commit is present.
	ErrAlreadyExists = iofs.ErrExist

	// ErrCorruptData means the file could not be decoded: malformed
	// aggregate, malformed envelope, or an unsupported envelope header.
	ErrCorruptData = errors.New("corrupt data")

	// ErrDecryption means the ciphertext did not authenticate. A wrong
	// password, a modified file and bit-rot all look the same.
	ErrDecryption = errors.New("decryption failed")

	// ErrKeyDerivation means the KDF parameters are invalid.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrClosed is returned by guard requests after Close.
	ErrClosed = errors.New("store closed")
)

// Error is the error type returned by store operations.
//
// It carries the operation and the database path after the cause:
//
//	decryption failed (op=load path=/data/app.db)
//
// Use [errors.Is] with the sentinels above and [errors.As] for the fields.
type Error struct {
	// Op is the store operation: create, load, commit, close, passwd,
	// export or import.
	Op string

	// Path is the database file path. Empty for in-memory stores.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (op=X path=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext wraps err as *Error. An existing *Error keeps its fields.
func withContext(err error, op, path string) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	return &Error{Op: op, Path: path, Err: err}
}

package table

import "errors"

// Decode errors. Any of them fails the whole decode of the table.
var (
	// ErrInvalidKey means a key could not be converted to or from text.
	ErrInvalidKey = errors.New("table: invalid key")

	// ErrKeyMismatch means an object key differs from the primary key of
	// the record stored under it.
	ErrKeyMismatch = errors.New("table: key does not match record")

	// ErrDuplicateKey means two encoded records share a primary key.
	ErrDuplicateKey = errors.New("table: duplicate key")
)

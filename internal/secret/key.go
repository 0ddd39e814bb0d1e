// Package secret holds derived key material for encrypted stores.
//
// A [Key] owns a private copy of its bytes, pins them in memory where the
// platform allows it, and overwrites them on [Key.Wipe]. Keys never format
// their contents: printing one yields a fixed placeholder.
package secret

import (
	"errors"
	"sync"
)

// ErrWiped is returned by [Key.Bytes] after [Key.Wipe].
var ErrWiped = errors.New("secret: key wiped")

// Key is a wipeable symmetric key.
//
// The zero value is an empty, already wiped key. Key is safe for concurrent
// use, but slices returned by [Key.Bytes] must not be retained past the next
// Wipe.
type Key struct {
	mu     sync.Mutex
	b      []byte
	locked bool
}

// FromBytes copies src into a new Key and zeroes src.
func FromBytes(src []byte) *Key {
	b := make([]byte, len(src))
	copy(b, src)
	Zero(src)

	k := &Key{b: b}
	k.locked = mlock(b) == nil

	return k
}

// Bytes returns the key bytes. The slice aliases the key's storage.
func (k *Key) Bytes() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.b == nil {
		return nil, ErrWiped
	}

	return k.b, nil
}

// Len returns the key length, or zero after Wipe.
func (k *Key) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.b)
}

// Wipe zeroes the key bytes and releases the memory lock. Idempotent.
func (k *Key) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.b == nil {
		return
	}

	Zero(k.b)

	if k.locked {
		_ = munlock(k.b)
		k.locked = false
	}

	k.b = nil
}

// String implements fmt.Stringer without revealing key bytes.
func (*Key) String() string {
	return "secret.Key(REDACTED)"
}

// GoString implements fmt.GoStringer without revealing key bytes.
func (k *Key) GoString() string {
	return k.String()
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

package lightdb

import (
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/calvinalkan/lightdb/internal/secret"
)

const (
	// KeySize is the derived key length in bytes.
	KeySize = 32

	// SaltSize is the per-file KDF salt length in bytes.
	SaltSize = 16

	// Upper bounds for parameters read from a file. A crafted envelope can
	// demand up to this much work before authentication fails.
	maxKDFMemoryKiB = 1 << 20
	maxKDFTime      = 64
	minKDFMemoryKiB = 8
)

// KDFParams are Argon2id cost parameters.
type KDFParams struct {
	// Memory is the memory cost in KiB.
	Memory uint32 `cbor:"1,keyasint" json:"memory_kib"`

	// Time is the number of passes.
	Time uint32 `cbor:"2,keyasint" json:"time"`

	// Threads is the degree of parallelism.
	Threads uint8 `cbor:"3,keyasint" json:"threads"`
}

// DefaultKDFParams returns Argon2id parameters suited to an interactive
// unlock: 64 MiB, 3 passes, 1 thread.
func DefaultKDFParams() KDFParams {
	return KDFParams{Memory: 64 * 1024, Time: 3, Threads: 1}
}

// Validate checks p against the supported range. The bounds also cap the
// work a crafted file can demand.
func (p KDFParams) Validate() error {
	switch {
	case p.Threads == 0:
		return fmt.Errorf("%w: threads must be at least 1", ErrKeyDerivation)
	case p.Time == 0:
		return fmt.Errorf("%w: time must be at least 1", ErrKeyDerivation)
	case p.Time > maxKDFTime:
		return fmt.Errorf("%w: time %d exceeds %d", ErrKeyDerivation, p.Time, maxKDFTime)
	case p.Memory < minKDFMemoryKiB*uint32(p.Threads):
		return fmt.Errorf("%w: memory %d KiB below %d KiB per thread", ErrKeyDerivation, p.Memory, minKDFMemoryKiB)
	case p.Memory > maxKDFMemoryKiB:
		return fmt.Errorf("%w: memory %d KiB exceeds %d KiB", ErrKeyDerivation, p.Memory, maxKDFMemoryKiB)
	}

	return nil
}

// deriveKey runs Argon2id over password and salt. The raw output is moved
// into the returned key and cleared.
func deriveKey(password, salt []byte, p KDFParams) (*secret.Key, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrKeyDerivation, len(salt), SaltSize)
	}

	raw := argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeySize)

	return secret.FromBytes(raw), nil
}

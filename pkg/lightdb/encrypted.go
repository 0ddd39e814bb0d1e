package lightdb

import (
	"fmt"

	"github.com/calvinalkan/lightdb/internal/secret"
)

// EncryptedStore persists an aggregate of type T as an [Envelope] sealed
// with a password-derived key.
//
// The key is derived once on open and kept in locked memory until Close or
// ChangePassword; the password itself is not retained. All methods are
// safe for concurrent use.
type EncryptedStore[T any] struct {
	c    *core[T]
	opts EncryptedOptions

	// Guarded by c.mu.
	key  *secret.Key
	salt []byte
	kdf  KDFParams
}

// OpenEncrypted loads the encrypted database at path, or creates it with a
// zero T if the file does not exist.
func OpenEncrypted[T any](path string, password []byte, opts EncryptedOptions) (*EncryptedStore[T], error) {
	opts = opts.withDefaults()

	exists, err := opts.FS.Exists(path)
	if err != nil {
		return nil, withContext(err, "open", path)
	}

	if exists {
		return LoadEncrypted[T](path, password, opts)
	}

	return CreateEncrypted[T](path, password, opts)
}

// CreateEncrypted writes a zero T to path, sealed under a key derived from
// password and a fresh random salt. It fails with [ErrAlreadyExists] if path
// or its staging file already exists.
func CreateEncrypted[T any](path string, password []byte, opts EncryptedOptions) (*EncryptedStore[T], error) {
	opts = opts.withDefaults()

	if err := checkVacant(opts.Options, "create", path); err != nil {
		return nil, err
	}

	salt, err := newSalt()
	if err != nil {
		return nil, withContext(err, "create", path)
	}

	key, err := deriveKey(password, salt, opts.KDF)
	if err != nil {
		return nil, withContext(err, "create", path)
	}

	s := newEncryptedStore[T](path, opts, key, salt, opts.KDF)

	if err := s.c.commitLocked("create"); err != nil {
		key.Wipe()

		return nil, err
	}

	opts.Logger.Info("lightdb: created encrypted", "path", path, "codec", opts.Codec.Name())

	return s, nil
}

// LoadEncrypted reads and decrypts the database at path.
//
// It fails with [ErrNotFound] if the file is missing, [ErrAlreadyExists] if
// an orphan staging file is present, [ErrCorruptData] if the envelope or the
// decrypted aggregate does not decode, and [ErrDecryption] if the password
// is wrong or the file was modified. On failure the file is not touched.
func LoadEncrypted[T any](path string, password []byte, opts EncryptedOptions) (*EncryptedStore[T], error) {
	opts = opts.withDefaults()

	if err := checkStaging(opts.Options, "load", path); err != nil {
		return nil, err
	}

	raw, err := opts.FS.ReadFile(path)
	if err != nil {
		return nil, withContext(err, "load", path)
	}

	s, err := unlockInto[T](path, raw, password, opts, "load")
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("lightdb: loaded encrypted", "path", path, "codec", opts.Codec.Name(), "bytes", len(raw))

	return s, nil
}

// CreateEncryptedFrom decrypts blob, an encoded envelope such as the output
// of [EncryptedStore.Export], with password and persists it at path. The
// salt and KDF parameters of blob are kept. It fails with
// [ErrAlreadyExists] if path or its staging file already exists.
func CreateEncryptedFrom[T any](blob []byte, path string, password []byte, opts EncryptedOptions) (*EncryptedStore[T], error) {
	opts = opts.withDefaults()

	if err := checkVacant(opts.Options, "import", path); err != nil {
		return nil, err
	}

	s, err := unlockInto[T](path, blob, password, opts, "import")
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("lightdb: imported encrypted", "path", path, "bytes", len(blob))

	return s, nil
}

// Unseal decodes and decrypts blob, an encoded envelope, without touching
// any file. It reports the same errors as [LoadEncrypted].
func Unseal[T any](blob, password []byte, opts EncryptedOptions) (*T, error) {
	opts = opts.withDefaults()

	var data T

	key, _, err := decrypt(blob, password, opts, &data)
	if err != nil {
		return nil, withContext(err, "unseal", "")
	}

	key.Wipe()

	return &data, nil
}

// decrypt decodes raw as an envelope, derives the key from password and the
// envelope header, and decodes the plaintext into data.
func decrypt[T any](raw, password []byte, opts EncryptedOptions, data *T) (*secret.Key, *Envelope, error) {
	var env Envelope
	if err := opts.EnvelopeCodec.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: envelope: %w", ErrCorruptData, err)
	}

	if err := env.validate(); err != nil {
		return nil, nil, err
	}

	key, err := deriveKey(password, env.Salt, env.KDF)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := unseal(key, &env)
	if err != nil {
		key.Wipe()

		return nil, nil, err
	}

	err = opts.Codec.Unmarshal(plaintext, data)
	secret.Zero(plaintext)

	if err != nil {
		key.Wipe()

		return nil, nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}

	return key, &env, nil
}

// unlockInto decrypts raw and commits the result to path under the
// envelope's salt and parameters.
func unlockInto[T any](path string, raw, password []byte, opts EncryptedOptions, op string) (*EncryptedStore[T], error) {
	var data T

	key, env, err := decrypt(raw, password, opts, &data)
	if err != nil {
		return nil, withContext(err, op, path)
	}

	s := newEncryptedStore[T](path, opts, key, env.Salt, env.KDF)
	s.c.data = data

	if err := s.c.commitLocked(op); err != nil {
		key.Wipe()

		return nil, err
	}

	return s, nil
}

func newEncryptedStore[T any](path string, opts EncryptedOptions, key *secret.Key, salt []byte, kdf KDFParams) *EncryptedStore[T] {
	s := &EncryptedStore[T]{opts: opts, key: key, salt: salt, kdf: kdf}
	s.c = newCore(path, opts.Options, s.encodeLocked)

	return s
}

func (s *EncryptedStore[T]) encodeLocked(data *T) ([]byte, error) {
	return s.sealData(data, s.key, s.salt, s.kdf)
}

func (s *EncryptedStore[T]) sealData(data *T, key *secret.Key, salt []byte, kdf KDFParams) ([]byte, error) {
	plaintext, err := s.opts.Codec.Marshal(data)
	if err != nil {
		return nil, err
	}

	defer secret.Zero(plaintext)

	env, err := seal(key, kdf, salt, plaintext)
	if err != nil {
		return nil, err
	}

	return s.opts.EnvelopeCodec.Marshal(env)
}

// Path returns the database file path.
func (s *EncryptedStore[T]) Path() string {
	return s.c.path
}

// Read acquires shared read access. Returns [ErrClosed] after Close.
func (s *EncryptedStore[T]) Read() (*ReadGuard[T], error) {
	return s.c.read()
}

// Write acquires exclusive write access. Releasing the guard encrypts and
// commits. Returns [ErrClosed] after Close.
func (s *EncryptedStore[T]) Write() (*WriteGuard[T], error) {
	return s.c.write()
}

// View runs fn with read access.
func (s *EncryptedStore[T]) View(fn func(data *T) error) error {
	return s.c.view(fn)
}

// Update runs fn with write access and commits afterwards, like
// [Store.Update].
func (s *EncryptedStore[T]) Update(fn func(data *T) error) error {
	return s.c.update(fn)
}

// ChangePassword re-encrypts the database under newPassword with a fresh
// salt and the configured KDF parameters.
//
// The new key is derived before the write lock is taken. The switch happens
// only after the re-encrypted file is committed; on failure the old key and
// file stay in effect and the new key is wiped.
func (s *EncryptedStore[T]) ChangePassword(newPassword []byte) error {
	kdf := s.opts.KDF

	salt, err := newSalt()
	if err != nil {
		return withContext(err, "passwd", s.c.path)
	}

	key, err := deriveKey(newPassword, salt, kdf)
	if err != nil {
		return withContext(err, "passwd", s.c.path)
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	if s.c.closed {
		key.Wipe()

		return withContext(ErrClosed, "passwd", s.c.path)
	}

	data, err := s.sealData(&s.c.data, key, salt, kdf)
	if err != nil {
		key.Wipe()

		return s.c.commitFailed("passwd", fmt.Errorf("encode: %w", err))
	}

	if err := s.c.persistLocked("passwd", data); err != nil {
		key.Wipe()

		return err
	}

	old := s.key
	s.key, s.salt, s.kdf = key, salt, kdf
	old.Wipe()

	s.opts.Logger.Info("lightdb: password changed", "path", s.c.path)

	return nil
}

// Export returns the current aggregate sealed as an encoded envelope under
// the store's key, salt and parameters. The result opens with the current
// password through [CreateEncryptedFrom].
func (s *EncryptedStore[T]) Export() ([]byte, error) {
	g, err := s.c.read()
	if err != nil {
		return nil, err
	}

	defer g.Release()

	data, err := s.encodeLocked(g.Data())
	if err != nil {
		return nil, withContext(err, "export", s.c.path)
	}

	return data, nil
}

// Close waits for outstanding guards, commits a final time, wipes the key
// and closes the store. Calling Close again returns nil.
func (s *EncryptedStore[T]) Close() error {
	return s.c.close(func() { s.key.Wipe() })
}

package lightdb

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/calvinalkan/lightdb/internal/secret"
)

// EnvelopeVersion is the envelope format written by this package.
const EnvelopeVersion uint8 = 1

// Envelope is the on-disk form of an encrypted database.
//
// The header (version, KDF parameters, salt) is authenticated as associated
// data, so changing any of it fails decryption like a wrong password does.
type Envelope struct {
	Version    uint8     `cbor:"1,keyasint" json:"version"`
	KDF        KDFParams `cbor:"2,keyasint" json:"kdf"`
	Salt       []byte    `cbor:"3,keyasint" json:"salt"`
	Nonce      []byte    `cbor:"4,keyasint" json:"nonce"`
	Ciphertext []byte    `cbor:"5,keyasint" json:"ciphertext"`
}

// validate checks the header shape before any key derivation happens.
func (e *Envelope) validate() error {
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("%w: unsupported envelope version %d", ErrCorruptData, e.Version)
	}

	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt is %d bytes, want %d", ErrCorruptData, len(e.Salt), SaltSize)
	}

	if len(e.Nonce) != chacha20poly1305.NonceSizeX {
		return fmt.Errorf("%w: nonce is %d bytes, want %d", ErrCorruptData, len(e.Nonce), chacha20poly1305.NonceSizeX)
	}

	if len(e.Ciphertext) < chacha20poly1305.Overhead {
		return fmt.Errorf("%w: ciphertext shorter than tag", ErrCorruptData)
	}

	return e.KDF.Validate()
}

// associatedData is version || memory || time || threads || salt, with the
// integers big-endian.
func associatedData(version uint8, p KDFParams, salt []byte) []byte {
	ad := make([]byte, 0, 1+4+4+1+len(salt))
	ad = append(ad, version)
	ad = binary.BigEndian.AppendUint32(ad, p.Memory)
	ad = binary.BigEndian.AppendUint32(ad, p.Time)
	ad = append(ad, p.Threads)
	ad = append(ad, salt...)

	return ad
}

// seal encrypts plaintext under key with a fresh nonce.
func seal(key *secret.Key, p KDFParams, salt, plaintext []byte) (*Envelope, error) {
	kb, err := key.Bytes()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(kb)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	env := &Envelope{
		Version: EnvelopeVersion,
		KDF:     p,
		Salt:    append([]byte(nil), salt...),
		Nonce:   nonce,
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, associatedData(env.Version, p, env.Salt))

	return env, nil
}

// unseal authenticates and decrypts env. Every failure is ErrDecryption.
func unseal(key *secret.Key, env *Envelope) ([]byte, error) {
	kb, err := key.Bytes()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(kb)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, associatedData(env.Version, env.KDF, env.Salt))
	if err != nil {
		return nil, ErrDecryption
	}

	return plaintext, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	return salt, nil
}

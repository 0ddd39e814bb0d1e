package lightdb

import (
	"log/slog"
	"os"

	"github.com/calvinalkan/lightdb/pkg/fs"
)

// Options configures a [Store]. The zero value is valid.
type Options struct {
	// FS is the filesystem the store reads and commits through.
	// Default: [fs.NewReal].
	FS fs.FS

	// Codec encodes the aggregate. Default: [JSON] for [Store], [CBOR] for
	// the plaintext inside an [EncryptedStore].
	Codec Codec

	// Logger receives open, commit and failure events.
	// Default: [slog.Default].
	Logger *slog.Logger

	// Perm is the mode of the database file. Default: 0o600.
	Perm os.FileMode

	// NoSyncDir skips the parent directory fsync after each rename. Commits
	// stay atomic but a power loss may roll back to the previous commit.
	NoSyncDir bool
}

func (o Options) withDefaults(codec Codec) Options {
	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Codec == nil {
		o.Codec = codec
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Perm == 0 {
		o.Perm = 0o600
	}

	return o
}

func (o Options) writeOptions() fs.AtomicWriteOptions {
	return fs.AtomicWriteOptions{SyncDir: !o.NoSyncDir, Perm: o.Perm}
}

// EncryptedOptions configures an [EncryptedStore]. The zero value is valid.
type EncryptedOptions struct {
	Options

	// KDF sets the key derivation cost for newly created files and password
	// changes. Existing files keep the parameters stored in their envelope.
	// Default: [DefaultKDFParams].
	KDF KDFParams

	// EnvelopeCodec encodes the outer [Envelope]. Default: [CBOR].
	EnvelopeCodec Codec
}

func (o EncryptedOptions) withDefaults() EncryptedOptions {
	o.Options = o.Options.withDefaults(CBOR)

	if o.KDF == (KDFParams{}) {
		o.KDF = DefaultKDFParams()
	}

	if o.EnvelopeCodec == nil {
		o.EnvelopeCodec = CBOR
	}

	return o
}

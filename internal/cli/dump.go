package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lightdb/pkg/fs"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// DumpCmd returns the dump command.
func DumpCmd(d *deps) *Command {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	format := flags.StringP("format", "f", "json", "Output format: json or yaml")
	header := flags.Bool("header", false, "Print the envelope header of an encrypted file (no password needed)")

	return &Command{
		Flags: flags,
		Usage: "dump <path> [flags]",
		Short: "Print the database contents",
		Long: `Print the database at <path> to stdout.

Loading commits the database once, which normalizes its encoding.
Encrypted databases read the password from $LIGHTDB_PASSWORD or prompt.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if *header {
				return execDumpHeader(o, d, args)
			}

			return execDump(o, d, args, *format)
		},
	}
}

func execDump(o *IO, d *deps, args []string, format string) error {
	if err := pathArgs(args, 1); err != nil {
		return err
	}

	codec, err := textCodec(format)
	if err != nil {
		return err
	}

	doc, err := d.snapshot(d.cfg.resolve(args[0]))
	if err != nil {
		return err
	}

	out, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", codec.Name(), err)
	}

	_, err = o.Write(out)

	return err
}

func execDumpHeader(o *IO, d *deps, args []string) error {
	if err := pathArgs(args, 1); err != nil {
		return err
	}

	if !d.cfg.Encrypted {
		return ErrNotEncrypted
	}

	path := d.cfg.resolve(args[0])

	raw, err := fs.NewReal().ReadFile(path)
	if err != nil {
		return err
	}

	envelopeCodec, err := lightdb.CodecByName(d.cfg.EnvelopeCodec)
	if err != nil {
		return err
	}

	var env lightdb.Envelope
	if err := envelopeCodec.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %w", lightdb.ErrCorruptData, err)
	}

	o.Println("version=" + fmt.Sprint(env.Version))
	o.Println("kdf=argon2id")
	o.Printf("kdf_memory_kib=%d\n", env.KDF.Memory)
	o.Printf("kdf_time=%d\n", env.KDF.Time)
	o.Printf("kdf_threads=%d\n", env.KDF.Threads)
	o.Println("salt=" + hex.EncodeToString(env.Salt))
	o.Println("nonce=" + hex.EncodeToString(env.Nonce))
	o.Printf("ciphertext_bytes=%d\n", len(env.Ciphertext))

	return nil
}

// textCodec returns a human-readable codec for output.
func textCodec(name string) (lightdb.Codec, error) {
	codec, err := lightdb.CodecByName(name)
	if err != nil {
		return nil, err
	}

	if codec.Name() == lightdb.CBOR.Name() {
		return nil, fmt.Errorf("format %q is binary; use export instead", name)
	}

	return codec, nil
}

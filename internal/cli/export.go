package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// ExportCmd returns the export command.
func ExportCmd(d *deps) *Command {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	plain := flags.Bool("plain", false, "Write decrypted plaintext instead of a sealed envelope")
	format := flags.StringP("format", "f", "", "Plaintext codec: json, yaml or cbor (default: configured codec)")
	force := flags.Bool("force", false, "Overwrite <out> if it exists")

	return &Command{
		Flags: flags,
		Usage: "export <path> <out> [flags]",
		Short: "Copy a database to another file",
		Long: `Write the database at <path> to <out>. Use "-" for stdout.

Encrypted databases are exported as a sealed envelope that opens with the
current password, unless --plain is given. Plaintext output uses --format
or the configured codec.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execExport(ctx, o, d, args, exportFlags{plain: *plain, format: *format, force: *force})
		},
	}
}

type exportFlags struct {
	plain  bool
	format string
	force  bool
}

func execExport(ctx context.Context, o *IO, d *deps, args []string, f exportFlags) error {
	if err := pathArgs(args, 2); err != nil {
		return err
	}

	path := d.cfg.resolve(args[0])

	out := args[1]
	if out != "-" {
		out = d.cfg.resolve(out)

		if !f.force {
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%w: %s (use --force)", lightdb.ErrAlreadyExists, out)
			}
		}
	}

	var (
		payload []byte
		err     error
	)

	if d.cfg.Encrypted && !f.plain {
		payload, err = exportSealed(d, path)
	} else {
		payload, err = exportPlain(d, path, f.format)
	}

	if err != nil {
		return err
	}

	if err := errCanceled(ctx, "export"); err != nil {
		return err
	}

	if out == "-" {
		_, err := o.Write(payload)

		return err
	}

	if err := atomic.WriteFile(out, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	d.logger.Debug("exported", "from", path, "to", out, "bytes", len(payload))

	return nil
}

func exportSealed(d *deps, path string) ([]byte, error) {
	db, err := d.loadEncrypted(path)
	if err != nil {
		return nil, err
	}

	blob, err := db.Export()

	return blob, closeAfter(db, err)
}

func exportPlain(d *deps, path, format string) ([]byte, error) {
	codec, err := d.cfg.codecOr(format)
	if err != nil {
		return nil, err
	}

	doc, err := d.snapshot(path)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", codec.Name(), err)
	}

	return payload, nil
}

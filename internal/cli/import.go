package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lightdb/internal/secret"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// ImportCmd returns the import command.
func ImportCmd(d *deps) *Command {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	plain := flags.Bool("plain", false, "Read plaintext input even when creating an encrypted database")
	format := flags.StringP("format", "f", "", "Plaintext codec: json, yaml or cbor (default: configured codec)")

	return &Command{
		Flags: flags,
		Usage: "import <in> <path> [flags]",
		Short: "Create a database from an exported file",
		Long: `Create a new database at <path> from <in>. Use "-" for stdin.

With --encrypted, <in> is a sealed envelope opened with the current
password unless --plain is given, in which case a new password is chosen.
Fails if <path> already exists.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execImport(ctx, o, d, args, *plain, *format)
		},
	}
}

func execImport(ctx context.Context, o *IO, d *deps, args []string, plain bool, format string) error {
	if err := pathArgs(args, 2); err != nil {
		return err
	}

	path := d.cfg.resolve(args[1])

	input, err := readInput(d, args[0])
	if err != nil {
		return err
	}

	if err := errCanceled(ctx, "import"); err != nil {
		return err
	}

	if d.cfg.Encrypted && !plain {
		err = importSealed(d, input, path)
	} else {
		err = importPlain(ctx, d, input, path, format)
	}

	if err != nil {
		return err
	}

	o.Println("Imported", path)

	return nil
}

func readInput(d *deps, name string) ([]byte, error) {
	if name == "-" {
		if d.passwords.stdin == nil {
			return nil, fmt.Errorf("reading stdin: %w", os.ErrNotExist)
		}

		return io.ReadAll(d.passwords.stdin)
	}

	return os.ReadFile(d.cfg.resolve(name))
}

func importSealed(d *deps, blob []byte, path string) error {
	password, err := d.passwords.current()
	if err != nil {
		return err
	}
	defer secret.Zero(password)

	db, err := lightdb.CreateEncryptedFrom[document](blob, path, password, d.cfg.encryptedOptions(d.logger))
	if err != nil {
		return err
	}

	return db.Close()
}

func importPlain(ctx context.Context, d *deps, input []byte, path, format string) error {
	codec, err := d.cfg.codecOr(format)
	if err != nil {
		return err
	}

	var doc document
	if err := codec.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("%w: decoding %s input: %w", lightdb.ErrCorruptData, codec.Name(), err)
	}

	return d.create(ctx, path, doc)
}

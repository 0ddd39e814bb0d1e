package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// InitCmd returns the init command.
func InitCmd(d *deps) *Command {
	return &Command{
		Flags: flag.NewFlagSet("init", flag.ContinueOnError),
		Usage: "init <path>",
		Short: "Create an empty database",
		Long: `Create an empty database at <path>.

Fails if <path> or its staging file already exists. With --encrypted the
password is read from $LIGHTDB_PASSWORD or prompted for twice.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execInit(ctx, o, d, args)
		},
	}
}

func execInit(ctx context.Context, o *IO, d *deps, args []string) error {
	if err := pathArgs(args, 1); err != nil {
		return err
	}

	path := d.cfg.resolve(args[0])

	if err := d.create(ctx, path, nil); err != nil {
		return err
	}

	o.Println("Created", path)

	return nil
}

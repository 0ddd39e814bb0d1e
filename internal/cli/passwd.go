package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lightdb/internal/secret"
)

// PasswdCmd returns the passwd command.
func PasswdCmd(d *deps) *Command {
	return &Command{
		Flags: flag.NewFlagSet("passwd", flag.ContinueOnError),
		Usage: "passwd <path>",
		Short: "Change the password of an encrypted database",
		Long: `Re-encrypt the database at <path> under a new password.

The current password comes from $LIGHTDB_PASSWORD, the new one from
$LIGHTDB_NEW_PASSWORD. Missing values are prompted for. A fresh salt is
generated and the configured KDF parameters are applied. On failure the
file keeps its old password.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execPasswd(ctx, o, d, args)
		},
	}
}

func execPasswd(ctx context.Context, o *IO, d *deps, args []string) error {
	if err := pathArgs(args, 1); err != nil {
		return err
	}

	path := d.cfg.resolve(args[0])

	db, err := d.loadEncrypted(path)
	if err != nil {
		return err
	}

	newPassword, err := d.passwords.choose(EnvNewPassword)
	if err != nil {
		return closeAfter(db, err)
	}
	defer secret.Zero(newPassword)

	if err := errCanceled(ctx, "passwd"); err != nil {
		return closeAfter(db, err)
	}

	if err := db.ChangePassword(newPassword); err != nil {
		return closeAfter(db, err)
	}

	if err := db.Close(); err != nil {
		return err
	}

	o.Println("Password changed for", path)

	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lightdb/internal/secret"
	"github.com/calvinalkan/lightdb/pkg/fs"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// RepairCmd returns the repair command.
func RepairCmd(d *deps) *Command {
	flags := flag.NewFlagSet("repair", flag.ContinueOnError)
	discard := flags.Bool("discard", false, "Delete the staging file")
	promote := flags.Bool("promote", false, "Replace the database with the staging file if it decodes")

	return &Command{
		Flags: flags,
		Usage: "repair <path> [flags]",
		Short: "Resolve a leftover staging file",
		Long: `Inspect the staging file (.<name>~) an interrupted commit left next to
<path>. Without flags it only reports. --promote renames the staging file
over <path> after checking it decodes (encrypted files need the password).
--discard deletes it.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if *discard && *promote {
				return ErrRepairConflict
			}

			return execRepair(o, d, args, *discard, *promote)
		},
	}
}

func execRepair(o *IO, d *deps, args []string, discard, promote bool) error {
	if err := pathArgs(args, 1); err != nil {
		return err
	}

	fsys := fs.NewReal()
	path := d.cfg.resolve(args[0])
	staging := fs.StagingPath(path)

	exists, err := fsys.Exists(staging)
	if err != nil {
		return err
	}

	if !exists {
		o.Println("No staging file for", path)

		return nil
	}

	if discard {
		if err := fsys.Remove(staging); err != nil {
			return err
		}

		d.logger.Info("discarded staging file", "path", staging)
		o.Println("Discarded", staging)

		return nil
	}

	raw, err := fsys.ReadFile(staging)
	if err != nil {
		return err
	}

	verifyErr := d.verifyStaging(raw)

	if promote {
		if verifyErr != nil {
			return fmt.Errorf("%w: %w", ErrStagingInvalid, verifyErr)
		}

		if err := fs.NewAtomicWriter(fsys).Promote(path); err != nil {
			return err
		}

		d.logger.Info("promoted staging file", "path", path)
		o.Println("Promoted", staging)

		return nil
	}

	o.Println("staging=" + staging)

	if verifyErr != nil {
		o.Println("staging_valid=false")
		o.Println("staging_error=" + verifyErr.Error())
		o.Warn("staging file "+staging+" does not decode", "run 'lightdb repair --discard' to delete it")
	} else {
		o.Println("staging_valid=true")
		o.Warn("staging file "+staging+" holds an uncommitted write", "run 'lightdb repair --promote' to keep it or '--discard' to drop it")
	}

	return nil
}

// verifyStaging checks raw decodes as a database in the configured format.
func (d *deps) verifyStaging(raw []byte) error {
	if !d.cfg.Encrypted {
		codec, err := d.cfg.codecOr("")
		if err != nil {
			return err
		}

		var doc document
		if err := codec.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: %w", lightdb.ErrCorruptData, err)
		}

		return nil
	}

	password, err := d.passwords.current()
	if err != nil {
		return err
	}
	defer secret.Zero(password)

	_, err = lightdb.Unseal[document](raw, password, d.cfg.encryptedOptions(d.logger))
	if errors.Is(err, lightdb.ErrDecryption) {
		return fmt.Errorf("%w (wrong password or tampered file)", err)
	}

	return err
}

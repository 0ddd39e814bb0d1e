package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calvinalkan/lightdb/internal/secret"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

// document is the aggregate the CLI works with: any top-level object.
type document map[string]any

// database is the access shape shared by plaintext and encrypted stores.
type database interface {
	View(fn func(d *document) error) error
	Update(fn func(d *document) error) error
	Close() error
}

var (
	_ database = (*lightdb.Store[document])(nil)
	_ database = (*lightdb.EncryptedStore[document])(nil)
)

// deps carries what commands need beyond their flags.
type deps struct {
	cfg       *Config
	logger    *slog.Logger
	passwords *passwordReader
}

// load opens an existing database. Encrypted databases ask for the password.
func (d *deps) load(path string) (database, error) {
	if !d.cfg.Encrypted {
		return lightdb.Load[document](path, d.cfg.storeOptions(d.logger))
	}

	password, err := d.passwords.current()
	if err != nil {
		return nil, err
	}
	defer secret.Zero(password)

	return lightdb.LoadEncrypted[document](path, password, d.cfg.encryptedOptions(d.logger))
}

// loadEncrypted is load for commands that only make sense encrypted.
func (d *deps) loadEncrypted(path string) (*lightdb.EncryptedStore[document], error) {
	if !d.cfg.Encrypted {
		return nil, ErrNotEncrypted
	}

	password, err := d.passwords.current()
	if err != nil {
		return nil, err
	}
	defer secret.Zero(password)

	return lightdb.LoadEncrypted[document](path, password, d.cfg.encryptedOptions(d.logger))
}

// create writes an empty document to path and fills it with doc.
func (d *deps) create(ctx context.Context, path string, doc document) error {
	if doc == nil {
		doc = document{}
	}

	var (
		db  database
		err error
	)

	if d.cfg.Encrypted {
		password, perr := d.passwords.choose(EnvPassword)
		if perr != nil {
			return perr
		}

		db, err = lightdb.CreateEncrypted[document](path, password, d.cfg.encryptedOptions(d.logger))
		secret.Zero(password)
	} else {
		db, err = lightdb.Create[document](path, d.cfg.storeOptions(d.logger))
	}

	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return closeAfter(db, err)
	}

	updateErr := db.Update(func(data *document) error {
		*data = doc

		return nil
	})

	return closeAfter(db, updateErr)
}

// snapshot reads the whole document of an existing database.
func (d *deps) snapshot(path string) (document, error) {
	db, err := d.load(path)
	if err != nil {
		return nil, err
	}

	var doc document

	viewErr := db.View(func(data *document) error {
		doc = *data

		return nil
	})

	return nonNil(doc), closeAfter(db, viewErr)
}

// closeAfter closes db and joins its error with err.
func closeAfter(db database, err error) error {
	closeErr := db.Close()

	switch {
	case err != nil && closeErr != nil:
		return fmt.Errorf("%w (close: %w)", err, closeErr)
	case err != nil:
		return err
	default:
		return closeErr
	}
}

func nonNil(doc document) document {
	if doc == nil {
		return document{}
	}

	return doc
}

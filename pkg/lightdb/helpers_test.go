package lightdb_test

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/calvinalkan/lightdb/pkg/fs"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
	"github.com/calvinalkan/lightdb/pkg/table"
)

type user struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func (u user) PrimaryKey() int { return u.ID }

type appData struct {
	Users   table.Table[int, user] `json:"users" yaml:"users"`
	Counter int                    `json:"counter" yaml:"counter"`
	Owner   string                 `json:"owner" yaml:"owner"`
}

// quietLogger discards store logs so test output stays readable.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(fsys fs.FS) lightdb.Options {
	return lightdb.Options{FS: fsys, Logger: quietLogger()}
}

// fastKDF keeps Argon2id cheap in tests.
var fastKDF = lightdb.KDFParams{Memory: 64, Time: 1, Threads: 1}

func testEncryptedOptions(fsys fs.FS) lightdb.EncryptedOptions {
	return lightdb.EncryptedOptions{Options: testOptions(fsys), KDF: fastKDF}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%q): %v", path, err)
	}

	return data
}

func usersOf(d *appData) []user {
	var out []user
	for u := range d.Users.Values() {
		out = append(out, u)
	}

	return out
}

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

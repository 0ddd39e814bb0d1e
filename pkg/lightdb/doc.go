// Package lightdb is an embedded, file-backed store for one in-memory
// aggregate.
//
// A store owns a value of the aggregate type T behind a reader/writer lock
// and persists the whole value to a single file. Every write guard commits
// on release with the staged write-sync-rename protocol of
// [fs.AtomicWriter], so the file on disk is always either the previous
// commit or the new one, never a mix.
//
// Two stores share the same access shape:
//   - [Store]: the file holds the aggregate encoded with a [Codec]
//     (JSON by default).
//   - [EncryptedStore]: the file holds an [Envelope] whose ciphertext is
//     the encoded aggregate sealed with XChaCha20-Poly1305 under an
//     Argon2id key derived from a password.
//
// Access goes through guards or closures:
//
//	db, err := lightdb.Open[Data]("app.json", lightdb.Options{})
//	if err != nil { ... }
//	defer db.Close()
//
//	err = db.Update(func(d *Data) error {
//	    d.Users.Add(User{ID: 1, Name: "Nils"})
//	    return nil
//	})
//
// A crash between staging and rename leaves a sibling file named
// ".<name>~". Stores refuse to open while it exists and report
// [ErrAlreadyExists]; inspecting it is an operator decision (see the
// lightdb repair command).
//
// Aggregates usually hold one or more table.Table values from pkg/table.
package lightdb

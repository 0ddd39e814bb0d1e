package lightdb_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/lightdb/pkg/fs"
	"github.com/calvinalkan/lightdb/pkg/lightdb"
)

func createEncryptedWithUsers(t *testing.T, path string, password string, opts lightdb.EncryptedOptions) {
	t.Helper()

	db, err := lightdb.CreateEncrypted[appData](path, []byte(password), opts)
	require.NoError(t, err, "CreateEncrypted")

	require.NoError(t, db.Update(func(d *appData) error {
		d.Users.Add(user{ID: 1, Name: "Nils"})
		d.Users.Add(user{ID: 2, Name: "Ada"})
		d.Owner = "secret-owner"

		return nil
	}))
	require.NoError(t, db.Close())
}

func requireUsers(t *testing.T, db *lightdb.EncryptedStore[appData]) {
	t.Helper()

	require.NoError(t, db.View(func(d *appData) error {
		want := []user{{ID: 1, Name: "Nils"}, {ID: 2, Name: "Ada"}}
		if diff := cmp.Diff(want, usersOf(d)); diff != "" {
			t.Errorf("users mismatch (-want +got):\n%s", diff)
		}

		return nil
	}))
}

func Test_EncryptedStore_Round_Trips_With_Correct_Password(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, path, "hunter2", opts)

	raw := readFile(t, path)
	require.NotContains(t, string(raw), "secret-owner", "plaintext must not reach disk")
	require.NotContains(t, string(raw), "Nils")

	db, err := lightdb.OpenEncrypted[appData](path, []byte("hunter2"), opts)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	requireUsers(t, db)
}

func Test_LoadEncrypted_Fails_With_Decryption_Error_And_Leaves_File_When_Password_Wrong(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, path, "right", opts)

	before := readFile(t, path)

	_, err := lightdb.OpenEncrypted[appData](path, []byte("wrong"), opts)
	require.ErrorIs(t, err, lightdb.ErrDecryption)
	require.Equal(t, "decryption failed (op=load path="+path+")", err.Error())

	require.Equal(t, before, readFile(t, path), "file bytes unchanged")

	_, statErr := os.Stat(fs.StagingPath(path))
	require.True(t, os.IsNotExist(statErr))
}

func Test_ChangePassword_Rotates_Key(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, path, "old", opts)

	db, err := lightdb.LoadEncrypted[appData](path, []byte("old"), opts)
	require.NoError(t, err)

	require.NoError(t, db.ChangePassword([]byte("new")))

	// Commits after rotation use the new key.
	require.NoError(t, db.Update(func(*appData) error { return nil }))
	require.NoError(t, db.Close())

	_, err = lightdb.LoadEncrypted[appData](path, []byte("old"), opts)
	require.ErrorIs(t, err, lightdb.ErrDecryption)

	rotated, err := lightdb.LoadEncrypted[appData](path, []byte("new"), opts)
	require.NoError(t, err)

	defer func() { _ = rotated.Close() }()

	requireUsers(t, rotated)
}

func Test_ChangePassword_Keeps_Old_Key_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	faulty := fs.NewFaulty(fs.NewReal())
	opts := testEncryptedOptions(faulty)

	createEncryptedWithUsers(t, path, "old", opts)

	db, err := lightdb.LoadEncrypted[appData](path, []byte("old"), opts)
	require.NoError(t, err)

	faulty.Inject(fs.Fault{Op: fs.FaultWrite, Path: fs.StagingPath(path), Count: 1})

	require.Error(t, db.ChangePassword([]byte("new")))
	require.NoError(t, db.Close())

	_, err = lightdb.LoadEncrypted[appData](path, []byte("new"), opts)
	require.ErrorIs(t, err, lightdb.ErrDecryption)

	again, err := lightdb.LoadEncrypted[appData](path, []byte("old"), opts)
	require.NoError(t, err)

	defer func() { _ = again.Close() }()

	requireUsers(t, again)
}

func Test_LoadEncrypted_Detects_Tampering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		tamper func(env *lightdb.Envelope)
	}{
		{"Ciphertext", func(env *lightdb.Envelope) { env.Ciphertext[0] ^= 0x01 }},
		{"Tag", func(env *lightdb.Envelope) { env.Ciphertext[len(env.Ciphertext)-1] ^= 0x80 }},
		{"Nonce", func(env *lightdb.Envelope) { env.Nonce[3] ^= 0xff }},
		{"Salt", func(env *lightdb.Envelope) { env.Salt[0] ^= 0x01 }},
		{"KDFTime", func(env *lightdb.Envelope) { env.KDF.Time++ }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "app.db")
			opts := testEncryptedOptions(nil)

			createEncryptedWithUsers(t, path, "pw", opts)

			var env lightdb.Envelope
			require.NoError(t, lightdb.CBOR.Unmarshal(readFile(t, path), &env))

			tc.tamper(&env)

			data, err := lightdb.CBOR.Marshal(&env)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = lightdb.LoadEncrypted[appData](path, []byte("pw"), opts)
			require.ErrorIs(t, err, lightdb.ErrDecryption)
		})
	}
}

func Test_LoadEncrypted_Reports_Corrupt_Envelope(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		build func(t *testing.T, valid []byte) []byte
		want  error
	}{
		{"Garbage", func(*testing.T, []byte) []byte { return []byte("garbage") }, lightdb.ErrCorruptData},
		{"Truncated", func(_ *testing.T, valid []byte) []byte { return valid[:len(valid)/2] }, lightdb.ErrCorruptData},
		{"Version", func(t *testing.T, valid []byte) []byte {
			return reencode(t, valid, func(env *lightdb.Envelope) { env.Version = 9 })
		}, lightdb.ErrCorruptData},
		{"ShortSalt", func(t *testing.T, valid []byte) []byte {
			return reencode(t, valid, func(env *lightdb.Envelope) { env.Salt = env.Salt[:4] })
		}, lightdb.ErrCorruptData},
		{"ZeroKDF", func(t *testing.T, valid []byte) []byte {
			return reencode(t, valid, func(env *lightdb.Envelope) { env.KDF = lightdb.KDFParams{} })
		}, lightdb.ErrKeyDerivation},
		{"HugeKDF", func(t *testing.T, valid []byte) []byte {
			return reencode(t, valid, func(env *lightdb.Envelope) { env.KDF.Memory = 1 << 31 })
		}, lightdb.ErrKeyDerivation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "app.db")
			opts := testEncryptedOptions(nil)

			createEncryptedWithUsers(t, path, "pw", opts)
			require.NoError(t, os.WriteFile(path, tc.build(t, readFile(t, path)), 0o600))

			_, err := lightdb.LoadEncrypted[appData](path, []byte("pw"), opts)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func reencode(t *testing.T, valid []byte, edit func(*lightdb.Envelope)) []byte {
	t.Helper()

	var env lightdb.Envelope
	require.NoError(t, lightdb.CBOR.Unmarshal(valid, &env))

	edit(&env)

	data, err := lightdb.CBOR.Marshal(&env)
	require.NoError(t, err)

	return data
}

func Test_Export_Then_CreateEncryptedFrom_Round_Trips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, src, "pw", opts)

	db, err := lightdb.LoadEncrypted[appData](src, []byte("pw"), opts)
	require.NoError(t, err)

	blob, err := db.Export()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Export()
	require.ErrorIs(t, err, lightdb.ErrClosed)

	_, err = lightdb.CreateEncryptedFrom[appData](blob, dst, []byte("nope"), opts)
	require.ErrorIs(t, err, lightdb.ErrDecryption)

	_, statErr := os.Stat(dst)
	require.True(t, os.IsNotExist(statErr), "nothing written on wrong password")

	imported, err := lightdb.CreateEncryptedFrom[appData](blob, dst, []byte("pw"), opts)
	require.NoError(t, err)

	requireUsers(t, imported)
	require.NoError(t, imported.Close())

	_, err = lightdb.CreateEncryptedFrom[appData](blob, dst, []byte("pw"), opts)
	require.ErrorIs(t, err, lightdb.ErrAlreadyExists)
}

func Test_EncryptedStore_Uses_JSON_Envelope_When_Configured(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.json")
	opts := testEncryptedOptions(nil)
	opts.EnvelopeCodec = lightdb.JSON
	opts.Codec = lightdb.YAML

	createEncryptedWithUsers(t, path, "pw", opts)

	raw := readFile(t, path)
	require.True(t, json.Valid(raw), "envelope is JSON: %s", raw)

	var env lightdb.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, lightdb.EnvelopeVersion, env.Version)
	require.Equal(t, fastKDF, env.KDF)
	require.Len(t, env.Salt, lightdb.SaltSize)

	db, err := lightdb.LoadEncrypted[appData](path, []byte("pw"), opts)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	requireUsers(t, db)
}

func Test_EncryptedStore_Uses_Fresh_Nonce_Per_Commit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	db, err := lightdb.CreateEncrypted[appData](path, []byte("pw"), opts)
	require.NoError(t, err)

	first := readFile(t, path)

	require.NoError(t, db.Update(func(*appData) error { return nil }))
	require.NoError(t, db.Close())

	second := readFile(t, path)

	var a, b lightdb.Envelope
	require.NoError(t, lightdb.CBOR.Unmarshal(first, &a))
	require.NoError(t, lightdb.CBOR.Unmarshal(second, &b))

	require.Equal(t, a.Salt, b.Salt, "salt is fixed per file")
	require.False(t, bytes.Equal(a.Nonce, b.Nonce), "nonce must change")
}

func Test_CreateEncrypted_Rejects_Invalid_KDF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)
	opts.KDF = lightdb.KDFParams{Memory: 64, Time: 0, Threads: 1}

	_, err := lightdb.CreateEncrypted[appData](path, []byte("pw"), opts)
	require.ErrorIs(t, err, lightdb.ErrKeyDerivation)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func Test_EncryptedStore_Returns_ErrClosed_After_Close(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")

	db, err := lightdb.CreateEncrypted[appData](path, []byte("pw"), testEncryptedOptions(nil))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Read()
	require.ErrorIs(t, err, lightdb.ErrClosed)

	require.ErrorIs(t, db.ChangePassword([]byte("x")), lightdb.ErrClosed)
}

func Test_Unseal_Decrypts_Without_Writing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, path, "pw", opts)

	before := readFile(t, path)

	data, err := lightdb.Unseal[appData](before, []byte("pw"), opts)
	require.NoError(t, err)
	require.Equal(t, "secret-owner", data.Owner)
	require.Equal(t, 2, data.Users.Len())

	_, err = lightdb.Unseal[appData](before, []byte("bad"), opts)
	require.ErrorIs(t, err, lightdb.ErrDecryption)

	require.Equal(t, before, readFile(t, path))
}

func Test_KDFParams_Validate_Caps_Memory_At_One_GiB(t *testing.T) {
	t.Parallel()

	atCap := lightdb.KDFParams{Memory: 1 << 20, Time: 1, Threads: 1}
	require.NoError(t, atCap.Validate())

	overCap := atCap
	overCap.Memory++
	require.ErrorIs(t, overCap.Validate(), lightdb.ErrKeyDerivation)
}

func Test_Unseal_Rejects_Envelope_Demanding_More_Than_Cap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	opts := testEncryptedOptions(nil)

	createEncryptedWithUsers(t, path, "pw", opts)

	crafted := reencode(t, readFile(t, path), func(env *lightdb.Envelope) { env.KDF.Memory = 2 << 20 })

	_, err := lightdb.Unseal[appData](crafted, []byte("pw"), opts)
	require.ErrorIs(t, err, lightdb.ErrKeyDerivation)

	_, err = lightdb.CreateEncryptedFrom[appData](crafted, filepath.Join(t.TempDir(), "copy.db"), []byte("pw"), opts)
	require.ErrorIs(t, err, lightdb.ErrKeyDerivation)
}

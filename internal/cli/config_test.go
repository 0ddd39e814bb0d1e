package cli_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/calvinalkan/lightdb/internal/cli"
)

// Tests for print-config command.

func Test_Print_Config_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "codec=json")
	cli.AssertContains(t, stdout, "encrypted=false")
	cli.AssertContains(t, stdout, "envelope_codec=cbor")
	cli.AssertContains(t, stdout, "kdf.memory_kib=65536")
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_From_Config_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{
		// binary on disk
		"codec": "cbor",
		"kdf": {"time": 2,},
	}`)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "codec=cbor")
	cli.AssertContains(t, stdout, "kdf.time=2")
	cli.AssertContains(t, stdout, "kdf.memory_kib=65536")
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, ".lightdb.json"))
}

func Test_Print_Config_Explicit_Config_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"codec": "cbor"}`)
	writeFile(t, filepath.Join(c.Dir, "custom.json"), `{"codec": "yaml"}`)

	stdout := c.MustRun("--config=custom.json", "print-config")
	cli.AssertContains(t, stdout, "codec=yaml")
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, "custom.json"))
}

func Test_Print_Config_Flags_Override_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"codec": "cbor", "encrypted": false, "log_level": "info"}`)

	stdout := c.MustRun("--codec", "yaml", "-e", "-q", "print-config")
	cli.AssertContains(t, stdout, "codec=yaml")
	cli.AssertContains(t, stdout, "encrypted=true")
	cli.AssertContains(t, stdout, "log_level=error")
}

func Test_Print_Config_Encrypted_False_Flag_Overrides_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"encrypted": true}`)

	stdout := c.MustRun("--encrypted=false", "print-config")
	cli.AssertContains(t, stdout, "encrypted=false")
}

// Tests for config errors.

func Test_Config_Explicit_Config_Not_Found_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("-c", "nonexistent.json", "print-config")
	cli.AssertContains(t, stderr, "config file not found")
}

func Test_Config_Invalid_JSON_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{invalid json}`)

	stderr := c.MustFail("print-config")
	cli.AssertContains(t, stderr, "invalid")
}

func Test_Config_Unknown_Field_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"data_dir": "db"}`)

	stderr := c.MustFail("print-config")
	cli.AssertContains(t, stderr, "unknown field")
}

func Test_Config_Invalid_Codec_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--codec", "xml", "print-config")
	cli.AssertContains(t, stderr, "codec")
	cli.AssertContains(t, stderr, "xml")
}

func Test_Config_Invalid_KDF_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"kdf": {"time": 0}}`)

	stderr := c.MustFail("print-config")
	cli.AssertContains(t, stderr, "kdf")
}

// Tests for flag parsing errors.

func Test_Flags_Config_Requires_Argument_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("-c")
	cli.AssertContains(t, stderr, "flag needs an argument")
}

func Test_Flags_Unknown_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--unknown-flag", "print-config")
	cli.AssertContains(t, stderr, "unknown flag")
}

// Tests for unknown command.

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("not-a-command")
	cli.AssertContains(t, stderr, "unknown command")
	cli.AssertContains(t, stderr, "not-a-command")
	cli.AssertContains(t, stderr, "Usage:")
	cli.AssertContains(t, stderr, "Commands:")
}

// Tests for help.

func Test_Help_Dash_H_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("-h")
	cli.AssertContains(t, stdout, "lightdb - single-file document database")
	cli.AssertContains(t, stdout, "repair <path> [flags]")
}

func Test_Help_No_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()
	cli.AssertContains(t, stdout, "Commands:")
}

func Test_Command_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("export", "--help")
	cli.AssertContains(t, stdout, "Usage: lightdb export <path> <out> [flags]")
	cli.AssertContains(t, stdout, "--plain")
}

// Tests for global config.

func Test_Config_Global_Config_Loaded_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdgDir := t.TempDir()
	globalPath := filepath.Join(xdgDir, "lightdb", "config.json")

	writeFile(t, globalPath, `{"codec": "yaml", "log_level": "debug"}`)

	c.Env["XDG_CONFIG_HOME"] = xdgDir
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "codec=yaml")
	cli.AssertContains(t, stdout, "log_level=debug")
	cli.AssertContains(t, stdout, "global_config="+globalPath)
}

func Test_Config_Precedence_Project_Overrides_Global_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdgDir := t.TempDir()

	writeFile(t, filepath.Join(xdgDir, "lightdb", "config.json"), `{"codec": "yaml", "log_level": "debug"}`)
	writeFile(t, filepath.Join(c.Dir, ".lightdb.json"), `{"codec": "cbor"}`)

	c.Env["XDG_CONFIG_HOME"] = xdgDir
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "codec=cbor")
	cli.AssertContains(t, stdout, "log_level=debug")
}

func Test_Config_Global_Config_From_Home_When_No_XDG(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Env["HOME"], ".config", "lightdb", "config.json"), `{"encrypted": true}`)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "encrypted=true")
}

// Tests for LoadConfig.

func Test_LoadConfig_Merges_Layers_When_All_Present(t *testing.T) {
	t.Parallel()

	work := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "lightdb", "config.json"), `{"kdf": {"memory_kib": 1024, "threads": 2}}`)
	writeFile(t, filepath.Join(work, ".lightdb.json"), `{"kdf": {"threads": 4}, "envelope_codec": "json"}`)

	yes := true

	cfg, err := cli.LoadConfig(cli.LoadConfigInput{
		WorkDirOverride: work,
		Overrides:       cli.ConfigOverrides{Encrypted: &yes, LogLevel: "info"},
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := cli.Config{
		Codec:         "json",
		EnvelopeCodec: "json",
		Encrypted:     true,
		LogLevel:      "info",
		KDF:           cli.KDFConfig{MemoryKiB: 1024, Time: 3, Threads: 4},
		EffectiveCwd:  work,
	}

	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreFields(cli.Config{}, "Sources")); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func Test_LoadConfig_Returns_ErrConfigInvalid_When_Log_Level_Unknown(t *testing.T) {
	t.Parallel()

	_, err := cli.LoadConfig(cli.LoadConfigInput{
		WorkDirOverride: t.TempDir(),
		Overrides:       cli.ConfigOverrides{LogLevel: "chatty"},
	})
	if !errors.Is(err, cli.ErrConfigInvalid) {
		t.Fatalf("err=%v, want ErrConfigInvalid", err)
	}
}

// Helper to write a file (creates directories as needed).
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		t.Fatalf("failed to create dir %s: %v", dir, err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

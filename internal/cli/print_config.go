package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("codec=" + cfg.Codec)
	io.Println("encrypted=" + strconv.FormatBool(cfg.Encrypted))
	io.Println("envelope_codec=" + cfg.EnvelopeCodec)
	io.Println("log_level=" + cfg.LogLevel)
	io.Printf("kdf.memory_kib=%d\n", cfg.KDF.MemoryKiB)
	io.Printf("kdf.time=%d\n", cfg.KDF.Time)
	io.Printf("kdf.threads=%d\n", cfg.KDF.Threads)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns exit code.
//
// args includes the program name. sigCh may be nil; a signal on it cancels
// the context passed to the running command.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("lightdb", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	codec := globals.String("codec", "", "Database codec: json, yaml or cbor")
	encrypted := globals.BoolP("encrypted", "e", false, "Treat databases as encrypted")
	verbose := globals.BoolP("verbose", "v", false, "Log debug output to stderr")
	quiet := globals.BoolP("quiet", "q", false, "Log errors only")
	help := globals.BoolP("help", "h", false, "Show help")

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	if err := globals.Parse(rest); err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	overrides := ConfigOverrides{Codec: *codec}

	if globals.Changed("encrypted") {
		overrides.Encrypted = encrypted
	}

	switch {
	case *verbose:
		overrides.LogLevel = "debug"
	case *quiet:
		overrides.LogLevel = "error"
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides:       overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	level, _ := parseLogLevel(cfg.LogLevel)

	d := &deps{
		cfg:       &cfg,
		logger:    newLogger(errOut, level),
		passwords: newPasswordReader(stdin, env),
	}

	commands := allCommands(d)

	cmdArgs := globals.Args()
	if *help || len(cmdArgs) == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	name := cmdArgs[0]

	var cmd *Command

	for _, c := range commands {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				d.logger.Warn("interrupted, finishing current write")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)

	if code := cmd.Run(ctx, o, cmdArgs[1:]); code != 0 {
		return code
	}

	return o.Finish()
}

func allCommands(d *deps) []*Command {
	return []*Command{
		InitCmd(d),
		DumpCmd(d),
		PasswdCmd(d),
		ExportCmd(d),
		ImportCmd(d),
		RepairCmd(d),
		PrintConfigCmd(d.cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `lightdb - single-file document database

Usage: lightdb [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})

	_, _ = io.WriteString(w, buf.String())

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'lightdb <command> --help' for command details.")
}

// errCanceled reports ctx cancellation with the command name.
func errCanceled(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

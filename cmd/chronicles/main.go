package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/loggerchronicles/chronicles_sdk_go/internal/config"
	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles"
)

const usage = `usage: chronicles [global flags] <command> [flags] [args]

commands:
  backup -type CODE -serial SERIAL [-date YYYY-MM-DD] [-async] FILE
  ls     [-match GLOB] [PATH]
  get    [-o FILE] PATH

global flags:
  -conf FILE  -host URL  -api-key KEY  -api-version V  -ask-key  -debug
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type app struct {
	client *chronicles.Client
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, flags, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stdout, usage)
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 2
	}
	sync := logInject(cfg.Debug)
	defer sync()

	if flags.AskKey {
		key, err := promptKey(stderr)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		cfg.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(flags.Args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	client, err := chronicles.New(cfg.ClientConfig(), chronicles.WithLogger(zap.L()))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	a := &app{client: client, stdout: stdout, stderr: stderr}

	cmd, rest := flags.Args[0], flags.Args[1:]
	switch cmd {
	case "backup":
		err = a.backup(ctx, rest)
	case "ls":
		err = a.list(ctx, rest)
	case "get":
		err = a.get(ctx, rest)
	default:
		err = usagef("unknown command %q", cmd)
	}
	return a.exitCode(cmd, err)
}

// usageError marks mistakes in how a command was invoked, as opposed to
// failures while carrying it out.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: errors.Errorf(format, args...)}
}

// parseFlags parses a subcommand's flags. The FlagSet stays silent so every
// error is reported once, by exitCode.
func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{err: err}
	}
	return nil
}

func (a *app) exitCode(cmd string, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(a.stdout, usage)
		return 0
	}
	zap.L().Debug("command failed", zap.String("command", cmd), zap.Error(err))
	fmt.Fprintln(a.stderr, err)
	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprint(a.stderr, usage)
		return 2
	}
	return 1
}

func (a *app) backup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	typeCode := fs.String("type", "", "logger type code")
	serial := fs.String("serial", "", "logger serial number")
	date := fs.String("date", time.Now().Format(chronicles.TimestampLayout), "recording date (YYYY-MM-DD)")
	async := fs.Bool("async", false, "upload in the background and report progress")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("backup expects exactly one FILE argument")
	}
	if strings.TrimSpace(*typeCode) == "" || strings.TrimSpace(*serial) == "" {
		return usagef("backup requires -type and -serial")
	}
	ts, err := time.Parse(chronicles.TimestampLayout, *date)
	if err != nil {
		return usagef("invalid -date %q: want YYYY-MM-DD", *date)
	}
	file := fs.Arg(0)

	var res *chronicles.PostResult
	if *async {
		res, err = a.waitBackup(a.client.BackupAsync(ctx, *typeCode, *serial, ts, file))
	} else {
		res, err = a.client.Backup(ctx, *typeCode, *serial, ts, file)
	}
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "uploaded %s (status %d)\n", file, res.StatusCode)
	return nil
}

func (a *app) waitBackup(pending *chronicles.PendingBackup) (*chronicles.PostResult, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	started := time.Now()
	for {
		select {
		case <-pending.Done():
			return pending.Wait()
		case <-ticker.C:
			fmt.Fprintf(a.stderr, "still uploading after %s\n", time.Since(started).Round(time.Second))
		}
	}
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	match := fs.String("match", "", "only show entries whose name matches the glob")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usagef("ls expects at most one PATH argument")
	}

	var filter glob.Glob
	if *match != "" {
		g, err := glob.Compile(*match)
		if err != nil {
			return usagef("invalid -match pattern %q: %v", *match, err)
		}
		filter = g
	}

	res, err := a.client.Navigate(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	for _, e := range res.Entries {
		if filter != nil && !filter.Match(e.Name) {
			continue
		}
		kind := "d"
		if e.IsFile {
			kind = "f"
		}
		fmt.Fprintf(a.stdout, "%s %s\n", kind, e.Name)
	}
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	out := fs.String("o", "", "write the file here instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("get expects exactly one PATH argument")
	}
	path := fs.Arg(0)

	if *out == "" {
		res, _, err := a.client.DownloadTo(ctx, path, a.stdout)
		if err != nil {
			return err
		}
		return res.Err()
	}

	f, err := os.Create(*out)
	if err != nil {
		return errors.Wrapf(err, "create %s", *out)
	}
	res, n, err := a.client.DownloadTo(ctx, path, f)
	closeErr := f.Close()
	if err == nil && res.Err() != nil {
		err = res.Err()
	}
	if err != nil {
		_ = os.Remove(*out)
		return err
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "close %s", *out)
	}
	fmt.Fprintf(a.stderr, "saved %s (%d bytes, %s)\n", *out, n, res.MimeType)
	return nil
}

func promptKey(stderr io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("-ask-key needs an interactive terminal")
	}
	fmt.Fprint(stderr, "API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", errors.Wrap(err, "read API key")
	}
	return strings.TrimSpace(string(key)), nil
}

func logInject(debug bool) func() {
	atom := zap.NewAtomicLevel()
	if debug {
		atom.SetLevel(zap.DebugLevel)
	} else {
		atom.SetLevel(zap.WarnLevel)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atom
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return func() {}
	}
	undo := zap.ReplaceGlobals(logger)
	zap.L().Debug("debug enabled")
	return func() {
		_ = logger.Sync()
		undo()
	}
}

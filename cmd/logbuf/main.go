package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/coffersTech/logbuf"
	"github.com/coffersTech/logbuf/internal/config"
	"github.com/coffersTech/logbuf/internal/logging"
)

const usage = `Usage: logbuf [global flags] <command> [flags]

Commands:
  emit       store one log entry
  query      print stored entries as JSON lines
  report     send stored entries to the collector
  stats      print store statistics
  wipe       delete stored entries
  collector  run a development collector

Global flags:
`

type command func(ctx context.Context, g *globals, args []string) error

var commands = map[string]command{
	"emit":      runEmit,
	"query":     runQuery,
	"report":    runReport,
	"stats":     runStats,
	"wipe":      runWipe,
	"collector": runCollector,
}

// globals holds flags shared by every command.
type globals struct {
	configPath string
	appKey     string
	dbPath     string
	reportURL  string
	verbose    bool
	echo       bool

	out    io.Writer
	logger zerolog.Logger
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "logbuf:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	g := &globals{out: out}
	fs := flag.NewFlagSet("logbuf", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.configPath, "config", "c", "", "YAML or JSONC config file (default: LOGBUF_* environment)")
	fs.StringVar(&g.appKey, "app-key", "", "override the configured app key")
	fs.StringVar(&g.dbPath, "db", "", "override the configured storage path")
	fs.StringVar(&g.reportURL, "report-url", "", "override the configured report URL")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "debug-level operational logging")
	fs.BoolVar(&g.echo, "echo", false, "enable the diagnostic echo on stderr")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if g.verbose {
		level = zerolog.DebugLevel
	}
	g.logger = logging.New(os.Stderr, level)

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
	return cmd(ctx, g, fs.Args()[1:])
}

// options loads the config file, or the environment when none is given, and
// applies command-line overrides.
func (g *globals) options() (logbuf.Options, error) {
	var (
		opts logbuf.Options
		err  error
	)
	if g.configPath != "" {
		opts, err = config.Load(g.configPath)
	} else {
		opts, err = config.FromEnv()
	}
	if err != nil {
		return opts, err
	}
	if g.appKey != "" {
		opts.AppKey = g.appKey
	}
	if g.dbPath != "" {
		opts.StoragePath = g.dbPath
	}
	if g.reportURL != "" {
		opts.ReportURL = g.reportURL
	}
	if g.echo {
		opts.EnableDiagnosticEcho = true
	}
	return opts, nil
}

// open builds a Logger and fails when its store is unavailable, since every
// store-backed command needs one.
func (g *globals) open(ctx context.Context) (*logbuf.Logger, error) {
	opts, err := g.options()
	if err != nil {
		return nil, err
	}
	l, err := logbuf.New(ctx, opts, logbuf.WithLogger(g.logger))
	if err != nil {
		return nil, err
	}
	if !l.Capable() {
		l.Close(ctx)
		return nil, fmt.Errorf("%w: %s", logbuf.ErrStorageUnavailable, opts.StoragePath)
	}
	return l, nil
}

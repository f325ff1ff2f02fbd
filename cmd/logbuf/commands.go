package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/coffersTech/logbuf"
	"github.com/coffersTech/logbuf/internal/collector"
)

const shutdownTimeout = 5 * time.Second

func runEmit(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("emit", flag.ContinueOnError)
	levelName := fs.StringP("level", "l", "info", "trace, info, warn, error, fatal or assert")
	userID := fs.StringP("user", "u", "", "user id for this entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("emit: missing message")
	}
	level, err := logbuf.ParseLevel(*levelName)
	if err != nil {
		return err
	}

	l, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	msg := strings.Join(fs.Args(), " ")
	if level == logbuf.LevelAssert {
		return l.Assert(ctx, false, msg, *userID)
	}
	return l.Emit(ctx, level, msg, *userID)
}

func runQuery(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	days := fs.Float64P("days", "d", logbuf.DefaultQueryDays, "look-back window in days")
	contains := fs.String("contains", "", "return entries whose text contains this instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	var entries []logbuf.LogEntry
	if fs.Changed("contains") {
		entries, err = l.QueryByContent(ctx, *contains)
	} else {
		entries, err = l.QueryByDays(ctx, *days)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.out)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func runReport(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	days := fs.Float64P("days", "d", logbuf.DefaultQueryDays, "look-back window in days")
	immediate := fs.Bool("immediate", false, "send in one request instead of batching")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for delivery")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)
	if !l.Options().ReportingEnabled() {
		return errors.New("report: no report url configured")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	ticket, err := l.Report(ctx, *days, *immediate)
	if err != nil {
		return err
	}
	if err := l.Flush(ctx); err != nil {
		return err
	}
	return ticket.Wait(ctx)
}

func runStats(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	interval := fs.Duration("histogram", 0, "also print entry counts per interval over --days")
	days := fs.Float64P("days", "d", logbuf.DefaultQueryDays, "histogram window in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	st, err := l.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.out)
	enc.SetIndent("", "  ")
	if *interval <= 0 {
		return enc.Encode(st)
	}

	end := time.Now()
	start := end.Add(-time.Duration(*days * float64(24*time.Hour)))
	points, err := l.Histogram(ctx, start, end, *interval)
	if err != nil {
		return err
	}
	return enc.Encode(struct {
		logbuf.Stats
		Histogram []logbuf.HistogramPoint `json:"histogram"`
	}{st, points})
}

func runWipe(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	drop := fs.Bool("drop", false, "delete the database files instead of emptying them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *drop {
		opts, err := g.options()
		if err != nil {
			return err
		}
		return logbuf.DeleteLogDB(opts.StoragePath)
	}

	l, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)
	return l.Wipe(ctx)
}

func runCollector(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("collector", flag.ContinueOnError)
	addr := fs.String("addr", ":8090", "listen address")
	tokens := fs.StringSlice("token", nil, "accepted bearer token (repeatable); none disables auth")
	clientTimeout := fs.Duration("client-timeout", 10*time.Minute, "forget clients silent for this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ts, err := collector.NewTokenSet(*tokens...)
	if err != nil {
		return err
	}
	srv, err := collector.NewServer(collector.Options{Tokens: ts, Logger: g.logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.Registry().RunCleanup(ctx, time.Minute, *clientTimeout)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(*addr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errc:
		return fmt.Errorf("collector stopped: %w", err)
	case sig := <-quit:
		g.logger.Warn().Stringer("signal", sig).Msg("shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

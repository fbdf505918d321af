// Command seectrace-selftest is a diagnostic CLI that validates a trace
// file's block-chain self-description (P8) and dumps a summary: the
// ProcessTrace block's module identifier and global/function counts, and —
// when given an optional replay index — each indexed thread's ThreadEvents
// block chain length and validity. It can poll a still-being-written trace
// file rather than failing immediately, the way a tracer's own output
// stream might still be mid-flush when this tool is run against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seec-team/seectrace/internal/replayindex"
)

func main() {
	tracePath := flag.String("trace", "", "path to the trace file to validate (required)")
	replayIndexDSN := flag.String("replay-index", "", "optional replay index DSN (SQLite path or postgres:// URI) to validate thread chains against")
	pollFor := flag.Duration("poll", 0, "keep retrying for up to this long if the trace file isn't ready yet (0 disables polling)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if *tracePath == "" {
		fmt.Fprintln(os.Stderr, "seectrace-selftest: -trace is required")
		os.Exit(2)
	}

	ctx := context.Background()
	summary, chains, err := run(ctx, *tracePath, *replayIndexDSN, *pollFor, logger)
	if err != nil {
		logger.Error("validation failed", slog.String("trace", *tracePath), slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(os.Stdout, summary, chains)

	for _, c := range chains {
		if c.err != nil {
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, tracePath, replayIndexDSN string, pollFor time.Duration, logger *slog.Logger) (processTraceSummary, []threadChainSummary, error) {
	var summary processTraceSummary
	var chains []threadChainSummary

	attempt := func() error {
		s, c, err := validate(ctx, tracePath, replayIndexDSN)
		if err != nil {
			logger.Debug("validation attempt failed, will retry if polling", slog.Any("error", err))
			return err
		}
		summary, chains = s, c
		return nil
	}

	if pollFor <= 0 {
		if err := attempt(); err != nil {
			return processTraceSummary{}, nil, err
		}
		return summary, chains, nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = pollFor
	if err := backoff.Retry(attempt, b); err != nil {
		return processTraceSummary{}, nil, err
	}
	return summary, chains, nil
}

func validate(ctx context.Context, tracePath, replayIndexDSN string) (processTraceSummary, []threadChainSummary, error) {
	f, err := os.Open(tracePath)
	if err != nil {
		return processTraceSummary{}, nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	if err := verifyMagic(f); err != nil {
		return processTraceSummary{}, nil, err
	}

	summary, err := readProcessTrace(f)
	if err != nil {
		return processTraceSummary{}, nil, err
	}

	if replayIndexDSN == "" {
		return summary, nil, nil
	}

	info, err := f.Stat()
	if err != nil {
		return processTraceSummary{}, nil, fmt.Errorf("stat trace file: %w", err)
	}

	idx, err := replayindex.Open(ctx, replayIndexDSN)
	if err != nil {
		return processTraceSummary{}, nil, fmt.Errorf("open replay index: %w", err)
	}
	defer idx.Close()

	threadIDs, err := idx.ThreadIDs(ctx)
	if err != nil {
		return processTraceSummary{}, nil, fmt.Errorf("list indexed threads: %w", err)
	}

	chains, err := walkIndexedThreads(ctx, f, info.Size(), idx, threadIDs)
	if err != nil {
		return processTraceSummary{}, nil, err
	}
	return summary, chains, nil
}

func printSummary(w io.Writer, summary processTraceSummary, chains []threadChainSummary) {
	fmt.Fprintf(w, "format version: %d\n", summary.formatVersion)
	fmt.Fprintf(w, "module identifier: %s\n", summary.identifier)
	fmt.Fprintf(w, "globals: %d\n", summary.globalCount)
	fmt.Fprintf(w, "functions: %d\n", summary.functionCount)

	if len(chains) == 0 {
		return
	}
	fmt.Fprintf(w, "threads:\n")
	for _, c := range chains {
		if c.err != nil {
			fmt.Fprintf(w, "  thread %d: INVALID: %v\n", c.threadID, c.err)
			continue
		}
		fmt.Fprintf(w, "  thread %d: %d block(s) OK\n", c.threadID, c.blockCount)
	}
}

// newLogger builds a JSON-to-stderr logger at the given level name,
// matching the teacher's cmd/agent newLogger helper and
// processlistener.NewLogger.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

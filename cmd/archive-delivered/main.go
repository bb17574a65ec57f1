// Command archive-delivered compacts delivered order artifacts into a
// single gzip-compressed NDJSON archive. It is an operational tool for
// keeping the delivered directory small on long-running deployments.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const readConcurrency = 8

func main() {
	var (
		dir  = flag.String("dir", "data/delivered-order", "delivered artifact directory")
		out  = flag.String("out", "delivered-orders.ndjson.gz", "output archive path")
		keep = flag.Bool("keep", false, "keep artifacts after archiving")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *dir, *out, *keep); err != nil {
		slog.Error("archive failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir, out string, keep bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		slog.Info("nothing to archive", "dir", dir)
		return nil
	}

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "create %s", out)
	}
	zw := pgzip.NewWriter(f)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One writer owns the gzip stream; readers compact artifacts
	// concurrently and hand over complete lines. A write failure must
	// cancel the readers, or they block on the channel forever once the
	// writer stops draining it.
	lines := make(chan []byte, readConcurrency)
	writerDone := make(chan error, 1)
	go func() {
		for line := range lines {
			if _, err := zw.Write(line); err != nil {
				cancel()
				writerDone <- errors.Wrap(err, "write archive")
				return
			}
		}
		writerDone <- nil
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for _, name := range names {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return errors.Wrapf(err, "read %s", name)
			}
			var buf bytes.Buffer
			if err := json.Compact(&buf, data); err != nil {
				return errors.Wrapf(err, "compact %s", name)
			}
			buf.WriteByte('\n')

			select {
			case <-gctx.Done():
				return gctx.Err()
			case lines <- buf.Bytes():
				return nil
			}
		})
	}

	runErr := g.Wait()
	close(lines)
	if err := <-writerDone; err != nil {
		// The write failure is the root cause; any reader errors are
		// just the cancellation it triggered.
		runErr = err
	}
	if err := zw.Close(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "close gzip stream")
	}
	if err := f.Close(); err != nil && runErr == nil {
		runErr = errors.Wrapf(err, "close %s", out)
	}
	if runErr != nil {
		return runErr
	}

	if !keep {
		for _, name := range names {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				slog.Warn("remove archived artifact", "name", name, "err", err)
			}
		}
	}

	slog.Info("archive complete", "files", len(names), "out", out)
	return nil
}

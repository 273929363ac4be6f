package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cdpchain/integrations/exports"
	"cdpchain/observability/logging"
	"cdpchain/services/cdpd/indexer"
)

func main() {
	var (
		driver string
		dsn    string
		format string
		out    string
		after  uint64
		kind   string
	)
	flag.StringVar(&driver, "driver", "sqlite", "index driver (sqlite|postgres)")
	flag.StringVar(&dsn, "dsn", "file:cdp-index.db", "index data source name")
	flag.StringVar(&format, "format", "jsonl", "output format (jsonl|csv|parquet)")
	flag.StringVar(&out, "out", "-", "output path, - for stdout")
	flag.Uint64Var(&after, "after", 0, "export events with a sequence above this cursor")
	flag.StringVar(&kind, "type", "", "only export events of this type")
	flag.Parse()

	logger := logging.Setup("cdp-export", os.Getenv("CDP_ENV"))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, driver, dsn, strings.ToLower(format), out, after, kind); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, driver, dsn, format, out string, after uint64, kind string) error {
	db, err := indexer.Open(driver, dsn)
	if err != nil {
		return err
	}
	idx, err := indexer.New(db, logger)
	if err != nil {
		return err
	}
	dst, closeDst, err := openOutput(out)
	if err != nil {
		return err
	}
	defer closeDst()

	keep := func(rec indexer.EventRecord) bool { return kind == "" || rec.Type == kind }

	switch format {
	case "parquet":
		pw, err := exports.NewParquetWriter(dst)
		if err != nil {
			return err
		}
		err = idx.Each(ctx, after, func(rec indexer.EventRecord) error {
			if !keep(rec) {
				return nil
			}
			return pw.Write(rec)
		})
		if stopErr := pw.Stop(); err == nil {
			err = stopErr
		}
		if err != nil {
			return err
		}
		logger.Info("export written", "format", format, "rows", pw.Rows(), "out", out)
		return nil
	case "jsonl", "csv":
		var records []indexer.EventRecord
		err := idx.Each(ctx, after, func(rec indexer.EventRecord) error {
			if keep(rec) {
				records = append(records, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		encode := exports.EventsJSONL
		if format == "csv" {
			encode = exports.EventsCSV
		}
		data, checksum, err := encode(records)
		if err != nil {
			return err
		}
		if _, err := dst.Write(data); err != nil {
			return err
		}
		logger.Info("export written", "format", format, "rows", len(records), "sha256", checksum, "out", out)
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return file, func() { _ = file.Close() }, nil
}

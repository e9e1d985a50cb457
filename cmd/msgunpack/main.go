// Command msgunpack prints the values of a MessagePack stream, one per line.
//
// The stream is read from the files given as arguments, from standard input,
// or from a TCP connection with --addr, optionally through a gzip, zstd,
// snappy or lz4 decoder. Values are decoded incrementally, so the stream
// never has to fit in memory.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oy3o/unpack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(os.Stdin, os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "msgunpack",
		Usage:     "Print the values of a MessagePack stream, one per line",
		ArgsUsage: "[file...]",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
				EnvVars: []string{"MSGUNPACK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Read from a TCP address instead of files",
			},
			&cli.DurationFlag{
				Name:  "dial-timeout",
				Value: 5 * time.Second,
				Usage: "Timeout for connecting to --addr",
			},
			&cli.StringFlag{
				Name:  "reserve-size",
				Value: humanize.IBytes(unpack.DefaultReserveSize),
				Usage: "Buffer reserve size, e.g. 64KiB",
			},
			&cli.StringFlag{
				Name:  "size-limit",
				Usage: "Largest buffer a single value may need, e.g. 16MiB (default unlimited)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "One of debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "compression",
				Value: compressionAuto,
				Usage: "Input compression: auto, none, gzip, zstd, snappy or lz4 (auto picks by file extension)",
			},
			&cli.BoolFlag{
				Name:  "types",
				Usage: "Print the MessagePack type of each value",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write decoder metrics in the Prometheus text format to this file",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c.App.ErrWriter, cfg.LogLevel)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	d := &dumper{
		out:    c.App.Writer,
		logger: logger,
		types:  c.Bool("types"),
		opts: &unpack.Options{
			ReserveSize: cfg.ReserveSize,
			SizeLimit:   cfg.SizeLimit,
			Logger:      logger,
			Metrics:     unpack.NewMetrics(reg),
		},
	}

	start := time.Now()
	inputs, err := dumpInputs(c, cfg, d)
	level.Info(logger).Log(
		"msg", "done",
		"inputs", inputs,
		"values", d.values,
		"bytes", humanize.IBytes(uint64(d.bytes)),
		"buffer", humanize.IBytes(uint64(d.capacity)),
		"duration", time.Since(start),
	)

	if path := c.String("metrics-file"); path != "" {
		if werr := prometheus.WriteToTextfile(path, reg); werr != nil && err == nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}
	return err
}

// dumpInputs feeds the configured inputs through d and returns how many were read.
func dumpInputs(c *cli.Context, cfg config, d *dumper) (int, error) {
	if cfg.Address != "" {
		return 1, dumpRemote(c.Context, cfg, d)
	}

	args := c.Args().Slice()
	if len(args) == 0 {
		args = []string{"-"}
	}
	for i, name := range args {
		if err := dumpFile(c.App.Reader, name, cfg.Compression, d); err != nil {
			return i, err
		}
	}
	return len(args), nil
}

func dumpFile(stdin io.Reader, name, compression string, d *dumper) error {
	if name == "-" {
		return dumpStream("stdin", stdin, resolveCompression(compression, ""), d)
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return dumpStream(name, f, resolveCompression(compression, name), d)
}

func dumpStream(name string, r io.Reader, codec string, d *dumper) error {
	rc, err := decompress(codec, r)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer rc.Close()
	if codec != compressionNone {
		level.Debug(d.logger).Log("msg", "decompressing", "input", name, "codec", codec)
	}
	return d.dump(name, rc)
}

func dumpRemote(ctx context.Context, cfg config, d *dumper) error {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	defer conn.Close()

	// Unblock a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	level.Debug(d.logger).Log("msg", "connected", "addr", conn.RemoteAddr())
	return dumpStream(cfg.Address, conn, resolveCompression(cfg.Compression, ""), d)
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	v, err := level.Parse(lvl)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, level.Allow(v))
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}

package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/oy3o/unpack"
	"github.com/urfave/cli/v2"
)

type config struct {
	ReserveSize int
	SizeLimit   int
	LogLevel    string
	Address     string
	DialTimeout time.Duration
	Compression string
}

func defaultConfig() config {
	return config{
		ReserveSize: unpack.DefaultReserveSize,
		LogLevel:    "info",
		DialTimeout: 5 * time.Second,
		Compression: compressionAuto,
	}
}

type fileConfig struct {
	ReserveSize string `toml:"reserve_size"`
	SizeLimit   string `toml:"size_limit"`
	LogLevel    string `toml:"log_level"`
	Address     string `toml:"address"`
	DialTimeout string `toml:"dial_timeout"`
	Compression string `toml:"compression"`
}

// loadConfig overlays the keys present in the TOML file at path onto cfg.
func loadConfig(path string, cfg config) (config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("reserve_size") {
		if cfg.ReserveSize, err = parseSize(raw.ReserveSize); err != nil {
			return config{}, fmt.Errorf("parse reserve_size: %w", err)
		}
	}
	if meta.IsDefined("size_limit") {
		if cfg.SizeLimit, err = parseSize(raw.SizeLimit); err != nil {
			return config{}, fmt.Errorf("parse size_limit: %w", err)
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("dial_timeout") {
		if cfg.DialTimeout, err = time.ParseDuration(strings.TrimSpace(raw.DialTimeout)); err != nil {
			return config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
	}
	if meta.IsDefined("compression") {
		cfg.Compression = strings.ToLower(strings.TrimSpace(raw.Compression))
		if err := validCompression(cfg.Compression); err != nil {
			return config{}, fmt.Errorf("load config: %w", err)
		}
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(c *cli.Context, cfg config) (config, error) {
	var err error
	if c.IsSet("reserve-size") {
		if cfg.ReserveSize, err = parseSize(c.String("reserve-size")); err != nil {
			return config{}, fmt.Errorf("parse --reserve-size: %w", err)
		}
	}
	if c.IsSet("size-limit") {
		if cfg.SizeLimit, err = parseSize(c.String("size-limit")); err != nil {
			return config{}, fmt.Errorf("parse --size-limit: %w", err)
		}
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("addr") {
		cfg.Address = c.String("addr")
	}
	if c.IsSet("dial-timeout") {
		cfg.DialTimeout = c.Duration("dial-timeout")
	}
	if c.IsSet("compression") {
		cfg.Compression = strings.ToLower(c.String("compression"))
		if err := validCompression(cfg.Compression); err != nil {
			return config{}, fmt.Errorf("parse --compression: %w", err)
		}
	}
	return cfg, nil
}

func resolveConfig(c *cli.Context) (config, error) {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = loadConfig(path, cfg); err != nil {
			return config{}, err
		}
	}
	return applyFlags(c, cfg)
}

// parseSize accepts plain byte counts and human sizes such as "64KiB" or "1 MB".
func parseSize(s string) (int, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%s is too large", humanize.IBytes(n))
	}
	return int(n), nil
}

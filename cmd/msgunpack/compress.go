package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	compressionAuto   = "auto"
	compressionNone   = "none"
	compressionGzip   = "gzip"
	compressionZstd   = "zstd"
	compressionSnappy = "snappy"
	compressionLZ4    = "lz4"
)

var compressionExtensions = map[string]string{
	".gz":  compressionGzip,
	".zst": compressionZstd,
	".sz":  compressionSnappy,
	".lz4": compressionLZ4,
}

func validCompression(mode string) error {
	switch mode {
	case compressionAuto, compressionNone, compressionGzip, compressionZstd, compressionSnappy, compressionLZ4:
		return nil
	}
	return fmt.Errorf("unknown compression %q, supported: auto, none, gzip, zstd, snappy, lz4", mode)
}

// resolveCompression turns auto into a concrete codec using the file extension of name.
func resolveCompression(mode, name string) string {
	if mode != compressionAuto {
		return mode
	}
	if codec, ok := compressionExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return codec
	}
	return compressionNone
}

type closerFunc struct {
	io.Reader
	onClose func() error
}

func (c *closerFunc) Close() error { return c.onClose() }

func nopClose() error { return nil }

// decompress wraps r in a decoder for codec. Closing the result releases the
// decoder but never closes r.
func decompress(codec string, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case compressionNone:
		return &closerFunc{Reader: r, onClose: nopClose}, nil
	case compressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, nil
	case compressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case compressionSnappy:
		return &closerFunc{Reader: snappy.NewReader(r), onClose: nopClose}, nil
	case compressionLZ4:
		return &closerFunc{Reader: lz4.NewReader(r), onClose: nopClose}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", codec)
}

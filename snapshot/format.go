package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	// MagicNumber identifies snapshot blobs (ASCII: "CDB0").
	MagicNumber = 0x43444230
	// Version is the current snapshot format version.
	Version = 0x00010000
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrUnknownCodec   = errors.New("unknown codec")
)

// Compression selects how the snapshot payload is compressed. The
// header records the choice, so any compression can read any snapshot.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Validate reports whether the compression name is known.
func (c Compression) Validate() error {
	switch c {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return nil
	default:
		return fmt.Errorf("unknown compression %q", string(c))
	}
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		out := enc.EncodeAll(data, nil)
		_ = enc.Close()
		return out, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

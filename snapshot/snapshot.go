// Package snapshot serializes the corpus state to a blob store and
// restores it. Snapshots carry only the rows; search indexes are
// projections and are rebuilt from the rows on restore.
//
// Blob layout, little endian:
//
//	magic    uint32
//	version  uint32
//	codec    uint8 length + name bytes
//	compress uint8 length + name bytes
//	checksum uint32 (CRC32 IEEE of the compressed payload)
//	length   uint64
//	payload  compressed codec-encoded store state
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"time"

	"github.com/hupe1980/corpusdb/blobstore"
	"github.com/hupe1980/corpusdb/codec"
	"github.com/hupe1980/corpusdb/store"
)

// Prefix is the blob name prefix shared by all snapshots.
const Prefix = "snapshot-"

// Manager writes and reads snapshots against a blob store.
type Manager struct {
	blobs       blobstore.Store
	codec       codec.Codec
	compression Compression
	now         func() time.Time
}

// NewManager creates a snapshot manager. A nil codec falls back to
// codec.Default; an empty compression falls back to none.
func NewManager(blobs blobstore.Store, c codec.Codec, compression Compression) *Manager {
	if c == nil {
		c = codec.Default
	}
	if compression == "" {
		compression = CompressionNone
	}
	return &Manager{
		blobs:       blobs,
		codec:       c,
		compression: compression,
		now:         time.Now,
	}
}

// Save serializes the state and writes it as a new snapshot blob.
// Returns the blob name. Names sort chronologically, so the latest
// snapshot is the lexically greatest.
func (m *Manager) Save(ctx context.Context, st *store.State) (string, error) {
	payload, err := m.codec.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	compressed, err := compress(m.compression, payload)
	if err != nil {
		return "", fmt.Errorf("failed to compress snapshot: %w", err)
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, uint32(MagicNumber))
	_ = binary.Write(&buf, le, uint32(Version))
	writeName(&buf, m.codec.Name())
	writeName(&buf, string(m.compression))
	_ = binary.Write(&buf, le, crc32.ChecksumIEEE(compressed))
	_ = binary.Write(&buf, le, uint64(len(compressed)))
	buf.Write(compressed)

	name := fmt.Sprintf("%s%s.cdb", Prefix, m.now().UTC().Format("20060102T150405.000000000Z"))
	if err := m.blobs.Put(ctx, name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write snapshot blob: %w", err)
	}
	return name, nil
}

// Load reads and decodes a snapshot blob by name.
func (m *Manager) Load(ctx context.Context, name string) (*store.State, error) {
	data, err := m.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data)
	le := binary.LittleEndian

	var magic, version uint32
	if err := binary.Read(r, le, &magic); err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, magic)
	}
	if err := binary.Read(r, le, &version); err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, version)
	}

	codecName, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	compName, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	var checksum uint32
	var length uint64
	if err := binary.Read(r, le, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if err := binary.Read(r, le, &length); err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("failed to read snapshot payload: %w", err)
	}
	if got := crc32.ChecksumIEEE(compressed); got != checksum {
		return nil, fmt.Errorf("checksum mismatch: expected 0x%08x, got 0x%08x", checksum, got)
	}

	compression := Compression(compName)
	if err := compression.Validate(); err != nil {
		return nil, err
	}
	payload, err := decompress(compression, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codecName)
	}
	st := new(store.State)
	if err := c.Unmarshal(payload, st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return st, nil
}

// List returns all snapshot names in ascending chronological order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.blobs.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// LoadLatest loads the most recent snapshot. Returns
// blobstore.ErrNotFound when no snapshot exists.
func (m *Manager) LoadLatest(ctx context.Context) (*store.State, string, error) {
	names, err := m.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", blobstore.ErrNotFound
	}
	name := names[len(names)-1]
	st, err := m.Load(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return st, name, nil
}

// Delete removes a snapshot blob.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.blobs.Delete(ctx, name)
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
}

func readName(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

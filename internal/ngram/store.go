package ngram

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	fileFormat    = "textpair-ngram-index"
	fileVersion   = 1
	maxRecordSize = 256 << 20
	// maxDocHint caps the slot preallocation taken from an untrusted header
	maxDocHint = 1 << 16
)

type fileHeader struct {
	Format      string `bson:"format"`
	Version     int    `bson:"version"`
	NgramLength int    `bson:"n"`
	Documents   int    `bson:"documents"`
}

type fileRecord struct {
	ID       string            `bson:"id"`
	Metadata map[string]string `bson:"metadata,omitempty"`
	Tokens   int               `bson:"tokens"`
	Keys     []int64           `bson:"keys"`
}

// Save writes idx as a zstd stream of BSON records: one header followed by
// one record per document in slot order.
func Save(w io.Writer, idx *Index) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	header := fileHeader{
		Format:      fileFormat,
		Version:     fileVersion,
		NgramLength: idx.n,
		Documents:   len(idx.docs),
	}
	if err := writeRecord(enc, header); err != nil {
		_ = enc.Close()
		return err
	}

	for i, info := range idx.docs {
		keys := make([]int64, len(idx.keys[i]))
		for j, k := range idx.keys[i] {
			keys[j] = int64(k)
		}
		rec := fileRecord{
			ID:       info.ID,
			Metadata: info.Metadata,
			Tokens:   info.Tokens,
			Keys:     keys,
		}
		if err := writeRecord(enc, rec); err != nil {
			_ = enc.Close()
			return err
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush index: %w", err)
	}
	return nil
}

func writeRecord(w io.Writer, v interface{}) error {
	data, err := bson.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode index record: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write index record: %w", err)
	}
	return nil
}

// Load reads an index written by Save. A document record whose key count
// does not match its token count, or whose id is empty or already taken by an
// earlier record, is kept but flagged Corrupt.
func Load(r io.Reader) (*Index, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	raw, err := readRecord(br)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
	}
	var header fileHeader
	if err := bson.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
	}
	if header.Format != fileFormat || header.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported format %q version %d", ErrCorruptIndex, header.Format, header.Version)
	}
	if header.NgramLength < 1 {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, ErrInvalidNgramLength)
	}
	if header.Documents < 0 {
		return nil, fmt.Errorf("%w: negative document count %d", ErrCorruptIndex, header.Documents)
	}
	if header.Documents == 0 {
		return nil, ErrNoDocuments
	}

	hint := min(header.Documents, maxDocHint)
	idx := newIndex(header.NgramLength, hint)
	seen := make(map[string]struct{}, hint)
	for i := 0; i < header.Documents; i++ {
		raw, err := readRecord(br)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptIndex, i, err)
		}
		var rec fileRecord
		if err := bson.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptIndex, i, err)
		}

		info := DocInfo{ID: rec.ID, Metadata: rec.Metadata, Tokens: rec.Tokens}
		_, dup := seen[rec.ID]
		seen[rec.ID] = struct{}{}
		var keys []Key
		if len(rec.Keys) != ExpectedNgrams(rec.Tokens, header.NgramLength) || rec.ID == "" || dup {
			info.Corrupt = true
		} else {
			keys = make([]Key, len(rec.Keys))
			for j, k := range rec.Keys {
				keys[j] = Key(k)
			}
		}
		idx.add(info, keys)
	}
	return idx, nil
}

// readRecord reads one length-prefixed BSON document
func readRecord(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	size := int(binary.LittleEndian.Uint32(prefix[:]))
	if size < 5 || size > maxRecordSize {
		return nil, fmt.Errorf("invalid record size %d", size)
	}
	buf := make([]byte, size)
	copy(buf, prefix[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// SaveFile writes idx to path through a temporary file in the same directory
func SaveFile(path string, idx *Index) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := Save(bw, idx); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move index file into place: %w", err)
	}
	return nil
}

// LoadFile reads an index file from path
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	idx, err := Load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", path, err)
	}
	return idx, nil
}

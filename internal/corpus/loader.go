// Package corpus reads tokenized documents from JSONL files, one document
// object per line.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

const maxLineSize = 64 << 20

var (
	ErrMalformedLine  = errors.New("malformed document line")
	ErrCorpusNotFound = errors.New("corpus not found")
)

// LoadJSONL decodes documents from r. Lines that fail to decode are returned
// as per-document errors carrying their 1-based line number; blank lines are
// ignored.
func LoadJSONL(r io.Reader) ([]models.Document, []models.DocumentError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var docs []models.Document
	var docErrs []models.DocumentError
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc models.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			docErrs = append(docErrs, models.DocumentError{Line: line, Err: fmt.Errorf("%w: %v", ErrMalformedLine, err)})
			continue
		}
		if doc.Order == 0 {
			doc.Order = int64(line)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read corpus at line %d: %w", line+1, err)
	}
	return docs, docErrs, nil
}

// LoadFile reads a JSONL corpus from path. Files ending in .zst are
// decompressed on the fly.
func LoadFile(path string) ([]models.Document, []models.DocumentError, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, path)
		}
		return nil, nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return LoadJSONL(r)
}

// FileSource resolves corpus names to JSONL files under a directory
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Path returns the file backing corpus. A compressed file is preferred when
// both exist.
func (s *FileSource) Path(corpus string) string {
	base := filepath.Join(s.Dir, filepath.Base(corpus)+".jsonl")
	if _, err := os.Stat(base + ".zst"); err == nil {
		return base + ".zst"
	}
	return base
}

// GetDocumentsByCorpus loads the named corpus. Undecodable lines are logged
// and dropped.
func (s *FileSource) GetDocumentsByCorpus(ctx context.Context, corpus string) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(corpus)
	docs, docErrs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, de := range docErrs {
		log.Warn().Err(de.Err).Str("corpus", corpus).Int("line", de.Line).Msg("Skipping malformed corpus line")
	}
	for i := range docs {
		docs[i].Corpus = corpus
	}
	log.Debug().Str("corpus", corpus).Str("path", path).Int("documents", len(docs)).Msg("Corpus loaded")
	return docs, nil
}

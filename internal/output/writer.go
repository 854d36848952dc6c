// Package output serializes alignments, one record per alignment, in the
// order they are given.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/goccy/go-json"
)

type Format string

const (
	FormatTSV   Format = "tsv"
	FormatJSONL Format = "jsonl"
)

// Columns is the TSV header, in record field order
var Columns = []string{
	"source_doc_id",
	"source_start",
	"source_end",
	"target_doc_id",
	"target_start",
	"target_end",
	"matched_ngrams",
	"gap_tokens",
	"score",
}

// ParseFormat accepts "tsv" or "jsonl"; empty means tsv
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTSV:
		return FormatTSV, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want tsv or jsonl)", s)
	}
}

// Extension returns the file extension used for the format
func (f Format) Extension() string {
	if f == FormatJSONL {
		return ".jsonl"
	}
	return ".tsv"
}

// Write emits alignments to w in the given format
func Write(w io.Writer, alignments []models.Alignment, format Format) error {
	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case FormatTSV:
		err = writeTSV(bw, alignments)
	case FormatJSONL:
		err = writeJSONL(bw, alignments)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

var tsvEscaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

func writeTSV(w *bufio.Writer, alignments []models.Alignment) error {
	if _, err := w.WriteString(strings.Join(Columns, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	fields := make([]string, len(Columns))
	for i := range alignments {
		a := &alignments[i]
		fields[0] = tsvEscaper.Replace(a.SourceDocID)
		fields[1] = strconv.Itoa(a.SourceStart)
		fields[2] = strconv.Itoa(a.SourceEnd)
		fields[3] = tsvEscaper.Replace(a.TargetDocID)
		fields[4] = strconv.Itoa(a.TargetStart)
		fields[5] = strconv.Itoa(a.TargetEnd)
		fields[6] = strconv.Itoa(a.MatchedNgrams)
		fields[7] = strconv.Itoa(a.GapTokens)
		fields[8] = strconv.FormatFloat(a.Score, 'f', 4, 64)
		if _, err := w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return nil
}

func writeJSONL(w *bufio.Writer, alignments []models.Alignment) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range alignments {
		if err := enc.Encode(&alignments[i]); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile writes alignments to path through a temporary file, so readers
// never observe a partial result
func WriteFile(path string, alignments []models.Alignment, format Format) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".alignments-*")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, alignments, format); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

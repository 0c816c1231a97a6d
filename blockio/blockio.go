// Package blockio counts lines in 1 MiB binary chunks and materializes the
// byte ranges the sampling planner selects into bounded in-memory blocks.
package blockio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/gurre/csvfusion/pipelineerr"
)

const chunkSize = 1 << 20 // 1 MiB

// Encoding identifies a supported source text encoding.
type Encoding string

const (
	EncodingUTF8       Encoding = "utf-8"
	EncodingWindows1251 Encoding = "windows-1251"
	EncodingUnknown    Encoding = "unknown"
)

// LineIndex maps line numbers to byte offsets for one file. Its offsets
// are sorted and cover the start of every line in the file, built in a
// single forward pass.
type LineIndex struct {
	TotalLines int64
	offsets    []int64 // offsets[i] = byte offset where line i starts
}

// CountLines scans the file in 1 MiB chunks counting newlines, returning a
// LineIndex whose offsets can answer ByteRange. Detects encoding
// by BOM/heuristic; unsupported encodings fall through with a warning
// string rather than failing.
func CountLines(path string) (*LineIndex, Encoding, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, EncodingUnknown, "", pipelineerr.New(pipelineerr.CodeIOError, "open file", err)
	}
	defer f.Close()

	enc, warning := detectEncoding(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, enc, warning, pipelineerr.New(pipelineerr.CodeIOError, "seek file", err)
	}

	idx := &LineIndex{offsets: []int64{0}}
	buf := make([]byte, chunkSize)
	var pos int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			start := 0
			for {
				rel := bytes.IndexByte(chunk[start:], '\n')
				if rel < 0 {
					break
				}
				lineStart := pos + int64(start+rel) + 1
				idx.offsets = append(idx.offsets, lineStart)
				start += rel + 1
			}
			pos += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, enc, warning, pipelineerr.New(pipelineerr.CodeIOError, "read file", rerr)
		}
	}
	// A trailing line without a final newline still counts as a line.
	if pos > 0 && idx.offsets[len(idx.offsets)-1] != pos {
		idx.TotalLines = int64(len(idx.offsets))
	} else {
		idx.TotalLines = int64(len(idx.offsets)) - 1
		if idx.TotalLines < 0 {
			idx.TotalLines = 0
		}
	}
	return idx, enc, warning, nil
}

// ByteRange returns the byte span covering lines [start, end).
func (idx *LineIndex) ByteRange(start, end int64) (int64, int64) {
	if start < 0 {
		start = 0
	}
	if end > int64(len(idx.offsets))-1 {
		end = int64(len(idx.offsets)) - 1
	}
	if start >= int64(len(idx.offsets)) {
		return idx.offsets[len(idx.offsets)-1], idx.offsets[len(idx.offsets)-1]
	}
	from := idx.offsets[start]
	var to int64
	if end >= 0 && end < int64(len(idx.offsets)) {
		to = idx.offsets[end]
	} else {
		to = from
	}
	return from, to
}

// ReadBlock reads the byte span [from, to) from path, decoding it from the
// given encoding to UTF-8, and returns the block's lines. The whole span
// is read into one buffer of (to-from) bytes; its size is not capped at
// 1 MiB. A single line longer than 1 MiB fails the scan.
func ReadBlock(path string, from, to int64, enc Encoding) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "open file", err)
	}
	defer f.Close()

	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "seek file", err)
	}

	raw := make([]byte, to-from)
	if _, err := io.ReadFull(f, raw); err != nil && err != io.ErrUnexpectedEOF {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "read block", err)
	}

	decoded, err := decode(raw, enc)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "decode block", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(decoded))
	scanner.Buffer(make([]byte, 0, 64*1024), chunkSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeIOError, "scan block", err)
	}
	return lines, nil
}

func decode(raw []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingWindows1251:
		out, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), raw)
		if err != nil {
			return nil, fmt.Errorf("windows-1251 decode: %w", err)
		}
		return out, nil
	case EncodingUnknown:
		return []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError))), nil
	default:
		return raw, nil
	}
}

// detectEncoding sniffs a small prefix of f to guess between UTF-8 and
// Windows-1251. Any encoding that is neither produces EncodingUnknown with
// a warning; callers then fall back to best-effort UTF-8 with replacement
// characters.
func detectEncoding(f *os.File) (Encoding, string) {
	prefix := make([]byte, 4096)
	n, _ := f.Read(prefix)
	prefix = prefix[:n]

	if bytes.HasPrefix(prefix, []byte{0xEF, 0xBB, 0xBF}) {
		return EncodingUTF8, ""
	}
	if isValidUTF8(prefix) {
		return EncodingUTF8, ""
	}
	if looksLikeWindows1251(prefix) {
		return EncodingWindows1251, ""
	}
	return EncodingUnknown, "unrecognized encoding, falling back to UTF-8 with replacement characters"
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

func looksLikeWindows1251(b []byte) bool {
	// Windows-1251 high bytes (0xC0-0xFF) map to Cyrillic letters; a byte
	// stream with many such bytes that fails UTF-8 validation is very
	// likely cp1251 rather than some other 8-bit encoding.
	high := 0
	for _, c := range b {
		if c >= 0xC0 {
			high++
		}
	}
	return len(b) > 0 && high*4 > len(b)
}

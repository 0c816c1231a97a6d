package blockio

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestCountLinesBasic(t *testing.T) {
	path := writeTemp(t, "id,name,price\n1,a,10\n2,b,20\n3,c,30\n4,d,40\n5,e,50\n")
	idx, enc, warn, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if enc != EncodingUTF8 {
		t.Errorf("expected utf-8, got %v (warn=%q)", enc, warn)
	}
	if idx.TotalLines != 6 {
		t.Errorf("expected 6 lines, got %d", idx.TotalLines)
	}
}

func TestCountLinesNoTrailingNewline(t *testing.T) {
	path := writeTemp(t, "a\nb\nc")
	idx, _, _, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if idx.TotalLines != 3 {
		t.Errorf("expected 3 lines, got %d", idx.TotalLines)
	}
}

func TestReadBlockRoundTrip(t *testing.T) {
	path := writeTemp(t, "id,name\n1,a\n2,b\n3,c\n")
	idx, enc, _, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	from, to := idx.ByteRange(0, idx.TotalLines)
	lines, err := ReadBlock(path, from, to, enc)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "id,name" {
		t.Errorf("expected header line, got %q", lines[0])
	}
}

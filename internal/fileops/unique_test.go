package fileops

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) contains(s string) bool {
	return strings.Contains(b.String(), s)
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		name string
		stem string
		ext  string
	}{
		{"report.txt", "report", ".txt"},
		{"photos.tar.gz", "photos", ".tar.gz"},
		{"PHOTOS.TAR.GZ", "PHOTOS", ".TAR.GZ"},
		{"archive.gz", "archive", ".gz"},
		{".env", ".env", ""},
		{"noext", "noext", ""},
		{"a.b.c", "a.b", ".c"},
		{".tar.gz", ".tar", ".gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, ext := SplitExt(tt.name)
			if stem != tt.stem || ext != tt.ext {
				t.Errorf("SplitExt(%q) = (%q, %q); want (%q, %q)", tt.name, stem, ext, tt.stem, tt.ext)
			}
		})
	}
}

func TestUniquePathFree(t *testing.T) {
	p := filepath.Join(t.TempDir(), "report.txt")
	if got := UniquePath(p); got != p {
		t.Errorf("UniquePath() = %s; want unchanged %s", got, p)
	}
}

func TestUniquePathSequence(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "report.txt")

	touch(t, p)
	first := UniquePath(p)
	if want := filepath.Join(dir, "report (1).txt"); first != want {
		t.Fatalf("UniquePath() = %s; want %s", first, want)
	}

	touch(t, first)
	second := UniquePath(p)
	if want := filepath.Join(dir, "report (2).txt"); second != want {
		t.Errorf("UniquePath() = %s; want %s", second, want)
	}
}

func TestUniquePathContinuesCount(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "report (3).txt")
	touch(t, p)

	if got, want := UniquePath(p), filepath.Join(dir, "report (4).txt"); got != want {
		t.Errorf("UniquePath() = %s; want %s", got, want)
	}
}

func TestUniquePathCompoundExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "photos.tar.gz")
	touch(t, p)

	if got, want := UniquePath(p), filepath.Join(dir, "photos (1).tar.gz"); got != want {
		t.Errorf("UniquePath() = %s; want %s", got, want)
	}
}

func TestUniquePathDotfile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	touch(t, p)

	if got, want := UniquePath(p), filepath.Join(dir, ".env (1)"); got != want {
		t.Errorf("UniquePath() = %s; want %s", got, want)
	}
}

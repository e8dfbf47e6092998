package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"YubiAge/internal/util"
)

// copySuffix matches a trailing " (n)" disambiguator on a file stem.
var copySuffix = regexp.MustCompile(` \((\d+)\)$`)

// SplitExt splits a file name into stem and extension. Compound archive
// extensions such as ".tar.gz" are kept together.
func SplitExt(name string) (stem, ext string) {
	if strings.HasSuffix(strings.ToLower(name), util.ArchiveSuffix) && len(name) > len(util.ArchiveSuffix) {
		cut := len(name) - len(util.ArchiveSuffix)
		return name[:cut], name[cut:]
	}
	ext = filepath.Ext(name)
	if ext == name {
		// Dot-files like ".env" have no extension.
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// UniquePath returns path if nothing exists there; otherwise it appends a
// numeric disambiguator before the extension until a free name is found:
// "report.txt" -> "report (1).txt" -> "report (2).txt". A name already ending
// in " (n)" continues counting from n+1.
func UniquePath(path string) string {
	if !exists(path) {
		return path
	}

	dir := filepath.Dir(path)
	stem, ext := SplitExt(filepath.Base(path))

	next := 1
	if m := copySuffix.FindStringSubmatchIndex(stem); m != nil {
		n, err := strconv.Atoi(stem[m[2]:m[3]])
		if err == nil {
			next = n + 1
			stem = stem[:m[0]]
		}
	}

	for ; ; next++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, next, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}

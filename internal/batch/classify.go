package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"YubiAge/internal/errors"
	"YubiAge/internal/log"
	"YubiAge/internal/util"
)

// DirectoryPolicy selects how dropped directories are encrypted.
type DirectoryPolicy int

const (
	// DirectoriesArchive stages each directory as one tar.gz and encrypts
	// it to "<dir>.Dir.age".
	DirectoriesArchive DirectoryPolicy = iota

	// DirectoriesExpand encrypts every regular file inside the directory
	// tree individually, next to the original.
	DirectoriesExpand
)

func (p DirectoryPolicy) String() string {
	if p == DirectoriesExpand {
		return "expand"
	}
	return "archive"
}

// ParseDirectoryPolicy maps "archive" or "expand" to a DirectoryPolicy.
func ParseDirectoryPolicy(s string) (DirectoryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "archive":
		return DirectoriesArchive, nil
	case "expand":
		return DirectoriesExpand, nil
	}
	return DirectoriesArchive, fmt.Errorf("unknown directory policy %q", s)
}

// Policy holds the classification rules that vary between deployments.
type Policy struct {
	// SingleDecrypt limits a decrypt drop to one file. Hardware identities
	// prompt once per invocation, so batches of prompts are refused.
	SingleDecrypt bool

	Directories DirectoryPolicy
}

// Plan is the outcome of classifying a drop.
type Plan struct {
	Mode  Mode
	Paths []string
}

// IsEncrypted reports whether path is a regular file named "*.age".
func IsEncrypted(path string) bool {
	if !hasAgeSuffix(path) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func hasAgeSuffix(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), util.EncryptedSuffix)
}

// Classify validates a drop and decides its mode. Paths that no longer exist
// are ignored. Encrypted and plain inputs may not be mixed.
func Classify(paths []string, policy Policy) (*Plan, error) {
	logger := log.GetLogger()

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logger.Info("ignoring missing path", log.String("path", p))
			continue
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil, errors.Invalid("inputs", errors.ErrNoValidPaths)
	}

	var encrypted, other int
	for _, p := range existing {
		if IsEncrypted(p) {
			encrypted++
		} else {
			other++
		}
	}

	switch {
	case encrypted > 0 && other > 0:
		return nil, errors.Invalid("inputs", errors.ErrMixedInputs)
	case encrypted > 0:
		if policy.SingleDecrypt && len(existing) > 1 {
			return nil, errors.Invalid("inputs", errors.ErrSingleFileOnly)
		}
		return &Plan{Mode: ModeDecrypt, Paths: existing}, nil
	}

	if policy.Directories == DirectoriesExpand {
		files, err := expand(existing)
		if err != nil {
			return nil, err
		}
		return &Plan{Mode: ModeEncrypt, Paths: files}, nil
	}
	return &Plan{Mode: ModeEncrypt, Paths: existing}, nil
}

// expand replaces directories with the regular files below them. Hidden
// entries are skipped at every level.
func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		if isHidden(p) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.NewFileError("walk", p, err)
		}
	}

	if len(files) == 0 {
		return nil, errors.Invalid("inputs", errors.ErrNoValidFiles)
	}
	for _, f := range files {
		if hasAgeSuffix(f) {
			return nil, errors.Invalid("inputs", errors.ErrMixedInputs)
		}
	}
	return files, nil
}

func isHidden(path string) bool {
	name := filepath.Base(path)
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}

// Package keyfile turns user-supplied key files into arguments for age.
//
// Recipient files (encrypt) are read line by line: comment lines are dropped
// and the remaining key material is merged into a single temporary recipients
// file handed to age with -R. Identity files (decrypt) are passed through
// untouched; age reads them itself, including plugin identity stubs.
package keyfile

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"YubiAge/internal/errors"
	"YubiAge/internal/log"
	"YubiAge/internal/util"
)

// Options controls WriteRecipients.
type Options struct {
	// Dir receives the recipients file. Empty means the working directory.
	Dir string

	// Strict rejects key material containing tokens of unknown format.
	// Otherwise such tokens are logged and left for age to judge.
	Strict bool

	Logger log.Logger
}

// RecipientsPath returns the temporary recipients file location for dir.
func RecipientsPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, ".temp_recipients_"+strconv.Itoa(os.Getpid())+".txt")
}

// WriteRecipients merges the recipient key files in paths into a fresh
// recipients file and returns its path. Missing files are skipped. The caller
// owns the returned file and must remove it once age has run.
func WriteRecipients(paths []string, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	if len(paths) == 0 {
		return "", errors.Invalid("recipients", errors.ErrNoRecipients)
	}

	var content strings.Builder
	for _, p := range paths {
		block, err := readKeyBlock(p)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("recipient key file missing, skipped", log.String("path", p))
			continue
		}
		if err != nil {
			return "", errors.NewFileError("read", p, err)
		}
		if block == "" {
			logger.Debug("recipient key file has no key material", log.String("path", p))
			continue
		}

		for _, tok := range tokenize(block) {
			if tok.Kind != KindUnknown {
				continue
			}
			if opts.Strict {
				return "", errors.NewValidationError("recipients",
					fmt.Sprintf("unrecognized recipient in %s", filepath.Base(p)))
			}
			logger.Warn("unrecognized recipient format", log.String("path", p))
		}

		content.WriteString(block)
		content.WriteByte('\n')
	}

	if content.Len() == 0 {
		return "", errors.Invalid("recipients", errors.ErrEmptyKeyMaterial)
	}

	out := RecipientsPath(opts.Dir)
	if err := writePrivate(out, content.String()); err != nil {
		return "", errors.NewFileError("write", out, err)
	}
	logger.Debug("wrote recipients file",
		log.String("path", out),
		log.Int("sources", len(paths)))
	return out, nil
}

// Inspect returns the recipient tokens found in a single key file.
func Inspect(path string) ([]Token, error) {
	block, err := readKeyBlock(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}
	return tokenize(block), nil
}

// Identities validates the identity file list for a decrypt batch. Paths are
// returned unchanged and in order.
func Identities(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, errors.Invalid("identities", errors.ErrNoIdentities)
	}
	out := make([]string, len(paths))
	copy(out, paths)
	return out, nil
}

// readKeyBlock returns a key file's non-blank, non-comment lines, each
// trimmed, joined by newlines.
func readKeyBlock(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := util.GetLineBuffer()
	defer util.PutLineBuffer(buf)

	sc := bufio.NewScanner(f)
	sc.Buffer(buf, util.MiB)

	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, util.CommentPrefix) {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func tokenize(block string) []Token {
	var toks []Token
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		toks = append(toks, Token{Value: line, Kind: Classify(line)})
	}
	return toks
}

func writePrivate(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

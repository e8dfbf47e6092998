// Package batch turns a drop of paths into a sequence of age invocations.
//
// Pipeline:
//  1. Classify: decide encrypt or decrypt and reject mixed drops
//  2. Pre-process (encrypt): stage every directory as a tar.gz archive
//  3. Per item: key material, command line, invocation, output resolution
//  4. Cleanup: remove every temporary artifact that is still around
//
// Failures are isolated per item; only pre-processing aborts a batch.
package batch

import (
	"fmt"
	"path/filepath"
)

// Mode is the direction of a batch.
type Mode int

const (
	ModeEncrypt Mode = iota
	ModeDecrypt
)

func (m Mode) String() string {
	switch m {
	case ModeEncrypt:
		return "encrypt"
	case ModeDecrypt:
		return "decrypt"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Reporter receives batch progress. Implementations must be safe for use
// from the goroutine running the batch.
type Reporter interface {
	SetStatus(text string)                     // e.g. "Archiving photos..."
	SetProgress(fraction float32, info string) // once per finished item
	FileFailed(name string, err error)         // per-item failure, batch continues
}

type nopReporter struct{}

func (nopReporter) SetStatus(string)            {}
func (nopReporter) SetProgress(float32, string) {}
func (nopReporter) FileFailed(string, error)    {}

// Request describes one batch. Keys are recipient key files when encrypting
// and identity files when decrypting.
type Request struct {
	Mode   Mode
	Inputs []string
	Keys   []string
}

// WorkItem is one unit handed to age. InputPath differs from OriginalPath
// when a directory was staged as an archive.
type WorkItem struct {
	OriginalPath string
	InputPath    string
	Archived     bool
}

// Name is the user-facing name of the item.
func (w WorkItem) Name() string {
	return filepath.Base(w.OriginalPath)
}

// Failure records why a single input failed.
type Failure struct {
	Name string
	Path string
	Err  error
}

// Result summarizes a finished batch.
type Result struct {
	SuccessCount int
	TotalCount   int
	Failures     []Failure

	// ClearKeys tells the caller to forget the working key lists.
	ClearKeys bool

	// Cancelled is set when the batch stopped before processing every item.
	Cancelled bool
}

// Failed returns the number of failed items.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Errors maps each failed file name to its message. Later failures of the
// same name overwrite earlier ones.
func (r *Result) Errors() map[string]string {
	m := make(map[string]string, len(r.Failures))
	for _, f := range r.Failures {
		m[f.Name] = f.Err.Error()
	}
	return m
}

// Package cli provides the command-line front-end for YubiAge.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"

	"YubiAge/internal/app"
	"YubiAge/internal/batch"
	"YubiAge/internal/util"
)

var (
	successTag = color.New(color.FgGreen, color.Bold)
	failureTag = color.New(color.FgRed, color.Bold)
	noticeTag  = color.New(color.FgYellow)
)

func errorPrefix() string {
	return failureTag.Sprint("Error:") + " "
}

const defaultBarWidth = 30

// Reporter renders Job events on a terminal. While encrypting on a TTY a
// spinner carries a single overwritten progress line. Otherwise, and always
// while decrypting so that age's PIN and touch prompts stay readable, each
// status change is printed on its own line.
type Reporter struct {
	mu       sync.Mutex
	out      io.Writer
	status   string
	progress float32
	info     string
	quiet    bool
	tty      bool
	live     bool // spinner line in use
	barWidth int
	spin     *spinner.Spinner
	started  time.Time
	failures []string
}

// NewReporter creates a reporter writing to out. If quiet is true, only the
// final summary is printed.
func NewReporter(out io.Writer, quiet bool) *Reporter {
	r := &Reporter{out: out, quiet: quiet, barWidth: defaultBarWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w < 80 {
			r.barWidth = max(w/4, 10)
		}
	}
	return r
}

// SetStatus updates the status message.
func (r *Reporter) SetStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text == r.status {
		return
	}
	r.status = text
	if !r.quiet && !r.live {
		fmt.Fprintln(r.out, text)
	}
	r.redraw()
}

// SetProgress updates the progress bar and info text.
func (r *Reporter) SetProgress(fraction float32, info string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = fraction
	r.info = info
	r.redraw()
}

// FileFailed records a failed item for the summary.
func (r *Reporter) FileFailed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", name, err))
	if !r.quiet && !r.live {
		fmt.Fprintf(r.out, "%s %s: %v\n", failureTag.Sprint("✗"), name, err)
	}
}

// Follow renders job events until the job ends and returns its outcome.
func (r *Reporter) Follow(job *app.Job) (*batch.Result, error) {
	r.start(job.Mode)
	for ev := range job.Events() {
		switch ev.Kind {
		case app.EventStatus:
			r.SetStatus(ev.Text)
		case app.EventProgress:
			r.SetProgress(ev.Fraction, ev.Text)
		case app.EventFileFailed:
			r.FileFailed(ev.Name, ev.Err)
		}
	}
	r.stop()
	return job.Wait()
}

// Notice prints an informational line unless quiet.
func (r *Reporter) Notice(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.out, noticeTag.Sprintf(format, args...))
}

// Summary prints the outcome of a batch. The returned error is non-nil when
// the batch did not fully succeed.
func (r *Reporter) Summary(mode batch.Mode, res *batch.Result, err error) error {
	if err != nil {
		fmt.Fprintf(r.out, "%s %s\n", failureTag.Sprint("✗"), app.MsgFailed.Format(err.Error()))
		return err
	}
	action := "Encryption"
	if mode == batch.ModeDecrypt {
		action = "Decryption"
	}

	switch {
	case res.Cancelled:
		fmt.Fprintf(r.out, "%s %s %d/%s done.\n", noticeTag.Sprint("!"), app.MsgTerminated.Format(), res.SuccessCount, util.Pluralize(res.TotalCount, "file"))
		return fmt.Errorf("cancelled")
	case res.Failed() > 0:
		if r.live || r.quiet {
			for _, f := range r.failures {
				fmt.Fprintf(r.out, "%s %s\n", failureTag.Sprint("✗"), f)
			}
		}
		fmt.Fprintf(r.out, "%s %s\n", failureTag.Sprint("✗"), app.MsgFilesFailed.Format(res.Failed()))
		return fmt.Errorf("%d of %d files failed", res.Failed(), res.TotalCount)
	}
	if !r.quiet {
		fmt.Fprintf(r.out, "%s %s: %d/%s\n", successTag.Sprint("✓"), app.MsgFinished.Format(action), res.SuccessCount, util.Pluralize(res.TotalCount, "file"))
	}
	return nil
}

// start brings up the spinner line for an encrypt batch on a terminal.
func (r *Reporter) start(mode batch.Mode) {
	if r.quiet || !r.tty || mode == batch.ModeDecrypt {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = true
	r.started = time.Now()
	r.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(r.out))
	r.redraw()
	r.spin.Start()
}

func (r *Reporter) stop() {
	r.mu.Lock()
	s := r.spin
	r.spin = nil
	r.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// redraw refreshes the spinner line. Caller holds r.mu.
func (r *Reporter) redraw() {
	if r.spin == nil {
		return
	}
	r.spin.Lock()
	r.spin.Suffix = " " + r.line()
	r.spin.Unlock()
}

// line formats: [████████░░░░░░░░] 1/3 (ETA: 00:00:42) | Encrypting notes.txt...
func (r *Reporter) line() string {
	filled := min(int(r.progress*float32(r.barWidth)), r.barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", r.barWidth-filled)
	if r.info == "" {
		return fmt.Sprintf("[%s] %s", bar, r.status)
	}
	info := r.info
	if !r.started.IsZero() && r.progress > 0 && r.progress < 1 {
		info += " (ETA: " + util.ETA(r.progress, r.started) + ")"
	}
	return fmt.Sprintf("[%s] %s | %s", bar, info, r.status)
}

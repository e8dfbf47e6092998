package app

import (
	"context"
	"sync"

	"YubiAge/internal/batch"
)

// eventBuffer bounds queued events; a consumer that falls behind loses
// intermediate status and progress, never the final Result.
const eventBuffer = 64

// EventKind tells which Event fields are set.
type EventKind int

const (
	EventStatus     EventKind = iota // Text
	EventProgress                    // Fraction, Text
	EventFileFailed                  // Name, Err
)

// Event is one progress notification from a running Job.
type Event struct {
	Kind     EventKind
	Text     string
	Fraction float32
	Name     string
	Err      error
}

// Job is a batch running on its own goroutine.
type Job struct {
	Mode batch.Mode

	mu           sync.RWMutex
	status       string
	progress     float32
	progressInfo string

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	result *batch.Result
	err    error
}

var _ batch.Reporter = (*Job)(nil)

func newJob(mode batch.Mode, cancel context.CancelFunc) *Job {
	return &Job{
		Mode:   mode,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Events delivers notifications until the job ends, then closes.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Done is closed once the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its outcome.
func (j *Job) Wait() (*batch.Result, error) {
	<-j.done
	return j.result, j.err
}

// Cancel stops the job: no further file is started and a running age
// process is killed. Safe to call more than once.
func (j *Job) Cancel() {
	j.cancel()
}

// SetStatus implements batch.Reporter.
func (j *Job) SetStatus(text string) {
	j.mu.Lock()
	j.status = text
	j.mu.Unlock()
	j.emit(Event{Kind: EventStatus, Text: text})
}

// SetProgress implements batch.Reporter.
func (j *Job) SetProgress(fraction float32, info string) {
	j.mu.Lock()
	j.progress = fraction
	j.progressInfo = info
	j.mu.Unlock()
	j.emit(Event{Kind: EventProgress, Fraction: fraction, Text: info})
}

// FileFailed implements batch.Reporter.
func (j *Job) FileFailed(name string, err error) {
	j.emit(Event{Kind: EventFileFailed, Name: name, Err: err})
}

// Status returns the latest status text.
func (j *Job) Status() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Progress returns the latest progress fraction and info text.
func (j *Job) Progress() (float32, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress, j.progressInfo
}

func (j *Job) emit(ev Event) {
	select {
	case j.events <- ev:
	default:
	}
}

// finish records the outcome and releases waiters. Only the batch goroutine
// calls it, after the last Reporter call.
func (j *Job) finish(res *batch.Result, err error) {
	j.result, j.err = res, err
	j.cancel()
	close(j.events)
	close(j.done)
}

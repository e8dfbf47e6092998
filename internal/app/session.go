// Package app holds the drop-driven session a front-end talks to.
//
// A Session walks through the two-step interaction of the desktop tool:
//
//  1. Files are dropped. The drop is classified; on error the session stays
//     idle with an explanatory status.
//  2. Keys are dropped, unless the session already remembers recipient keys
//     for an encrypt batch, in which case the batch starts straight away.
//     Decrypt batches always ask for identities and forget them afterwards.
//
// The batch itself runs on a background goroutine as a Job. While a Job is
// running the session refuses new drops and key changes with ErrBusy.
package app

import (
	"context"
	"os"
	"sync"

	"YubiAge/internal/batch"
	"YubiAge/internal/config"
	"YubiAge/internal/errors"
	"YubiAge/internal/log"
)

// Version is the application version string.
const Version = "v0.2.0"

// Phase is where the session is in the drop interaction.
type Phase int

const (
	PhaseIdle         Phase = iota // waiting for a file drop
	PhaseAwaitingKeys              // files classified, waiting for a key drop
	PhaseRunning                   // a Job is running
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingKeys:
		return "awaiting-keys"
	case PhaseRunning:
		return "running"
	default:
		return "idle"
	}
}

// Requirement restricts Start to one direction.
type Requirement int

const (
	RequireAny Requirement = iota
	RequireEncrypt
	RequireDecrypt
)

// StartRequest describes a non-interactive batch.
type StartRequest struct {
	Paths []string

	// Keys are recipient files (encrypt) or identity files (decrypt). When
	// empty, an encrypt batch falls back to the remembered recipients.
	Keys []string

	// Remember persists Keys as the remembered recipients of an encrypt batch.
	Remember bool

	Require Requirement
}

// SettingsStore persists settings after key changes.
type SettingsStore interface {
	Save(*config.Settings) error
}

// Session is the state shared by every front-end action.
type Session struct {
	mu sync.Mutex

	settings *config.Settings
	store    SettingsStore // nil disables persistence
	runner   batch.ToolRunner
	logger   log.Logger

	phase      Phase
	mode       batch.Mode
	pending    []string // classified inputs
	keys       []string // working keys of the next or running batch
	recipients []string // remembered recipient key files
	status     string
	job        *Job
}

// NewSession creates an idle session. Remembered recipients are taken from
// settings. A nil store keeps key changes in memory only.
func NewSession(settings *config.Settings, store SettingsStore, runner batch.ToolRunner, logger log.Logger) *Session {
	if logger == nil {
		logger = log.GetLogger()
	}
	if settings == nil {
		settings = config.Defaults()
	}
	s := &Session{
		settings:   settings,
		store:      store,
		runner:     runner,
		logger:     logger,
		recipients: settings.KeyPaths(),
	}
	s.status = MsgReady.Format(len(s.recipients))
	return s
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Mode returns the mode of the pending or running batch.
func (s *Session) Mode() batch.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Status returns the latest status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pending returns the classified inputs waiting for keys or being processed.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pending...)
}

// Recipients returns the remembered recipient key files.
func (s *Session) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recipients...)
}

// ModeLabel names the mode of the pending or running batch. It is empty
// while idle.
func (s *Session) ModeLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase == PhaseIdle:
		return ""
	case s.mode == batch.ModeDecrypt:
		return MsgDecryptMode.Format()
	default:
		return MsgEncryptMode.Format()
	}
}

// DropHints describes what a file drop accepts: plain inputs for
// encryption, then .age files for decryption under the current policy.
func (s *Session) DropHints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	decrypt := MsgDropDecrypt
	if !s.settings.Policy.SingleDecrypt {
		decrypt = MsgDropDecryptMany
	}
	return []string{MsgDropEncrypt.Format(), decrypt.Format()}
}

// Running reports whether a Job is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseRunning
}

// DropFiles classifies paths. If the batch can start right away, the
// running Job is returned; otherwise the session waits for DropKeys and the
// Job is nil.
func (s *Session) DropFiles(paths []string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseRunning {
		return nil, s.fail(errors.ErrBusy)
	}
	s.resetLocked()

	plan, err := s.classify(paths)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mode = plan.Mode
	s.pending = plan.Paths

	if plan.Mode == batch.ModeEncrypt && len(s.recipients) > 0 {
		s.keys = append([]string(nil), s.recipients...)
		return s.startLocked(), nil
	}

	s.phase = PhaseAwaitingKeys
	if plan.Mode == batch.ModeDecrypt {
		s.status = MsgNeedIdentity.Format()
	} else {
		s.status = MsgNeedRecipients.Format(len(plan.Paths))
	}
	return nil, nil
}

// DropKeys supplies keys for the pending files and starts the batch. Paths
// that are not existing regular files are ignored. Recipient keys of an
// encrypt batch are remembered for later drops.
func (s *Session) DropKeys(paths []string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseRunning:
		return nil, s.fail(errors.ErrBusy)
	case PhaseIdle:
		return nil, errors.ErrNoPendingFiles
	}

	valid := existingFiles(paths)
	if len(valid) == 0 {
		s.status = MsgInvalidKeyPath.Format()
		return nil, errors.NewValidationError("keys", MsgInvalidKeyPath.Format())
	}

	s.keys = valid
	if s.mode == batch.ModeEncrypt {
		s.rememberLocked(valid)
	}
	return s.startLocked(), nil
}

// Start runs a batch in one call, for front-ends that collect files and
// keys together.
func (s *Session) Start(req StartRequest) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseRunning {
		return nil, s.fail(errors.ErrBusy)
	}
	s.resetLocked()

	plan, err := s.classify(req.Paths)
	if err != nil {
		return nil, s.fail(err)
	}
	switch {
	case req.Require == RequireEncrypt && plan.Mode != batch.ModeEncrypt:
		return nil, s.fail(errors.NewValidationError("inputs", "only plain files and folders can be encrypted"))
	case req.Require == RequireDecrypt && plan.Mode != batch.ModeDecrypt:
		return nil, s.fail(errors.NewValidationError("inputs", "only .age files can be decrypted"))
	}

	keys := existingFiles(req.Keys)
	if len(req.Keys) > 0 && len(keys) == 0 {
		return nil, s.fail(errors.NewValidationError("keys", MsgInvalidKeyPath.Format()))
	}
	if plan.Mode == batch.ModeEncrypt {
		if len(keys) == 0 {
			keys = append([]string(nil), s.recipients...)
		} else if req.Remember {
			s.rememberLocked(keys)
		}
		if len(keys) == 0 {
			return nil, s.fail(errors.Invalid("keys", errors.ErrNoRecipients))
		}
	} else if len(keys) == 0 {
		return nil, s.fail(errors.Invalid("keys", errors.ErrNoIdentities))
	}

	s.mode = plan.Mode
	s.pending = plan.Paths
	s.keys = keys
	return s.startLocked(), nil
}

// Cancel stops the running Job, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

// SetRecipients replaces the remembered recipient keys.
func (s *Session) SetRecipients(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRunning {
		return errors.ErrBusy
	}
	valid := existingFiles(paths)
	if len(valid) == 0 {
		return errors.NewValidationError("keys", MsgInvalidKeyPath.Format())
	}
	s.rememberLocked(valid)
	s.status = MsgLoadedKeys.Format(len(valid))
	return nil
}

// ClearKeys forgets remembered recipients and any working keys, and stops
// remembering until new recipients are dropped.
func (s *Session) ClearKeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRunning {
		return errors.ErrBusy
	}
	s.recipients = nil
	s.keys = nil
	s.settings.ForgetKeys()
	s.persistLocked()
	s.status = MsgReady.Format(0)
	return nil
}

// Reset abandons pending files and working keys. Remembered recipients stay.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRunning {
		return errors.ErrBusy
	}
	s.resetLocked()
	s.status = MsgReady.Format(len(s.recipients))
	return nil
}

func (s *Session) resetLocked() {
	s.phase = PhaseIdle
	s.pending = nil
	s.keys = nil
}

func (s *Session) classify(paths []string) (*batch.Plan, error) {
	policy, err := s.settings.BatchPolicy()
	if err != nil {
		return nil, err
	}
	return batch.Classify(paths, policy)
}

// fail records err as the status and returns it.
func (s *Session) fail(err error) error {
	msg := MessageFor(err)
	if msg == MsgWorkerError {
		s.status = msg.Format(err.Error())
	} else {
		s.status = msg.Format()
	}
	s.logger.Info("drop rejected", log.String("status", s.status), log.Err(err))
	return err
}

func (s *Session) rememberLocked(paths []string) {
	s.recipients = append([]string(nil), paths...)
	s.settings.RememberKeys(paths)
	s.persistLocked()
}

func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.settings); err != nil {
		s.logger.Warn("failed to save settings", log.Err(err))
	}
}

// startLocked launches the batch for the pending files and working keys.
func (s *Session) startLocked() *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := newJob(s.mode, cancel)
	req := batch.Request{Mode: s.mode, Inputs: s.pending, Keys: s.keys}

	s.phase = PhaseRunning
	s.job = job
	s.status = MsgLoadedKeys.Format(len(s.keys)) + " " + MsgStartProcess.Format(s.mode.String())

	orch := batch.NewOrchestrator(s.runner, s.settings.BatchConfig(), s.logger)
	go func() {
		res, err := orch.Run(ctx, req, job)
		s.finish(job, res, err)
		job.finish(res, err)
	}()
	return job
}

// finish returns the session to idle and summarizes the batch.
func (s *Session) finish(job *Job, res *batch.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != job {
		return
	}

	s.job = nil
	s.phase = PhaseIdle
	if res.ClearKeys || s.mode == batch.ModeDecrypt {
		s.keys = nil
	}
	if s.mode == batch.ModeDecrypt {
		s.pending = nil
	}

	switch {
	case err != nil || res.TotalCount == 0 || res.Cancelled:
		s.status = MsgTerminated.Format()
	case res.SuccessCount == res.TotalCount:
		keys := 0
		if s.mode == batch.ModeEncrypt {
			keys = len(s.recipients)
		}
		s.status = MsgFinishedKeys.Format(keys)
	default:
		s.status = MsgFilesFailed.Format(res.Failed())
	}
}

func existingFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"YubiAge/internal/agecli"
	"YubiAge/internal/agecli/agetest"
	"YubiAge/internal/batch"
	"YubiAge/internal/config"
	"YubiAge/internal/errors"
	"YubiAge/internal/log"
)

func TestMain(m *testing.M) {
	agetest.Main()
	os.Exit(m.Run())
}

type fixture struct {
	root  string
	keys  agetest.Keys
	store *config.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keyDir := t.TempDir()
	return &fixture{
		root:  t.TempDir(),
		keys:  agetest.GenerateKeys(t, keyDir, "alice"),
		store: config.NewStore(filepath.Join(keyDir, "cfg", "settings.toml")),
	}
}

func (f *fixture) file(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.root, name)
	if err := os.WriteFile(p, []byte("data of "+name), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func fakeAge(extraEnv ...string) *agecli.Runner {
	bin, env := agetest.Command(extraEnv...)
	return &agecli.Runner{Binary: bin, Env: env, Logger: log.Nop()}
}

func newTestSession(f *fixture, runner batch.ToolRunner) *Session {
	return NewSession(config.Defaults(), f.store, runner, log.Nop())
}

func wait(t *testing.T, j *Job) *batch.Result {
	t.Helper()
	if j == nil {
		t.Fatal("expected a running job")
	}
	select {
	case <-j.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("job did not finish")
	}
	res, err := j.Wait()
	if err != nil {
		t.Fatalf("job failed: %v", err)
	}
	return res
}

// blockingRunner holds every invocation until released or cancelled.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context, args []string) (*agecli.Result, error) {
	b.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, errors.ErrCancelled
	case <-b.release:
		os.WriteFile(args[2], []byte("out"), 0600)
		return &agecli.Result{}, nil
	}
}

func TestNewSession(t *testing.T) {
	s := NewSession(nil, nil, nil, nil)
	if s.Phase() != PhaseIdle {
		t.Errorf("Phase() = %v; want idle", s.Phase())
	}
	if s.Status() != "Ready. Pub Keys: 0." {
		t.Errorf("Status() = %q", s.Status())
	}

	settings := config.Defaults()
	key := filepath.Join(t.TempDir(), "k.pub")
	settings.RememberKeys([]string{key})
	s = NewSession(settings, nil, nil, nil)
	if diff := cmp.Diff([]string{key}, s.Recipients()); diff != "" {
		t.Errorf("Recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestDropHints(t *testing.T) {
	settings := config.Defaults()
	s := NewSession(settings, nil, nil, log.Nop())
	want := []string{"Drop Files or Folders for Encryption", "Drop ONE .age File for Decryption"}
	if diff := cmp.Diff(want, s.DropHints()); diff != "" {
		t.Errorf("DropHints mismatch (-want +got):\n%s", diff)
	}
	if s.ModeLabel() != "" {
		t.Errorf("idle ModeLabel() = %q", s.ModeLabel())
	}

	settings = config.Defaults()
	settings.Policy.SingleDecrypt = false
	s = NewSession(settings, nil, nil, log.Nop())
	if got := s.DropHints()[1]; got != "Drop .age Files for Decryption" {
		t.Errorf("batch decrypt hint = %q", got)
	}
}

func TestEncryptTwoStepThenRemembered(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge())
	a := f.file(t, "a.txt")

	job, err := s.DropFiles([]string{a})
	if err != nil || job != nil {
		t.Fatalf("DropFiles() = %v, %v; want waiting for keys", job, err)
	}
	if s.Phase() != PhaseAwaitingKeys || s.Mode() != batch.ModeEncrypt {
		t.Fatalf("phase=%v mode=%v", s.Phase(), s.Mode())
	}
	if s.Status() != "Recipient key needed! (1 files)" {
		t.Errorf("Status() = %q", s.Status())
	}
	if s.ModeLabel() != "Encrypt Mode" {
		t.Errorf("ModeLabel() = %q", s.ModeLabel())
	}

	job, err = s.DropKeys([]string{f.keys.RecipientFile, filepath.Join(f.root, "missing.pub")})
	if err != nil {
		t.Fatalf("DropKeys() failed: %v", err)
	}
	res := wait(t, job)
	if res.SuccessCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("Phase() after job = %v", s.Phase())
	}
	if s.Status() != "Finished. Keys: 1." {
		t.Errorf("Status() = %q", s.Status())
	}
	if _, err := os.Stat(a + ".age"); err != nil {
		t.Errorf("ciphertext missing: %v", err)
	}

	saved, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{f.keys.RecipientFile}, saved.KeyPaths()); diff != "" {
		t.Errorf("persisted keys mismatch (-want +got):\n%s", diff)
	}

	// With remembered recipients the next encrypt drop starts immediately.
	b := f.file(t, "b.txt")
	job, err = s.DropFiles([]string{b})
	if err != nil {
		t.Fatal(err)
	}
	if res := wait(t, job); res.SuccessCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestDecryptAlwaysAsksForIdentity(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge())
	plain := f.file(t, "report.txt")

	if err := s.SetRecipients([]string{f.keys.RecipientFile}); err != nil {
		t.Fatal(err)
	}
	wait(t, mustJob(t)(s.DropFiles([]string{plain})))
	os.Remove(plain)

	job, err := s.DropFiles([]string{plain + ".age"})
	if err != nil || job != nil {
		t.Fatalf("decrypt drop should wait for identities, got %v, %v", job, err)
	}
	if s.Mode() != batch.ModeDecrypt || s.ModeLabel() != "Decrypt Mode" {
		t.Errorf("Mode() = %v, ModeLabel() = %q", s.Mode(), s.ModeLabel())
	}

	res := wait(t, mustJob(t)(s.DropKeys([]string{f.keys.IdentityFile})))
	if res.SuccessCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(plain)
	if err != nil || string(data) != "data of report.txt" {
		t.Errorf("decrypted = %q, %v", data, err)
	}
	if s.Status() != "Finished. Keys: 0." {
		t.Errorf("Status() = %q", s.Status())
	}
	if len(s.Pending()) != 0 {
		t.Error("decrypt inputs should be cleared afterwards")
	}

	saved, _ := f.store.Load()
	if diff := cmp.Diff([]string{f.keys.RecipientFile}, saved.KeyPaths()); diff != "" {
		t.Errorf("identities must never be persisted (-want +got):\n%s", diff)
	}
}

func mustJob(t *testing.T) func(*Job, error) *Job {
	return func(j *Job, err error) *Job {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return j
	}
}

func TestDropRejections(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge())
	plain := f.file(t, "a.txt")
	enc := f.file(t, "b.age")

	_, err := s.DropFiles([]string{plain, enc})
	if !errors.Is(err, errors.ErrMixedInputs) {
		t.Errorf("expected ErrMixedInputs, got %v", err)
	}
	if s.Status() != MsgMixedFiles.Format() || s.Phase() != PhaseIdle {
		t.Errorf("status=%q phase=%v", s.Status(), s.Phase())
	}

	if _, err := s.DropKeys([]string{f.keys.IdentityFile}); !errors.Is(err, errors.ErrNoPendingFiles) {
		t.Errorf("expected ErrNoPendingFiles, got %v", err)
	}

	s.DropFiles([]string{plain})
	if _, err := s.DropKeys([]string{filepath.Join(f.root, "nope")}); !errors.IsValidation(err) {
		t.Errorf("expected ValidationError for bad key path, got %v", err)
	}
	if s.Phase() != PhaseAwaitingKeys {
		t.Error("a bad key drop keeps the files pending")
	}

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseIdle || len(s.Pending()) != 0 {
		t.Error("Reset should return to idle")
	}
}

func TestBusy(t *testing.T) {
	f := newFixture(t)
	runner := newBlockingRunner()
	s := newTestSession(f, runner)
	a := f.file(t, "a.txt")

	s.SetRecipients([]string{f.keys.RecipientFile})
	job, err := s.DropFiles([]string{a})
	if err != nil {
		t.Fatal(err)
	}
	<-runner.started

	if !s.Running() {
		t.Error("Running() should be true")
	}
	if _, err := s.DropFiles([]string{a}); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("DropFiles: expected ErrBusy, got %v", err)
	}
	if _, err := s.Start(StartRequest{Paths: []string{a}}); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("Start: expected ErrBusy, got %v", err)
	}
	if err := s.SetRecipients([]string{f.keys.RecipientFile}); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("SetRecipients: expected ErrBusy, got %v", err)
	}
	if err := s.ClearKeys(); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("ClearKeys: expected ErrBusy, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("Reset: expected ErrBusy, got %v", err)
	}

	close(runner.release)
	if res := wait(t, job); res.SuccessCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	runner := newBlockingRunner()
	s := newTestSession(f, runner)
	files := []string{f.file(t, "a.txt"), f.file(t, "b.txt")}

	job, err := s.Start(StartRequest{Paths: files, Keys: []string{f.keys.RecipientFile}})
	if err != nil {
		t.Fatal(err)
	}
	<-runner.started
	s.Cancel()

	res := wait(t, job)
	if !res.Cancelled || res.SuccessCount != 0 || res.Failed() != 0 {
		t.Errorf("result = %+v", res)
	}
	if s.Status() != "Terminated." {
		t.Errorf("Status() = %q", s.Status())
	}
	if s.Running() {
		t.Error("session should be idle after cancellation")
	}
}

func TestPartialFailureStatus(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge(agetest.EnvFail+"=b.txt"))
	files := []string{f.file(t, "a.txt"), f.file(t, "b.txt")}

	job, err := s.Start(StartRequest{Paths: files, Keys: []string{f.keys.RecipientFile}})
	if err != nil {
		t.Fatal(err)
	}

	var failed []string
	for ev := range job.Events() {
		if ev.Kind == EventFileFailed {
			failed = append(failed, ev.Name)
		}
	}
	res := wait(t, job)
	if res.SuccessCount != 1 || res.Failed() != 1 {
		t.Fatalf("result = %+v", res)
	}
	if diff := cmp.Diff([]string{"b.txt"}, failed); diff != "" {
		t.Errorf("failure events mismatch (-want +got):\n%s", diff)
	}
	if s.Status() != "Failed! 1 files failed." {
		t.Errorf("Status() = %q", s.Status())
	}
}

func TestStartRequirements(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge())
	plain := f.file(t, "a.txt")
	enc := f.file(t, "b.age")

	if _, err := s.Start(StartRequest{Paths: []string{plain}, Keys: []string{f.keys.IdentityFile}, Require: RequireDecrypt}); !errors.IsValidation(err) {
		t.Errorf("RequireDecrypt on plain input: got %v", err)
	}
	_, err := s.Start(StartRequest{Paths: []string{enc}, Keys: []string{f.keys.RecipientFile}, Require: RequireEncrypt})
	if !errors.IsValidation(err) || errors.Is(err, errors.ErrMixedInputs) {
		t.Errorf("RequireEncrypt on .age input: got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "only plain files and folders can be encrypted") {
		t.Errorf("unexpected message %q", err)
	}
	if _, err := s.Start(StartRequest{Paths: []string{plain}}); !errors.Is(err, errors.ErrNoRecipients) {
		t.Errorf("encrypt without keys: got %v", err)
	}
	if _, err := s.Start(StartRequest{Paths: []string{enc}}); !errors.Is(err, errors.ErrNoIdentities) {
		t.Errorf("decrypt without keys: got %v", err)
	}

	job, err := s.Start(StartRequest{Paths: []string{plain}, Keys: []string{f.keys.RecipientFile}, Remember: true})
	if err != nil {
		t.Fatal(err)
	}
	wait(t, job)
	if diff := cmp.Diff([]string{f.keys.RecipientFile}, s.Recipients()); diff != "" {
		t.Errorf("Remember should store recipients (-want +got):\n%s", diff)
	}
}

func TestClearKeysPersists(t *testing.T) {
	f := newFixture(t)
	s := newTestSession(f, fakeAge())

	if err := s.SetRecipients([]string{f.keys.RecipientFile}); err != nil {
		t.Fatal(err)
	}
	if s.Status() != "Loaded 1 keys." {
		t.Errorf("Status() = %q", s.Status())
	}
	if err := s.ClearKeys(); err != nil {
		t.Fatal(err)
	}
	if len(s.Recipients()) != 0 {
		t.Error("recipients should be cleared")
	}

	saved, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.Keys.Remember || saved.KeyPaths() != nil {
		t.Errorf("persisted keys = %+v; want remember off", saved.Keys)
	}

	if err := s.SetRecipients([]string{filepath.Join(f.root, "none")}); !errors.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

package agecli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"YubiAge/internal/agecli/agetest"
	"YubiAge/internal/errors"
	"YubiAge/internal/log"
)

func TestMain(m *testing.M) {
	terminalHelperMain()
	agetest.Main()
	os.Exit(m.Run())
}

func fakeRunner(extraEnv ...string) *Runner {
	bin, env := agetest.Command(extraEnv...)
	return &Runner{Binary: bin, Env: env, Logger: log.Nop()}
}

type recordingForegrounder struct {
	mu   sync.Mutex
	pids []int
}

func (f *recordingForegrounder) Foreground(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pids = append(f.pids, pid)
	return nil
}

func (f *recordingForegrounder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pids)
}

func TestRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keys := agetest.GenerateKeys(t, dir, "alice")

	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("meet at noon"), 0644); err != nil {
		t.Fatal(err)
	}

	r := fakeRunner()
	ctx := context.Background()

	enc := plain + ".age"
	res, err := r.Run(ctx, EncryptArgs(enc, keys.RecipientFile, plain))
	if err != nil {
		t.Fatalf("encrypt Run() failed: %v", err)
	}
	if !res.Success() {
		t.Fatalf("encrypt exit %d: %s", res.ExitCode, res.Stderr)
	}

	armored, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(armored), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Error("encrypt output should be ASCII armored")
	}

	dec := filepath.Join(dir, "notes.out")
	res, err = r.Run(ctx, DecryptArgs(dec, []string{keys.IdentityFile}, enc))
	if err != nil {
		t.Fatalf("decrypt Run() failed: %v", err)
	}
	if res.Err() != nil {
		t.Fatalf("decrypt failed: %v", res.Err())
	}

	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "meet at noon" {
		t.Errorf("round trip = %q", got)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	keys := agetest.GenerateKeys(t, dir, "alice")
	other := agetest.GenerateKeys(t, dir, "mallory")

	plain := filepath.Join(dir, "secret.txt")
	os.WriteFile(plain, []byte("x"), 0644)

	r := fakeRunner()
	enc := plain + ".age"
	if _, err := r.Run(context.Background(), EncryptArgs(enc, keys.RecipientFile, plain)); err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(context.Background(), DecryptArgs(filepath.Join(dir, "out"), []string{other.IdentityFile}, enc))
	if err != nil {
		t.Fatalf("Run() should not error on tool failure: %v", err)
	}
	if res.Success() {
		t.Fatal("decrypting with the wrong identity should fail")
	}
	if !strings.Contains(string(res.Stderr), "age: error") {
		t.Errorf("stderr = %q", res.Stderr)
	}

	var toolErr *errors.ToolError
	if !errors.As(res.Err(), &toolErr) {
		t.Fatalf("Err() should be a ToolError, got %T", res.Err())
	}
	if toolErr.ExitCode != res.ExitCode {
		t.Errorf("ExitCode = %d; want %d", toolErr.ExitCode, res.ExitCode)
	}
}

func TestRunSimulatedFailure(t *testing.T) {
	r := fakeRunner(agetest.EnvFail + "=bad.txt")
	res, err := r.Run(context.Background(), EncryptArgs("/nowhere/bad.txt.age", "/nowhere/r", "/nowhere/bad.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d; want 1", res.ExitCode)
	}
	if res.Err().Error() != agetest.FailMessage {
		t.Errorf("Err() = %q; want %q", res.Err(), agetest.FailMessage)
	}
}

func TestRunToolNotFound(t *testing.T) {
	r := &Runner{Binary: filepath.Join(t.TempDir(), "no-such-age"), Logger: log.Nop()}
	_, err := r.Run(context.Background(), []string{"--version"})
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	r := fakeRunner(agetest.EnvSleep + "=30s")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Run(ctx, EncryptArgs("/tmp/x.age", "/tmp/r", "/tmp/x"))
	if !errors.IsCancelled(err) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("child was not killed promptly")
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fakeRunner().Run(ctx, nil)
	if !errors.IsCancelled(err) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestRunForegrounder(t *testing.T) {
	fg := &recordingForegrounder{}

	r := fakeRunner(agetest.EnvSleep + "=300ms")
	r.Foregrounder = fg
	r.SettleDelay = 10 * time.Millisecond
	r.Run(context.Background(), EncryptArgs("/nowhere/a.age", "/nowhere/r", "/nowhere/a"))
	if fg.calls() != 1 {
		t.Errorf("Foreground called %d times; want 1", fg.calls())
	}

	// A child that exits before the settle delay is never raised.
	fg = &recordingForegrounder{}
	r = fakeRunner()
	r.Foregrounder = fg
	r.SettleDelay = 2 * time.Second
	r.Run(context.Background(), EncryptArgs("/nowhere/a.age", "/nowhere/r", "/nowhere/a"))
	time.Sleep(50 * time.Millisecond)
	if fg.calls() != 0 {
		t.Errorf("Foreground called %d times for an exited child; want 0", fg.calls())
	}
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner("")
	if r.SettleDelay != DefaultSettleDelay {
		t.Errorf("SettleDelay = %v; want %v", r.SettleDelay, DefaultSettleDelay)
	}
	if r.Binary != "" {
		t.Errorf("Binary = %q; want empty (resolved on PATH)", r.Binary)
	}
}

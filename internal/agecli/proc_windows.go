//go:build windows

package agecli

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"YubiAge/internal/errors"
)

// configureProcess gives age its own console window. age-plugin-yubikey
// prompts for the PIN on the console, which a GUI parent does not have.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_CONSOLE}
}

func killProcess(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// platformEnv disables age's own pinentry handling so prompts stay in the
// child console.
func platformEnv() []string {
	return []string{"AGE_DISABLE_PTE=1"}
}

//go:build !windows

package agecli

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"YubiAge/internal/errors"
)

// terminalAttached reports whether this process has a controlling terminal.
var terminalAttached = func() bool {
	fd, err := unix.Open("/dev/tty", unix.O_RDONLY|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}

// configureProcess decides the child's process group. On a terminal the
// child stays in the caller's foreground group: age and its plugins read PINs
// from /dev/tty, and a background group would be stopped by SIGTTIN. Without
// a terminal the child gets its own group so cancellation also takes down any
// plugins it spawned.
func configureProcess(cmd *exec.Cmd) {
	if terminalAttached() {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return err
		}
		return nil
	}
	// Plugins see EOF on their stdin once age is gone.
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func platformEnv() []string {
	return nil
}

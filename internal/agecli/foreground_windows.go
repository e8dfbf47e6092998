//go:build windows

package agecli

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const swRestore = 9

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procShowWindow               = user32.NewProc("ShowWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
)

// Callbacks are a finite resource on Windows; one is shared by all lookups.
var (
	enumMu       sync.Mutex
	enumPID      uint32
	enumFound    []uintptr
	enumCallback = windows.NewCallback(enumWindow)
)

func enumWindow(hwnd, _ uintptr) uintptr {
	var owner uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&owner)))
	if owner == enumPID {
		if visible, _, _ := procIsWindowVisible.Call(hwnd); visible != 0 {
			enumFound = append(enumFound, hwnd)
		}
	}
	return 1
}

type windowForegrounder struct{}

func platformForegrounder() Foregrounder {
	return windowForegrounder{}
}

// Foreground restores and activates every visible top-level window owned by pid.
func (windowForegrounder) Foreground(pid int) error {
	if err := user32.Load(); err != nil {
		return err
	}

	enumMu.Lock()
	enumPID = uint32(pid)
	enumFound = nil
	procEnumWindows.Call(enumCallback, 0)
	found := enumFound
	enumMu.Unlock()

	if len(found) == 0 {
		return fmt.Errorf("no visible window for pid %d", pid)
	}
	for _, hwnd := range found {
		procShowWindow.Call(hwnd, swRestore)
		procSetForegroundWindow.Call(hwnd)
	}
	return nil
}

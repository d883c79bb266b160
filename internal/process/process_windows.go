//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// createNoWindow is the CREATE_NO_WINDOW process creation flag.
const createNoWindow = 0x08000000

// configure stops the child from opening a console window.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// interrupt kills the process: Windows has no signal a console-less child
// can be asked to honour.
func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

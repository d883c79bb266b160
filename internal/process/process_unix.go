//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// configure is a no-op on Unix; children inherit no console.
func configure(*exec.Cmd) {}

// interrupt asks the process to exit with SIGTERM.
func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Signal(syscall.SIGTERM)
}

//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package invoke

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// startOwnGroup puts the child in a new process group so the whole tree it
// forks can be killed together. A child reading an interactive terminal stays
// in the foreground group, where the tty lets it read.
func startOwnGroup(cmd *exec.Cmd) bool {
	if f, ok := cmd.Stdin.(*os.File); ok && isTerminal(f) {
		return false
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return true
}

// killTree sends SIGKILL to the child's process group, or to the child alone
// when it shares the caller's group.
func killTree(cmd *exec.Cmd, group bool) error {
	if !group {
		return cmd.Process.Kill()
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	return err == nil
}

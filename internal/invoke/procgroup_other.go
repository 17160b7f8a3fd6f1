//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package invoke

import "os/exec"

func startOwnGroup(*exec.Cmd) bool { return false }

func killTree(cmd *exec.Cmd, _ bool) error {
	return cmd.Process.Kill()
}

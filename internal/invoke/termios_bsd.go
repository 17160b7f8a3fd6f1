//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package invoke

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TIOCGETA

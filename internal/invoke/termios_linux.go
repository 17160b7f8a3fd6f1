//go:build linux

package invoke

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TCGETS

//go:build !unix && !windows

package update

import "syscall"

func detachedAttr() *syscall.SysProcAttr {
	return nil
}

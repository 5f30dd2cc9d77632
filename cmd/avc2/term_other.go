//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package main

import (
	"os"
)

// rawTerm is not supported on this platform.
func rawTerm(file *os.File) (restore func()) {
	return func() {}
}

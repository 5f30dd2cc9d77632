//go:build linux || darwin || freebsd || netbsd || openbsd

package main

import (
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// rawTerm puts a terminal into unbuffered, unechoed input mode, and
// returns a function that restores it. Other files are left alone.
func rawTerm(file *os.File) (restore func()) {
	restore = func() {}

	fd := int(file.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		// Not a terminal.
		return
	}

	termRestore := *termios
	termstate := *termios

	termstate.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.INLCR | unix.ICRNL
	termstate.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN
	termstate.Cflag &^= unix.CSIZE | unix.PARENB
	termstate.Cflag |= unix.CS8

	// Block for at least one byte; input is read ahead by the system device.
	termstate.Cc[unix.VMIN] = 1
	termstate.Cc[unix.VTIME] = 0

	err = unix.IoctlSetTermios(fd, ioctlSetTermios, &termstate)
	if err != nil {
		log.Printf("terminal: %v", err)
		return
	}

	restore = func() {
		err := unix.IoctlSetTermios(fd, ioctlSetTermios, &termRestore)
		if err != nil {
			log.Printf("terminal: %v", err)
		}
	}

	return
}

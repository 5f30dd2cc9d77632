package io

import (
	"fmt"
	"io"
	"log"
	"time"
)

// System device ports.
const (
	SYSTEM_PORT_ID     = 0x0 // r: device kind
	SYSTEM_PORT_WAIT   = 0x1 // w: sleep for value milliseconds
	SYSTEM_PORT_RANDOM = 0x2 // r: random byte
	SYSTEM_PORT_STDIN  = 0x8 // r: next input byte, 0 if none
	SYSTEM_PORT_STDOUT = 0x9 // w: output byte
	SYSTEM_PORT_STDERR = 0xa // w: error output byte
	SYSTEM_PORT_BUFFER = 0xb // r: buffered input bytes, saturating at 255
	SYSTEM_PORT_HALT   = 0xf // w: halt with exit code value

	SYSTEM_INPUT_DEPTH = 4096 // Input bytes read ahead of the machine.
)

var _system_defines = map[string]string{
	"SYSTEM_PORT_ID":     fmt.Sprintf("%#x", SYSTEM_PORT_ID),
	"SYSTEM_PORT_WAIT":   fmt.Sprintf("%#x", SYSTEM_PORT_WAIT),
	"SYSTEM_PORT_RANDOM": fmt.Sprintf("%#x", SYSTEM_PORT_RANDOM),
	"SYSTEM_PORT_STDIN":  fmt.Sprintf("%#x", SYSTEM_PORT_STDIN),
	"SYSTEM_PORT_STDOUT": fmt.Sprintf("%#x", SYSTEM_PORT_STDOUT),
	"SYSTEM_PORT_STDERR": fmt.Sprintf("%#x", SYSTEM_PORT_STDERR),
	"SYSTEM_PORT_BUFFER": fmt.Sprintf("%#x", SYSTEM_PORT_BUFFER),
	"SYSTEM_PORT_HALT":   fmt.Sprintf("%#x", SYSTEM_PORT_HALT),
}

// System is the console device that always occupies slot 0.
// Input is read ahead from Input so that port reads never block.
type System struct {
	Input  io.Reader
	Output io.Writer
	Error  io.Writer

	Sleep func(d time.Duration) // If nil, time.Sleep.

	lfsr    uint16
	buf     []byte
	pending chan byte
}

var _ Device = (*System)(nil)

// NewSystem creates a system device, seeding its random number
// generator from the wall clock.
func NewSystem(input io.Reader, output, errout io.Writer) (sys *System) {
	sys = &System{
		Input:  input,
		Output: output,
		Error:  errout,
	}
	sys.Seed(uint16(time.Now().UnixMilli()))

	return
}

// Seed sets the random number generator state. Zero is replaced by 1.
func (sys *System) Seed(seed uint16) {
	if seed == 0 {
		seed = 1
	}
	sys.lfsr = seed
}

// advance steps the xorshift random number generator.
func (sys *System) advance() {
	sys.lfsr ^= sys.lfsr >> 7
	sys.lfsr ^= sys.lfsr << 9
	sys.lfsr ^= sys.lfsr >> 13
}

// receive starts the input reader on first use.
func (sys *System) receive() {
	if sys.pending != nil || sys.Input == nil {
		return
	}

	sys.pending = make(chan byte, SYSTEM_INPUT_DEPTH)
	go func(input io.Reader, pending chan byte) {
		defer close(pending)
		var one [1]byte
		for {
			n, err := input.Read(one[:])
			if n == 1 {
				pending <- one[0]
			}
			if err != nil {
				return
			}
		}
	}(sys.Input, sys.pending)
}

// update moves any input already read into the buffer.
func (sys *System) update() {
	sys.receive()

	for sys.pending != nil {
		select {
		case value, ok := <-sys.pending:
			if !ok {
				// Input exhausted; stop polling.
				sys.pending = nil
				sys.Input = nil
				return
			}
			sys.buf = append(sys.buf, value)
		default:
			return
		}
	}
}

// Read reads a system port.
func (sys *System) Read(port uint8) (value uint8) {
	sys.advance()

	switch port {
	case SYSTEM_PORT_ID:
		value = KIND_SYSTEM
	case SYSTEM_PORT_RANDOM:
		value = uint8(sys.lfsr >> 8)
	case SYSTEM_PORT_STDIN:
		sys.update()
		if len(sys.buf) > 0 {
			value = sys.buf[0]
			sys.buf = sys.buf[1:]
		}
	case SYSTEM_PORT_BUFFER:
		sys.update()
		value = uint8(min(len(sys.buf), 255))
	}

	return
}

// Write writes a system port.
func (sys *System) Write(port uint8, value uint8) (resp Response) {
	sys.advance()

	switch port {
	case SYSTEM_PORT_WAIT:
		sleep := sys.Sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		sleep(time.Duration(value) * time.Millisecond)
	case SYSTEM_PORT_STDOUT:
		sys.emit(sys.Output, value)
	case SYSTEM_PORT_STDERR:
		sys.emit(sys.Error, value)
	case SYSTEM_PORT_HALT:
		resp = Shutdown(value)
	}

	return
}

// emit writes a single byte to an output stream.
func (sys *System) emit(out io.Writer, value uint8) {
	if out == nil {
		return
	}

	_, err := out.Write([]byte{value})
	if err != nil {
		log.Printf("system: output: %v", err)
	}
}

// Shutdown has nothing to flush.
func (sys *System) Shutdown() error {
	return nil
}

// DmaCallback is never requested by the system device.
func (sys *System) DmaCallback(data []byte) {
}

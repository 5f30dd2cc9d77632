// Package memory implements the flat 64KiB address space of the machine:
// RAM below the device page, and the device page redirected to the bus.
package memory

import (
	"github.com/ezrec/avc2/internal"
	"github.com/ezrec/avc2/io"
	"github.com/ezrec/avc2/translate"
)

const (
	RAM_SIZE     = 0xff00 // Bytes of RAM.
	DEVICE_PAGE  = 0xff00 // First address of the device page.
	LOAD_ADDRESS = 0x0300 // Address the program image is loaded at.
	ROM_LIMIT    = RAM_SIZE - LOAD_ADDRESS
)

var (
	ErrRomTooLarge = translate.Error("program image larger than %d bytes", ROM_LIMIT)
)

// Bus is the device page as seen by memory.
type Bus interface {
	Read(addr uint8) uint8
	Write(addr uint8, value uint8) (io.Response, error)
	Deliver(data []byte)
}

// Memory is the machine address space.
// All address arithmetic wraps at 64KiB.
type Memory struct {
	ram [RAM_SIZE]byte
	bus Bus
}

// NewMemory creates memory with the program image at LOAD_ADDRESS.
func NewMemory(bus Bus, rom []byte) (mem *Memory, err error) {
	if len(rom) > ROM_LIMIT {
		err = ErrRomTooLarge
		return
	}

	mem = &Memory{bus: bus}
	copy(mem.ram[LOAD_ADDRESS:], rom)

	return
}

// Read8 reads a byte.
func (mem *Memory) Read8(addr uint16) uint8 {
	if addr < DEVICE_PAGE {
		return mem.ram[addr]
	}
	if mem.bus == nil {
		return 0
	}

	return mem.bus.Read(internal.LowByte(addr))
}

// Write8 writes a byte. Device writes may request DMA, which is applied
// before returning. A device to memory transfer is written byte by byte
// through Write8, so a destination in the device page is dispatched to
// the bus again.
func (mem *Memory) Write8(addr uint16, value uint8) (err error) {
	if addr < DEVICE_PAGE {
		mem.ram[addr] = value
		return
	}
	if mem.bus == nil {
		return
	}

	resp, err := mem.bus.Write(internal.LowByte(addr), value)
	if err != nil {
		return
	}

	switch resp.Kind {
	case io.RESPONSE_DMA_TO_MEMORY:
		for n, data := range resp.Data {
			err = mem.Write8(resp.Address+uint16(n), data)
			if err != nil {
				return
			}
		}
	case io.RESPONSE_DMA_TO_DEVICE:
		data := make([]byte, resp.Length)
		for n := range data {
			data[n] = mem.Read8(resp.Address + uint16(n))
		}
		mem.bus.Deliver(data)
	}

	return
}

// Read16 reads a big-endian word.
func (mem *Memory) Read16(addr uint16) uint16 {
	hb := mem.Read8(addr)
	lb := mem.Read8(addr + 1)
	return internal.Word(hb, lb)
}

// Write16 writes a big-endian word.
func (mem *Memory) Write16(addr uint16, value uint16) (err error) {
	err = mem.Write8(addr, internal.HighByte(value))
	if err != nil {
		return
	}
	return mem.Write8(addr+1, internal.LowByte(value))
}

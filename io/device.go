// Package io provides the device page of the machine: the Device contract,
// the 16 slot Bus that routes port accesses and DMA requests, device
// placement configuration, and the System console and Drive block storage
// peripherals.
package io

import (
	"fmt"
	"iter"
	"maps"

	"github.com/ezrec/avc2/internal"
)

const (
	SLOT_COUNT  = 16 // Number of device slots on the bus.
	PORT_COUNT  = 16 // Number of ports per slot.
	SLOT_SYSTEM = 0  // Slot reserved for the system device.
)

// Well-known device kinds. Port 0 of each device returns its kind.
const (
	KIND_SYSTEM = uint8(1)
	KIND_DRIVE  = uint8(2)
)

var _bus_defines = map[string]string{
	"SLOT_COUNT":  fmt.Sprintf("%v", SLOT_COUNT),
	"SLOT_SYSTEM": fmt.Sprintf("%v", SLOT_SYSTEM),
	"KIND_SYSTEM": fmt.Sprintf("%v", KIND_SYSTEM),
	"KIND_DRIVE":  fmt.Sprintf("%v", KIND_DRIVE),
}

// Defines returns an iter of the bus and device port defines.
func Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_bus_defines),
		maps.All(_system_defines),
		maps.All(_drive_defines),
	)
}

// Device is the contract for a peripheral occupying a bus slot.
type Device interface {
	// Read returns the value of a port. Unmapped ports return 0.
	Read(port uint8) uint8
	// Write stores a value to a port, returning the bus effect requested.
	Write(port uint8, value uint8) Response
	// Shutdown flushes device state. Errors are reported, never fatal.
	Shutdown() error
	// DmaCallback receives the bytes of a memory to device transfer.
	DmaCallback(data []byte)
}

// ResponseKind selects the bus effect of a device write.
type ResponseKind int

const (
	RESPONSE_NONE          = ResponseKind(0) // No effect.
	RESPONSE_SHUTDOWN      = ResponseKind(1) // Halt the machine.
	RESPONSE_DMA_TO_MEMORY = ResponseKind(2) // Copy Data into memory at Address.
	RESPONSE_DMA_TO_DEVICE = ResponseKind(3) // Copy Length bytes at Address to the device.
)

func (kind ResponseKind) String() string {
	switch kind {
	case RESPONSE_NONE:
		return "none"
	case RESPONSE_SHUTDOWN:
		return "shutdown"
	case RESPONSE_DMA_TO_MEMORY:
		return "dma-to-memory"
	case RESPONSE_DMA_TO_DEVICE:
		return "dma-to-device"
	}
	return fmt.Sprintf("ResponseKind(%d)", int(kind))
}

// Response is the result of a device port write.
type Response struct {
	Kind    ResponseKind
	Code    uint8  // Exit code, for RESPONSE_SHUTDOWN.
	Address uint16 // Memory address of a DMA transfer.
	Data    []byte // Bytes to copy, for RESPONSE_DMA_TO_MEMORY.
	Length  int    // Bytes to copy, for RESPONSE_DMA_TO_DEVICE.
}

// Shutdown requests a machine halt with an exit code.
func Shutdown(code uint8) Response {
	return Response{Kind: RESPONSE_SHUTDOWN, Code: code}
}

// DmaToMemory requests a copy of data into memory.
func DmaToMemory(address uint16, data []byte) Response {
	return Response{Kind: RESPONSE_DMA_TO_MEMORY, Address: address, Data: data}
}

// DmaToDevice requests a copy of memory back to the requesting device.
func DmaToDevice(address uint16, length int) Response {
	return Response{Kind: RESPONSE_DMA_TO_DEVICE, Address: address, Length: length}
}

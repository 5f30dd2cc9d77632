package io

import (
	"log"
)

// Bus owns the device slots of the device page.
type Bus struct {
	Verbose bool // If set, enables verbose logging.

	devices       [SLOT_COUNT]Device
	lastDmaSource int
	halted        bool
}

// NewBus creates a bus with the system device in slot 0, and the
// placed devices in their slots.
func NewBus(system Device, placements ...Placement) (bus *Bus, err error) {
	bus = &Bus{lastDmaSource: -1}
	bus.devices[SLOT_SYSTEM] = system

	for _, placement := range placements {
		var dev Device
		dev, err = placement.validate()
		if err == nil {
			err = bus.Attach(placement.Slot, dev)
		}
		if err != nil {
			err = &ErrPlacement{Placement: placement, Err: err}
			bus = nil
			return
		}
	}

	return
}

// Attach places a device in an empty slot.
func (bus *Bus) Attach(slot int, dev Device) (err error) {
	switch {
	case slot == SLOT_SYSTEM:
		err = ErrSlotReserved
	case slot < 0 || slot >= SLOT_COUNT:
		err = ErrSlotRange
	case bus.devices[slot] != nil:
		err = ErrSlotDuplicate
	default:
		bus.devices[slot] = dev
	}

	return
}

// Device returns the device in a slot, or nil.
func (bus *Bus) Device(slot int) Device {
	if slot < 0 || slot >= SLOT_COUNT {
		return nil
	}
	return bus.devices[slot]
}

// split converts a device page offset into a slot and port.
func split(addr uint8) (slot int, port uint8) {
	return int(addr / PORT_COUNT), addr % PORT_COUNT
}

// Read reads a port. Empty slots read as 0.
func (bus *Bus) Read(addr uint8) (value uint8) {
	slot, port := split(addr)
	dev := bus.devices[slot]
	if dev == nil {
		return
	}

	return dev.Read(port)
}

// Write writes a port. DMA responses are returned for the caller to
// apply. A shutdown response shuts down every device, and is returned
// as an *ErrHalt error.
func (bus *Bus) Write(addr uint8, value uint8) (resp Response, err error) {
	slot, port := split(addr)
	dev := bus.devices[slot]
	if dev == nil {
		return
	}

	resp = dev.Write(port, value)
	if bus.Verbose && resp.Kind != RESPONSE_NONE {
		log.Printf("bus: slot %d port %d: %v", slot, port, resp.Kind)
	}

	switch resp.Kind {
	case RESPONSE_SHUTDOWN:
		bus.Shutdown()
		err = &ErrHalt{Code: resp.Code}
	case RESPONSE_DMA_TO_DEVICE:
		bus.lastDmaSource = slot
	}

	return
}

// Deliver hands the bytes of a memory to device transfer to the device
// that last requested one.
func (bus *Bus) Deliver(data []byte) {
	if bus.lastDmaSource < 0 {
		return
	}
	dev := bus.devices[bus.lastDmaSource]
	if dev == nil {
		return
	}

	dev.DmaCallback(data)
}

// Shutdown shuts down every device in slot order, once. Device errors
// are logged and otherwise ignored.
func (bus *Bus) Shutdown() {
	if bus.halted {
		return
	}
	bus.halted = true

	for slot, dev := range bus.devices {
		if dev == nil {
			continue
		}
		err := dev.Shutdown()
		if err != nil {
			log.Printf("bus: slot %d shutdown: %v", slot, err)
		}
	}
}

// Halted returns true once the devices have been shut down.
func (bus *Bus) Halted() bool {
	return bus.halted
}

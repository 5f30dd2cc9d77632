package io

import (
	"fmt"
	"strconv"
	"strings"
)

// Placement binds a device kind to a bus slot.
type Placement struct {
	Slot    int
	Kind    uint8
	Options []string
}

// Kind describes how to construct a device kind.
type Kind struct {
	Name    string                                 // Name of the kind.
	Options int                                    // Required number of options.
	New     func(options []string) (Device, error) // Device constructor.
}

// Kinds are the device kinds that can be placed on the bus.
// The system device is always present, and cannot be placed.
var Kinds = map[uint8]Kind{
	KIND_DRIVE: {
		Name:    "drive",
		Options: 1,
		New: func(options []string) (Device, error) {
			return NewDrive(options[0])
		},
	},
}

// ParsePlacement parses SLOT:KIND[:OPTION...] text.
func ParsePlacement(text string) (placement Placement, err error) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 {
		err = ErrPlacementSyntax
		return
	}

	slot, err := strconv.ParseUint(parts[0], 0, 8)
	if err != nil {
		err = ErrPlacementSyntax
		return
	}

	kind, err := strconv.ParseUint(parts[1], 0, 8)
	if err != nil {
		err = ErrPlacementSyntax
		return
	}

	placement = Placement{
		Slot:    int(slot),
		Kind:    uint8(kind),
		Options: parts[2:],
	}

	return
}

// String returns the placement in SLOT:KIND[:OPTION...] form.
func (placement Placement) String() string {
	parts := []string{fmt.Sprintf("%d", placement.Slot), fmt.Sprintf("%d", placement.Kind)}
	return strings.Join(append(parts, placement.Options...), ":")
}

// validate checks a placement, and constructs its device.
func (placement Placement) validate() (dev Device, err error) {
	switch {
	case placement.Slot == SLOT_SYSTEM:
		err = ErrSlotReserved
		return
	case placement.Kind == KIND_SYSTEM:
		err = ErrSystemDuplicate
		return
	case placement.Slot < 0 || placement.Slot >= SLOT_COUNT:
		err = ErrSlotRange
		return
	}

	kind, ok := Kinds[placement.Kind]
	if !ok {
		err = ErrKindUnknown
		return
	}

	if len(placement.Options) != kind.Options {
		err = ErrOptionCount
		return
	}

	return kind.New(placement.Options)
}

package io

import (
	"errors"

	"github.com/ezrec/avc2/translate"
)

var f = translate.From

var (
	// Configuration errors
	ErrSlotReserved      = errors.New(f("slot 0 is reserved for the system device"))
	ErrSlotRange         = errors.New(f("slot out of range"))
	ErrSlotDuplicate     = errors.New(f("slot already populated"))
	ErrSystemDuplicate   = errors.New(f("system device duplicated"))
	ErrKindUnknown       = errors.New(f("device kind unknown"))
	ErrOptionCount       = errors.New(f("wrong number of device options"))
	ErrPlacementSyntax   = errors.New(f("device placement syntax"))
	ErrDriveNotDirectory = errors.New(f("drive archive is not a directory"))
)

// ErrHalt is the outcome of a write to the system halt port. Every device
// has been shut down by the time it is returned.
type ErrHalt struct {
	Code uint8
}

func (err *ErrHalt) Error() string {
	return f("halt %d", err.Code)
}

// ErrPlacement locates a configuration error.
type ErrPlacement struct {
	Placement Placement
	Err       error
}

func (err *ErrPlacement) Error() string {
	return f("device %v: %v", err.Placement.String(), err.Err)
}

func (err *ErrPlacement) Unwrap() error {
	return err.Err
}

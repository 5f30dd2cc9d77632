// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator drives the processor, its memory and the device bus
// as a single machine.
package emulator

import (
	"context"
	"errors"
	"log"

	"github.com/ezrec/avc2/cpu"
	"github.com/ezrec/avc2/io"
	"github.com/ezrec/avc2/memory"
)

const (
	RUN_POLL = 4096 // Ticks between cancellation checks in Run.
)

// Emulator state. CPU + memory + device bus.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Listing of the running program, if known.
	Bus      *io.Bus      // Device bus.

	ExitCode int // Exit code of a halted machine.

	done bool
}

// NewEmulator creates a machine running rom, with the system device in
// slot 0 and the placed devices in their slots. The configuration is
// validated before any instruction executes.
func NewEmulator(rom []byte, system io.Device, placements ...io.Placement) (emu *Emulator, err error) {
	if len(rom) > memory.ROM_LIMIT {
		err = memory.ErrRomTooLarge
		return
	}

	bus, err := io.NewBus(system, placements...)
	if err != nil {
		return
	}

	mem, err := memory.NewMemory(bus, rom)
	if err != nil {
		return
	}

	emu = &Emulator{
		Cpu:     cpu.NewCpu(mem),
		Program: &cpu.Program{},
		Bus:     bus,
	}

	return
}

// Close shuts down the devices, if the machine has not halted.
func (emu *Emulator) Close() (err error) {
	emu.Bus.Shutdown()
	emu.done = true

	return
}

// Done is true once the machine has halted or faulted.
func (emu *Emulator) Done() bool {
	return emu.done
}

// LineNo returns the current line number for the executing opcode.
func (emu *Emulator) LineNo() int {
	if emu.Program == nil {
		return 0
	}

	return emu.Program.LineNo(emu.Cpu.Pc)
}

// Tick performs a single instruction of the emulator.
// A halt sets done and ExitCode. A fault shuts down the devices and is
// returned as an *ErrRuntime.
func (emu *Emulator) Tick() (done bool, err error) {
	if emu.done {
		done = true
		return
	}

	// Set verbosity
	emu.Cpu.Verbose = emu.Verbose
	emu.Bus.Verbose = emu.Verbose

	lineno := emu.LineNo()
	pc := emu.Cpu.Pc

	err = emu.Cpu.Step()
	if err == nil {
		return
	}

	emu.done = true
	done = true

	var halt *io.ErrHalt
	if errors.As(err, &halt) {
		emu.ExitCode = int(halt.Code)
		if emu.Verbose {
			log.Printf("emulator: halt %d after %d ticks", halt.Code, emu.Cpu.Ticks)
		}
		err = nil
		return
	}

	emu.Bus.Shutdown()
	err = &ErrRuntime{LineNo: lineno, Pc: pc, Err: err}

	return
}

// Run ticks the emulator until it halts or faults. Cancelling ctx
// shuts down the devices and returns the context error.
func (emu *Emulator) Run(ctx context.Context) (err error) {
	for done := false; !done; {
		if emu.Cpu.Ticks%RUN_POLL == 0 && ctx.Err() != nil {
			err = ctx.Err()
			emu.Close()
			return
		}
		done, err = emu.Tick()
	}

	return
}

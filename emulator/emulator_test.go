package emulator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/avc2/cpu"
	"github.com/ezrec/avc2/io"
	"github.com/ezrec/avc2/memory"
)

// newTestEmulator assembles a program and attaches a system device
// with the given input.
func newTestEmulator(t *testing.T, program []string, input string, placements ...io.Placement) (emu *Emulator, output *bytes.Buffer) {
	asm := &cpu.Assembler{}
	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	output = &bytes.Buffer{}
	system := io.NewSystem(strings.NewReader(input), output, &bytes.Buffer{})
	system.Sleep = func(time.Duration) {}

	emu, err = NewEmulator(prog.Binary(), system, placements...)
	if err != nil {
		t.Fatal(err)
	}
	emu.Program = prog

	return
}

// runFor ticks until done, or until the timeout elapses.
func runFor(t *testing.T, emu *Emulator, timeout time.Duration) (err error) {
	deadline := time.Now().Add(timeout)
	for done := false; !done; {
		if time.Now().After(deadline) {
			t.Fatalf("timeout at %v", emu.Cpu.String())
		}
		done, err = emu.Tick()
	}

	return
}

var programHello = []string{
	".equ STDOUT $(DEVICE_PAGE + SYSTEM_PORT_STDOUT)",
	".equ HALT $(DEVICE_PAGE + SYSTEM_PORT_HALT)",
	"\tLIT 'h'",
	"\tLIT2 STDOUT",
	"\tSTA",
	"\tLIT 'i'",
	"\tLIT2 STDOUT",
	"\tSTA",
	"\tLIT 3",
	"\tLIT2 HALT",
	"\tSTA",
	"\tLIT 'X'",
	"\tLIT2 STDOUT",
	"\tSTA",
}

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu, err := NewEmulator(nil, io.NewSystem(nil, nil, nil))
	assert.NoError(err)

	assert.False(emu.Verbose)
	assert.NotNil(emu.Cpu)
	assert.NotNil(emu.Bus)
	assert.Equal(uint16(memory.LOAD_ADDRESS), emu.Cpu.Pc)
	assert.Equal(0, emu.LineNo())
	assert.False(emu.Done())
}

func TestEmulator_Hello(t *testing.T) {
	assert := assert.New(t)

	emu, output := newTestEmulator(t, programHello, "")

	// Each line is a single instruction.
	for lineno := 3; lineno < 11; lineno++ {
		assert.Equal(lineno, emu.LineNo())
		done, err := emu.Tick()
		assert.NoError(err)
		assert.False(done)
	}

	done, err := emu.Tick()
	assert.NoError(err)
	assert.True(done)
	assert.True(emu.Done())
	assert.True(emu.Bus.Halted())
	assert.Equal(3, emu.ExitCode)
	assert.Equal("hi", output.String())

	// A halted machine stays halted.
	done, err = emu.Tick()
	assert.NoError(err)
	assert.True(done)
	assert.Equal(9, emu.Cpu.Ticks)
}

func TestEmulator_Run(t *testing.T) {
	assert := assert.New(t)

	emu, output := newTestEmulator(t, programHello, "")

	assert.NoError(emu.Run(context.Background()))
	assert.Equal(3, emu.ExitCode)
	assert.Equal("hi", output.String())
}

func TestEmulator_RunCancel(t *testing.T) {
	assert := assert.New(t)

	// A tight loop, never halting.
	emu, _ := newTestEmulator(t, []string{"loop:", "\tLIT @loop", "\tJMP"}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := emu.Run(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.True(emu.Done())
	assert.True(emu.Bus.Halted())
	assert.Greater(emu.Cpu.Ticks, 0)
}

func TestEmulator_Raw(t *testing.T) {
	assert := assert.New(t)

	output := &bytes.Buffer{}
	rom := []byte{0x80, 0x68, 0xa0, 0xff, 0x09, 0x15}
	emu, err := NewEmulator(rom, io.NewSystem(nil, output, nil))
	assert.NoError(err)

	// The program runs on into empty memory.
	for range 1000 {
		done, err := emu.Tick()
		assert.NoError(err)
		assert.False(done)
	}
	assert.Equal("h", output.String())

	assert.NoError(emu.Close())
	assert.True(emu.Bus.Halted())
	done, err := emu.Tick()
	assert.NoError(err)
	assert.True(done)
}

func TestEmulator_Echo(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		".equ STDIN $(DEVICE_PAGE + SYSTEM_PORT_STDIN)",
		".equ STDOUT $(DEVICE_PAGE + SYSTEM_PORT_STDOUT)",
		".equ BUFFER $(DEVICE_PAGE + SYSTEM_PORT_BUFFER)",
		".equ HALT $(DEVICE_PAGE + SYSTEM_PORT_HALT)",
		"loop:",
		"\tLIT2 BUFFER",
		"\tLDA",
		"\tLIT 0",
		"\tEQU",
		"\tLIT @loop",
		"\tJCN          ; wait for input",
		"\tLIT2 STDIN",
		"\tLDA",
		"\tDUP",
		"\tLIT2 STDOUT",
		"\tSTA",
		"\tLIT '\\n'",
		"\tEQU",
		"\tLIT @end",
		"\tJCN",
		"\tLIT @loop",
		"\tJMP",
		"end:",
		"\tLIT 0",
		"\tLIT2 HALT",
		"\tSTA",
	}

	emu, output := newTestEmulator(t, program, "abc\ndef")

	assert.NoError(runFor(t, emu, 5*time.Second))
	assert.Equal(0, emu.ExitCode)
	assert.Equal("abc\n", output.String())
}

func TestEmulator_Subroutine(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		".equ STDOUT $(DEVICE_PAGE + SYSTEM_PORT_STDOUT)",
		".equ HALT $(DEVICE_PAGE + SYSTEM_PORT_HALT)",
		".macro print ch",
		"\tLIT ch",
		"\tLIT2 emit",
		"\tJSR2",
		".endm",
		"\tprint 'o'",
		"\tprint 'k'",
		"\tLIT 0",
		"\tLIT2 HALT",
		"\tSTA",
		"emit:",
		"\tLIT2 STDOUT",
		"\tSTA",
		"\tJMP2r",
	}

	emu, output := newTestEmulator(t, program, "")

	assert.NoError(runFor(t, emu, 5*time.Second))
	assert.Equal("ok", output.String())
	assert.Equal(0, emu.Cpu.Depth(true))
}

func TestEmulator_Drive(t *testing.T) {
	assert := assert.New(t)

	dir := filepath.Join(t.TempDir(), "drive")
	program := []string{
		".equ DRIVE $(DEVICE_PAGE + 0x10)",
		"\tLIT 0",
		"\tLIT2 $(DRIVE + DRIVE_PORT_BLOCK_HIGH)",
		"\tSTA",
		"\tLIT 5",
		"\tLIT2 $(DRIVE + DRIVE_PORT_BLOCK_LOW)",
		"\tSTA",
		"\tLIT $(LOAD_ADDRESS >> 8)",
		"\tLIT2 $(DRIVE + DRIVE_PORT_PAGE)",
		"\tSTA",
		"\tLIT 1",
		"\tLIT2 $(DRIVE + DRIVE_PORT_WRITE)",
		"\tSTA",
		"\tLIT 7",
		"\tLIT2 $(DEVICE_PAGE + SYSTEM_PORT_HALT)",
		"\tSTA",
	}

	emu, _ := newTestEmulator(t, program, "",
		io.Placement{Slot: 1, Kind: io.KIND_DRIVE, Options: []string{dir}})

	drive, ok := emu.Bus.Device(1).(*io.Drive)
	assert.True(ok)

	assert.NoError(runFor(t, emu, 5*time.Second))
	assert.Equal(7, emu.ExitCode)

	block := drive.Block(5)
	assert.Equal(emu.Program.Binary(), block[:len(emu.Program.Binary())])

	// Halting saved the archive.
	data, err := os.ReadFile(filepath.Join(dir, "0005.block"))
	assert.NoError(err)
	assert.Equal(block[:], data)
}

func TestEmulator_Fault(t *testing.T) {
	assert := assert.New(t)

	dir := filepath.Join(t.TempDir(), "drive")
	program := []string{
		"\tLIT 1",
		"\tLIT 0",
		"\tDVM",
	}

	emu, _ := newTestEmulator(t, program, "",
		io.Placement{Slot: 3, Kind: io.KIND_DRIVE, Options: []string{dir}})

	err := runFor(t, emu, 5*time.Second)
	assert.ErrorIs(err, cpu.ErrDivideByZero)

	var runtime *ErrRuntime
	if assert.ErrorAs(err, &runtime) {
		assert.Equal(3, runtime.LineNo)
		assert.Equal(uint16(0x0304), runtime.Pc)
	}
	assert.True(emu.Done())
	assert.True(emu.Bus.Halted())

	// The drive was shut down, creating its archive.
	info, err := os.Stat(dir)
	assert.NoError(err)
	assert.True(info.IsDir())
}

func TestEmulator_Config(t *testing.T) {
	assert := assert.New(t)

	system := io.NewSystem(nil, nil, nil)

	_, err := NewEmulator(make([]byte, memory.ROM_LIMIT+1), system)
	assert.ErrorIs(err, memory.ErrRomTooLarge)

	_, err = NewEmulator(make([]byte, memory.ROM_LIMIT), system)
	assert.NoError(err)

	_, err = NewEmulator(nil, system, io.Placement{Slot: 0, Kind: io.KIND_DRIVE, Options: []string{t.TempDir()}})
	assert.ErrorIs(err, io.ErrSlotReserved)

	_, err = NewEmulator(nil, system, io.Placement{Slot: 16, Kind: io.KIND_DRIVE, Options: []string{t.TempDir()}})
	assert.ErrorIs(err, io.ErrSlotRange)

	_, err = NewEmulator(nil, system, io.Placement{Slot: 1, Kind: 0x7f})
	assert.ErrorIs(err, io.ErrKindUnknown)

	_, err = NewEmulator(nil, system, io.Placement{Slot: 1, Kind: io.KIND_DRIVE})
	assert.ErrorIs(err, io.ErrOptionCount)
}

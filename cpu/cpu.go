// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/avc2/io"
	"github.com/ezrec/avc2/memory"
)

const (
	FLAG_CARRY = uint8(1 << 0) // Carry, or no-borrow, flag.
)

var _cpu_defines = map[string]string{
	"WST_PAGE":     fmt.Sprintf("0x%04x", WST_PAGE),
	"RST_PAGE":     fmt.Sprintf("0x%04x", RST_PAGE),
	"FLAG_CARRY":   fmt.Sprintf("0x%02x", FLAG_CARRY),
	"LOAD_ADDRESS": fmt.Sprintf("0x%04x", memory.LOAD_ADDRESS),
	"DEVICE_PAGE":  fmt.Sprintf("0x%04x", memory.DEVICE_PAGE),
}

// Memory is the address space used by the processor.
type Memory interface {
	Read8(addr uint16) uint8
	Write8(addr uint16, value uint8) error
	Read16(addr uint16) uint16
	Write16(addr uint16, value uint16) error
}

// Cpu is the simulation context for the processor.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Memory Memory // Address space.

	Pc    uint16 // Program counter.
	Wsp   uint8  // Working stack pointer.
	Rsp   uint8  // Return stack pointer.
	Flags uint8  // Flag byte.

	Ticks int // Instructions executed.

	err error // First error of the executing instruction.
}

// NewCpu creates a new processor attached to memory.
func NewCpu(mem Memory) (cpu *Cpu) {
	cpu = &Cpu{
		Memory: mem,
	}

	cpu.Reset()

	return
}

// Defines returns an iter of the processor defines.
func Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// Reset the processor state. Memory is unchanged.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Pc = memory.LOAD_ADDRESS
	cpu.Wsp = STACK_EMPTY
	cpu.Rsp = STACK_EMPTY
	cpu.Flags = 0
	cpu.Ticks = 0
	cpu.err = nil
}

// String returns the current processor state as a string.
func (cpu *Cpu) String() (text string) {
	text += fmt.Sprintf("%5s: %04x\n", "pc", cpu.Pc)
	text += fmt.Sprintf("%5s: %02x\n", "flags", cpu.Flags)
	for _, ret := range []bool{false, true} {
		name := "wst"
		if ret {
			name = "rst"
		}
		text += fmt.Sprintf("%5s:", name)
		depth := min(cpu.Depth(ret), 8)
		for n := depth - 1; n >= 0; n-- {
			text += fmt.Sprintf(" %02x", cpu.Peek(uint8(n), ret))
		}
		text += "\n"
	}

	return
}

// fault records the first error of an instruction.
func (cpu *Cpu) fault(err error) {
	if err != nil && cpu.err == nil {
		cpu.err = err
	}
}

func (cpu *Cpu) store8(addr uint16, value uint8) {
	cpu.fault(cpu.Memory.Write8(addr, value))
}

func (cpu *Cpu) store16(addr uint16, value uint16) {
	cpu.fault(cpu.Memory.Write16(addr, value))
}

// setCarry sets or clears the carry flag.
func (cpu *Cpu) setCarry(carry bool) {
	if carry {
		cpu.Flags |= FLAG_CARRY
	} else {
		cpu.Flags &^= FLAG_CARRY
	}
}

// jump sets the program counter so that the end of instruction
// increment lands on the target.
func (cpu *Cpu) jump(target uint16) {
	cpu.Pc = target - 1
}

// target returns an absolute address, or a signed byte displacement
// from the program counter.
func (cpu *Cpu) target(value uint16, wide bool) uint16 {
	if wide {
		return value
	}
	return cpu.Pc + uint16(int8(uint8(value)))
}

// Step fetches and executes a single instruction.
func (cpu *Cpu) Step() (err error) {
	code := Code(cpu.Memory.Read8(cpu.Pc))
	return cpu.Execute(code)
}

// Execute executes a single opcode as if fetched from the program
// counter, then advances the program counter.
// A halt is returned as an *io.ErrHalt; faults are joined with the
// ErrOpcode that caused them.
func (cpu *Cpu) Execute(code Code) (err error) {
	pc := cpu.Pc
	if cpu.Verbose {
		log.Printf("%04x: %v", pc, code)
	}

	cpu.err = nil
	cpu.execute(code)
	cpu.Pc++
	cpu.Ticks++

	err = cpu.err
	cpu.err = nil

	var halt *io.ErrHalt
	if err != nil && !errors.As(err, &halt) {
		err = errors.Join(ErrOpcode{Pc: pc, Code: code}, err)
	}

	return
}

// execute dispatches an opcode.
func (cpu *Cpu) execute(code Code) {
	keep := code.Keep()
	ret := code.Return()
	wide := code.Wide()
	op := code.Op()

	ops := &operands{cpu: cpu, keep: keep, ret: ret}

	switch op {
	case OP_LIT:
		switch {
		case keep: // LIT
			cpu.Pc++
			if wide {
				cpu.Push16(cpu.Memory.Read16(cpu.Pc), ret)
				cpu.Pc++
			} else {
				cpu.Push(cpu.Memory.Read8(cpu.Pc), ret)
			}
		case code == CODE_SEC:
			cpu.setCarry(true)
		case code == CODE_CLC:
			cpu.setCarry(false)
		case code == CODE_EXT:
			cpu.Push(0, false)
		}
	case OP_NP1, OP_NP2, OP_NPE, OP_NPF:
		// reserved
	case OP_POP, OP_SWP, OP_ROT, OP_DUP, OP_OVR, OP_STH:
		if code == CODE_RTI {
			cpu.Flags = cpu.Pop(false)
			cpu.jump(cpu.Pop16(true))
			return
		}
		cpu.stackOp(op, wide, ret)
	case OP_EQU, OP_GTH:
		a := ops.take(wide)
		b := ops.take(wide)
		var truth bool
		switch {
		case op == OP_EQU:
			truth = a == b
		case wide:
			truth = int16(b) > int16(a)
		default:
			truth = int8(uint8(b)) > int8(uint8(a))
		}
		var value uint8
		if truth {
			value = 1
		}
		cpu.Push(value, ret)
	case OP_JMP, OP_JCN, OP_JSR:
		addr := ops.take(wide)
		taken := true
		if op == OP_JCN {
			taken = ops.take(false) != 0
		}
		target := cpu.target(addr, wide)
		if op == OP_JSR {
			cpu.Push16(cpu.Pc+1, !ret)
		}
		if taken {
			cpu.jump(target)
		}
	case OP_LDZ, OP_STZ, OP_LDR, OP_STR, OP_LDA, OP_STA:
		var addr uint16
		switch op {
		case OP_LDZ, OP_STZ:
			addr = ops.take(false)
		case OP_LDR, OP_STR:
			addr = cpu.target(ops.take(false), false)
		default:
			addr = ops.take(true)
		}
		switch {
		case op&1 == 0 && wide:
			cpu.Push16(cpu.Memory.Read16(addr), ret)
		case op&1 == 0:
			cpu.Push(cpu.Memory.Read8(addr), ret)
		case wide:
			cpu.store16(addr, ops.take(true))
		default:
			cpu.store8(addr, uint8(ops.take(false)))
		}
	case OP_PIC:
		offset := uint8(ops.take(false))
		cpu.pushN(cpu.peekN(offset+ops.depth, wide, ret), wide, ret)
	case OP_PUT:
		offset := uint8(ops.take(false))
		value := ops.take(wide)
		cpu.pokeN(value, offset+ops.depth, wide, ret)
	case OP_ADC, OP_SBC, OP_MUL, OP_DVM, OP_AND, OP_IOR, OP_XOR:
		a := ops.take(wide)
		b := ops.take(wide)
		value, ok := cpu.arithmetic(op, uint32(a), uint32(b), wide)
		if !ok {
			return
		}
		if op == OP_DVM {
			cpu.pushN(b/a, wide, ret)
		}
		cpu.pushN(uint16(value), wide, ret)
	case OP_SFT:
		shift := ops.take(false)
		value := uint32(ops.take(wide))
		left := (shift >> 4) & 0xf
		right := shift & 0xf
		value = (value << left) & mask(wide)
		cpu.pushN(uint16(value>>right), wide, ret)
	}
}

// mask is the value mask of an operand width.
func mask(wide bool) uint32 {
	if wide {
		return 0xffff
	}
	return 0xff
}

// arithmetic computes b OP a, where a was on top of the stack.
// For DVM the remainder is returned.
func (cpu *Cpu) arithmetic(op CodeOp, a, b uint32, wide bool) (value uint32, ok bool) {
	carry := uint32(cpu.Flags & FLAG_CARRY)

	switch op {
	case OP_ADC:
		value = b + a + carry
		cpu.setCarry(value > mask(wide))
	case OP_SBC:
		borrow := 1 - carry
		cpu.setCarry(b >= a+borrow)
		value = b - a - borrow
	case OP_MUL:
		value = b * a
	case OP_DVM:
		if a == 0 {
			cpu.fault(ErrDivideByZero)
			return
		}
		value = b % a
	case OP_AND:
		value = b & a
	case OP_IOR:
		value = b | a
	case OP_XOR:
		value = b ^ a
	}

	value &= mask(wide)
	ok = true
	return
}

// stackOp performs the stack primitives, which ignore keep mode.
func (cpu *Cpu) stackOp(op CodeOp, wide, ret bool) {
	switch op {
	case OP_POP: // a --
		cpu.popN(wide, ret)
	case OP_SWP: // a b -- b a
		b := cpu.popN(wide, ret)
		a := cpu.popN(wide, ret)
		cpu.pushN(b, wide, ret)
		cpu.pushN(a, wide, ret)
	case OP_ROT: // a b c -- b c a
		c := cpu.popN(wide, ret)
		b := cpu.popN(wide, ret)
		a := cpu.popN(wide, ret)
		cpu.pushN(b, wide, ret)
		cpu.pushN(c, wide, ret)
		cpu.pushN(a, wide, ret)
	case OP_DUP: // a -- a a
		cpu.pushN(cpu.peekN(0, wide, ret), wide, ret)
	case OP_OVR: // a b -- a b a
		cpu.pushN(cpu.peekN(width(wide), wide, ret), wide, ret)
	case OP_STH: // a -- | -- a
		cpu.pushN(cpu.popN(wide, ret), wide, !ret)
	}
}

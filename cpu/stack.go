package cpu

import (
	"github.com/ezrec/avc2/internal"
)

const (
	WST_PAGE    = 0x0100 // Working stack page.
	RST_PAGE    = 0x0200 // Return stack page.
	STACK_EMPTY = 0xff   // Stack pointer of an empty stack.
)

// The stacks are 256 byte rings that grow downwards. The stack pointer
// addresses the next free cell, so the top of stack is at pointer+1.
// Pointer arithmetic wraps, and over/underflow is silent.

// stack returns the page and pointer of a stack.
func (cpu *Cpu) stack(ret bool) (page uint16, sp *uint8) {
	if ret {
		return RST_PAGE, &cpu.Rsp
	}
	return WST_PAGE, &cpu.Wsp
}

// Push pushes a byte.
func (cpu *Cpu) Push(value uint8, ret bool) {
	page, sp := cpu.stack(ret)
	cpu.store8(page+uint16(*sp), value)
	*sp--
}

// Pop pops a byte.
func (cpu *Cpu) Pop(ret bool) uint8 {
	page, sp := cpu.stack(ret)
	*sp++
	return cpu.Memory.Read8(page + uint16(*sp))
}

// Peek reads the byte offset cells below the top of stack.
func (cpu *Cpu) Peek(offset uint8, ret bool) uint8 {
	page, sp := cpu.stack(ret)
	return cpu.Memory.Read8(page + uint16(*sp+offset+1))
}

// Poke writes the byte offset cells below the top of stack.
func (cpu *Cpu) Poke(value uint8, offset uint8, ret bool) {
	page, sp := cpu.stack(ret)
	cpu.store8(page+uint16(*sp+offset+1), value)
}

// Push16 pushes a word, low byte first, so the high byte is on top.
func (cpu *Cpu) Push16(value uint16, ret bool) {
	cpu.Push(internal.LowByte(value), ret)
	cpu.Push(internal.HighByte(value), ret)
}

// Pop16 pops a word, high byte first.
func (cpu *Cpu) Pop16(ret bool) uint16 {
	hb := cpu.Pop(ret)
	lb := cpu.Pop(ret)
	return internal.Word(hb, lb)
}

// Peek16 reads the word whose high byte is offset cells below the top.
func (cpu *Cpu) Peek16(offset uint8, ret bool) uint16 {
	hb := cpu.Peek(offset, ret)
	lb := cpu.Peek(offset+1, ret)
	return internal.Word(hb, lb)
}

// Poke16 writes the word whose high byte is offset cells below the top.
func (cpu *Cpu) Poke16(value uint16, offset uint8, ret bool) {
	cpu.Poke(internal.HighByte(value), offset, ret)
	cpu.Poke(internal.LowByte(value), offset+1, ret)
}

// Depth returns the number of bytes on a stack, modulo 256.
func (cpu *Cpu) Depth(ret bool) int {
	_, sp := cpu.stack(ret)
	return int(uint8(STACK_EMPTY - *sp))
}

// width is the number of cells of an operand.
func width(wide bool) uint8 {
	if wide {
		return 2
	}
	return 1
}

func (cpu *Cpu) pushN(value uint16, wide, ret bool) {
	if wide {
		cpu.Push16(value, ret)
	} else {
		cpu.Push(uint8(value), ret)
	}
}

func (cpu *Cpu) popN(wide, ret bool) uint16 {
	if wide {
		return cpu.Pop16(ret)
	}
	return uint16(cpu.Pop(ret))
}

func (cpu *Cpu) peekN(offset uint8, wide, ret bool) uint16 {
	if wide {
		return cpu.Peek16(offset, ret)
	}
	return uint16(cpu.Peek(offset, ret))
}

func (cpu *Cpu) pokeN(value uint16, offset uint8, wide, ret bool) {
	if wide {
		cpu.Poke16(value, offset, ret)
	} else {
		cpu.Poke(uint8(value), offset, ret)
	}
}

// operands fetches the operands of an instruction in stack order,
// peeking in keep mode and popping otherwise.
type operands struct {
	cpu   *Cpu
	keep  bool
	ret   bool
	depth uint8 // Cells peeked so far.
}

// take fetches the next operand.
func (ops *operands) take(wide bool) (value uint16) {
	if !ops.keep {
		return ops.cpu.popN(wide, ops.ret)
	}

	value = ops.cpu.peekN(ops.depth, wide, ops.ret)
	ops.depth += width(wide)
	return
}

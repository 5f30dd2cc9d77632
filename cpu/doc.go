// Package cpu implements the processor and assembler for the avc2 machine.
//
// The processor executes single byte opcodes against two 256 byte ring
// stacks (working and return), a flag byte holding the carry, and a 16-bit
// program counter. The top three bits of every opcode select keep mode,
// return stack mode and 16-bit mode; the low five bits select one of 32
// base operations. Every byte decodes, so there are no illegal opcodes.
//
// The assembler provides a small assembly language for the instruction
// set, supporting macros, labels, equates, and compile-time expression
// evaluation.
package cpu

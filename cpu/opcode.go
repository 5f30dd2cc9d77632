package cpu

import (
	"fmt"
)

// CodeOp is the base operation of an opcode, bits 4-0.
type CodeOp uint8

//go:generate go tool stringer -type=CodeOp -trimprefix=OP_
const (
	OP_LIT = CodeOp(0x00) // LIT, or SEC/CLC/EXT/NOP without keep
	OP_NP1 = CodeOp(0x01) // reserved
	OP_NP2 = CodeOp(0x02) // reserved
	OP_POP = CodeOp(0x03)
	OP_SWP = CodeOp(0x04)
	OP_ROT = CodeOp(0x05)
	OP_DUP = CodeOp(0x06)
	OP_OVR = CodeOp(0x07)
	OP_EQU = CodeOp(0x08)
	OP_GTH = CodeOp(0x09)
	OP_JMP = CodeOp(0x0a)
	OP_JCN = CodeOp(0x0b)
	OP_JSR = CodeOp(0x0c)
	OP_STH = CodeOp(0x0d)
	OP_NPE = CodeOp(0x0e) // reserved
	OP_NPF = CodeOp(0x0f) // reserved
	OP_LDZ = CodeOp(0x10)
	OP_STZ = CodeOp(0x11)
	OP_LDR = CodeOp(0x12)
	OP_STR = CodeOp(0x13)
	OP_LDA = CodeOp(0x14)
	OP_STA = CodeOp(0x15)
	OP_PIC = CodeOp(0x16)
	OP_PUT = CodeOp(0x17)
	OP_ADC = CodeOp(0x18)
	OP_SBC = CodeOp(0x19)
	OP_MUL = CodeOp(0x1a)
	OP_DVM = CodeOp(0x1b)
	OP_AND = CodeOp(0x1c)
	OP_IOR = CodeOp(0x1d)
	OP_XOR = CodeOp(0x1e)
	OP_SFT = CodeOp(0x1f)
)

var _op_names = [32]string{
	"", "", "", "POP", "SWP", "ROT", "DUP", "OVR",
	"EQU", "GTH", "JMP", "JCN", "JSR", "STH", "", "",
	"LDZ", "STZ", "LDR", "STR", "LDA", "STA", "PIC", "PUT",
	"ADC", "SBC", "MUL", "DVM", "AND", "IOR", "XOR", "SFT",
}

// Mode bits of an opcode.
const (
	MODE_KEEP   = Code(0x80) // Peek operands instead of popping them.
	MODE_RETURN = Code(0x40) // Operate on the return stack.
	MODE_WIDE   = Code(0x20) // Operate on 16-bit values.
	OP_MASK     = Code(0x1f)
)

// Opcodes with a fixed meaning.
const (
	CODE_NOP = Code(0x00)
	CODE_SEC = Code(0x20)
	CODE_CLC = Code(0x40)
	CODE_EXT = Code(0x60)
	CODE_LIT = Code(0x80)
	CODE_RTI = Code(0x83)
)

// Code is a single instruction byte. Every byte decodes.
type Code uint8

// MakeCode creates an opcode from an operation and its modes.
func MakeCode(op CodeOp, keep, ret, wide bool) (code Code) {
	code = Code(op) & OP_MASK
	if keep {
		code |= MODE_KEEP
	}
	if ret {
		code |= MODE_RETURN
	}
	if wide {
		code |= MODE_WIDE
	}
	return
}

// Op returns the base operation.
func (code Code) Op() CodeOp {
	return CodeOp(code & OP_MASK)
}

// Keep is true if operands are peeked rather than popped.
func (code Code) Keep() bool {
	return code&MODE_KEEP != 0
}

// Return is true if the opcode operates on the return stack.
func (code Code) Return() bool {
	return code&MODE_RETURN != 0
}

// Wide is true if the opcode operates on 16-bit values.
func (code Code) Wide() bool {
	return code&MODE_WIDE != 0
}

// IsLiteral is true for the LIT family, which is followed by one or two
// bytes of literal data.
func (code Code) IsLiteral() bool {
	return code.Op() == OP_LIT && code.Keep()
}

// Size is the number of bytes occupied by the instruction.
func (code Code) Size() int {
	switch {
	case !code.IsLiteral():
		return 1
	case code.Wide():
		return 3
	default:
		return 2
	}
}

// String returns the mnemonic of the opcode. Modes are suffixed as
// 'k' (keep), 'r' (return stack) and '2' (wide).
func (code Code) String() (text string) {
	op := code.Op()
	keep := code.Keep()

	switch op {
	case OP_LIT:
		if !keep {
			switch code {
			case CODE_SEC:
				return "SEC"
			case CODE_CLC:
				return "CLC"
			case CODE_EXT:
				return "EXT"
			}
			return "NOP"
		}
		text = "LIT"
		keep = false
	case OP_NP1, OP_NP2, OP_NPE, OP_NPF:
		return "NOP"
	case OP_POP, OP_SWP, OP_ROT, OP_DUP, OP_OVR, OP_STH:
		if code == CODE_RTI {
			return "RTI"
		}
		// Stack primitives have no keep mode.
		keep = false
		text = _op_names[op]
	default:
		text = _op_names[op]
	}

	if keep {
		text += "k"
	}
	if code.Return() {
		text += "r"
	}
	if code.Wide() {
		text += "2"
	}

	return
}

// _mnemonics maps each mnemonic to the first opcode that prints as it.
var _mnemonics = func() (mnemonics map[string]Code) {
	mnemonics = make(map[string]Code, 256)
	for n := range 256 {
		code := Code(n)
		name := code.String()
		if _, ok := mnemonics[name]; !ok {
			mnemonics[name] = code
		}
	}
	return
}()

// ParseCode returns the opcode of a mnemonic.
func ParseCode(mnemonic string) (code Code, err error) {
	code, ok := _mnemonics[mnemonic]
	if !ok {
		err = ErrInstructionInvalid
	}
	return
}

// Disassemble returns a listing line for the instruction at the start
// of data, and the bytes it occupies.
func Disassemble(data []byte) (text string, size int) {
	if len(data) == 0 {
		return
	}

	code := Code(data[0])
	size = min(code.Size(), len(data))
	switch size {
	case 3:
		text = fmt.Sprintf("%v #%02x%02x", code, data[1], data[2])
	case 2:
		text = fmt.Sprintf("%v #%02x", code, data[1])
	default:
		text = code.String()
	}

	return
}

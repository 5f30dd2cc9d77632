package cpu

import (
	"fmt"
	"iter"
	"strings"

	"github.com/ezrec/avc2/memory"
)

// Link is a label reference to be resolved into an opcode's bytes.
type Link struct {
	Offset   int    // Offset of the operand in Bytes.
	Label    string // Label to resolve.
	Relative bool   // Resolve as a signed byte displacement.
}

// Opcode is the assembled output of a single source line.
type Opcode struct {
	LineNo  int      // Source line number.
	Address uint16   // Address of the first byte.
	Words   []string // Source words.
	Bytes   []byte   // Encoded bytes.
	Links   []Link   // Unresolved label references.
}

// End is the address following the opcode.
func (op *Opcode) End() uint16 {
	return op.Address + uint16(len(op.Bytes))
}

// Program is an assembled program image.
type Program struct {
	Opcodes []Opcode
}

// Debug locates the byte at a program counter in the source.
type Debug struct {
	*Opcode
	Index int
}

// Debug returns the opcode containing pc, if any.
func (prog *Program) Debug(pc uint16) (dbg Debug) {
	for n, op := range prog.Opcodes {
		if pc >= op.Address && pc < op.End() {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
				Index:  int(pc - op.Address),
			}
			break
		}
	}

	return
}

// LineNo returns the source line of pc, or 0 if unknown.
func (prog *Program) LineNo(pc uint16) int {
	dbg := prog.Debug(pc)
	if dbg.Opcode == nil {
		return 0
	}
	return dbg.LineNo
}

// Binary returns the program image, to be loaded at LOAD_ADDRESS.
func (prog *Program) Binary() (rom []byte) {
	for addr, data := range prog.Bytes() {
		offset := int(addr - memory.LOAD_ADDRESS)
		if offset >= len(rom) {
			rom = append(rom, make([]byte, offset+1-len(rom))...)
		}
		rom[offset] = data
	}

	return
}

// Bytes iterates over the address and value of each program byte.
func (prog *Program) Bytes() iter.Seq2[uint16, byte] {
	return func(yield func(addr uint16, data byte) bool) {
		for _, op := range prog.Opcodes {
			for n, data := range op.Bytes {
				if !yield(op.Address+uint16(n), data) {
					return
				}
			}
		}
	}
}

// String returns a listing of the program.
func (prog *Program) String() string {
	var text strings.Builder

	for _, op := range prog.Opcodes {
		var hex []string
		for _, data := range op.Bytes {
			hex = append(hex, fmt.Sprintf("%02x", data))
		}
		fmt.Fprintf(&text, "%04x: %-8s %5d: %v\n",
			op.Address, strings.Join(hex, " "), op.LineNo, strings.Join(op.Words, " "))
	}

	return text.String()
}

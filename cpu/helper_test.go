package cpu

import (
	"testing"

	"github.com/ezrec/avc2/memory"
)

// newTestCpu creates a processor with no devices, running rom.
func newTestCpu(t *testing.T, rom ...byte) (cpu *Cpu, mem *memory.Memory) {
	mem, err := memory.NewMemory(nil, rom)
	if err != nil {
		t.Fatal(err)
	}

	cpu = NewCpu(mem)
	return
}

// setStack replaces a stack. Index 0 of the cells is the top of stack.
func setStack(cpu *Cpu, ret bool, cells []byte) {
	for n := len(cells) - 1; n >= 0; n-- {
		cpu.Push(cells[n], ret)
	}
}

// getStack returns the cells of a stack, top of stack first.
func getStack(cpu *Cpu, ret bool) (cells []byte) {
	cells = []byte{}
	for n := range cpu.Depth(ret) {
		cells = append(cells, cpu.Peek(uint8(n), ret))
	}
	return
}

package internal

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWord(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint16(0x1234), Word(0x12, 0x34))
	assert.Equal(uint8(0x12), HighByte(0x1234))
	assert.Equal(uint8(0x34), LowByte(0x1234))
	assert.Equal(uint16(0xab34), SetHigh(0x1234, 0xab))
	assert.Equal(uint16(0x12cd), SetLow(0x1234, 0xcd))
}

func TestIterSeq2Concat(t *testing.T) {
	assert := assert.New(t)

	a := map[string]int{"a": 1}
	b := map[string]int{"b": 2, "c": 3}

	all := maps.Collect(IterSeq2Concat(maps.All(a), maps.All(b)))
	assert.Equal(map[string]int{"a": 1, "b": 2, "c": 3}, all)

	count := 0
	for range IterSeq2Concat(maps.All(a), maps.All(b)) {
		count++
		break
	}
	assert.Equal(1, count)
}

// Package internal holds helpers shared by the machine packages.
package internal

// HighByte returns the most significant byte of a word.
func HighByte(word uint16) uint8 {
	return uint8(word >> 8)
}

// LowByte returns the least significant byte of a word.
func LowByte(word uint16) uint8 {
	return uint8(word)
}

// Word composes a big-endian word.
func Word(hb, lb uint8) uint16 {
	return uint16(hb)<<8 | uint16(lb)
}

// SetHigh replaces the high byte of a word.
func SetHigh(word uint16, hb uint8) uint16 {
	return Word(hb, LowByte(word))
}

// SetLow replaces the low byte of a word.
func SetLow(word uint16, lb uint8) uint16 {
	return Word(HighByte(word), lb)
}

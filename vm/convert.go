package vm

import "fmt"

// TwoWordsToLong packs a high and a low 32-bit word into a 64-bit
// value (HI:LO pairs, double-word memory accesses)
func TwoWordsToLong(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

// LongToTwoWords splits a 64-bit value into its high and low words
func LongToTwoWords(value uint64) (high, low uint32) {
	return uint32(value >> 32), uint32(value)
}

// SignExtend16 sign-extends the low 16 bits of a word
func SignExtend16(value uint32) uint32 {
	return uint32(int32(int16(uint16(value))))
}

// SignExtend8 sign-extends the low 8 bits of a word
func SignExtend8(value uint32) uint32 {
	return uint32(int32(int8(uint8(value))))
}

// FormatHex renders a word the way the UI and dumps show addresses and
// values
func FormatHex(value uint32) string {
	return fmt.Sprintf("0x%08x", value)
}

// BitField extracts bits hi..lo (inclusive) of a word
func BitField(word uint32, hi, lo int) uint32 {
	return (word >> uint(lo)) & ((1 << uint(hi-lo+1)) - 1)
}

// AlignToNext returns the smallest multiple of alignment not below
// address. Alignment must be a power of two.
func AlignToNext(address, alignment uint32) uint32 {
	mask := alignment - 1
	return (address + mask) &^ mask
}

// Aligned reports whether an address is a multiple of alignment
func Aligned(address, alignment uint32) bool {
	return address&(alignment-1) == 0
}

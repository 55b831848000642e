package vm

import (
	"fmt"
	"math"
)

// Coprocessor1 models the floating point unit: 32 single-precision
// registers addressable individually or as even/odd pairs holding an
// IEEE-754 binary64, plus eight condition flags. The full FCSR is not
// modeled.
type Coprocessor1 struct {
	regs       [32]uint32
	conditions [8]bool
}

// NewCoprocessor1 creates a zeroed FPU register file
func NewCoprocessor1() *Coprocessor1 {
	return &Coprocessor1{}
}

// GetWord reads the raw bits of an FP register
func (c *Coprocessor1) GetWord(num int) uint32 {
	if num < 0 || num > 31 {
		return 0
	}
	return c.regs[num]
}

// SetWord writes the raw bits of an FP register, returning the
// previous bits for back-step recording
func (c *Coprocessor1) SetWord(num int, value uint32) uint32 {
	if num < 0 || num > 31 {
		return 0
	}
	old := c.regs[num]
	c.regs[num] = value
	return old
}

// GetSingle reads a register as a float32
func (c *Coprocessor1) GetSingle(num int) float32 {
	return math.Float32frombits(c.GetWord(num))
}

// SetSingle writes a float32, returning the previous bits
func (c *Coprocessor1) SetSingle(num int, value float32) uint32 {
	return c.SetWord(num, math.Float32bits(value))
}

// GetDouble reads the even/odd pair starting at num as a float64. The
// even register holds the low word.
func (c *Coprocessor1) GetDouble(num int) (float64, error) {
	if num%2 != 0 || num < 0 || num > 30 {
		return 0, fmt.Errorf("double precision requires an even register, got $f%d", num)
	}
	bits := TwoWordsToLong(c.regs[num+1], c.regs[num])
	return math.Float64frombits(bits), nil
}

// SetDouble writes a float64 into the even/odd pair starting at num,
// returning the previous 64 raw bits
func (c *Coprocessor1) SetDouble(num int, value float64) (uint64, error) {
	if num%2 != 0 || num < 0 || num > 30 {
		return 0, fmt.Errorf("double precision requires an even register, got $f%d", num)
	}
	old := TwoWordsToLong(c.regs[num+1], c.regs[num])
	high, low := LongToTwoWords(math.Float64bits(value))
	c.regs[num] = low
	c.regs[num+1] = high
	return old, nil
}

// GetCondition reads one of the eight condition flags
func (c *Coprocessor1) GetCondition(flag int) bool {
	if flag < 0 || flag > 7 {
		return false
	}
	return c.conditions[flag]
}

// SetCondition writes a condition flag, returning the previous value
func (c *Coprocessor1) SetCondition(flag int, value bool) bool {
	if flag < 0 || flag > 7 {
		return false
	}
	old := c.conditions[flag]
	c.conditions[flag] = value
	return old
}

// Reset zeroes all FP registers and condition flags
func (c *Coprocessor1) Reset() {
	c.regs = [32]uint32{}
	c.conditions = [8]bool{}
}

package vm

import "github.com/myaltaccountsthis/mars-red/parser"

// Conventional register numbers used throughout the simulator
const (
	RegZero = 0
	RegAT   = 1
	RegV0   = 2
	RegV1   = 3
	RegA0   = 4
	RegA1   = 5
	RegA2   = 6
	RegA3   = 7
	RegGP   = 28
	RegSP   = 29
	RegFP   = 30
	RegRA   = 31
)

// RegisterFile represents the 32 general purpose registers plus the
// program counter and the HI/LO multiply-divide pair. Register 0 reads
// as zero and ignores writes.
type RegisterFile struct {
	regs [32]uint32
	PC   uint32
	HI   uint32
	LO   uint32
}

// NewRegisterFile creates a register file with everything zeroed
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Get returns the value of a register; $0 always reads as 0
func (r *RegisterFile) Get(num int) uint32 {
	if num <= 0 || num > 31 {
		return 0
	}
	return r.regs[num]
}

// Set writes a register and returns the previous value for back-step
// recording. Writes to $0 are ignored.
func (r *RegisterFile) Set(num int, value uint32) uint32 {
	if num <= 0 || num > 31 {
		return 0
	}
	old := r.regs[num]
	r.regs[num] = value
	return old
}

// GetByName resolves a symbolic ($t0) or numeric ($8) register name
func (r *RegisterFile) GetByName(name string) (uint32, bool) {
	if num := parser.RegisterNumberFromName(name); num >= 0 {
		return r.Get(num), true
	}
	switch name {
	case "pc":
		return r.PC, true
	case "hi":
		return r.HI, true
	case "lo":
		return r.LO, true
	}
	return 0, false
}

// Reset zeroes every register including PC, HI and LO. The stack
// pointer and global pointer are re-seeded by the machine from the
// active memory configuration.
func (r *RegisterFile) Reset() {
	r.regs = [32]uint32{}
	r.PC = 0
	r.HI = 0
	r.LO = 0
}

// Snapshot copies all 32 GPRs (debugger display)
func (r *RegisterFile) Snapshot() [32]uint32 {
	return r.regs
}

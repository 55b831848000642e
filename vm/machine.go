// Package vm models the MIPS32 machine: memory, register files,
// coprocessors, the instruction set and the simulator that interprets
// assembled programs.
package vm

import (
	"bufio"
	"io"
	"os"
)

// Machine bundles the full processor state: registers, coprocessors,
// memory and the back-step log, plus the settings instruction
// semantics depend on. All state mutation by executing instructions
// goes through the Machine's recording mutators so every observable
// change has an inverse in the back-step log.
type Machine struct {
	Registers *RegisterFile
	Cop0      *Coprocessor0
	Cop1      *Coprocessor1
	Memory    *Memory
	Backstep  *BackStepper

	InstructionSet *InstructionSet

	// DelayedBranching makes branch/jump targets take effect after the
	// following instruction (the delay slot) executes
	DelayedBranching bool

	// I/O endpoints for the syscall services
	OutputWriter io.Writer
	ErrorWriter  io.Writer
	stdinReader  *bufio.Reader

	files   *fileTable
	randoms *randomStreams

	// per-step execution context maintained by the simulator
	currentStatement *Statement
	inDelaySlot      bool

	// delayed-branch scheduling
	jumpScheduled bool
	jumpTarget    uint32

	// exit request latched by syscalls 10 and 17
	exitRequested bool
	exitCode      int32
}

// NewMachine creates a machine over the given memory configuration
// (nil selects the default layout)
func NewMachine(config *MemoryConfiguration) *Machine {
	m := &Machine{
		Registers:      NewRegisterFile(),
		Cop0:           NewCoprocessor0(),
		Cop1:           NewCoprocessor1(),
		Memory:         NewMemory(config),
		Backstep:       NewBackStepper(DefaultBackstepCapacity),
		InstructionSet: NewInstructionSet(),
		OutputWriter:   os.Stdout,
		ErrorWriter:    os.Stderr,
		stdinReader:    bufio.NewReader(os.Stdin),
		files:          newFileTable(),
		randoms:        newRandomStreams(),
	}
	m.Memory.Decoder = m.decodeWord
	m.ResetRegisters()
	return m
}

// SetStdinReader redirects the syscall input services (testing, TUI)
func (m *Machine) SetStdinReader(r io.Reader) {
	if br, ok := r.(*bufio.Reader); ok {
		m.stdinReader = br
	} else {
		m.stdinReader = bufio.NewReader(r)
	}
}

// decodeWord rebuilds a statement from a raw word after a
// self-modifying text write
func (m *Machine) decodeWord(address, word uint32) *Statement {
	return m.InstructionSet.Decode(address, word)
}

// ResetRegisters seeds the register files from the memory
// configuration: PC at text base, stack pointer and global pointer at
// their configured values
func (m *Machine) ResetRegisters() {
	m.Registers.Reset()
	m.Cop0.Reset()
	m.Cop1.Reset()
	cfg := m.Memory.Config
	m.Registers.PC = cfg.TextBase
	m.Registers.Set(RegSP, cfg.StackPointer)
	m.Registers.Set(RegGP, cfg.GlobalPointer)
	m.jumpScheduled = false
	m.inDelaySlot = false
	m.exitRequested = false
	m.exitCode = 0
}

// Reset clears memory, registers, the back-step log and open files
func (m *Machine) Reset() {
	m.Memory.Reset()
	m.ResetRegisters()
	m.Backstep.Reset()
	m.files.resetFiles()
}

// record pushes a back-step entry tagged with the statement being
// executed
func (m *Machine) record(action BackStepAction, param, value uint32) {
	pc := m.Registers.PC
	if m.currentStatement != nil {
		pc = m.currentStatement.Address
	}
	m.Backstep.Record(action, param, value, m.currentStatement, pc, m.inDelaySlot)
}

// Recording mutators used by instruction semantics and syscalls

// SetRegister writes a GPR, recording the inverse
func (m *Machine) SetRegister(num int, value uint32) {
	old := m.Registers.Set(num, value)
	if num != 0 {
		m.record(BackStepRegister, uint32(num), old)
	}
}

// SetHI writes the HI register, recording the inverse
func (m *Machine) SetHI(value uint32) {
	old := m.Registers.HI
	m.Registers.HI = value
	m.record(BackStepRegister, RegHI, old)
}

// SetLO writes the LO register, recording the inverse
func (m *Machine) SetLO(value uint32) {
	old := m.Registers.LO
	m.Registers.LO = value
	m.record(BackStepRegister, RegLO, old)
}

// StoreWord writes memory, recording the inverse
func (m *Machine) StoreWord(address, value uint32) error {
	old, err := m.Memory.StoreWord(address, value, true)
	if err != nil {
		return err
	}
	m.record(BackStepMemoryWord, address, old)
	return nil
}

// StoreHalfword writes memory, recording the inverse
func (m *Machine) StoreHalfword(address, value uint32) error {
	old, err := m.Memory.StoreHalfword(address, value, true)
	if err != nil {
		return err
	}
	m.record(BackStepMemoryHalf, address, old)
	return nil
}

// StoreByte writes memory, recording the inverse
func (m *Machine) StoreByte(address, value uint32) error {
	old, err := m.Memory.StoreByte(address, value, true)
	if err != nil {
		return err
	}
	m.record(BackStepMemoryByte, address, old)
	return nil
}

// StoreDoubleword writes two words, recording both inverses
func (m *Machine) StoreDoubleword(address uint32, value uint64) error {
	high, low := LongToTwoWords(value)
	if err := m.StoreWord(address, low); err != nil {
		return err
	}
	return m.StoreWord(address+4, high)
}

// SetCop0 writes a control register through its mask, recording the
// inverse
func (m *Machine) SetCop0(num int, value uint32) {
	old := m.Cop0.Set(num, value)
	m.record(BackStepCop0, uint32(num), old)
}

// SetCop1Word writes raw FP register bits, recording the inverse
func (m *Machine) SetCop1Word(num int, value uint32) {
	old := m.Cop1.SetWord(num, value)
	m.record(BackStepCop1, uint32(num), old)
}

// SetCop1Single writes a float32, recording the inverse
func (m *Machine) SetCop1Single(num int, value float32) {
	old := m.Cop1.SetSingle(num, value)
	m.record(BackStepCop1, uint32(num), old)
}

// SetCop1Double writes an even/odd pair, recording both word inverses
func (m *Machine) SetCop1Double(num int, value float64) error {
	old, err := m.Cop1.SetDouble(num, value)
	if err != nil {
		return err
	}
	oldHigh, oldLow := LongToTwoWords(old)
	m.record(BackStepCop1, uint32(num), oldLow)
	m.record(BackStepCop1, uint32(num+1), oldHigh)
	return nil
}

// SetCop1Condition writes a condition flag, recording the inverse
func (m *Machine) SetCop1Condition(flag int, value bool) {
	old := m.Cop1.SetCondition(flag, value)
	if old {
		m.record(BackStepCop1ConditionSet, uint32(flag), 0)
	} else {
		m.record(BackStepCop1ConditionClear, uint32(flag), 0)
	}
}

// ProcessJump redirects control to target: immediately when delayed
// branching is off, after the delay slot when it is on
func (m *Machine) ProcessJump(target uint32) {
	if m.DelayedBranching {
		m.jumpScheduled = true
		m.jumpTarget = target
	} else {
		old := m.Registers.PC
		m.Registers.PC = target
		m.record(BackStepPC, 0, old)
	}
}

// RequestExit latches a clean termination from an exit syscall
func (m *Machine) RequestExit(code int32) {
	m.exitRequested = true
	m.exitCode = code
}

// ExitCode returns the code from the most recent exit syscall
func (m *Machine) ExitCode() int32 {
	return m.exitCode
}

// StepBack undoes the newest logical step: it pops and applies
// inverses while the popped records share the statement that was on
// top, so an instruction with several effects reverses as one step.
// Returns false when the log is empty or disabled.
func (m *Machine) StepBack() bool {
	bs := m.Backstep
	if !bs.Enabled || bs.Empty() {
		return false
	}

	bs.recording = false
	defer func() { bs.recording = true }()

	topStmt := bs.Peek().Statement
	for !bs.Empty() && bs.Peek().Statement == topStmt {
		step := bs.Pop()
		m.applyInverse(step)
		m.Registers.PC = step.PC
	}
	m.jumpScheduled = false
	m.inDelaySlot = false
	return true
}

func (m *Machine) applyInverse(step BackStep) {
	switch step.Action {
	case BackStepMemoryWord:
		_, _ = m.Memory.StoreWord(step.Param, step.Value, false)
	case BackStepMemoryHalf:
		_, _ = m.Memory.StoreHalfword(step.Param, step.Value, false)
	case BackStepMemoryByte:
		_, _ = m.Memory.StoreByte(step.Param, step.Value, false)
	case BackStepRegister:
		switch step.Param {
		case RegHI:
			m.Registers.HI = step.Value
		case RegLO:
			m.Registers.LO = step.Value
		default:
			m.Registers.Set(int(step.Param), step.Value)
		}
	case BackStepPC:
		m.Registers.PC = step.Value
	case BackStepCop0:
		m.Cop0.SetRaw(int(step.Param), step.Value)
	case BackStepCop1:
		m.Cop1.SetWord(int(step.Param), step.Value)
	case BackStepCop1ConditionSet:
		m.Cop1.SetCondition(int(step.Param), true)
	case BackStepCop1ConditionClear:
		m.Cop1.SetCondition(int(step.Param), false)
	case BackStepNone:
		// PC restore only
	}
}

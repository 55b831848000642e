package vm_test

import (
	"strings"
	"testing"

	"github.com/myaltaccountsthis/mars-red/vm"
)

// loadProgram lays statements into text memory starting at the text base.
// Each entry is a mnemonic plus resolved operand field values.
type testInst struct {
	mnemonic string
	operands []uint32
}

func loadProgram(t *testing.T, m *vm.Machine, insts []testInst) {
	t.Helper()
	addr := m.Memory.Config.TextBase
	for _, ti := range insts {
		b := findBasic(t, m.InstructionSet, ti.mnemonic, len(ti.operands))
		stmt := &vm.Statement{
			Address:     addr,
			Binary:      b.Encode(ti.operands),
			Instruction: b,
			Operands:    ti.operands,
		}
		if err := m.Memory.StoreStatement(addr, stmt, false); err != nil {
			t.Fatalf("store statement: %v", err)
		}
		addr += 4
	}
}

func TestSimulator_RunsToCompletion(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	loadProgram(t, m, []testInst{
		{"ori", []uint32{8, 0, 5}},   // $t0 = 5
		{"addiu", []uint32{8, 8, 2}}, // $t0 += 2
	})

	state := s.Run(0)
	if state != vm.StateTerminated {
		t.Fatalf("state: %v", state)
	}
	if err := s.TerminationError(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Registers.Get(8); got != 7 {
		t.Errorf("$t0 = %d, want 7", got)
	}
}

func TestSimulator_OverflowTerminatesWithoutHandler(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	m.Registers.Set(8, 0x7fffffff)
	loadProgram(t, m, []testInst{
		{"addi", []uint32{8, 8, 1}}, // overflows
	})

	state := s.Run(0)
	if state != vm.StateTerminated {
		t.Fatalf("state: %v", state)
	}
	err := s.TerminationError()
	if err == nil {
		t.Fatalf("expected a runtime exception")
	}
	// The report names the faulting instruction's address
	if !strings.Contains(err.Error(), vm.FormatHex(m.Memory.Config.TextBase)) {
		t.Errorf("error does not name the faulting address: %v", err)
	}
	// The destination register is untouched
	if got := m.Registers.Get(8); got != 0x7fffffff {
		t.Errorf("$t0 = 0x%08x, want unchanged", got)
	}
	if (m.Cop0.Get(vm.Cop0Cause)>>2)&0x1f != vm.ExceptionArithmeticOverflow {
		t.Errorf("cause: 0x%08x", m.Cop0.Get(vm.Cop0Cause))
	}
}

func TestSimulator_ExceptionHandlerResumes(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	m.Registers.Set(8, 0x7fffffff)
	loadProgram(t, m, []testInst{
		{"addi", []uint32{8, 8, 1}},  // overflows, enters the handler
		{"ori", []uint32{9, 0, 42}},  // runs after eret skips the fault
	})

	// Handler: mfc0 $k0, $14; addi $k0, $k0, 4; mtc0 $k0, $14; eret
	handler := []testInst{
		{"mfc0", []uint32{26, 14}},
		{"addi", []uint32{26, 26, 4}},
		{"mtc0", []uint32{26, 14}},
		{"eret", nil},
	}
	addr := m.Memory.Config.ExceptionHandler
	for _, ti := range handler {
		b := findBasic(t, m.InstructionSet, ti.mnemonic, len(ti.operands))
		stmt := &vm.Statement{Address: addr, Binary: b.Encode(ti.operands), Instruction: b, Operands: ti.operands}
		if err := m.Memory.StoreStatement(addr, stmt, false); err != nil {
			t.Fatalf("store handler: %v", err)
		}
		addr += 4
	}

	state := s.Run(0)
	if state != vm.StateTerminated {
		t.Fatalf("state: %v", state)
	}
	if err := s.TerminationError(); err != nil {
		t.Fatalf("program did not survive the exception: %v", err)
	}
	if got := m.Registers.Get(9); got != 42 {
		t.Errorf("$t1 = %d, want 42 (execution resumed past the fault)", got)
	}
}

func TestSimulator_DelayedBranch(t *testing.T) {
	build := func(delayed bool) *vm.Machine {
		m := vm.NewMachine(nil)
		m.DelayedBranching = delayed
		loadProgram(t, m, []testInst{
			{"beq", []uint32{0, 0, 1}},  // branch over the next instruction
			{"addiu", []uint32{9, 9, 9}}, // delay slot
			// branch target: end of program
		})
		return m
	}

	// Delayed branching off: the branch takes effect immediately
	m := build(false)
	s := vm.NewSimulator(m)
	s.Run(0)
	s.Events.Close()
	if got := m.Registers.Get(9); got != 0 {
		t.Errorf("without delay slot: $t1 = %d, want 0", got)
	}

	// Delayed branching on: the delay slot instruction executes
	m = build(true)
	s = vm.NewSimulator(m)
	s.Run(0)
	s.Events.Close()
	if got := m.Registers.Get(9); got != 9 {
		t.Errorf("with delay slot: $t1 = %d, want 9", got)
	}
}

func TestSimulator_BackStepMultiEffect(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	m.Registers.Set(8, 6)
	m.Registers.Set(9, 7)
	loadProgram(t, m, []testInst{
		{"mult", []uint32{8, 9}},
		{"mflo", []uint32{10}},
	})

	if s.StepOne() != vm.StatePaused {
		t.Fatalf("first step did not pause")
	}
	if s.StepOne() != vm.StatePaused {
		t.Fatalf("second step did not pause")
	}
	if m.Registers.LO != 42 || m.Registers.Get(10) != 42 {
		t.Fatalf("setup failed: LO=%d $t2=%d", m.Registers.LO, m.Registers.Get(10))
	}

	// First back-step reverses only the mflo write
	if !m.StepBack() {
		t.Fatalf("back-step failed")
	}
	if got := m.Registers.Get(10); got != 0 {
		t.Errorf("$t2 = %d after undoing mflo", got)
	}
	if m.Registers.LO != 42 {
		t.Errorf("LO reverted too early")
	}
	if m.Registers.PC != m.Memory.Config.TextBase+4 {
		t.Errorf("PC = 0x%08x after first back-step", m.Registers.PC)
	}

	// Second back-step reverses HI and LO together
	if !m.StepBack() {
		t.Fatalf("second back-step failed")
	}
	if m.Registers.LO != 0 || m.Registers.HI != 0 {
		t.Errorf("HI/LO = %d/%d after undoing mult", m.Registers.HI, m.Registers.LO)
	}
	if m.Registers.PC != m.Memory.Config.TextBase {
		t.Errorf("PC = 0x%08x after second back-step", m.Registers.PC)
	}
}

func TestSimulator_BreakpointPauses(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	loadProgram(t, m, []testInst{
		{"ori", []uint32{8, 0, 1}},
		{"ori", []uint32{9, 0, 2}},
		{"ori", []uint32{10, 0, 3}},
	})
	base := m.Memory.Config.TextBase
	s.SetBreakpoint(base + 8)

	if state := s.Run(0); state != vm.StatePaused {
		t.Fatalf("state: %v", state)
	}
	if m.Registers.PC != base+8 {
		t.Errorf("paused at 0x%08x, want 0x%08x", m.Registers.PC, base+8)
	}
	if m.Registers.Get(10) != 0 {
		t.Errorf("instruction at breakpoint already executed")
	}

	// Resume finishes the program
	if state := s.Run(0); state != vm.StateTerminated {
		t.Fatalf("resume: %v", state)
	}
	if m.Registers.Get(10) != 3 {
		t.Errorf("$t2 = %d after resume", m.Registers.Get(10))
	}
}

func TestSimulator_BackStepRunOfSequence(t *testing.T) {
	// Property: back-stepping a full run restores the initial state
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	loadProgram(t, m, []testInst{
		{"ori", []uint32{8, 0, 3}},
		{"addiu", []uint32{8, 8, 4}},
		{"sll", []uint32{9, 8, 2}},
	})
	s.Run(0)

	for m.StepBack() {
	}
	if m.Registers.Get(8) != 0 || m.Registers.Get(9) != 0 {
		t.Errorf("registers not restored: $t0=%d $t1=%d", m.Registers.Get(8), m.Registers.Get(9))
	}
	if m.Registers.PC != m.Memory.Config.TextBase {
		t.Errorf("PC not restored: 0x%08x", m.Registers.PC)
	}
}

func TestSimulator_StopIsIdempotent(t *testing.T) {
	m := vm.NewMachine(nil)
	s := vm.NewSimulator(m)
	defer s.Events.Close()

	loadProgram(t, m, []testInst{{"nop", nil}})
	s.Run(0)

	if s.State() != vm.StateTerminated {
		t.Fatalf("state: %v", s.State())
	}
	s.Stop()
	s.Stop()
	if s.State() != vm.StateTerminated {
		t.Errorf("stop after termination changed state: %v", s.State())
	}
}

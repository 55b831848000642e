package debugger_test

import (
	"strings"
	"testing"

	"github.com/myaltaccountsthis/mars-red/assembler"
	"github.com/myaltaccountsthis/mars-red/debugger"
	"github.com/myaltaccountsthis/mars-red/vm"
)

func makeDebugger(t *testing.T, source string) (*debugger.Debugger, *vm.Simulator) {
	t.Helper()
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	if errs := a.AssembleText(source, "test.asm"); errs.HasErrors() {
		t.Fatalf("assembly failed:\n%s", errs.Error())
	}
	sim := vm.NewSimulator(m)
	t.Cleanup(func() { sim.Events.Close() })
	d := debugger.NewDebugger(sim)
	d.ResolveSymbol = a.SymbolAddress
	return d, sim
}

const countSource = `
        .text
main:   li $t0, 0
        addi $t0, $t0, 1
        addi $t0, $t0, 1
done:   nop
`

func TestDebugger_StepAndPrint(t *testing.T) {
	d, _ := makeDebugger(t, countSource)

	if err := d.ExecuteCommand("step 2"); err != nil {
		t.Fatalf("step: %v", err)
	}
	d.GetOutput()

	if err := d.ExecuteCommand("print $t0"); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := d.GetOutput()
	if !strings.Contains(out, "0x00000001") {
		t.Errorf("print output: %q", out)
	}
}

func TestDebugger_BreakAndContinue(t *testing.T) {
	d, sim := makeDebugger(t, countSource)

	if err := d.ExecuteCommand("break done"); err != nil {
		t.Fatalf("break: %v", err)
	}
	if err := d.ExecuteCommand("continue"); err != nil {
		t.Fatalf("continue: %v", err)
	}

	if sim.State() != vm.StatePaused {
		t.Fatalf("state: %v", sim.State())
	}
	if d.Machine.Registers.Get(8) != 2 {
		t.Errorf("$t0 = %d at breakpoint", d.Machine.Registers.Get(8))
	}
}

func TestDebugger_BackStep(t *testing.T) {
	d, _ := makeDebugger(t, countSource)

	_ = d.ExecuteCommand("step 3")
	d.GetOutput()
	if d.Machine.Registers.Get(8) != 2 {
		t.Fatalf("setup: $t0 = %d", d.Machine.Registers.Get(8))
	}

	if err := d.ExecuteCommand("back"); err != nil {
		t.Fatalf("back: %v", err)
	}
	if d.Machine.Registers.Get(8) != 1 {
		t.Errorf("$t0 = %d after back-step", d.Machine.Registers.Get(8))
	}
}

func TestDebugger_ExamineMemory(t *testing.T) {
	d, _ := makeDebugger(t, `
        .data
val:    .word 0x12345678
        .text
        nop
`)

	if err := d.ExecuteCommand("x val 1"); err != nil {
		t.Fatalf("x: %v", err)
	}
	out := d.GetOutput()
	if !strings.Contains(out, "0x12345678") {
		t.Errorf("examine output: %q", out)
	}
}

func TestDebugger_UnknownCommand(t *testing.T) {
	d, _ := makeDebugger(t, countSource)
	if err := d.ExecuteCommand("frobnicate"); err == nil {
		t.Errorf("expected error for unknown command")
	}
}

func TestDebugger_EmptyRepeatsLast(t *testing.T) {
	d, _ := makeDebugger(t, countSource)

	_ = d.ExecuteCommand("step")
	d.GetOutput()
	_ = d.ExecuteCommand("")
	d.GetOutput()

	// Two steps executed: li then addi
	if d.Machine.Registers.Get(8) != 1 {
		t.Errorf("$t0 = %d after repeated step", d.Machine.Registers.Get(8))
	}
}

func TestCommandHistory(t *testing.T) {
	h := debugger.NewCommandHistory(3)
	h.Add("a")
	h.Add("b")
	h.Add("c")
	h.Add("d") // evicts a

	if h.Len() != 3 {
		t.Fatalf("len %d", h.Len())
	}
	if got := h.Previous(); got != "d" {
		t.Errorf("previous: %q", got)
	}
	if got := h.Previous(); got != "c" {
		t.Errorf("previous: %q", got)
	}
	if got := h.Next(); got != "d" {
		t.Errorf("next: %q", got)
	}
}

package assembler_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/myaltaccountsthis/mars-red/assembler"
	"github.com/myaltaccountsthis/mars-red/parser"
	"github.com/myaltaccountsthis/mars-red/vm"
)

func assemble(t *testing.T, source string) (*vm.Machine, *assembler.Assembler) {
	t.Helper()
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	errs := a.AssembleText(source, "test.asm")
	if errs.HasErrors() {
		t.Fatalf("assembly failed:\n%s", errs.Error())
	}
	return m, a
}

const helloSource = `        .data
msg:    .asciiz "hi"
        .text
main:   li $v0, 4
        la $a0, msg
        syscall
        li $v0, 10
        syscall
`

func TestAssemble_Hello(t *testing.T) {
	m, _ := assemble(t, helloSource)

	// Data segment: 'h', 'i', NUL at the data base
	base := m.Memory.Config.DataBase
	for i, want := range []uint32{0x68, 0x69, 0x00} {
		b, err := m.Memory.GetByte(base+uint32(i), false)
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("data byte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	// Text: ori (li), lui+ori (la), syscall, ori (li), syscall
	addrs := m.Memory.StatementAddresses()
	if len(addrs) != 6 {
		t.Fatalf("expected 6 basic statements, got %d", len(addrs))
	}
	mnemonics := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		mnemonics = append(mnemonics, m.Memory.StatementAt(addr).Instruction.Mnemonic)
	}
	want := []string{"ori", "lui", "ori", "syscall", "ori", "syscall"}
	for i := range want {
		if mnemonics[i] != want[i] {
			t.Errorf("statement %d: got %s, want %s (all: %v)", i, mnemonics[i], want[i], mnemonics)
		}
	}
}

func TestAssemble_HelloRuns(t *testing.T) {
	m, _ := assemble(t, helloSource)

	var out bytes.Buffer
	m.OutputWriter = &out

	s := vm.NewSimulator(m)
	defer s.Events.Close()
	if state := s.Run(0); state != vm.StateTerminated {
		t.Fatalf("state: %v", state)
	}
	if err := s.TerminationError(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.String() != "hi" {
		t.Errorf("output %q, want %q", out.String(), "hi")
	}
	if s.ExitCode() != 0 {
		t.Errorf("exit code %d", s.ExitCode())
	}
}

func TestAssemble_ForwardLabelInData(t *testing.T) {
	m, _ := assemble(t, `
        .data
ptr:    .word target
        .text
target: nop
`)

	word, err := m.Memory.GetWord(m.Memory.Config.DataBase, false)
	if err != nil {
		t.Fatalf("read ptr: %v", err)
	}
	if word != m.Memory.Config.TextBase {
		t.Errorf("ptr = 0x%08x, want text base 0x%08x", word, m.Memory.Config.TextBase)
	}
}

func TestAssemble_MacroRecursion(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	errs := a.AssembleText(`
        .text
        .macro A
        A
        .end_macro
        A
`, "test.asm")

	if !errs.HasErrors() {
		t.Fatalf("expected a macro recursion error")
	}
	found := false
	for _, e := range errs.Errors {
		if e.Kind == parser.ErrorMacroExpansion && strings.Contains(e.Message, "recursive") {
			found = true
		}
	}
	if !found {
		t.Errorf("no recursion error in: %s", errs.Error())
	}
}

func TestAssemble_MacroExpansion(t *testing.T) {
	m, _ := assemble(t, `
        .text
        .macro push %reg
        addiu $sp, $sp, -4
        sw %reg, 0($sp)
        .end_macro
main:   push $t0
        push $t1
`)

	addrs := m.Memory.StatementAddresses()
	if len(addrs) != 4 {
		t.Fatalf("expected 4 statements from two macro calls, got %d", len(addrs))
	}
	// Second call substitutes $t1 into the sw
	last := m.Memory.StatementAt(addrs[3])
	if last.Instruction.Mnemonic != "sw" || last.Operands[0] != 9 {
		t.Errorf("last statement: %s operands %v", last.Instruction.Mnemonic, last.Operands)
	}
}

func TestAssemble_DuplicateLabel(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	errs := a.AssembleText(`
        .text
main:   nop
main:   nop
`, "test.asm")

	if !errs.HasErrors() {
		t.Fatalf("expected duplicate-label error")
	}
}

func TestAssemble_UndefinedLabel(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	errs := a.AssembleText(`
        .data
ptr:    .word nowhere
`, "test.asm")

	if !errs.HasErrors() {
		t.Fatalf("expected undefined-label error")
	}
	if !strings.Contains(errs.Error(), "nowhere") {
		t.Errorf("error does not name the label: %s", errs.Error())
	}
}

func TestAssemble_WordReplication(t *testing.T) {
	m, _ := assemble(t, `
        .data
table:  .word 7 : 3
`)

	base := m.Memory.Config.DataBase
	for i := uint32(0); i < 3; i++ {
		w, _ := m.Memory.GetWord(base+4*i, false)
		if w != 7 {
			t.Errorf("word %d = %d, want 7", i, w)
		}
	}
}

func TestAssemble_AlignmentAndLabelStick(t *testing.T) {
	m, a := assemble(t, `
        .data
ch:     .byte 1
w:      .word 0x11223344
`)

	// The .word auto-aligns to the next word boundary and the label
	// sticks to the aligned address
	sym, ok := a.SymbolAddress("w")
	if !ok {
		t.Fatalf("no symbol w")
	}
	base := m.Memory.Config.DataBase
	if sym != base+4 {
		t.Errorf("w = 0x%08x, want 0x%08x", sym, base+4)
	}
	word, _ := m.Memory.GetWord(base+4, false)
	if word != 0x11223344 {
		t.Errorf("word = 0x%08x", word)
	}
}

func TestAssemble_GloblPromotion(t *testing.T) {
	_, a := assemble(t, `
        .globl main
        .text
main:   nop
`)

	if _, ok := a.GlobalSymbols().Lookup("main"); !ok {
		t.Errorf("main was not promoted to the global table")
	}
}

func TestAssemble_GloblUndefined(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	errs := a.AssembleText(`
        .globl ghost
        .text
        nop
`, "test.asm")

	if !errs.HasErrors() {
		t.Fatalf("expected error for .globl of undefined name")
	}
}

func TestAssemble_Extern(t *testing.T) {
	m, a := assemble(t, `
        .extern shared 8
        .text
        lw $t0, shared
`)

	sym, ok := a.GlobalSymbols().Lookup("shared")
	if !ok {
		t.Fatalf("extern symbol missing")
	}
	if sym.Address != m.Memory.Config.ExternBase {
		t.Errorf("extern at 0x%08x, want 0x%08x", sym.Address, m.Memory.Config.ExternBase)
	}
}

func TestAssemble_Space(t *testing.T) {
	m, _ := assemble(t, `
        .data
buf:    .space 16
after:  .byte 5
`)

	b, _ := m.Memory.GetByte(m.Memory.Config.DataBase+16, false)
	if b != 5 {
		t.Errorf("byte after .space = %d, want 5", b)
	}
}

func TestAssemble_PseudoDisabled(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	a.ExtendedMode = false
	errs := a.AssembleText(`
        .text
        li $t0, 5
`, "test.asm")

	if !errs.HasErrors() {
		t.Fatalf("expected pseudo-instruction error with extended mode off")
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)

	image := func() []uint32 {
		var words []uint32
		for _, addr := range m.Memory.StatementAddresses() {
			words = append(words, m.Memory.StatementAt(addr).Binary)
		}
		return words
	}

	if errs := a.AssembleText(helloSource, "test.asm"); errs.HasErrors() {
		t.Fatalf("first assembly: %s", errs.Error())
	}
	first := image()

	if errs := a.AssembleText(helloSource, "test.asm"); errs.HasErrors() {
		t.Fatalf("second assembly: %s", errs.Error())
	}
	second := image()

	if len(first) != len(second) {
		t.Fatalf("image sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("word %d differs: 0x%08x vs 0x%08x", i, first[i], second[i])
		}
	}
}

func TestAssemble_DelayedBranchElision(t *testing.T) {
	source := `
        .text
main:   b end
        addi $t0, $t0, 9
end:    nop
`

	// Delayed branching off: the b expands to a single bgez
	m := vm.NewMachine(nil)
	a := assembler.NewAssembler(m)
	if errs := a.AssembleText(source, "test.asm"); errs.HasErrors() {
		t.Fatalf("assembly: %s", errs.Error())
	}
	if n := len(m.Memory.StatementAddresses()); n != 3 {
		t.Errorf("without delay slots: %d statements, want 3", n)
	}

	// Delayed branching on: the template's nop is kept
	m = vm.NewMachine(nil)
	m.DelayedBranching = true
	a = assembler.NewAssembler(m)
	if errs := a.AssembleText(source, "test.asm"); errs.HasErrors() {
		t.Fatalf("assembly: %s", errs.Error())
	}
	if n := len(m.Memory.StatementAddresses()); n != 4 {
		t.Errorf("with delay slots: %d statements, want 4", n)
	}
}

func TestAssemble_DelayedBranchSemantics(t *testing.T) {
	// The classic delay-slot demonstration: the addi runs in the slot
	// only when delayed branching is on
	source := `
        .text
main:   li $t0, 1
        beq $t0, $t0, skip
        addi $t0, $t0, 9
skip:   nop
`

	run := func(delayed bool) uint32 {
		m := vm.NewMachine(nil)
		m.DelayedBranching = delayed
		a := assembler.NewAssembler(m)
		if errs := a.AssembleText(source, "test.asm"); errs.HasErrors() {
			t.Fatalf("assembly: %s", errs.Error())
		}
		s := vm.NewSimulator(m)
		defer s.Events.Close()
		s.Run(0)
		return m.Registers.Get(8)
	}

	if got := run(false); got != 1 {
		t.Errorf("delayed branching off: $t0 = %d, want 1", got)
	}
	if got := run(true); got != 10 {
		t.Errorf("delayed branching on: $t0 = %d, want 10", got)
	}
}

func TestAssemble_EqvSubstitution(t *testing.T) {
	m, _ := assemble(t, `
        .eqv LIMIT 42
        .text
        li $t0, LIMIT
`)

	stmt := m.Memory.StatementAt(m.Memory.Config.TextBase)
	if stmt == nil {
		t.Fatalf("no statement emitted")
	}
	if stmt.Operands[len(stmt.Operands)-1] != 42 {
		t.Errorf("eqv value not substituted: %v", stmt.Operands)
	}
}

func TestAssemble_LabelArithmetic(t *testing.T) {
	m, _ := assemble(t, `
        .data
buf:    .word 1, 2, 3
        .text
        lw $t0, buf+4
`)

	// The lw expansion must target buf+4
	base := m.Memory.Config.TextBase
	lui := m.Memory.StatementAt(base)
	lw := m.Memory.StatementAt(base + 4)
	if lui == nil || lw == nil {
		t.Fatalf("expansion missing")
	}
	target := lui.Operands[1]<<16 + vm.SignExtend16(lw.Operands[1])
	if target != m.Memory.Config.DataBase+4 {
		t.Errorf("effective address 0x%08x, want 0x%08x", target, m.Memory.Config.DataBase+4)
	}
}

func TestAssemble_DumpHexText(t *testing.T) {
	_, a := assemble(t, `
        .text
        ori $v0, $0, 4
`)

	var out bytes.Buffer
	if err := a.DumpSegment("text", "hextext", &out); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.HasPrefix(out.String(), "34020004") {
		t.Errorf("dump output %q", out.String())
	}
}

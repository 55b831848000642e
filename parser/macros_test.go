package parser_test

import (
	"strings"
	"testing"

	"github.com/myaltaccountsthis/mars-red/parser"
)

func defineMacro(t *testing.T, table *parser.MacroTable, name string, params []string, body ...string) {
	t.Helper()
	m := &parser.Macro{
		Name:       name,
		Parameters: params,
		Pos:        parser.Position{Filename: "test.asm", Line: 1},
	}
	for i, line := range body {
		m.Body = append(m.Body, parser.MacroLine{
			Text: line,
			Pos:  parser.Position{Filename: "test.asm", Line: i + 2},
		})
	}
	if err := table.Define(m); err != nil {
		t.Fatalf("define %s: %v", name, err)
	}
}

func TestMacro_ParameterSubstitution(t *testing.T) {
	table := parser.NewMacroTable()
	defineMacro(t, table, "print_int", []string{"%value"},
		"li $v0, 1",
		"li $a0, %value",
		"syscall")

	exp := parser.NewMacroExpander(table)
	lines, err := exp.Expand("print_int", []string{"42"}, parser.Position{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1].Text != "li $a0, 42" {
		t.Errorf("substitution failed: %q", lines[1].Text)
	}
}

func TestMacro_UniqueLabels(t *testing.T) {
	table := parser.NewMacroTable()
	defineMacro(t, table, "spin", nil,
		"__loop:",
		"b __loop")

	exp := parser.NewMacroExpander(table)
	first, err := exp.Expand("spin", nil, parser.Position{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := exp.Expand("spin", nil, parser.Position{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	if first[0].Text == "__loop:" {
		t.Errorf("local label was not renamed: %q", first[0].Text)
	}
	if first[0].Text == second[0].Text {
		t.Errorf("two expansions produced the same label: %q", first[0].Text)
	}
	// The branch must reference the renamed label
	label := strings.TrimSuffix(first[0].Text, ":")
	if first[1].Text != "b "+label {
		t.Errorf("branch target %q does not match label %q", first[1].Text, label)
	}
}

func TestMacro_RecursionDetected(t *testing.T) {
	table := parser.NewMacroTable()
	defineMacro(t, table, "a", nil, "a")

	exp := parser.NewMacroExpander(table)
	if err := exp.Push("a", parser.Position{}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	// Expanding the body hits the call again
	if err := exp.Push("a", parser.Position{Filename: "test.asm", Line: 2}); err == nil {
		t.Errorf("expected recursion error")
	}
	exp.Pop()
}

func TestMacro_ArityOverloads(t *testing.T) {
	table := parser.NewMacroTable()
	defineMacro(t, table, "m", nil, "nop")
	defineMacro(t, table, "m", []string{"%x"}, "li $t0, %x")

	exp := parser.NewMacroExpander(table)
	if _, err := exp.Expand("m", nil, parser.Position{}); err != nil {
		t.Errorf("zero-arg form: %v", err)
	}
	if _, err := exp.Expand("m", []string{"1"}, parser.Position{}); err != nil {
		t.Errorf("one-arg form: %v", err)
	}
	if _, err := exp.Expand("m", []string{"1", "2"}, parser.Position{}); err == nil {
		t.Errorf("expected wrong-argument-count error")
	}
}

func TestMacro_DuplicateDefinition(t *testing.T) {
	table := parser.NewMacroTable()
	defineMacro(t, table, "m", []string{"%x"}, "nop")

	dup := &parser.Macro{Name: "m", Parameters: []string{"%y"}}
	if err := table.Define(dup); err == nil {
		t.Errorf("expected duplicate-definition error")
	}
}

func TestSymbolTable_DefineAndLookup(t *testing.T) {
	st := parser.NewSymbolTable("test.asm")
	pos := parser.Position{Filename: "test.asm", Line: 3}

	if err := st.Define("main", 0x00400000, false, pos); err != nil {
		t.Fatalf("define: %v", err)
	}
	if err := st.Define("main", 0x00400004, false, pos); err == nil {
		t.Errorf("expected duplicate-label error")
	}

	sym, ok := st.Lookup("main")
	if !ok || sym.Address != 0x00400000 {
		t.Errorf("lookup failed: %v %v", sym, ok)
	}
}

func TestSymbolTable_Realign(t *testing.T) {
	st := parser.NewSymbolTable("test.asm")
	_ = st.Define("word_label", 0x10010001, true, parser.Position{})
	_ = st.Define("other", 0x10010000, true, parser.Position{})

	st.Realign(0x10010001, 0x10010004)

	sym, _ := st.Lookup("word_label")
	if sym.Address != 0x10010004 {
		t.Errorf("label did not stick to aligned cursor: 0x%08x", sym.Address)
	}
	sym, _ = st.Lookup("other")
	if sym.Address != 0x10010000 {
		t.Errorf("unrelated label moved: 0x%08x", sym.Address)
	}
}

func TestForwardReferences_ResolveAndReport(t *testing.T) {
	pool := &parser.ForwardReferencePool{}
	pool.Add(parser.ForwardReference{
		PatchAddress: 0x10010000,
		Length:       4,
		Token:        parser.Token{Kind: parser.TokenIdentifier, Literal: "target"},
	})
	pool.Add(parser.ForwardReference{
		PatchAddress: 0x10010004,
		Length:       4,
		Token:        parser.Token{Kind: parser.TokenIdentifier, Literal: "missing"},
	})

	written := make(map[uint32]uint32)
	errs := pool.Resolve(
		func(name string) (uint32, bool) {
			if name == "target" {
				return 0x00400008, true
			}
			return 0, false
		},
		func(addr uint32, length int, value uint32) error {
			written[addr] = value
			return nil
		})
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if written[0x10010000] != 0x00400008 {
		t.Errorf("patch not written: %v", written)
	}
	if pool.Len() != 1 {
		t.Fatalf("expected 1 unresolved reference, got %d", pool.Len())
	}

	final := parser.NewErrorList()
	pool.ReportUndefined(final)
	if len(final.Errors) != 1 {
		t.Errorf("expected 1 undefined-label error, got %d", len(final.Errors))
	}
}

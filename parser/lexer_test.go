package parser_test

import (
	"testing"

	"github.com/myaltaccountsthis/mars-red/parser"
)

func tokenize(t *testing.T, input string) []parser.Token {
	t.Helper()
	errs := parser.NewErrorList()
	toks := parser.TokenizeLine(input, "test.asm", 1, errs, func(s string) bool {
		switch s {
		case "add", "addi", "lw", "sw", "li", "syscall", "nop":
			return true
		}
		return false
	})
	return toks
}

func TestLexer_BasicStatement(t *testing.T) {
	toks := tokenize(t, "addi $t0, $zero, 42")

	expected := []parser.TokenKind{
		parser.TokenOperator,
		parser.TokenRegisterName,
		parser.TokenRegisterName,
		parser.TokenInteger16,
	}
	if len(toks) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(toks), toks)
	}
	for i, kind := range expected {
		if toks[i].Kind != kind {
			t.Errorf("token %d: expected %v, got %v", i, kind, toks[i].Kind)
		}
	}
}

func TestLexer_IntegerWidths(t *testing.T) {
	tests := []struct {
		input string
		kind  parser.TokenKind
		value int64
	}{
		{"0", parser.TokenInteger5, 0},
		{"31", parser.TokenInteger5, 31},
		{"32", parser.TokenInteger16, 32},
		{"-1", parser.TokenInteger16, -1},
		{"-32768", parser.TokenInteger16, -32768},
		{"32767", parser.TokenInteger16, 32767},
		{"32768", parser.TokenInteger16U, 32768},
		{"65535", parser.TokenInteger16U, 65535},
		{"65536", parser.TokenInteger32, 65536},
		{"-32769", parser.TokenInteger32, -32769},
		{"010", parser.TokenInteger5, 8},
	}

	for _, tt := range tests {
		toks := tokenize(t, tt.input)
		if len(toks) != 1 {
			t.Errorf("input %q: expected 1 token, got %d", tt.input, len(toks))
			continue
		}
		if toks[0].Kind != tt.kind {
			t.Errorf("input %q: expected %v, got %v", tt.input, tt.kind, toks[0].Kind)
		}
		if toks[0].IntValue != tt.value {
			t.Errorf("input %q: expected value %d, got %d", tt.input, tt.value, toks[0].IntValue)
		}
	}
}

func TestLexer_HexIsAlwaysBitPattern(t *testing.T) {
	// 0xffff is unsigned 65535, never sign-extended to -1
	toks := tokenize(t, "0xffff")
	if toks[0].Kind != parser.TokenInteger16U || toks[0].IntValue != 65535 {
		t.Errorf("0xffff: got %v value %d", toks[0].Kind, toks[0].IntValue)
	}

	// 0xffffffff is the 32-bit pattern of -1
	toks = tokenize(t, "0xffffffff")
	if toks[0].Kind != parser.TokenInteger32 || toks[0].IntValue != -1 {
		t.Errorf("0xffffffff: got %v value %d", toks[0].Kind, toks[0].IntValue)
	}
}

func TestLexer_Registers(t *testing.T) {
	tests := []struct {
		input string
		kind  parser.TokenKind
		num   int64
	}{
		{"$zero", parser.TokenRegisterName, 0},
		{"$t0", parser.TokenRegisterName, 8},
		{"$sp", parser.TokenRegisterName, 29},
		{"$fp", parser.TokenRegisterName, 30},
		{"$ra", parser.TokenRegisterName, 31},
		{"$0", parser.TokenRegisterNumber, 0},
		{"$31", parser.TokenRegisterNumber, 31},
		{"$f0", parser.TokenFPRegisterName, 0},
		{"$f31", parser.TokenFPRegisterName, 31},
	}

	for _, tt := range tests {
		toks := tokenize(t, tt.input)
		if toks[0].Kind != tt.kind || toks[0].IntValue != tt.num {
			t.Errorf("input %q: got %v/%d, want %v/%d",
				tt.input, toks[0].Kind, toks[0].IntValue, tt.kind, tt.num)
		}
	}

	// $32 is not a register; it is a valid identifier character soup
	toks := tokenize(t, "$32")
	if toks[0].Kind == parser.TokenRegisterNumber {
		t.Errorf("$32 must not lex as a register")
	}
}

func TestLexer_LabelAndComment(t *testing.T) {
	toks := tokenize(t, "main: add $t0, $t1, $t2 # sum")

	if toks[0].Kind != parser.TokenIdentifier || toks[0].Literal != "main" {
		t.Errorf("expected identifier 'main', got %v", toks[0])
	}
	if toks[1].Kind != parser.TokenColon {
		t.Errorf("expected colon, got %v", toks[1])
	}
	last := toks[len(toks)-1]
	if last.Kind != parser.TokenComment {
		t.Errorf("expected trailing comment, got %v", last)
	}
}

func TestLexer_CharLiterals(t *testing.T) {
	toks := tokenize(t, "'A'")
	if !toks[0].Kind.IsInteger() || toks[0].IntValue != 65 {
		t.Errorf("'A': got %v value %d", toks[0].Kind, toks[0].IntValue)
	}

	toks = tokenize(t, `'\n'`)
	if !toks[0].Kind.IsInteger() || toks[0].IntValue != 10 {
		t.Errorf(`'\n': got %v value %d`, toks[0].Kind, toks[0].IntValue)
	}

	toks = tokenize(t, "'ab'")
	if toks[0].Kind != parser.TokenError {
		t.Errorf("'ab': expected error token, got %v", toks[0].Kind)
	}
}

func TestLexer_Strings(t *testing.T) {
	toks := tokenize(t, `.asciiz "hi\n"`)
	if toks[0].Kind != parser.TokenDirective {
		t.Fatalf("expected directive, got %v", toks[0])
	}
	if toks[1].Kind != parser.TokenString || toks[1].Literal != "hi\n" {
		t.Errorf("string: got %v %q", toks[1].Kind, toks[1].Literal)
	}
}

func TestLexer_MemoryOperand(t *testing.T) {
	toks := tokenize(t, "lw $t0, 4($sp)")

	expected := []parser.TokenKind{
		parser.TokenOperator,
		parser.TokenRegisterName,
		parser.TokenInteger5,
		parser.TokenLeftParen,
		parser.TokenRegisterName,
		parser.TokenRightParen,
	}
	for i, kind := range expected {
		if toks[i].Kind != kind {
			t.Errorf("token %d: expected %v, got %v", i, kind, toks[i].Kind)
		}
	}
}

func TestLexer_LabelPlusOffset(t *testing.T) {
	toks := tokenize(t, "buf+4")

	if toks[0].Kind != parser.TokenIdentifier {
		t.Fatalf("expected identifier, got %v", toks[0])
	}
	if toks[1].Kind != parser.TokenPlus {
		t.Errorf("expected plus, got %v", toks[1])
	}
	if !toks[2].Kind.IsInteger() || toks[2].IntValue != 4 {
		t.Errorf("expected integer 4, got %v", toks[2])
	}
}

func TestLexer_NegativeImmediate(t *testing.T) {
	toks := tokenize(t, "addi $t0, $t0, -100")
	last := toks[len(toks)-1]
	if last.Kind != parser.TokenInteger16 || last.IntValue != -100 {
		t.Errorf("expected INTEGER_16 -100, got %v %d", last.Kind, last.IntValue)
	}
}

func TestLexer_MacroParameter(t *testing.T) {
	toks := tokenize(t, "%count")
	if toks[0].Kind != parser.TokenMacroParameter || toks[0].Literal != "%count" {
		t.Errorf("got %v %q", toks[0].Kind, toks[0].Literal)
	}
}

func TestLexer_RealNumbers(t *testing.T) {
	tests := []struct {
		input string
		value float64
	}{
		{"3.5", 3.5},
		{"-0.25", -0.25},
		{"1.5e3", 1500},
	}
	for _, tt := range tests {
		toks := tokenize(t, tt.input)
		if toks[0].Kind != parser.TokenRealNumber {
			t.Errorf("input %q: expected real, got %v", tt.input, toks[0].Kind)
			continue
		}
		if toks[0].FloatValue != tt.value {
			t.Errorf("input %q: expected %v, got %v", tt.input, tt.value, toks[0].FloatValue)
		}
	}
}

func TestTokenizer_Eqv(t *testing.T) {
	errs := parser.NewErrorList()
	tok := parser.NewTokenizer(errs)
	lines := tok.TokenizeText(".eqv LIMIT 42\nli $t0, LIMIT", "test.asm")

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	second := lines[1]
	if second.Processed == second.Text {
		t.Errorf("expected .eqv substitution in processed line")
	}
	last := second.Tokens[len(second.Tokens)-1]
	if !last.Kind.IsInteger() || last.IntValue != 42 {
		t.Errorf("expected substituted integer 42, got %v", last)
	}
}

func TestLexer_DollarInIdentifier(t *testing.T) {
	toks := tokenize(t, "loop$2:")
	if toks[0].Kind != parser.TokenIdentifier || toks[0].Literal != "loop$2" {
		t.Errorf("got %v %q", toks[0].Kind, toks[0].Literal)
	}
}

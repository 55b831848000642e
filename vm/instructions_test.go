package vm_test

import (
	"testing"

	"github.com/myaltaccountsthis/mars-red/vm"
)

// findBasic locates the basic instruction with a given mnemonic and
// operand count
func findBasic(t *testing.T, set *vm.InstructionSet, mnemonic string, operands int) *vm.BasicInstruction {
	t.Helper()
	for _, inst := range set.Get(mnemonic) {
		b, ok := inst.(*vm.BasicInstruction)
		if !ok {
			continue
		}
		count := 0
		for _, typ := range b.Operands {
			if typ.ValueBearing() {
				count++
			}
		}
		if count == operands {
			return b
		}
	}
	t.Fatalf("no basic instruction %s/%d", mnemonic, operands)
	return nil
}

func TestInstruction_KnownEncodings(t *testing.T) {
	set := vm.NewInstructionSet()

	tests := []struct {
		mnemonic string
		operands []uint32
		want     uint32
	}{
		{"addiu", []uint32{2, 0, 4}, 0x24020004},     // addiu $v0, $zero, 4
		{"ori", []uint32{2, 0, 4}, 0x34020004},       // ori $v0, $zero, 4
		{"lw", []uint32{8, 4, 29}, 0x8fa80004},       // lw $t0, 4($sp)
		{"sw", []uint32{8, 4, 29}, 0xafa80004},       // sw $t0, 4($sp)
		{"add", []uint32{8, 9, 10}, 0x012a4020},      // add $t0, $t1, $t2
		{"jr", []uint32{31}, 0x03e00008},             // jr $ra
		{"syscall", nil, 0x0000000c},                 // syscall
		{"nop", nil, 0x00000000},                     // nop
		{"lui", []uint32{1, 0x1001}, 0x3c011001},     // lui $at, 0x1001
		{"beq", []uint32{8, 8, 0xffff}, 0x1108ffff},  // beq $t0, $t0, -1
		{"mult", []uint32{8, 9}, 0x01090018},         // mult $t0, $t1
		{"mflo", []uint32{10}, 0x00005012},           // mflo $t2
	}

	for _, tt := range tests {
		b := findBasic(t, set, tt.mnemonic, len(tt.operands))
		got := b.Encode(tt.operands)
		if got != tt.want {
			t.Errorf("%s: encoded 0x%08x, want 0x%08x", tt.mnemonic, got, tt.want)
		}
	}
}

func TestInstruction_EncodeDecodeRoundTrip(t *testing.T) {
	set := vm.NewInstructionSet()

	cases := []struct {
		mnemonic string
		operands []uint32
	}{
		{"add", []uint32{8, 9, 10}},
		{"addi", []uint32{8, 9, 0xff9c}}, // -100 as a 16-bit field
		{"sub", []uint32{31, 1, 2}},
		{"sll", []uint32{8, 9, 31}},
		{"sllv", []uint32{8, 9, 10}},
		{"mult", []uint32{8, 9}},
		{"div", []uint32{8, 9}},
		{"lw", []uint32{8, 0x8000, 29}},
		{"sb", []uint32{8, 0x7fff, 29}},
		{"beq", []uint32{8, 9, 0x1234}},
		{"bgez", []uint32{8, 0x8000}},
		{"j", []uint32{0x0100000}},
		{"jal", []uint32{0x3ffffff}},
		{"lui", []uint32{31, 0xffff}},
		{"teq", []uint32{5, 6}},
		{"mfc0", []uint32{26, 14}},
		{"add.s", []uint32{0, 1, 2}},
		{"c.lt.d", []uint32{2, 4}},
		{"lwc1", []uint32{5, 0x10, 8}},
		{"eret", nil},
	}

	for _, tt := range cases {
		b := findBasic(t, set, tt.mnemonic, len(tt.operands))
		word := b.Encode(tt.operands)

		decoded := set.MatchBinary(word)
		if decoded == nil {
			t.Errorf("%s: word 0x%08x did not decode", tt.mnemonic, word)
			continue
		}
		if decoded != b {
			t.Errorf("%s: word 0x%08x decoded as %s", tt.mnemonic, word, decoded.Mnemonic)
			continue
		}
		ops := decoded.ExtractOperands(word)
		if len(ops) != len(tt.operands) {
			t.Errorf("%s: operand count %d, want %d", tt.mnemonic, len(ops), len(tt.operands))
			continue
		}
		for i := range ops {
			if ops[i] != tt.operands[i] {
				t.Errorf("%s: operand %d = %d, want %d", tt.mnemonic, i, ops[i], tt.operands[i])
			}
		}
	}
}

func TestInstruction_DecodePrefersSpecific(t *testing.T) {
	set := vm.NewInstructionSet()

	// The all-zero word is nop, not sll $zero, $zero, 0
	if b := set.MatchBinary(0); b == nil || b.Mnemonic != "nop" {
		t.Errorf("zero word decoded as %v", b)
	}
}

func TestInstruction_TemplateExpansion(t *testing.T) {
	ops := []vm.ResolvedOperand{
		{Type: vm.OperandRegister, Value: 8},
		{Type: vm.OperandLabel, Value: 0x10010000},
	}

	lines, err := vm.ExpandTemplate([]string{
		"lui $1, {1:hi}",
		"ori {0}, $1, {1:lo}",
	}, ops)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if lines[0] != "lui $1, 4097" {
		t.Errorf("hi half: %q", lines[0])
	}
	if lines[1] != "ori $8, $1, 0" {
		t.Errorf("lo half: %q", lines[1])
	}
}

func TestInstruction_TemplateSignedOffset(t *testing.T) {
	// An address with bit 15 set needs the adjusted high half so the
	// sign-extended low offset lands back on the right address
	addr := uint32(0x10018004)
	ops := []vm.ResolvedOperand{
		{Type: vm.OperandRegister, Value: 8},
		{Type: vm.OperandLabel, Value: addr},
	}
	lines, err := vm.ExpandTemplate([]string{
		"lui $1, {1:hia}",
		"lw {0}, {1:los}($1)",
	}, ops)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if lines[0] != "lui $1, 4098" { // 0x1001 + 1
		t.Errorf("adjusted hi: %q", lines[0])
	}
	if lines[1] != "lw $8, -32764($1)" {
		t.Errorf("signed lo: %q", lines[1])
	}
	// 4098<<16 + (-32764) == 0x1001_8004
	losOffset := int32(-32764)
	if uint32(4098<<16)+uint32(losOffset) != addr {
		t.Errorf("hia/los pair does not reproduce the address")
	}
}

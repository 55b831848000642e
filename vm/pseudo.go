package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolvedOperand is an operand after symbol and register resolution:
// registers carry their number, labels their address, immediates their
// 32-bit value.
type ResolvedOperand struct {
	Type  OperandType
	Value uint32
}

// render produces the source-text form of the operand for template
// substitution
func (op ResolvedOperand) render() string {
	switch op.Type {
	case OperandRegister:
		return fmt.Sprintf("$%d", op.Value)
	case OperandFPRegister:
		return fmt.Sprintf("$f%d", op.Value)
	case OperandInteger16U, OperandLabel, OperandBranchLabel, OperandJumpLabel:
		return strconv.FormatUint(uint64(op.Value), 10)
	default:
		return strconv.FormatInt(int64(int32(op.Value)), 10)
	}
}

// ExpandTemplate substitutes resolved operands into a pseudo
// instruction's template lines. Substitution markers:
//
//	{n}      operand n in source form
//	{n:hi}   upper 16 bits of the operand value
//	{n:lo}   lower 16 bits (unsigned)
//	{n:hia}  upper 16 bits adjusted for a signed lower half
//	{n:los}  lower 16 bits as a signed offset
//	{n:neg}  negated signed value
//
// The hia/los pair composes lui with a signed load/store offset so the
// sum reproduces the full 32-bit address.
func ExpandTemplate(lines []string, operands []ResolvedOperand) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		expanded, err := substituteMarkers(line, operands)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

func substituteMarkers(line string, operands []ResolvedOperand) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(line); {
		c := line[i]
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(line[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated substitution marker in template line %q", line)
		}
		marker := line[i+1 : i+end]
		i += end + 1

		name, mod := marker, ""
		if colon := strings.IndexByte(marker, ':'); colon >= 0 {
			name, mod = marker[:colon], marker[colon+1:]
		}
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= len(operands) {
			return "", fmt.Errorf("bad substitution marker {%s} in template line %q", marker, line)
		}
		op := operands[idx]

		switch mod {
		case "":
			sb.WriteString(op.render())
		case "hi":
			sb.WriteString(strconv.FormatUint(uint64(op.Value>>16), 10))
		case "lo":
			sb.WriteString(strconv.FormatUint(uint64(op.Value&0xffff), 10))
		case "hia":
			sb.WriteString(strconv.FormatUint(uint64(op.Value>>16+op.Value>>15&1), 10))
		case "los":
			sb.WriteString(strconv.FormatInt(int64(int16(op.Value&0xffff)), 10))
		case "neg":
			sb.WriteString(strconv.FormatInt(-int64(int32(op.Value)), 10))
		default:
			return "", fmt.Errorf("unknown substitution modifier %q in template line %q", mod, line)
		}
	}
	return sb.String(), nil
}

// IsBareNop reports whether a template line is the bare delay-slot nop
// that is elided when delayed branching is off
func IsBareNop(line string) bool {
	return strings.TrimSpace(line) == "nop"
}

// addPseudo declares the extended (pseudo) instruction set. Templates
// reference the assembler temporary $1 ($at) exactly as SPIM does; the
// trailing nop lines fill delay slots and are dropped when delayed
// branching is disabled.
func (s *InstructionSet) addPseudo() {
	regI16 := []OperandType{OperandRegister, OperandInteger16}
	regI16U := []OperandType{OperandRegister, OperandInteger16U}
	regI32 := []OperandType{OperandRegister, OperandInteger32}
	regLabel := []OperandType{OperandRegister, OperandLabel}
	regRegLabel := []OperandType{OperandRegister, OperandRegister, OperandBranchLabel}
	fpLabel := []OperandType{OperandFPRegister, OperandLabel}

	// Load immediate, narrowest form first. The unsigned form leads so
	// 5-bit immediates (0..31, an equal match for both 16-bit forms)
	// assemble to ori; other values in the signed 16-bit range match
	// the signed form exactly and assemble to addiu
	s.extended("li", "li $t1, 50000", regI16U,
		[]string{"ori {0}, $0, {1}"})
	s.extended("li", "li $t1, -100", regI16,
		[]string{"addiu {0}, $0, {1}"})
	s.extended("li", "li $t1, 100000", regI32,
		[]string{
			"lui $1, {1:hi}",
			"ori {0}, $1, {1:lo}",
		})

	// Load address
	s.extendedCompact("la", "la $t1, label", regLabel,
		[]string{
			"lui $1, {1:hi}",
			"ori {0}, $1, {1:lo}",
		},
		[]string{"ori {0}, $0, {1}"})

	// Register moves and unary arithmetic
	s.extended("move", "move $t1, $t2", opsRR,
		[]string{"addu {0}, $0, {1}"})
	s.extended("neg", "neg $t1, $t2", opsRR,
		[]string{"sub {0}, $0, {1}"})
	s.extended("negu", "negu $t1, $t2", opsRR,
		[]string{"subu {0}, $0, {1}"})
	s.extended("not", "not $t1, $t2", opsRR,
		[]string{"nor {0}, {1}, $0"})
	s.extended("abs", "abs $t1, $t2", opsRR,
		[]string{
			"sra $1, {1}, 31",
			"xor {0}, {1}, $1",
			"subu {0}, {0}, $1",
		})

	// Unconditional and zero-compare branches
	s.extended("b", "b label", []OperandType{OperandBranchLabel},
		[]string{
			"bgez $0, {0}",
			"nop",
		})
	s.extended("beqz", "beqz $t1, label", opsRB,
		[]string{
			"beq {0}, $0, {1}",
			"nop",
		})
	s.extended("bnez", "bnez $t1, label", opsRB,
		[]string{
			"bne {0}, $0, {1}",
			"nop",
		})

	// Two-register compare branches
	branch := func(mnemonic, cmp, branchOp string) {
		s.extended(mnemonic, mnemonic+" $t1, $t2, label", regRegLabel,
			[]string{
				cmp,
				branchOp,
				"nop",
			})
	}
	branch("bgt", "slt $1, {1}, {0}", "bne $1, $0, {2}")
	branch("bgtu", "sltu $1, {1}, {0}", "bne $1, $0, {2}")
	branch("blt", "slt $1, {0}, {1}", "bne $1, $0, {2}")
	branch("bltu", "sltu $1, {0}, {1}", "bne $1, $0, {2}")
	branch("bge", "slt $1, {0}, {1}", "beq $1, $0, {2}")
	branch("bgeu", "sltu $1, {0}, {1}", "beq $1, $0, {2}")
	branch("ble", "slt $1, {1}, {0}", "beq $1, $0, {2}")
	branch("bleu", "sltu $1, {1}, {0}", "beq $1, $0, {2}")

	// Set-on-comparison
	s.extended("seq", "seq $t1, $t2, $t3", opsRRR,
		[]string{
			"subu {0}, {1}, {2}",
			"sltiu {0}, {0}, 1",
		})
	s.extended("sne", "sne $t1, $t2, $t3", opsRRR,
		[]string{
			"subu {0}, {1}, {2}",
			"sltu {0}, $0, {0}",
		})
	s.extended("sge", "sge $t1, $t2, $t3", opsRRR,
		[]string{
			"slt {0}, {1}, {2}",
			"xori {0}, {0}, 1",
		})
	s.extended("sgeu", "sgeu $t1, $t2, $t3", opsRRR,
		[]string{
			"sltu {0}, {1}, {2}",
			"xori {0}, {0}, 1",
		})
	s.extended("sgt", "sgt $t1, $t2, $t3", opsRRR,
		[]string{"slt {0}, {2}, {1}"})
	s.extended("sgtu", "sgtu $t1, $t2, $t3", opsRRR,
		[]string{"sltu {0}, {2}, {1}"})
	s.extended("sle", "sle $t1, $t2, $t3", opsRRR,
		[]string{
			"slt {0}, {2}, {1}",
			"xori {0}, {0}, 1",
		})
	s.extended("sleu", "sleu $t1, $t2, $t3", opsRRR,
		[]string{
			"sltu {0}, {2}, {1}",
			"xori {0}, {0}, 1",
		})

	// Three-operand divide and remainder (divide-by-zero stays silent,
	// matching the basic div)
	s.extended("div", "div $t1, $t2, $t3", opsRRR,
		[]string{
			"div {1}, {2}",
			"mflo {0}",
		})
	s.extended("divu", "divu $t1, $t2, $t3", opsRRR,
		[]string{
			"divu {1}, {2}",
			"mflo {0}",
		})
	s.extended("rem", "rem $t1, $t2, $t3", opsRRR,
		[]string{
			"div {1}, {2}",
			"mfhi {0}",
		})
	s.extended("remu", "remu $t1, $t2, $t3", opsRRR,
		[]string{
			"divu {1}, {2}",
			"mfhi {0}",
		})

	// Immediate subtract
	s.extended("subi", "subi $t1, $t2, -100", opsRRI,
		[]string{"addi {0}, {1}, {2:neg}"})
	s.extended("subiu", "subiu $t1, $t2, -100", opsRRI,
		[]string{"addiu {0}, {1}, {2:neg}"})

	// Loads and stores with label addressing
	memLabel := func(mnemonic string) {
		s.extendedCompact(mnemonic, mnemonic+" $t1, label", regLabel,
			[]string{
				"lui $1, {1:hia}",
				mnemonic + " {0}, {1:los}($1)",
			},
			[]string{mnemonic + " {0}, {1}($0)"})
	}
	memLabel("lw")
	memLabel("sw")
	memLabel("lh")
	memLabel("lhu")
	memLabel("sh")
	memLabel("lb")
	memLabel("lbu")
	memLabel("sb")

	// FP loads and stores with label addressing
	fpMemLabel := func(mnemonic string) {
		s.extendedCompact(mnemonic, mnemonic+" $f0, label", fpLabel,
			[]string{
				"lui $1, {1:hia}",
				mnemonic + " {0}, {1:los}($1)",
			},
			[]string{mnemonic + " {0}, {1}($0)"})
	}
	fpMemLabel("lwc1")
	fpMemLabel("swc1")
	fpMemLabel("ldc1")
	fpMemLabel("sdc1")
}

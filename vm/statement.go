package vm

import (
	"fmt"
	"strings"

	"github.com/myaltaccountsthis/mars-red/parser"
)

// Statement is one assembled basic instruction: the machine word at a
// text address together with its high-level form. Fetch returns these
// so the simulator can dispatch the semantics closure directly instead
// of re-decoding every cycle.
type Statement struct {
	Source  string // source line text it came from
	Pos     parser.Position
	Address uint32
	Binary  uint32

	Instruction *BasicInstruction

	// Operands holds the resolved operand field values in declaration
	// order: register numbers, immediate bit patterns, encoded branch
	// displacements
	Operands []uint32
}

// Assembly renders the statement's basic-assembly form. Branch
// displacements and jump fields are shown as the absolute target so
// listings read like the source.
func (s *Statement) Assembly() string {
	if s.Instruction == nil {
		return fmt.Sprintf(".word 0x%08x", s.Binary)
	}

	var sb strings.Builder
	sb.WriteString(s.Instruction.Mnemonic)

	first := true
	afterParen := false
	next := 0 // index into Operands, which holds no parentheses
	for _, typ := range s.Instruction.Operands {
		if typ == OperandLeftParen {
			sb.WriteString("(")
			afterParen = true
			continue
		}
		if typ == OperandRightParen {
			sb.WriteString(")")
			continue
		}

		op := uint32(0)
		if next < len(s.Operands) {
			op = s.Operands[next]
		}
		next++

		switch {
		case afterParen:
			afterParen = false
		case first:
			sb.WriteString(" ")
			first = false
		default:
			sb.WriteString(", ")
		}

		switch typ {
		case OperandRegister:
			sb.WriteString(parser.RegisterName(int(op)))
		case OperandFPRegister:
			sb.WriteString(parser.FPRegisterName(int(op)))
		case OperandInteger16, OperandOffset16:
			sb.WriteString(fmt.Sprintf("%d", int32(SignExtend16(op))))
		case OperandBranchLabel:
			target := s.Address + 4 + SignExtend16(op)<<2
			sb.WriteString(FormatHex(target))
		case OperandJumpLabel:
			target := (s.Address+4)&0xf0000000 | op<<2
			sb.WriteString(FormatHex(target))
		default:
			sb.WriteString(fmt.Sprintf("%d", op))
		}
	}
	return sb.String()
}

func (s *Statement) String() string {
	return fmt.Sprintf("%s  0x%08x  %s", FormatHex(s.Address), s.Binary, s.Assembly())
}

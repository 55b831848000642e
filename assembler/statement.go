package assembler

import (
	"fmt"
	"strings"

	"github.com/myaltaccountsthis/mars-red/parser"
	"github.com/myaltaccountsthis/mars-red/vm"
)

// ParsedStatement is the first-pass record of one instruction line:
// its tokens, the instruction that matched them, and the address the
// second pass will emit at.
type ParsedStatement struct {
	Line        *parser.SourceLine
	Tokens      []parser.Token // operand tokens, mnemonic removed
	Instruction vm.Instruction
	Address     uint32
	SizeBytes   int
}

// foldLabelArithmetic collapses IDENTIFIER (+|-) INTEGER operand forms
// into a single token so `buf+4` matches a label slot. The addend is
// carried in IntValue and applied after symbol resolution. INTEGER
// (+|-) INTEGER forms are not folded.
func foldLabelArithmetic(tokens []parser.Token) []parser.Token {
	out := make([]parser.Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if i+2 < len(tokens) &&
			(tok.Kind == parser.TokenIdentifier) &&
			(tokens[i+1].Kind == parser.TokenPlus || tokens[i+1].Kind == parser.TokenMinus) &&
			tokens[i+2].Kind.IsInteger() {
			addend := tokens[i+2].IntValue
			if tokens[i+1].Kind == parser.TokenMinus {
				addend = -addend
			}
			folded := tok
			folded.IntValue = addend
			out = append(out, folded)
			i += 2
			continue
		}
		out = append(out, tok)
	}
	return out
}

// matchInstruction finds the best instruction variant for the operand
// tokens. The cost of a candidate is the sum of per-operand match
// costs: exact kind matches cost nothing, widenings are penalized, and
// any impossible pair disqualifies the candidate. Ties keep the
// earliest declaration.
func matchInstruction(candidates []vm.Instruction, operands []parser.Token) (vm.Instruction, error) {
	var best vm.Instruction
	bestCost := -1

	for _, cand := range candidates {
		types := cand.OperandTypes()
		if len(types) != len(operands) {
			continue
		}
		cost := 0
		ok := true
		for i, typ := range types {
			c := vm.MatchCost(operands[i], typ)
			if c < 0 {
				ok = false
				break
			}
			cost += c
		}
		if !ok {
			continue
		}
		if bestCost < 0 || cost < bestCost {
			best = cand
			bestCost = cost
		}
	}

	if best == nil {
		var examples []string
		for _, cand := range candidates {
			examples = append(examples, cand.ExampleText())
		}
		return nil, fmt.Errorf("operands do not match any form of this instruction (expected e.g. %s)",
			strings.Join(examples, " or "))
	}
	return best, nil
}

// symbolLookup resolves a name through the local-then-global order
type symbolLookup func(name string) (uint32, bool)

// resolveOperands converts operand tokens to their 32-bit values:
// register numbers, immediate bit patterns, label addresses (with any
// folded addend applied)
func resolveOperands(types []vm.OperandType, tokens []parser.Token, lookup symbolLookup) ([]vm.ResolvedOperand, error) {
	resolved := make([]vm.ResolvedOperand, 0, len(types))
	for i, typ := range types {
		if !typ.ValueBearing() {
			continue
		}
		tok := tokens[i]
		op := vm.ResolvedOperand{Type: typ}
		switch {
		case tok.IsRegister() || tok.Kind == parser.TokenFPRegisterName:
			op.Value = uint32(tok.IntValue)
		case tok.Kind.IsInteger():
			op.Value = uint32(int32(tok.IntValue))
		case tok.Kind == parser.TokenIdentifier:
			addr, ok := lookup(tok.Literal)
			if !ok {
				return nil, fmt.Errorf("undefined label %q", tok.Literal)
			}
			op.Value = addr + uint32(int32(tok.IntValue)) // folded addend
		default:
			return nil, fmt.Errorf("cannot resolve operand %q", tok.Literal)
		}
		resolved = append(resolved, op)
	}
	return resolved, nil
}

// fieldValues converts resolved operand values to encoding field
// values for a basic instruction at the given address: immediates are
// masked to their field width, branch targets become displacements,
// jump targets become 26-bit region fields.
func fieldValues(resolved []vm.ResolvedOperand, address uint32) ([]uint32, error) {
	fields := make([]uint32, 0, len(resolved))
	for _, op := range resolved {
		switch op.Type {
		case vm.OperandBranchLabel:
			diff := int32(op.Value) - int32(address+4)
			if diff%4 != 0 {
				return nil, fmt.Errorf("branch target 0x%08x is not word aligned", op.Value)
			}
			disp := diff / 4
			if disp < -32768 || disp > 32767 {
				return nil, fmt.Errorf("branch target 0x%08x out of range from 0x%08x", op.Value, address)
			}
			fields = append(fields, uint32(disp)&0xffff)
		case vm.OperandJumpLabel:
			if op.Value&0xf0000000 != (address+4)&0xf0000000 {
				return nil, fmt.Errorf("jump target 0x%08x outside the current 256MB region", op.Value)
			}
			if op.Value%4 != 0 {
				return nil, fmt.Errorf("jump target 0x%08x is not word aligned", op.Value)
			}
			fields = append(fields, op.Value>>2&0x03ffffff)
		case vm.OperandInteger16, vm.OperandInteger16U, vm.OperandOffset16:
			fields = append(fields, op.Value&0xffff)
		default:
			fields = append(fields, op.Value)
		}
	}
	return fields, nil
}

package vm

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/myaltaccountsthis/mars-red/parser"
)

// OperandType describes one operand slot of an instruction
// declaration. Operand matching scores candidate token lists against
// these, preferring exact-width matches over widened ones.
type OperandType int

const (
	OperandRegister OperandType = iota
	OperandFPRegister
	OperandInteger3 // FP condition flag 0..7
	OperandInteger5
	OperandInteger16  // signed immediate
	OperandInteger16U // unsigned immediate
	OperandInteger32
	OperandOffset16     // signed memory offset
	OperandBranchLabel  // label or address; encodes as PC-relative displacement
	OperandJumpLabel    // label or address; encodes as a 26-bit region target
	OperandLabel        // label or 32-bit value; used by pseudo templates
	OperandLeftParen
	OperandRightParen
)

func (t OperandType) String() string {
	switch t {
	case OperandRegister:
		return "register"
	case OperandFPRegister:
		return "FP register"
	case OperandInteger3:
		return "condition flag"
	case OperandInteger5:
		return "5-bit integer"
	case OperandInteger16:
		return "16-bit integer"
	case OperandInteger16U:
		return "unsigned 16-bit integer"
	case OperandInteger32:
		return "32-bit integer"
	case OperandOffset16:
		return "memory offset"
	case OperandBranchLabel:
		return "branch target"
	case OperandJumpLabel:
		return "jump target"
	case OperandLabel:
		return "label or address"
	case OperandLeftParen:
		return "("
	case OperandRightParen:
		return ")"
	}
	return fmt.Sprintf("OperandType(%d)", t)
}

// ValueBearing reports whether the operand slot carries a value (as
// opposed to the parentheses of the offset addressing form)
func (t OperandType) ValueBearing() bool {
	return t != OperandLeftParen && t != OperandRightParen
}

// MatchCost scores a token against an operand type. Lower is better:
// 0 is an exact kind match, positive values are permitted widenings,
// -1 means the token cannot fill the slot.
func MatchCost(tok parser.Token, typ OperandType) int {
	switch typ {
	case OperandRegister:
		if tok.IsRegister() {
			return 0
		}
	case OperandFPRegister:
		if tok.Kind == parser.TokenFPRegisterName {
			return 0
		}
	case OperandInteger3:
		if tok.Kind == parser.TokenInteger5 && tok.IntValue <= 7 {
			return 0
		}
	case OperandInteger5:
		if tok.Kind == parser.TokenInteger5 {
			return 0
		}
	case OperandInteger16:
		switch tok.Kind {
		case parser.TokenInteger5:
			return 1
		case parser.TokenInteger16:
			return 0
		case parser.TokenInteger16U:
			// fits only if it also fits signed; otherwise reject
			if tok.IntValue <= 32767 {
				return 1
			}
		}
	case OperandInteger16U:
		switch tok.Kind {
		case parser.TokenInteger5:
			return 1
		case parser.TokenInteger16U:
			return 0
		case parser.TokenInteger16:
			if tok.IntValue >= 0 {
				return 1
			}
		}
	case OperandInteger32:
		if tok.Kind.IsInteger() {
			if tok.Kind == parser.TokenInteger32 {
				return 0
			}
			return 2
		}
	case OperandOffset16:
		switch tok.Kind {
		case parser.TokenInteger5, parser.TokenInteger16:
			return 0
		case parser.TokenInteger16U:
			if tok.IntValue <= 32767 {
				return 1
			}
		}
	case OperandBranchLabel, OperandJumpLabel:
		if tok.Kind == parser.TokenIdentifier {
			return 0
		}
		if tok.Kind.IsInteger() {
			return 1
		}
	case OperandLabel:
		if tok.Kind == parser.TokenIdentifier {
			return 0
		}
		if tok.Kind.IsInteger() {
			return 1
		}
	case OperandLeftParen:
		if tok.Kind == parser.TokenLeftParen {
			return 0
		}
	case OperandRightParen:
		if tok.Kind == parser.TokenRightParen {
			return 0
		}
	}
	return -1
}

// Instruction is either a basic instruction (one machine word) or an
// extended one (expanded by template into basic instructions)
type Instruction interface {
	Name() string
	OperandTypes() []OperandType
	ExampleText() string
	// SizeBytes is the emitted size; compact selects the 16-bit
	// address-space template for extended instructions
	SizeBytes(compact bool) int
}

// fieldSpec is one operand field inside an encoding pattern
type fieldSpec struct {
	operand int // index into the value-bearing operand list
	shift   int
	width   int
}

// BasicInstruction is one machine instruction: its syntax, its
// encoding pattern and its semantics closure. The pattern is 32
// characters of 0, 1 and the letters f, s, t; each letter run is an
// operand field (f = first value-bearing operand, s = second, t =
// third), and the fixed bits form the mask/match pair used both for
// encoding and for binary decode.
type BasicInstruction struct {
	Mnemonic string
	Example  string
	Operands []OperandType

	Mask  uint32
	Match uint32

	fields []fieldSpec

	Execute func(m *Machine, st *Statement) error
}

// Name returns the mnemonic
func (b *BasicInstruction) Name() string { return b.Mnemonic }

// OperandTypes returns the declared operand slots
func (b *BasicInstruction) OperandTypes() []OperandType { return b.Operands }

// ExampleText returns the example syntax used in diagnostics
func (b *BasicInstruction) ExampleText() string { return b.Example }

// SizeBytes is always one word for a basic instruction
func (b *BasicInstruction) SizeBytes(bool) int { return 4 }

// Encode produces the machine word for resolved operand field values
func (b *BasicInstruction) Encode(operands []uint32) uint32 {
	word := b.Match
	for _, f := range b.fields {
		if f.operand < len(operands) {
			word |= (operands[f.operand] & ((1 << uint(f.width)) - 1)) << uint(f.shift)
		}
	}
	return word
}

// ExtractOperands recovers operand field values from a machine word
func (b *BasicInstruction) ExtractOperands(word uint32) []uint32 {
	count := 0
	for _, typ := range b.Operands {
		if typ.ValueBearing() {
			count++
		}
	}
	operands := make([]uint32, count)
	for _, f := range b.fields {
		operands[f.operand] = (word >> uint(f.shift)) & ((1 << uint(f.width)) - 1)
	}
	return operands
}

// parsePattern compiles an encoding pattern into mask, match and
// field specs. Panics on malformed patterns: those are table bugs,
// not user errors.
func parsePattern(mnemonic, pattern string) (mask, match uint32, fields []fieldSpec) {
	bits := strings.ReplaceAll(pattern, " ", "")
	if len(bits) != 32 {
		panic(fmt.Sprintf("instruction %s: encoding pattern has %d bits", mnemonic, len(bits)))
	}

	letterOperand := map[byte]int{'f': 0, 's': 1, 't': 2}
	runStart := -1
	var runLetter byte

	endRun := func(end int) {
		if runStart < 0 {
			return
		}
		fields = append(fields, fieldSpec{
			operand: letterOperand[runLetter],
			shift:   32 - end,
			width:   end - runStart,
		})
		runStart = -1
	}

	for i := 0; i < 32; i++ {
		c := bits[i]
		switch c {
		case '0', '1':
			endRun(i)
			mask |= 1 << uint(31-i)
			if c == '1' {
				match |= 1 << uint(31-i)
			}
		case 'f', 's', 't':
			if runStart >= 0 && runLetter != c {
				endRun(i)
			}
			if runStart < 0 {
				runStart = i
				runLetter = c
			}
		default:
			panic(fmt.Sprintf("instruction %s: bad pattern character %q", mnemonic, c))
		}
	}
	endRun(32)
	return mask, match, fields
}

// ExtendedInstruction is a pseudo-instruction: a list of
// basic-instruction-shaped template lines expanded in the second pass.
// CompactTemplate, when present, is used instead under a 16-bit memory
// configuration.
type ExtendedInstruction struct {
	Mnemonic        string
	Example         string
	Operands        []OperandType
	Template        []string
	CompactTemplate []string
}

// Name returns the mnemonic
func (e *ExtendedInstruction) Name() string { return e.Mnemonic }

// OperandTypes returns the declared operand slots
func (e *ExtendedInstruction) OperandTypes() []OperandType { return e.Operands }

// ExampleText returns the example syntax used in diagnostics
func (e *ExtendedInstruction) ExampleText() string { return e.Example }

// SizeBytes is the expansion length times the word size
func (e *ExtendedInstruction) SizeBytes(compact bool) int {
	if compact && len(e.CompactTemplate) > 0 {
		return 4 * len(e.CompactTemplate)
	}
	return 4 * len(e.Template)
}

// TemplateLines returns the template for the active address space
func (e *ExtendedInstruction) TemplateLines(compact bool) []string {
	if compact && len(e.CompactTemplate) > 0 {
		return e.CompactTemplate
	}
	return e.Template
}

// InstructionSet is the declarative table of all instructions, indexed
// by mnemonic for assembly and by mask/match for binary decode.
type InstructionSet struct {
	byMnemonic map[string][]Instruction
	basics     []*BasicInstruction
}

// NewInstructionSet builds the full MIPS32 table
func NewInstructionSet() *InstructionSet {
	s := &InstructionSet{byMnemonic: make(map[string][]Instruction)}
	s.addALU()
	s.addBranch()
	s.addMemory()
	s.addFloat()
	s.addPseudo()
	return s
}

// basic declares one basic instruction
func (s *InstructionSet) basic(mnemonic, example string, operands []OperandType, pattern string,
	execute func(m *Machine, st *Statement) error) {
	mask, match, fields := parsePattern(mnemonic, pattern)
	for _, f := range fields {
		count := 0
		for _, typ := range operands {
			if typ.ValueBearing() {
				count++
			}
		}
		if f.operand >= count {
			panic(fmt.Sprintf("instruction %s: pattern field beyond operand list", mnemonic))
		}
	}
	b := &BasicInstruction{
		Mnemonic: mnemonic,
		Example:  example,
		Operands: operands,
		Mask:     mask,
		Match:    match,
		fields:   fields,
		Execute:  execute,
	}
	s.byMnemonic[mnemonic] = append(s.byMnemonic[mnemonic], b)
	s.basics = append(s.basics, b)
}

// extended declares one pseudo-instruction
func (s *InstructionSet) extended(mnemonic, example string, operands []OperandType, template []string) {
	s.extendedCompact(mnemonic, example, operands, template, nil)
}

// extendedCompact declares a pseudo-instruction with a separate
// template for 16-bit address spaces
func (s *InstructionSet) extendedCompact(mnemonic, example string, operands []OperandType, template, compact []string) {
	e := &ExtendedInstruction{
		Mnemonic:        mnemonic,
		Example:         example,
		Operands:        operands,
		Template:        template,
		CompactTemplate: compact,
	}
	s.byMnemonic[mnemonic] = append(s.byMnemonic[mnemonic], e)
}

// Get returns every declared instruction sharing a mnemonic
func (s *InstructionSet) Get(mnemonic string) []Instruction {
	return s.byMnemonic[mnemonic]
}

// IsMnemonic reports whether name is a declared mnemonic; the
// tokenizer classifies operators through this
func (s *InstructionSet) IsMnemonic(name string) bool {
	_, ok := s.byMnemonic[name]
	return ok
}

// Mnemonics returns all declared mnemonics (help listings)
func (s *InstructionSet) Mnemonics() []string {
	names := make([]string, 0, len(s.byMnemonic))
	for name := range s.byMnemonic {
		names = append(names, name)
	}
	return names
}

// MatchBinary finds the basic instruction whose mask/match pair covers
// a machine word. The most specific match wins, so the all-zero nop is
// not mistaken for sll $zero, $zero, 0.
func (s *InstructionSet) MatchBinary(word uint32) *BasicInstruction {
	var best *BasicInstruction
	bestBits := -1
	for _, b := range s.basics {
		if word&b.Mask == b.Match {
			if n := bits.OnesCount32(b.Mask); n > bestBits {
				best = b
				bestBits = n
			}
		}
	}
	return best
}

// Decode rebuilds a statement from a raw machine word (self-modifying
// code, binary dumps)
func (s *InstructionSet) Decode(address, word uint32) *Statement {
	b := s.MatchBinary(word)
	if b == nil {
		return nil
	}
	return &Statement{
		Source:      "",
		Address:     address,
		Binary:      word,
		Instruction: b,
		Operands:    b.ExtractOperands(word),
	}
}

package assembler

import (
	"fmt"
	"math"

	"github.com/myaltaccountsthis/mars-red/parser"
	"github.com/myaltaccountsthis/mars-red/vm"
)

// processDirective gives first-pass effect to one directive line.
// tokens[0] is the directive token.
func (a *Assembler) processDirective(line *parser.SourceLine, tokens []parser.Token) {
	dir, ok := parser.DirectiveFromName(tokens[0].Literal)
	if !ok {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorInvalidDirective,
			fmt.Sprintf("unrecognized directive %q", tokens[0].Literal), line.Text))
		return
	}
	operands := tokens[1:]

	switch dir {
	case parser.DirData:
		a.selectSegment("data", true, operands)
	case parser.DirKData:
		a.selectSegment("kdata", true, operands)
	case parser.DirText:
		a.selectSegment("text", false, operands)
	case parser.DirKText:
		a.selectSegment("ktext", false, operands)

	case parser.DirWord:
		a.emitValues(line, tokens[0], operands, 4)
	case parser.DirHalf:
		a.emitValues(line, tokens[0], operands, 2)
	case parser.DirByte:
		a.emitValues(line, tokens[0], operands, 1)

	case parser.DirFloat:
		a.emitFloats(line, tokens[0], operands, false)
	case parser.DirDouble:
		a.emitFloats(line, tokens[0], operands, true)

	case parser.DirAscii:
		a.emitStrings(line, tokens[0], operands, false)
	case parser.DirAsciiz:
		a.emitStrings(line, tokens[0], operands, true)

	case parser.DirAlign:
		a.processAlign(line, tokens[0], operands)

	case parser.DirSpace:
		a.processSpace(line, tokens[0], operands)

	case parser.DirGlobl:
		for _, tok := range operands {
			if tok.Kind != parser.TokenIdentifier && tok.Kind != parser.TokenOperator {
				a.Errors.AddError(parser.NewErrorWithContext(tok.Pos, parser.ErrorInvalidDirective,
					fmt.Sprintf(".globl operand %q is not a label", tok.Literal), line.Text))
				continue
			}
			a.globlMarks = append(a.globlMarks, tok)
		}

	case parser.DirExtern:
		a.processExtern(line, tokens[0], operands)

	case parser.DirMacro:
		a.beginMacro(line, tokens[0], operands)

	case parser.DirEndMacro:
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorMacroExpansion,
			".end_macro without a matching .macro", line.Text))

	case parser.DirInclude, parser.DirEqv:
		// Both are consumed at the tokenizer stage; an .include that
		// survives to here already produced a file error there

	case parser.DirSet:
		a.Errors.AddWarning(&parser.Warning{Pos: tokens[0].Pos, Message: ".set is recognized but ignored"})
	}
}

// selectSegment activates a text or data segment, optionally moving
// its cursor to an explicit address
func (a *Assembler) selectSegment(name string, isData bool, operands []parser.Token) {
	seg := a.segments[name]
	if isData {
		a.activeData = seg
	} else {
		a.activeText = seg
	}
	a.inData = isData

	if len(operands) > 0 {
		if !operands[0].Kind.IsInteger() {
			a.Errors.AddError(parser.NewError(operands[0].Pos, parser.ErrorInvalidDirective,
				fmt.Sprintf("%q is not a valid segment address", operands[0].Literal)))
			return
		}
		if err := seg.SetCursor(uint32(int32(operands[0].IntValue))); err != nil {
			a.Errors.AddError(parser.NewError(operands[0].Pos, parser.ErrorAddressRange, err.Error()))
		}
	}
}

// requireData checks that emission directives run with a data segment
// active
func (a *Assembler) requireData(line *parser.SourceLine, tok parser.Token) bool {
	if !a.inData {
		a.Errors.AddError(parser.NewErrorWithContext(tok.Pos, parser.ErrorInvalidDirective,
			fmt.Sprintf("%s belongs in a data segment", tok.Literal), line.Text))
		return false
	}
	return true
}

// alignCursor aligns the active data cursor and drags along any label
// just defined at the pre-alignment address
func (a *Assembler) alignCursor(alignment uint32) {
	seg := a.activeSegment()
	before := seg.Cursor
	after := vm.AlignToNext(before, alignment)
	if after == before {
		return
	}
	seg.Cursor = after
	a.local.Realign(before, after)
}

// write emits size bytes at the active data cursor and advances it
func (a *Assembler) write(pos parser.Position, value uint32, size int) {
	seg := a.activeSegment()
	var err error
	switch size {
	case 1:
		_, err = a.Machine.Memory.StoreByte(seg.Cursor, value&0xff, false)
	case 2:
		_, err = a.Machine.Memory.StoreHalfword(seg.Cursor, value&0xffff, false)
	default:
		_, err = a.Machine.Memory.StoreWord(seg.Cursor, value, false)
	}
	if err != nil {
		a.Errors.AddError(parser.NewError(pos, parser.ErrorAddressRange, err.Error()))
	}
	if err := seg.Advance(uint32(size)); err != nil {
		a.Errors.AddError(parser.NewError(pos, parser.ErrorAddressRange, err.Error()))
	}
}

// valueInRange warns (and truncates) when a numeric operand does not
// fit the directive's width
func (a *Assembler) valueInRange(tok parser.Token, size int) {
	v := tok.IntValue
	var fits bool
	switch size {
	case 1:
		fits = v >= -128 && v <= 255
	case 2:
		fits = v >= -32768 && v <= 65535
	default:
		fits = true
	}
	if !fits {
		a.Errors.AddWarning(&parser.Warning{Pos: tok.Pos,
			Message: fmt.Sprintf("value %d truncated to %d byte(s)", v, size)})
	}
}

// emitValues handles .word/.half/.byte: numeric operands, label
// operands (emitting zero and parking a patch), and the v : n
// replication form
func (a *Assembler) emitValues(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token, size int) {
	if !a.requireData(line, dirTok) {
		return
	}
	if size > 1 && a.autoAlign {
		a.alignCursor(uint32(size))
	}

	for i := 0; i < len(operands); i++ {
		tok := operands[i]

		// Replication: value : count
		count := 1
		if i+2 < len(operands) && operands[i+1].Kind == parser.TokenColon {
			countTok := operands[i+2]
			if !countTok.Kind.IsInteger() || countTok.IntValue < 0 {
				a.Errors.AddError(parser.NewErrorWithContext(countTok.Pos, parser.ErrorInvalidDirective,
					fmt.Sprintf("bad replication count %q", countTok.Literal), line.Text))
				return
			}
			count = int(countTok.IntValue)
			i += 2
		}

		switch {
		case tok.Kind.IsInteger():
			a.valueInRange(tok, size)
			for n := 0; n < count; n++ {
				a.write(tok.Pos, uint32(int32(tok.IntValue)), size)
			}

		case tok.Kind == parser.TokenIdentifier:
			// Labels emit zero now and are patched when resolved
			for n := 0; n < count; n++ {
				a.localRefs.Add(parser.ForwardReference{
					PatchAddress: a.activeSegment().Cursor,
					Length:       size,
					Token:        tok,
				})
				a.write(tok.Pos, 0, size)
			}

		default:
			a.Errors.AddError(parser.NewErrorWithContext(tok.Pos, parser.ErrorInvalidDirective,
				fmt.Sprintf("%q is not a valid data value", tok.Literal), line.Text))
		}
	}
}

// emitFloats handles .float and .double
func (a *Assembler) emitFloats(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token, double bool) {
	if !a.requireData(line, dirTok) {
		return
	}
	size := uint32(4)
	if double {
		size = 8
	}
	if a.autoAlign {
		a.alignCursor(size)
	}

	for _, tok := range operands {
		var v float64
		switch {
		case tok.Kind == parser.TokenRealNumber:
			v = tok.FloatValue
		case tok.Kind.IsInteger():
			v = float64(tok.IntValue)
		default:
			a.Errors.AddError(parser.NewErrorWithContext(tok.Pos, parser.ErrorInvalidDirective,
				fmt.Sprintf("%q is not a valid floating point value", tok.Literal), line.Text))
			continue
		}

		if double {
			bits := math.Float64bits(v)
			high, low := vm.LongToTwoWords(bits)
			a.write(tok.Pos, low, 4)
			a.write(tok.Pos, high, 4)
		} else {
			a.write(tok.Pos, math.Float32bits(float32(v)), 4)
		}
	}
}

// emitStrings handles .ascii and .asciiz
func (a *Assembler) emitStrings(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token, nullTerminate bool) {
	if !a.requireData(line, dirTok) {
		return
	}
	for _, tok := range operands {
		if tok.Kind != parser.TokenString {
			a.Errors.AddError(parser.NewErrorWithContext(tok.Pos, parser.ErrorInvalidDirective,
				fmt.Sprintf("%q is not a string literal", tok.Literal), line.Text))
			continue
		}
		for i := 0; i < len(tok.Literal); i++ {
			a.write(tok.Pos, uint32(tok.Literal[i]), 1)
		}
		if nullTerminate {
			a.write(tok.Pos, 0, 1)
		}
	}
}

// processAlign handles .align k: align the cursor to 2^k, or disable
// automatic alignment when k is zero
func (a *Assembler) processAlign(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token) {
	if len(operands) != 1 || !operands[0].Kind.IsInteger() {
		a.Errors.AddError(parser.NewErrorWithContext(dirTok.Pos, parser.ErrorInvalidDirective,
			".align requires a single numeric operand", line.Text))
		return
	}
	k := operands[0].IntValue
	if k < 0 || k > 20 {
		a.Errors.AddError(parser.NewError(operands[0].Pos, parser.ErrorInvalidDirective,
			fmt.Sprintf(".align exponent %d out of range", k)))
		return
	}
	if k == 0 {
		a.autoAlign = false
		return
	}
	a.autoAlign = true
	a.alignCursor(1 << uint(k))
}

// processSpace handles .space n: the cursor advances without writing
func (a *Assembler) processSpace(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token) {
	if !a.requireData(line, dirTok) {
		return
	}
	if len(operands) != 1 || !operands[0].Kind.IsInteger() || operands[0].IntValue < 0 {
		a.Errors.AddError(parser.NewErrorWithContext(dirTok.Pos, parser.ErrorInvalidDirective,
			".space requires a non-negative byte count", line.Text))
		return
	}
	if err := a.activeSegment().Advance(uint32(operands[0].IntValue)); err != nil {
		a.Errors.AddError(parser.NewError(operands[0].Pos, parser.ErrorAddressRange, err.Error()))
	}
}

// processExtern handles .extern name size: allocate in the extern
// segment and define the name globally, unless it already exists
func (a *Assembler) processExtern(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token) {
	if len(operands) != 2 || operands[0].Kind != parser.TokenIdentifier ||
		!operands[1].Kind.IsInteger() || operands[1].IntValue < 0 {
		a.Errors.AddError(parser.NewErrorWithContext(dirTok.Pos, parser.ErrorInvalidDirective,
			".extern requires a name and a byte count", line.Text))
		return
	}
	name := operands[0]
	if _, exists := a.global.Lookup(name.Literal); exists {
		return
	}
	seg := a.segments["extern"]
	if err := a.global.Define(name.Literal, seg.Cursor, true, name.Pos); err != nil {
		a.Errors.AddError(parser.NewError(name.Pos, parser.ErrorDuplicateLabel, err.Error()))
		return
	}
	if err := seg.Advance(uint32(operands[1].IntValue)); err != nil {
		a.Errors.AddError(parser.NewError(operands[1].Pos, parser.ErrorAddressRange, err.Error()))
	}
}

// beginMacro handles .macro NAME [%p1 %p2 ...]: enters definition mode
func (a *Assembler) beginMacro(line *parser.SourceLine, dirTok parser.Token, operands []parser.Token) {
	if len(operands) == 0 ||
		(operands[0].Kind != parser.TokenIdentifier && operands[0].Kind != parser.TokenOperator) {
		a.Errors.AddError(parser.NewErrorWithContext(dirTok.Pos, parser.ErrorMacroExpansion,
			".macro requires a name", line.Text))
		return
	}

	params := operands[1:]
	// SPIM-style parenthesized parameter lists are accepted
	if len(params) >= 2 &&
		params[0].Kind == parser.TokenLeftParen &&
		params[len(params)-1].Kind == parser.TokenRightParen {
		params = params[1 : len(params)-1]
	}

	macro := &parser.Macro{
		Name: operands[0].Literal,
		Pos:  operands[0].Pos,
	}
	for _, p := range params {
		if p.Kind != parser.TokenMacroParameter {
			a.Errors.AddError(parser.NewErrorWithContext(p.Pos, parser.ErrorMacroExpansion,
				fmt.Sprintf("macro parameter %q must begin with %%", p.Literal), line.Text))
			return
		}
		macro.Parameters = append(macro.Parameters, p.Literal)
	}
	a.definingMacro = macro
}

// Package assembler implements the two-pass MIPS assembler: directive
// processing and statement collection in the first pass, operand
// resolution, pseudo-instruction expansion and machine-code emission
// in the second.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/myaltaccountsthis/mars-red/parser"
	"github.com/myaltaccountsthis/mars-red/vm"
)

// Assembler drives both passes over a set of source files and emits
// the binary image into the machine's memory. Every run starts from
// fresh assembler state, the global symbol table included; callers
// wanting isolation of machine state pass their own machine.
type Assembler struct {
	Machine *vm.Machine
	Errors  *parser.ErrorList

	// ExtendedMode permits pseudo-instructions; with it off they are
	// reported as errors
	ExtendedMode bool

	tokenizer *parser.Tokenizer

	global      *parser.SymbolTable
	accumulated *parser.ForwardReferencePool

	// one local table per source file, kept for the second pass
	localTables map[string]*parser.SymbolTable

	// per-file state, reset by beginFile
	local      *parser.SymbolTable
	localRefs  *parser.ForwardReferencePool
	globlMarks []parser.Token

	macros   *parser.MacroTable
	expander *parser.MacroExpander

	// macro-definition mode
	definingMacro *parser.Macro

	segments   map[string]*Segment
	activeText *Segment
	activeData *Segment
	inData     bool
	autoAlign  bool

	byAddress map[uint32]*ParsedStatement
	order     []uint32
}

// NewAssembler creates an assembler over a machine. Extended mode
// defaults to on, matching the reference behavior.
func NewAssembler(machine *vm.Machine) *Assembler {
	a := &Assembler{
		Machine:      machine,
		ExtendedMode: true,
	}
	return a
}

// reset prepares for a new assembly run. Register and memory state
// persists across runs only when the back-step log is explicitly
// disabled.
func (a *Assembler) reset() {
	if a.Machine.Backstep.Enabled {
		a.Machine.Reset()
	}
	a.Errors = parser.NewErrorList()
	a.tokenizer = parser.NewTokenizer(a.Errors)
	a.tokenizer.IsMnemonic = a.Machine.InstructionSet.IsMnemonic
	a.global = parser.NewSymbolTable("(global)")
	a.accumulated = &parser.ForwardReferencePool{}
	a.localTables = make(map[string]*parser.SymbolTable)
	a.macros = parser.NewMacroTable()
	a.expander = parser.NewMacroExpander(a.macros)
	a.segments = newSegments(a.Machine.Memory.Config)
	a.activeText = a.segments["text"]
	a.activeData = a.segments["data"]
	a.inData = false
	a.autoAlign = true
	a.byAddress = make(map[uint32]*ParsedStatement)
	a.order = nil
	a.Machine.Memory.Decoder = a.Machine.InstructionSet.Decode
}

// GlobalSymbols returns the global symbol table of the last run
func (a *Assembler) GlobalSymbols() *parser.SymbolTable {
	return a.global
}

// Assemble runs both passes over the named source files. The returned
// error list is also retained on the assembler; assembly failed when
// it has errors.
func (a *Assembler) Assemble(warningsAreErrors bool, filenames ...string) *parser.ErrorList {
	a.reset()
	a.Errors.WarningsAreErrors = warningsAreErrors

	for _, filename := range filenames {
		a.beginFile(filename)
		lines, err := a.tokenizer.TokenizeFile(filename)
		if err != nil {
			a.Errors.AddError(parser.NewError(
				parser.Position{Filename: filename, Line: 1, Column: 1},
				parser.ErrorFileIO, err.Error()))
			continue
		}
		a.firstPass(lines)
		a.endFile(filename)
		if a.Errors.AtLimit() {
			break
		}
	}

	a.finishFirstPass()
	if !a.Errors.HasErrors() {
		a.secondPass()
	}
	return a.Errors
}

// AssembleText assembles in-memory source attributed to filename
// (tests, template-driven callers)
func (a *Assembler) AssembleText(source, filename string) *parser.ErrorList {
	a.reset()
	a.beginFile(filename)
	lines := a.tokenizer.TokenizeText(source, filename)
	a.firstPass(lines)
	a.endFile(filename)
	a.finishFirstPass()
	if !a.Errors.HasErrors() {
		a.secondPass()
	}
	return a.Errors
}

func (a *Assembler) beginFile(filename string) {
	a.tokenizer.Reset()
	a.local = parser.NewSymbolTable(filename)
	a.localTables[filename] = a.local
	a.localRefs = &parser.ForwardReferencePool{}
	a.globlMarks = nil
	a.definingMacro = nil
	a.expander.Reset()
}

// firstPass walks the token lines of one file
func (a *Assembler) firstPass(lines []*parser.SourceLine) {
	for _, line := range lines {
		a.processLine(line)
		if a.Errors.AtLimit() {
			return
		}
	}
}

// lookup resolves a symbol through the current file's local table,
// then the global table
func (a *Assembler) lookup(name string) (uint32, bool) {
	if a.local != nil {
		if sym, ok := a.local.Lookup(name); ok {
			return sym.Address, true
		}
	}
	if sym, ok := a.global.Lookup(name); ok {
		return sym.Address, true
	}
	return 0, false
}

// lookupIn resolves a symbol for a statement belonging to filename:
// that file's local table first, then the global table
func (a *Assembler) lookupIn(filename string) symbolLookup {
	local := a.localTables[filename]
	return func(name string) (uint32, bool) {
		if local != nil {
			if sym, ok := local.Lookup(name); ok {
				return sym.Address, true
			}
		}
		if sym, ok := a.global.Lookup(name); ok {
			return sym.Address, true
		}
		return 0, false
	}
}

// SymbolAddress finds a label anywhere: the global table first, then
// every file's local table. Used by the CLI entry-point search and the
// debugger.
func (a *Assembler) SymbolAddress(name string) (uint32, bool) {
	if sym, ok := a.global.Lookup(name); ok {
		return sym.Address, true
	}
	for _, table := range a.localTables {
		if sym, ok := table.Lookup(name); ok {
			return sym.Address, true
		}
	}
	return 0, false
}

// Symbols returns every symbol of the last run, locals and globals,
// sorted by address (debugger listings)
func (a *Assembler) Symbols() []*parser.Symbol {
	merged := parser.NewSymbolTable("(all)")
	for _, table := range a.localTables {
		for _, sym := range table.All() {
			_ = merged.Define(sym.Name, sym.Address, sym.IsData, sym.Pos)
		}
	}
	for _, sym := range a.global.All() {
		_ = merged.Define(sym.Name, sym.Address, sym.IsData, sym.Pos)
	}
	return merged.All()
}

// activeSegment is where the next emission goes
func (a *Assembler) activeSegment() *Segment {
	if a.inData {
		return a.activeData
	}
	return a.activeText
}

// stripped returns the line's tokens with comment and error tokens
// removed; token-level errors were already recorded by the lexer
func stripped(tokens []parser.Token) []parser.Token {
	out := make([]parser.Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == parser.TokenComment || tok.Kind == parser.TokenError {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// processLine handles one source line of the first pass: macro bodies,
// labels, directives, instruction statements and macro calls
func (a *Assembler) processLine(line *parser.SourceLine) {
	tokens := stripped(line.Tokens)

	// Macro definition mode swallows body lines verbatim
	if a.definingMacro != nil {
		if len(tokens) > 0 && tokens[0].Kind == parser.TokenDirective && tokens[0].Literal == ".end_macro" {
			if err := a.macros.Define(a.definingMacro); err != nil {
				a.Errors.AddError(parser.NewError(a.definingMacro.Pos, parser.ErrorMacroExpansion, err.Error()))
			}
			a.definingMacro = nil
			return
		}
		a.definingMacro.Body = append(a.definingMacro.Body, parser.MacroLine{
			Text: line.Processed,
			Pos:  line.Pos,
		})
		return
	}

	if len(tokens) == 0 {
		return
	}

	// Label definitions: IDENTIFIER or OPERATOR followed by a colon.
	// An instruction mnemonic used as a label reclassifies.
	for len(tokens) >= 2 &&
		(tokens[0].Kind == parser.TokenIdentifier || tokens[0].Kind == parser.TokenOperator) &&
		tokens[1].Kind == parser.TokenColon {
		seg := a.activeSegment()
		if err := a.local.Define(tokens[0].Literal, seg.Cursor, seg.IsData, tokens[0].Pos); err != nil {
			a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorDuplicateLabel,
				err.Error(), line.Text))
		}
		tokens = tokens[2:]
	}

	if len(tokens) == 0 {
		return
	}

	switch {
	case tokens[0].Kind == parser.TokenDirective:
		a.processDirective(line, tokens)

	case tokens[0].Kind == parser.TokenOperator:
		a.parseInstruction(line, tokens)

	case tokens[0].Kind == parser.TokenIdentifier && a.macros.HasName(tokens[0].Literal):
		a.expandMacro(line, tokens)

	default:
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorSyntax,
			fmt.Sprintf("%q is not an instruction, directive or macro", tokens[0].Literal), line.Text))
	}
}

// parseInstruction matches a statement line against the instruction
// set and assigns it an emit address
func (a *Assembler) parseInstruction(line *parser.SourceLine, tokens []parser.Token) {
	if a.inData {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorSyntax,
			fmt.Sprintf("instruction %q in data segment", tokens[0].Literal), line.Text))
		return
	}

	mnemonic := tokens[0].Literal
	candidates := a.Machine.InstructionSet.Get(mnemonic)
	if !a.ExtendedMode {
		basics := make([]vm.Instruction, 0, len(candidates))
		for _, cand := range candidates {
			if _, ok := cand.(*vm.BasicInstruction); ok {
				basics = append(basics, cand)
			}
		}
		if len(basics) == 0 {
			a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorInvalidInstruction,
				fmt.Sprintf("%q is a pseudo instruction and extended mode is disabled", mnemonic), line.Text))
			return
		}
		candidates = basics
	}

	operands := foldLabelArithmetic(tokens[1:])
	inst, err := matchInstruction(candidates, operands)
	if err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorInvalidOperand,
			fmt.Sprintf("%s: %v", mnemonic, err), line.Text))
		return
	}

	size := a.instructionSize(inst)
	address := a.activeText.Cursor

	if prior, exists := a.byAddress[address]; exists {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorSyntax,
			fmt.Sprintf("address 0x%08x already occupied by line %d (%s)",
				address, prior.Line.Pos.Line, strings.TrimSpace(prior.Line.Text)), line.Text))
		return
	}

	a.byAddress[address] = &ParsedStatement{
		Line:        line,
		Tokens:      operands,
		Instruction: inst,
		Address:     address,
		SizeBytes:   size,
	}
	a.order = append(a.order, address)

	if err := a.activeText.Advance(uint32(size)); err != nil {
		a.Errors.AddError(parser.NewError(tokens[0].Pos, parser.ErrorAddressRange, err.Error()))
	}
}

// instructionSize computes the emitted byte count, accounting for
// delay-slot nops that are elided when delayed branching is off
func (a *Assembler) instructionSize(inst vm.Instruction) int {
	ext, ok := inst.(*vm.ExtendedInstruction)
	if !ok {
		return 4
	}
	compact := a.Machine.Memory.UsingCompactAddressSpace()
	lines := ext.TemplateLines(compact)
	size := 0
	for _, tl := range lines {
		if vm.IsBareNop(tl) && !a.Machine.DelayedBranching {
			continue
		}
		size += 4
	}
	return size
}

// expandMacro substitutes a macro call and feeds the expansion back
// through the first pass
func (a *Assembler) expandMacro(line *parser.SourceLine, tokens []parser.Token) {
	name := tokens[0].Literal
	args := macroArguments(tokens[1:])

	if err := a.expander.Push(name, tokens[0].Pos); err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorMacroExpansion,
			err.Error(), line.Text))
		return
	}
	defer a.expander.Pop()

	expanded, err := a.expander.Expand(name, args, tokens[0].Pos)
	if err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(tokens[0].Pos, parser.ErrorMacroExpansion,
			err.Error(), line.Text))
		return
	}

	for _, ml := range expanded {
		toks := a.tokenizer.TokenizeLine(ml.Text, ml.Pos)
		a.processLine(&parser.SourceLine{
			Pos:       ml.Pos,
			Text:      ml.Text,
			Processed: ml.Text,
			Tokens:    toks,
		})
		if a.Errors.AtLimit() {
			return
		}
	}
}

// macroArguments renders call arguments back to text for textual
// substitution; SPIM-style parenthesized argument lists are accepted
// with the parentheses stripped
func macroArguments(tokens []parser.Token) []string {
	if len(tokens) >= 2 &&
		tokens[0].Kind == parser.TokenLeftParen &&
		tokens[len(tokens)-1].Kind == parser.TokenRightParen {
		tokens = tokens[1 : len(tokens)-1]
	}
	args := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == parser.TokenString {
			args = append(args, fmt.Sprintf("%q", tok.Literal))
			continue
		}
		args = append(args, tok.Literal)
	}
	return args
}

// endFile closes out one file: unterminated macros, .globl promotion,
// local forward-reference resolution
func (a *Assembler) endFile(filename string) {
	if a.definingMacro != nil {
		a.Errors.AddError(parser.NewError(a.definingMacro.Pos, parser.ErrorMacroExpansion,
			fmt.Sprintf("macro %q has no .end_macro", a.definingMacro.Name)))
		a.definingMacro = nil
	}

	// Promote .globl names. A name must be defined locally first and
	// cannot be global in two files.
	for _, mark := range a.globlMarks {
		sym, ok := a.local.Lookup(mark.Literal)
		if !ok {
			a.Errors.AddError(parser.NewError(mark.Pos, parser.ErrorUndefinedLabel,
				fmt.Sprintf(".globl name %q is not defined in %s", mark.Literal, filename)))
			continue
		}
		if prev, exists := a.global.Lookup(mark.Literal); exists {
			a.Errors.AddError(parser.NewError(mark.Pos, parser.ErrorDuplicateLabel,
				fmt.Sprintf("%q is already global (defined at %s)", mark.Literal, prev.Pos)))
			continue
		}
		if err := a.global.Define(mark.Literal, sym.Address, sym.IsData, sym.Pos); err != nil {
			a.Errors.AddError(parser.NewError(mark.Pos, parser.ErrorDuplicateLabel, err.Error()))
			continue
		}
		a.local.Remove(mark.Literal)
	}

	// Resolve this file's data forward references; unresolved entries
	// move to the accumulated pool for the global table
	errs := a.localRefs.Resolve(a.lookup, a.patch)
	a.Errors.Merge(errs)
	a.accumulated.Merge(a.localRefs)
}

// finishFirstPass resolves the accumulated cross-file references and
// reports what is left as undefined
func (a *Assembler) finishFirstPass() {
	globalOnly := func(name string) (uint32, bool) {
		if sym, ok := a.global.Lookup(name); ok {
			return sym.Address, true
		}
		return 0, false
	}
	errs := a.accumulated.Resolve(globalOnly, a.patch)
	a.Errors.Merge(errs)
	a.accumulated.ReportUndefined(a.Errors)
}

// patch writes a resolved label address into memory with the
// directive's width
func (a *Assembler) patch(address uint32, length int, value uint32) error {
	var err error
	switch length {
	case 1:
		_, err = a.Machine.Memory.StoreByte(address, value&0xff, false)
	case 2:
		_, err = a.Machine.Memory.StoreHalfword(address, value&0xffff, false)
	default:
		_, err = a.Machine.Memory.StoreWord(address, value, false)
	}
	return err
}

// secondPass resolves operands and emits machine code in address
// order. The address map is authoritative; the order list is just its
// sorted key set.
func (a *Assembler) secondPass() {
	sort.Slice(a.order, func(i, j int) bool { return a.order[i] < a.order[j] })

	for _, address := range a.order {
		ps := a.byAddress[address]
		a.emitStatement(ps)
		if a.Errors.AtLimit() {
			return
		}
	}
}

func (a *Assembler) emitStatement(ps *ParsedStatement) {
	types := ps.Instruction.OperandTypes()
	resolved, err := resolveOperands(types, ps.Tokens, a.lookupIn(ps.Line.Pos.Filename))
	if err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(ps.Line.Pos, parser.ErrorUndefinedLabel,
			err.Error(), ps.Line.Text))
		return
	}

	switch inst := ps.Instruction.(type) {
	case *vm.BasicInstruction:
		a.emitBasic(ps, inst, resolved, ps.Address)

	case *vm.ExtendedInstruction:
		a.emitExpansion(ps, inst, resolved)

	default:
		// Tagged variant with exactly two arms; anything else is a
		// table bug
		panic(fmt.Sprintf("unknown instruction category for %q", ps.Instruction.Name()))
	}
}

func (a *Assembler) emitBasic(ps *ParsedStatement, b *vm.BasicInstruction, resolved []vm.ResolvedOperand, address uint32) {
	fields, err := fieldValues(resolved, address)
	if err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(ps.Line.Pos, parser.ErrorInvalidOperand,
			err.Error(), ps.Line.Text))
		return
	}
	stmt := &vm.Statement{
		Source:      strings.TrimSpace(ps.Line.Text),
		Pos:         ps.Line.Pos,
		Address:     address,
		Instruction: b,
		Operands:    fields,
		Binary:      b.Encode(fields),
	}
	if err := a.Machine.Memory.StoreStatement(address, stmt, false); err != nil {
		a.Errors.AddError(parser.NewError(ps.Line.Pos, parser.ErrorAddressRange, err.Error()))
	}
}

// emitExpansion walks a pseudo-instruction's template, producing one
// basic statement per non-elided line at contiguous addresses
func (a *Assembler) emitExpansion(ps *ParsedStatement, ext *vm.ExtendedInstruction, resolved []vm.ResolvedOperand) {
	compact := a.Machine.Memory.UsingCompactAddressSpace()
	template := make([]string, 0, len(ext.Template))
	for _, tl := range ext.TemplateLines(compact) {
		if vm.IsBareNop(tl) && !a.Machine.DelayedBranching {
			continue
		}
		template = append(template, tl)
	}

	lines, err := vm.ExpandTemplate(template, resolved)
	if err != nil {
		a.Errors.AddError(parser.NewErrorWithContext(ps.Line.Pos, parser.ErrorInvalidInstruction,
			fmt.Sprintf("%s: %v", ext.Mnemonic, err), ps.Line.Text))
		return
	}

	address := ps.Address
	for _, text := range lines {
		tokens := a.tokenizer.TokenizeLine(text, ps.Line.Pos)
		tokens = stripped(tokens)
		if len(tokens) == 0 || tokens[0].Kind != parser.TokenOperator {
			panic(fmt.Sprintf("template line %q of %q did not produce an instruction", text, ext.Mnemonic))
		}

		var basics []vm.Instruction
		for _, cand := range a.Machine.InstructionSet.Get(tokens[0].Literal) {
			if _, ok := cand.(*vm.BasicInstruction); ok {
				basics = append(basics, cand)
			}
		}
		inst, err := matchInstruction(basics, tokens[1:])
		if err != nil {
			panic(fmt.Sprintf("template line %q of %q did not match: %v", text, ext.Mnemonic, err))
		}

		b := inst.(*vm.BasicInstruction)
		lineResolved, err := resolveOperands(b.Operands, tokens[1:], a.lookupIn(ps.Line.Pos.Filename))
		if err != nil {
			a.Errors.AddError(parser.NewErrorWithContext(ps.Line.Pos, parser.ErrorInvalidOperand,
				err.Error(), ps.Line.Text))
			return
		}
		a.emitBasic(ps, b, lineResolved, address)
		address += 4
	}
}

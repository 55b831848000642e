package parser

// Directive identifies an assembler directive recognized by the
// tokenizer. The directive processor in the assembler package gives
// each one its effect; the tokenizer only needs the names.
type Directive int

const (
	DirData Directive = iota
	DirText
	DirKData
	DirKText
	DirWord
	DirHalf
	DirByte
	DirFloat
	DirDouble
	DirAscii
	DirAsciiz
	DirAlign
	DirSpace
	DirGlobl
	DirExtern
	DirMacro
	DirEndMacro
	DirInclude
	DirEqv
	DirSet
)

var directiveNames = map[string]Directive{
	".data":      DirData,
	".text":      DirText,
	".kdata":     DirKData,
	".ktext":     DirKText,
	".word":      DirWord,
	".half":      DirHalf,
	".byte":      DirByte,
	".float":     DirFloat,
	".double":    DirDouble,
	".ascii":     DirAscii,
	".asciiz":    DirAsciiz,
	".align":     DirAlign,
	".space":     DirSpace,
	".globl":     DirGlobl,
	".extern":    DirExtern,
	".macro":     DirMacro,
	".end_macro": DirEndMacro,
	".include":   DirInclude,
	".eqv":       DirEqv,
	".set":       DirSet,
}

// IsDirective reports whether name (lowercase, with leading dot) is a
// recognized directive
func IsDirective(name string) bool {
	_, ok := directiveNames[name]
	return ok
}

// DirectiveFromName looks up a directive by its source spelling
func DirectiveFromName(name string) (Directive, bool) {
	d, ok := directiveNames[name]
	return d, ok
}

// Name returns the source spelling of the directive
func (d Directive) Name() string {
	for name, dir := range directiveNames {
		if dir == d {
			return name
		}
	}
	return ".?"
}

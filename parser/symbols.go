package parser

import (
	"fmt"
	"sort"
)

// Symbol represents a label or .extern name bound to an address
type Symbol struct {
	Name    string
	Address uint32
	IsData  bool // defined while a data segment was active
	Pos     Position
}

// SymbolTable maps names to symbols. One table exists per source file
// (the "local" table) plus a single process-wide global table; lookup
// tries local first, then global.
type SymbolTable struct {
	name    string // owning file, or "(global)"
	symbols map[string]*Symbol
}

// NewSymbolTable creates an empty symbol table for the named file
func NewSymbolTable(name string) *SymbolTable {
	return &SymbolTable{
		name:    name,
		symbols: make(map[string]*Symbol),
	}
}

// Define adds a symbol, failing if the name is already bound in this
// table
func (st *SymbolTable) Define(name string, address uint32, isData bool, pos Position) error {
	if prev, exists := st.symbols[name]; exists {
		return fmt.Errorf("label %q already defined at %s", name, prev.Pos)
	}
	st.symbols[name] = &Symbol{
		Name:    name,
		Address: address,
		IsData:  isData,
		Pos:     pos,
	}
	return nil
}

// Lookup returns the symbol bound to name, if any
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	sym, ok := st.symbols[name]
	return sym, ok
}

// Remove deletes a symbol (used when promoting a local to global)
func (st *SymbolTable) Remove(name string) {
	delete(st.symbols, name)
}

// Realign moves every symbol sitting at the pre-alignment cursor to
// the post-alignment cursor, so labels stick to the value that follows
// them rather than the padding
func (st *SymbolTable) Realign(before, after uint32) {
	for _, sym := range st.symbols {
		if sym.Address == before {
			sym.Address = after
		}
	}
}

// All returns the symbols sorted by address (ties by name) for stable
// listings
func (st *SymbolTable) All() []*Symbol {
	result := make([]*Symbol, 0, len(st.symbols))
	for _, sym := range st.symbols {
		result = append(result, sym)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Address != result[j].Address {
			return result[i].Address < result[j].Address
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of symbols in the table
func (st *SymbolTable) Len() int {
	return len(st.symbols)
}

// Clear removes all symbols
func (st *SymbolTable) Clear() {
	st.symbols = make(map[string]*Symbol)
}

// ForwardReference records a data-directive operand that named a label
// not yet defined. PatchAddress is where the label's address must be
// written once known, using Length bytes.
type ForwardReference struct {
	PatchAddress uint32
	Length       int
	Token        Token
}

// ForwardReferencePool accumulates unresolved references. Each file's
// pool is drained against its local table at end of file; leftovers
// migrate to an accumulated pool resolved against the global table
// after all files.
type ForwardReferencePool struct {
	refs []ForwardReference
}

// Add records a forward reference
func (p *ForwardReferencePool) Add(ref ForwardReference) {
	p.refs = append(p.refs, ref)
}

// TakeAll removes and returns every pending reference
func (p *ForwardReferencePool) TakeAll() []ForwardReference {
	refs := p.refs
	p.refs = nil
	return refs
}

// Merge moves all of other's references into this pool
func (p *ForwardReferencePool) Merge(other *ForwardReferencePool) {
	p.refs = append(p.refs, other.TakeAll()...)
}

// Len returns the number of pending references
func (p *ForwardReferencePool) Len() int {
	return len(p.refs)
}

// Resolve writes the address of each reference whose label the lookup
// function can supply, via the store callback (address, length, value).
// Unresolved references stay in the pool.
func (p *ForwardReferencePool) Resolve(lookup func(name string) (uint32, bool), store func(patchAddr uint32, length int, value uint32) error) *ErrorList {
	errs := NewErrorList()
	remaining := p.refs[:0]
	for _, ref := range p.refs {
		addr, ok := lookup(ref.Token.Literal)
		if !ok {
			remaining = append(remaining, ref)
			continue
		}
		if err := store(ref.PatchAddress, ref.Length, addr); err != nil {
			errs.AddError(NewError(ref.Token.Pos, ErrorAddressRange, err.Error()))
		}
	}
	p.refs = remaining
	return errs
}

// ReportUndefined emits an undefined-label error for every reference
// still pending and empties the pool
func (p *ForwardReferencePool) ReportUndefined(errs *ErrorList) {
	for _, ref := range p.refs {
		errs.AddError(NewError(ref.Token.Pos, ErrorUndefinedLabel,
			fmt.Sprintf("undefined label %q", ref.Token.Literal)))
	}
	p.refs = nil
}

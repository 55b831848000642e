package assembler

import (
	"fmt"

	"github.com/myaltaccountsthis/mars-red/vm"
)

// Segment tracks the emit cursor of one named address range. Five
// exist per assembly: user text, user data, kernel text, kernel data
// and extern. One text and one data segment are active at a time.
type Segment struct {
	Name    string
	IsData  bool
	First   uint32
	Last    uint32
	Cursor  uint32
}

// Advance moves the cursor forward, checking the segment bound
func (s *Segment) Advance(bytes uint32) error {
	next := s.Cursor + bytes
	if next < s.Cursor || next > s.Last+1 {
		return fmt.Errorf("segment %s overflow at 0x%08x", s.Name, s.Cursor)
	}
	s.Cursor = next
	return nil
}

// SetCursor moves the cursor to an explicit address (.text addr forms)
func (s *Segment) SetCursor(address uint32) error {
	if address < s.First || address > s.Last {
		return fmt.Errorf("address 0x%08x outside segment %s", address, s.Name)
	}
	s.Cursor = address
	return nil
}

// newSegments builds the five segments from the machine's memory
// configuration
func newSegments(cfg *vm.MemoryConfiguration) map[string]*Segment {
	return map[string]*Segment{
		"text": {
			Name: "text", First: cfg.TextBase, Last: cfg.TextLimit, Cursor: cfg.TextBase,
		},
		"data": {
			Name: "data", IsData: true, First: cfg.DataBase, Last: cfg.DataLimit, Cursor: cfg.DataBase,
		},
		"ktext": {
			Name: "ktext", First: cfg.KernelTextBase, Last: cfg.KernelTextLimit, Cursor: cfg.KernelTextBase,
		},
		"kdata": {
			Name: "kdata", IsData: true, First: cfg.KernelDataBase, Last: cfg.KernelDataLimit, Cursor: cfg.KernelDataBase,
		},
		"extern": {
			Name: "extern", IsData: true, First: cfg.ExternBase, Last: cfg.ExternLimit, Cursor: cfg.ExternBase,
		},
	}
}

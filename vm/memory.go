package vm

import (
	"fmt"
	"sort"
)

const pageSize = 4096

// AccessNotice describes one memory access for observers (GUI panes,
// tracing). Observers only see accesses made with notify=true.
type AccessNotice struct {
	Address uint32
	Size    int
	Value   uint32
	Write   bool
}

// MMIORange routes accesses within [Start, End] to device callbacks.
// Either callback may be nil, which rejects that direction of access.
type MMIORange struct {
	Start uint32
	End   uint32
	Read  func(address uint32, size int) (uint32, error)
	Write func(address uint32, size int, value uint32) error
}

// Memory is the segmented, sparsely backed 32-bit address space. Word
// and halfword accesses must be aligned. The text segments additionally
// hold a decoded statement per word so instruction fetch returns both
// the machine word and its high-level form.
type Memory struct {
	Config       *MemoryConfiguration
	LittleEndian bool

	// SelfModifyingCode permits stores into the text segments; a store
	// invalidates the cached statement so the next fetch re-decodes
	SelfModifyingCode bool

	// Decoder rebuilds a statement from a binary word after a
	// self-modifying write; installed by the assembler/simulator
	Decoder func(address, word uint32) *Statement

	pages      map[uint32][]byte
	statements map[uint32]*Statement
	mmio       []MMIORange
	observers  []func(AccessNotice)

	heapCursor uint32
}

// NewMemory creates memory over the given configuration (nil selects
// the default layout)
func NewMemory(config *MemoryConfiguration) *Memory {
	if config == nil {
		config = DefaultConfiguration()
	}
	m := &Memory{
		Config:       config,
		LittleEndian: true,
	}
	m.Reset()
	return m
}

// Reset drops all contents and cached statements and rewinds the heap.
// The configuration, endianness and registered MMIO ranges survive.
func (m *Memory) Reset() {
	m.pages = make(map[uint32][]byte)
	m.statements = make(map[uint32]*Statement)
	m.heapCursor = m.Config.HeapBase
}

// AddObserver registers a callback for notified accesses
func (m *Memory) AddObserver(fn func(AccessNotice)) {
	m.observers = append(m.observers, fn)
}

// RegisterMMIO routes [start, end] to device callbacks
func (m *Memory) RegisterMMIO(start, end uint32, read func(uint32, int) (uint32, error), write func(uint32, int, uint32) error) {
	m.mmio = append(m.mmio, MMIORange{Start: start, End: end, Read: read, Write: write})
}

func (m *Memory) notify(notice AccessNotice, wanted bool) {
	if !wanted {
		return
	}
	for _, fn := range m.observers {
		fn(notice)
	}
}

// Segment predicates

// InTextSegment reports whether an address is in user text
func (m *Memory) InTextSegment(address uint32) bool {
	return address >= m.Config.TextBase && address <= m.Config.TextLimit
}

// InKernelTextSegment reports whether an address is in kernel text
func (m *Memory) InKernelTextSegment(address uint32) bool {
	return address >= m.Config.KernelTextBase && address <= m.Config.KernelTextLimit
}

// InDataSegment reports whether an address is in the user data range
// (extern, data, heap or stack)
func (m *Memory) InDataSegment(address uint32) bool {
	low := m.Config.ExternBase
	if m.Config.DataBase < low {
		low = m.Config.DataBase
	}
	return address >= low && address <= m.Config.StackLimit
}

// InKernelDataSegment reports whether an address is in kernel data
func (m *Memory) InKernelDataSegment(address uint32) bool {
	return address >= m.Config.KernelDataBase && address <= m.Config.KernelDataLimit
}

// InMMIORange reports whether an address falls in the memory-mapped
// I/O range
func (m *Memory) InMMIORange(address uint32) bool {
	return address >= m.Config.MMIOBase && address <= m.Config.MMIOLimit
}

// UsingCompactAddressSpace reports whether the active configuration is
// a 16-bit layout
func (m *Memory) UsingCompactAddressSpace() bool {
	return m.Config.Compact()
}

func (m *Memory) inAnySegment(address uint32) bool {
	return m.InTextSegment(address) || m.InKernelTextSegment(address) ||
		m.InDataSegment(address) || m.InKernelDataSegment(address) ||
		m.InMMIORange(address)
}

func (m *Memory) inAnyTextSegment(address uint32) bool {
	return m.InTextSegment(address) || m.InKernelTextSegment(address)
}

func (m *Memory) findMMIO(address uint32) *MMIORange {
	for i := range m.mmio {
		if address >= m.mmio[i].Start && address <= m.mmio[i].End {
			return &m.mmio[i]
		}
	}
	return nil
}

// raw byte access against the sparse page table

func (m *Memory) peekByte(address uint32) byte {
	page, ok := m.pages[address/pageSize]
	if !ok {
		return 0
	}
	return page[address%pageSize]
}

func (m *Memory) pokeByte(address uint32, value byte) {
	key := address / pageSize
	page, ok := m.pages[key]
	if !ok {
		page = make([]byte, pageSize)
		m.pages[key] = page
	}
	page[address%pageSize] = value
}

func (m *Memory) peek(address uint32, size int) uint32 {
	var value uint32
	for k := 0; k < size; k++ {
		b := uint32(m.peekByte(address + uint32(k)))
		if m.LittleEndian {
			value |= b << (8 * uint(k))
		} else {
			value |= b << (8 * uint(size-1-k))
		}
	}
	return value
}

func (m *Memory) poke(address uint32, size int, value uint32) {
	for k := 0; k < size; k++ {
		var b byte
		if m.LittleEndian {
			b = byte(value >> (8 * uint(k)))
		} else {
			b = byte(value >> (8 * uint(size-1-k)))
		}
		m.pokeByte(address+uint32(k), b)
	}
}

func checkAlignment(address uint32, size int, store bool) error {
	if size == 1 || Aligned(address, uint32(size)) {
		return nil
	}
	cause := ExceptionAddressFetch
	what := "load"
	if store {
		cause = ExceptionAddressStore
		what = "store"
	}
	return NewAddressException(cause, address, "unaligned %d-byte %s at 0x%08x", size, what, address)
}

// get is the shared read path for 1/2/4 byte accesses
func (m *Memory) get(address uint32, size int, wantNotify bool) (uint32, error) {
	if err := checkAlignment(address, size, false); err != nil {
		return 0, err
	}
	if !m.inAnySegment(address) {
		return 0, NewAddressException(ExceptionAddressFetch, address, "address out of range 0x%08x", address)
	}
	if m.InMMIORange(address) {
		if r := m.findMMIO(address); r != nil {
			if r.Read == nil {
				return 0, NewAddressException(ExceptionAddressFetch, address, "device at 0x%08x rejects reads", address)
			}
			value, err := r.Read(address, size)
			if err != nil {
				return 0, NewAddressException(ExceptionAddressFetch, address, "device read at 0x%08x: %v", address, err)
			}
			m.notify(AccessNotice{Address: address, Size: size, Value: value}, wantNotify)
			return value, nil
		}
	}
	value := m.peek(address, size)
	m.notify(AccessNotice{Address: address, Size: size, Value: value}, wantNotify)
	return value, nil
}

// set is the shared write path; returns the previous value for
// back-step recording
func (m *Memory) set(address uint32, size int, value uint32, wantNotify bool) (uint32, error) {
	if err := checkAlignment(address, size, true); err != nil {
		return 0, err
	}
	if !m.inAnySegment(address) {
		return 0, NewAddressException(ExceptionAddressStore, address, "address out of range 0x%08x", address)
	}
	if m.inAnyTextSegment(address) {
		if !m.SelfModifyingCode {
			return 0, NewAddressException(ExceptionAddressStore, address,
				"cannot write to text segment at 0x%08x unless self-modifying code is enabled", address)
		}
		// Invalidate the cached statement covering this word
		delete(m.statements, address&^3)
	}
	if m.InMMIORange(address) {
		if r := m.findMMIO(address); r != nil {
			if r.Write == nil {
				return 0, NewAddressException(ExceptionAddressStore, address, "device at 0x%08x rejects writes", address)
			}
			var old uint32
			if r.Read != nil {
				old, _ = r.Read(address, size)
			}
			if err := r.Write(address, size, value); err != nil {
				return 0, NewAddressException(ExceptionAddressStore, address, "device write at 0x%08x: %v", address, err)
			}
			m.notify(AccessNotice{Address: address, Size: size, Value: value, Write: true}, wantNotify)
			return old, nil
		}
	}
	old := m.peek(address, size)
	m.poke(address, size, value)
	m.notify(AccessNotice{Address: address, Size: size, Value: value, Write: true}, wantNotify)
	return old, nil
}

// GetWord reads an aligned 32-bit word
func (m *Memory) GetWord(address uint32, notify bool) (uint32, error) {
	return m.get(address, 4, notify)
}

// GetHalfword reads an aligned 16-bit halfword
func (m *Memory) GetHalfword(address uint32, notify bool) (uint32, error) {
	return m.get(address, 2, notify)
}

// GetByte reads a byte
func (m *Memory) GetByte(address uint32, notify bool) (uint32, error) {
	return m.get(address, 1, notify)
}

// StoreWord writes an aligned 32-bit word, returning the old value
func (m *Memory) StoreWord(address uint32, value uint32, notify bool) (uint32, error) {
	return m.set(address, 4, value, notify)
}

// StoreHalfword writes an aligned 16-bit halfword, returning the old
// value
func (m *Memory) StoreHalfword(address uint32, value uint32, notify bool) (uint32, error) {
	return m.set(address, 2, value, notify)
}

// StoreByte writes a byte, returning the old value
func (m *Memory) StoreByte(address uint32, value uint32, notify bool) (uint32, error) {
	return m.set(address, 1, value, notify)
}

// GetDoubleword reads two adjacent words, low word at the lower
// address
func (m *Memory) GetDoubleword(address uint32, notify bool) (uint64, error) {
	low, err := m.GetWord(address, notify)
	if err != nil {
		return 0, err
	}
	high, err := m.GetWord(address+4, notify)
	if err != nil {
		return 0, err
	}
	return TwoWordsToLong(high, low), nil
}

// StoreDoubleword writes two adjacent words, returning the old 64-bit
// value
func (m *Memory) StoreDoubleword(address uint32, value uint64, notify bool) (uint64, error) {
	high, low := LongToTwoWords(value)
	oldLow, err := m.StoreWord(address, low, notify)
	if err != nil {
		return 0, err
	}
	oldHigh, err := m.StoreWord(address+4, high, notify)
	if err != nil {
		return 0, err
	}
	return TwoWordsToLong(oldHigh, oldLow), nil
}

// FetchStatement returns the decoded statement at a text address, or
// nil when no statement has been stored there. With self-modifying
// code enabled, a word whose cached statement was invalidated is
// re-decoded through the Decoder hook.
func (m *Memory) FetchStatement(address uint32, notify bool) (*Statement, error) {
	if !Aligned(address, 4) {
		return nil, NewAddressException(ExceptionAddressFetch, address, "unaligned instruction fetch at 0x%08x", address)
	}
	if !m.inAnyTextSegment(address) {
		return nil, NewAddressException(ExceptionAddressFetch, address, "instruction fetch outside text at 0x%08x", address)
	}
	stmt, ok := m.statements[address]
	if !ok && m.SelfModifyingCode && m.Decoder != nil {
		word := m.peek(address, 4)
		if word != 0 || m.pages[address/pageSize] != nil {
			stmt = m.Decoder(address, word)
			if stmt != nil {
				m.statements[address] = stmt
			}
		}
	}
	if stmt != nil {
		m.notify(AccessNotice{Address: address, Size: 4, Value: stmt.Binary}, notify)
	}
	return stmt, nil
}

// StoreStatement places a statement and its machine word at a text
// address
func (m *Memory) StoreStatement(address uint32, stmt *Statement, notify bool) error {
	if !Aligned(address, 4) {
		return NewAddressException(ExceptionAddressStore, address, "unaligned statement store at 0x%08x", address)
	}
	if !m.inAnyTextSegment(address) {
		return NewAddressException(ExceptionAddressStore, address, "statement store outside text at 0x%08x", address)
	}
	m.statements[address] = stmt
	if stmt != nil {
		m.poke(address, 4, stmt.Binary)
		m.notify(AccessNotice{Address: address, Size: 4, Value: stmt.Binary, Write: true}, notify)
	}
	return nil
}

// StatementAt returns the cached statement at an address without
// decode or notification (debugger display)
func (m *Memory) StatementAt(address uint32) *Statement {
	return m.statements[address]
}

// StatementAddresses returns the sorted addresses holding statements
func (m *Memory) StatementAddresses() []uint32 {
	addrs := make([]uint32, 0, len(m.statements))
	for a := range m.statements {
		addrs = append(addrs, a)
	}
	sortUint32s(addrs)
	return addrs
}

// GetNullTerminatedString reads bytes until a zero byte (syscall 4)
func (m *Memory) GetNullTerminatedString(address uint32) (string, error) {
	var out []byte
	for i := uint32(0); ; i++ {
		b, err := m.GetByte(address+i, false)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, byte(b))
	}
}

// AllocateHeap advances the heap cursor by the requested byte count
// (rounded up to a word) and returns the old cursor, sbrk-style
func (m *Memory) AllocateHeap(bytes uint32) (uint32, error) {
	addr := m.heapCursor
	next := AlignToNext(addr+bytes, 4)
	if next < addr || next > m.Config.StackPointer {
		return 0, fmt.Errorf("heap exhausted: request of %d bytes at 0x%08x", bytes, addr)
	}
	m.heapCursor = next
	return addr, nil
}

func sortUint32s(v []uint32) {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
}

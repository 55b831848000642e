package vm

import (
	"fmt"
	"sort"
)

// MemoryConfiguration names the base and limit addresses of every
// segment of the simulated address space. Configurations are selected
// at startup; the compact one shrinks everything into 16-bit
// addresses, which also switches pseudo-instruction expansion to the
// compact templates.
type MemoryConfiguration struct {
	Identifier  string
	Description string

	TextBase  uint32
	TextLimit uint32

	ExternBase  uint32
	ExternLimit uint32

	DataBase      uint32
	DataLimit     uint32
	GlobalPointer uint32

	HeapBase     uint32
	StackPointer uint32
	StackLimit   uint32 // highest user address

	KernelTextBase  uint32
	KernelTextLimit uint32

	ExceptionHandler uint32

	KernelDataBase  uint32
	KernelDataLimit uint32

	MMIOBase  uint32
	MMIOLimit uint32
}

// Compact reports whether this configuration uses a 16-bit address
// space
func (mc *MemoryConfiguration) Compact() bool {
	return mc.StackLimit <= 0xffff
}

// DefaultConfiguration is the standard SPIM-compatible memory layout
func DefaultConfiguration() *MemoryConfiguration {
	return &MemoryConfiguration{
		Identifier:  "default",
		Description: "Default layout (32-bit address space)",

		TextBase:  0x00400000,
		TextLimit: 0x0ffffffc,

		ExternBase:  0x10000000,
		ExternLimit: 0x1000ffff,

		DataBase:      0x10010000,
		DataLimit:     0x1003ffff,
		GlobalPointer: 0x10008000,

		HeapBase:     0x10040000,
		StackPointer: 0x7fffeffc,
		StackLimit:   0x7fffffff,

		KernelTextBase:  0x80000000,
		KernelTextLimit: 0x8fffffff,

		ExceptionHandler: ExceptionVector,

		KernelDataBase:  0x90000000,
		KernelDataLimit: 0xfffeffff,

		MMIOBase:  0xffff0000,
		MMIOLimit: 0xffffffff,
	}
}

// CompactConfiguration squeezes all segments into a 16-bit address
// space, with data at address zero
func CompactConfiguration() *MemoryConfiguration {
	return &MemoryConfiguration{
		Identifier:  "compact",
		Description: "Compact layout (16-bit address space, data at 0)",

		DataBase:      0x0000,
		DataLimit:     0x0fff,
		GlobalPointer: 0x1800,

		ExternBase:  0x1000,
		ExternLimit: 0x1fff,

		HeapBase:     0x2000,
		StackPointer: 0x2ffc,
		StackLimit:   0x2fff,

		TextBase:  0x3000,
		TextLimit: 0x3ffc,

		KernelTextBase:  0x4000,
		KernelTextLimit: 0x4ffc,

		ExceptionHandler: 0x4180,

		KernelDataBase:  0x5000,
		KernelDataLimit: 0x5fff,

		MMIOBase:  0x7f00,
		MMIOLimit: 0x7fff,
	}
}

var configurations = map[string]func() *MemoryConfiguration{
	"default": DefaultConfiguration,
	"compact": CompactConfiguration,
}

// ConfigurationByName looks up a memory configuration by identifier
func ConfigurationByName(name string) (*MemoryConfiguration, error) {
	mk, ok := configurations[name]
	if !ok {
		return nil, fmt.Errorf("unknown memory configuration %q (known: %v)", name, ConfigurationNames())
	}
	return mk(), nil
}

// ConfigurationNames lists the known configuration identifiers
func ConfigurationNames() []string {
	names := make([]string, 0, len(configurations))
	for name := range configurations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

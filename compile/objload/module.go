package objload

import (
	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// Inferior is the subset of inferior.Process used to inject a compiled
// module.
type Inferior interface {
	ReadMemory(addr VirtualAddress, out []byte) error
	WriteMemory(addr VirtualAddress, data []byte) error

	// The selected frame's register value.
	RegisterValue(reg registers.Spec) (registers.Value, error)

	Mmap(size uint64, prot Protection) (VirtualAddress, error)
	Munmap(addr VirtualAddress, size uint64) error

	ResolveIndirectFunction(resolver VirtualAddress) (VirtualAddress, error)
}

// ModuleDebugInfo populates the compiled module's objfile with the
// object's debug info.
type ModuleDebugInfo interface {
	ReadDebugInfo(objfile *symbols.Objfile, objectFile string) error
}

// DwarfDebugInfo reads the object's dwarf sections.
type DwarfDebugInfo struct {
	Logger logrus.FieldLogger
}

func (info DwarfDebugInfo) ReadDebugInfo(
	objfile *symbols.Objfile,
	objectFile string,
) error {
	return objfile.OpenDebugInfo(objectFile, info.Logger)
}

// Region is an inferior memory mapping owned by a compiled module.
type Region struct {
	Address VirtualAddress
	Size    uint64
}

// MunmapList is the list of inferior mappings to release when a compiled
// module is discarded.
type MunmapList struct {
	Regions []Region
}

func (list *MunmapList) Add(addr VirtualAddress, size uint64) {
	list.Regions = append(list.Regions, Region{Address: addr, Size: size})
}

// UnmapAll releases every region, even if some fail, and returns the first
// failure.
func (list *MunmapList) UnmapAll(inferior Inferior) error {
	var first error
	for _, region := range list.Regions {
		err := inferior.Munmap(region.Address, region.Size)
		if err != nil && first == nil {
			first = err
		}
	}

	list.Regions = nil
	return first
}

// Module is a compiled expression loaded into the inferior and ready to be
// called.
type Module struct {
	Objfile *symbols.Objfile

	// Generated files, removed when the module is discarded.
	SourceFile string
	ObjectFile string

	// The wrapper function.
	Function        *symbols.Symbol
	FunctionAddress VirtualAddress

	// Zero when the wrapper takes no register struct.
	RegistersAddress VirtualAddress

	// Only applicable to the print scopes.
	OutValueAddress VirtualAddress
	OutValueType    *types.Type

	Scope protocol.Scope

	// Owned by the caller (e.g., print format options).
	ScopeData any

	Munmaps *MunmapList
}

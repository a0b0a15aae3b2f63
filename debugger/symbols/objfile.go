package symbols

import (
	"fmt"
	"strings"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/types"
	"github.com/pattyshack/badc/elf"
)

type Objfile struct {
	Name string

	// Runtime address minus file address.  Relocatable objfiles use
	// SectionAddresses instead.
	Bias VirtualAddress

	// Only applicable to relocatable objfiles.
	SectionAddresses map[elf.SectionIndex]VirtualAddress

	File *elf.File // nil for synthetic objfiles

	MinimalSymbols []*MinimalSymbol

	GlobalBlock *Block
	StaticBlock *Block

	released bool
}

func newObjfile(name string) *Objfile {
	global := &Block{}
	return &Objfile{
		Name:        name,
		GlobalBlock: global,
		StaticBlock: &Block{Superblock: global},
	}
}

// NewObjfile builds an objfile from a parsed elf file.  sectionAddresses
// is only used (and required) for relocatable files.
func NewObjfile(
	name string,
	file *elf.File,
	bias VirtualAddress,
	sectionAddresses map[elf.SectionIndex]VirtualAddress,
) (
	*Objfile,
	error,
) {
	objfile := newObjfile(name)
	objfile.File = file
	objfile.Bias = bias
	objfile.SectionAddresses = sectionAddresses

	if file.FileType == elf.FileTypeRelocatable && sectionAddresses == nil {
		return nil, fmt.Errorf(
			"failed to create objfile %s: relocatable file has no section layout",
			name)
	}

	symtab, ok := file.SymbolTable()
	if !ok {
		return objfile, nil
	}

	for _, symbol := range symtab.Symbols {
		minSym := objfile.newMinimalSymbol(symbol)
		if minSym != nil {
			objfile.MinimalSymbols = append(objfile.MinimalSymbols, minSym)
		}
	}

	return objfile, nil
}

func (objfile *Objfile) newMinimalSymbol(symbol *elf.Symbol) *MinimalSymbol {
	if symbol.Name == "" || symbol.IsUndefined() {
		return nil
	}

	var class MinimalSymbolClass
	switch symbol.Type() {
	case elf.SymbolTypeFunction:
		class = TextSymbol
	case elf.SymbolTypeIndirectFunction:
		class = IndirectFunctionSymbol
	case elf.SymbolTypeObject, elf.SymbolTypeNone:
		class = DataSymbol
	default:
		return nil
	}

	address, ok := objfile.runtimeAddress(symbol)
	if !ok {
		return nil
	}

	if symbol.SectionIndex == elf.SectionIndexAbsolute {
		class = AbsoluteSymbol
	} else if class == DataSymbol {
		section, ok := objfile.File.SectionAt(symbol.SectionIndex)
		if ok && section.Header().SectionType == elf.SectionTypeNoSpace {
			class = BssSymbol
		}
	}

	return &MinimalSymbol{
		Name:          symbol.Name,
		DemangledName: symbol.DemangledName,
		Class:         class,
		Address:       address,
		Size:          symbol.Size,
		IsGlobal:      symbol.Binding() != elf.SymbolBindingLocal,
		Objfile:       objfile,
	}
}

func (objfile *Objfile) runtimeAddress(
	symbol *elf.Symbol,
) (
	VirtualAddress,
	bool,
) {
	switch symbol.SectionIndex {
	case elf.SectionIndexAbsolute:
		return VirtualAddress(symbol.Value), true
	case elf.SectionIndexCommon:
		return 0, false
	}

	if objfile.File.FileType != elf.FileTypeRelocatable {
		return objfile.Bias + VirtualAddress(symbol.Value), true
	}

	base, ok := objfile.SectionAddresses[symbol.SectionIndex]
	if !ok {
		return 0, false
	}
	return base + VirtualAddress(symbol.Value), true
}

func (objfile *Objfile) String() string {
	return objfile.Name
}

func (objfile *Objfile) IsReleased() bool {
	return objfile.released
}

// Release drops all symbol data.  Symbols obtained from this objfile must not
// be used afterward.
func (objfile *Objfile) Release() {
	objfile.released = true
	objfile.MinimalSymbols = nil
	objfile.GlobalBlock.Symbols = nil
	objfile.StaticBlock.Symbols = nil
	objfile.File = nil
}

// LookupMinimalSymbol prefers global definitions over local ones.
func (objfile *Objfile) LookupMinimalSymbol(
	name string,
) (
	*MinimalSymbol,
	bool,
) {
	var local *MinimalSymbol
	for _, symbol := range objfile.MinimalSymbols {
		if symbol.Name != name &&
			symbol.DemangledName != name &&
			!strings.HasPrefix(symbol.DemangledName, name+"(") {

			continue
		}

		if symbol.IsGlobal {
			return symbol, true
		}

		if local == nil {
			local = symbol
		}
	}

	return local, local != nil
}

// LookupGlobalOrStatic searches the objfile's static block, then its global
// block.
func (objfile *Objfile) LookupGlobalOrStatic(
	name string,
	domain Domain,
) (
	*Symbol,
	bool,
) {
	return objfile.StaticBlock.Lookup(name, domain)
}

// BlockForPC returns the innermost function block containing pc.
func (objfile *Objfile) BlockForPC(pc VirtualAddress) (*Block, bool) {
	for _, symbol := range objfile.StaticBlock.Symbols {
		if symbol.Class != FunctionSymbol || symbol.Block == nil {
			continue
		}

		if symbol.Block.Contains(pc) {
			return symbol.Block, true
		}
	}

	for _, symbol := range objfile.GlobalBlock.Symbols {
		if symbol.Class != FunctionSymbol || symbol.Block == nil {
			continue
		}

		if symbol.Block.Contains(pc) {
			return symbol.Block, true
		}
	}

	return nil, false
}

// AddSymbol registers a debug symbol in the objfile's global or static
// block.
func (objfile *Objfile) AddSymbol(symbol *Symbol, isStatic bool) {
	symbol.Objfile = objfile
	if isStatic {
		objfile.StaticBlock.Add(symbol)
	} else {
		objfile.GlobalBlock.Add(symbol)
	}
}

// NewSyntheticObjfile creates an objfile with no backing elf file.
func NewSyntheticObjfile(name string) *Objfile {
	return newObjfile(name)
}

// AddMinimalSymbol adds a symbol to a (usually synthetic) objfile.
func (objfile *Objfile) AddMinimalSymbol(symbol *MinimalSymbol) {
	symbol.Objfile = objfile
	objfile.MinimalSymbols = append(objfile.MinimalSymbols, symbol)
}

// FunctionType returns the function symbol's type, defaulting to the no
// debug info text type.
func (symbol *Symbol) FunctionType() *types.Type {
	if symbol.Type == nil {
		return types.Builtin.NoDebugText
	}
	return symbol.Type
}

package elf

import (
	"bytes"
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

type FileAddress uint64

type Section interface {
	Header() SectionHeaderEntry
	Index() SectionIndex

	BindSectionNameTable(sectionNames *StringTableSection)
	Name() string

	RawContent() ([]byte, error)

	// See elf spec. Figure 1-12. sh_link and sh_info interpretation.
	BindStringTable(stringTable *StringTableSection)
	BindSymbolTable(symbolTable *SymbolTableSection)
	BindTarget(target Section)
}

type BaseSection struct {
	SectionHeaderEntry

	index SectionIndex
	name  string
}

func newBaseSection(index SectionIndex, header SectionHeaderEntry) BaseSection {
	return BaseSection{
		SectionHeaderEntry: header,
		index:              index,
	}
}

func (base *BaseSection) Header() SectionHeaderEntry {
	return base.SectionHeaderEntry
}

func (base *BaseSection) Index() SectionIndex {
	return base.index
}

func (base *BaseSection) Name() string {
	return base.name
}

func (base *BaseSection) BindSectionNameTable(
	sectionNames *StringTableSection,
) {
	base.name = sectionNames.Get(base.NameIndex)
}

func (base *BaseSection) IsAllocated() bool {
	return base.SectionFlags&SectionOccupiesMemory != 0
}

func (base *BaseSection) RawContent() ([]byte, error) {
	return nil, fmt.Errorf("cannot get raw content of %s", base.name)
}

func (BaseSection) BindStringTable(table *StringTableSection) {
}

func (BaseSection) BindSymbolTable(table *SymbolTableSection) {
}

func (BaseSection) BindTarget(target Section) {
}

type RawSection struct {
	BaseSection

	Content []byte
}

func newRawSection(
	index SectionIndex,
	header SectionHeaderEntry,
	buffer []byte,
) *RawSection {
	content := make([]byte, len(buffer))
	copy(content, buffer)

	return &RawSection{
		BaseSection: newBaseSection(index, header),
		Content:     content,
	}
}

func (section *RawSection) RawContent() ([]byte, error) {
	return section.Content, nil
}

type StringTableSection struct {
	BaseSection

	Content []byte
}

func NewStringTableSection(
	index SectionIndex,
	header SectionHeaderEntry,
	buffer []byte,
) *StringTableSection {
	content := make([]byte, len(buffer))
	copy(content, buffer)

	return &StringTableSection{
		BaseSection: newBaseSection(index, header),
		Content:     content,
	}
}

func (table *StringTableSection) RawContent() ([]byte, error) {
	return table.Content, nil
}

func (table *StringTableSection) Get(index uint32) string {
	if index >= uint32(len(table.Content)) {
		return ""
	}

	chunk := table.Content[index:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}

type Symbol struct {
	SymbolEntry

	// Position within the parent symbol table.  Relocation entries refer to
	// symbols by this index.
	TableIndex uint32

	Parent        *SymbolTableSection
	Name          string
	DemangledName string // human readable c++ / rust name
}

func (symbol *Symbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}

	return symbol.Name
}

func (symbol *Symbol) Type() SymbolType {
	return SymbolInfoToType(symbol.Info)
}

func (symbol *Symbol) Binding() SymbolBinding {
	return SymbolInfoToBinding(symbol.Info)
}

func (symbol *Symbol) IsUndefined() bool {
	return symbol.SectionIndex == SectionIndexUndefined
}

func (symbol *Symbol) AddressRange() (FileAddress, FileAddress, bool) {
	if symbol.Value == 0 ||
		symbol.NameIndex == 0 ||
		symbol.Type() == SymbolTypeTLSObject {

		return 0, 0, false
	}

	start := FileAddress(symbol.Value)
	end := FileAddress(symbol.Value + symbol.Size)
	return start, end, true
}

type SymbolTableSection struct {
	BaseSection

	Symbols []*Symbol
}

func (table *SymbolTableSection) BindStringTable(names *StringTableSection) {
	for _, symbol := range table.Symbols {
		symbol.Name = names.Get(symbol.NameIndex)
		val, err := demangle.ToString(symbol.Name)
		if err == nil {
			symbol.DemangledName = val
		}
	}
}

func (table *SymbolTableSection) SymbolsByName(name string) []*Symbol {
	result := []*Symbol{}
	for _, symbol := range table.Symbols {
		if symbol.Name == name || symbol.DemangledName == name {
			result = append(result, symbol)
		}
	}
	return result
}

func (table *SymbolTableSection) SymbolAt(address FileAddress) *Symbol {
	for _, symbol := range table.Symbols {
		low, _, ok := symbol.AddressRange()
		if ok && low == address {
			return symbol
		}
	}

	return nil
}

func (table *SymbolTableSection) SymbolSpans(address FileAddress) *Symbol {
	for _, symbol := range table.Symbols {
		low, high, ok := symbol.AddressRange()
		if ok && low <= address && address < high {
			return symbol
		}
	}

	return nil
}

type Relocation struct {
	RelocationEntry

	// nil for R_X86_64_NONE style entries referring to symbol 0.
	Symbol *Symbol
}

type RelocationSection struct {
	BaseSection

	Relocations []*Relocation

	SymbolTable *SymbolTableSection

	// The section the relocations apply to (sh_info)
	Target Section
}

func (section *RelocationSection) BindSymbolTable(table *SymbolTableSection) {
	section.SymbolTable = table
	for _, reloc := range section.Relocations {
		idx := reloc.SymbolIndex()
		if idx != 0 && int(idx) < len(table.Symbols) {
			reloc.Symbol = table.Symbols[idx]
		}
	}
}

func (section *RelocationSection) BindTarget(target Section) {
	section.Target = target
}

package elf

import (
	"encoding/binary"
	"fmt"
)

// Absolute is the BuilderSymbol.Section value for SHN_ABS symbols.  An empty
// section name means the symbol is undefined.
const Absolute = "*ABS*"

type BuilderSection struct {
	Name      string
	Type      SectionType
	Flags     SectionFlags
	Alignment uint64

	Content []byte
	Size    uint64 // only used by SHT_NOBITS sections
}

type BuilderSymbol struct {
	Name    string
	Binding SymbolBinding
	Type    SymbolType
	Section string
	Value   uint64
	Size    uint64
}

type BuilderRelocation struct {
	Section string // the section being patched
	Offset  uint64
	Symbol  string
	Type    RelocationType
	Addend  int64
}

// RelocatableBuilder serializes an x86-64 ET_REL object.
type RelocatableBuilder struct {
	sections    []BuilderSection
	symbols     []BuilderSymbol
	relocations []BuilderRelocation
}

func NewRelocatableBuilder() *RelocatableBuilder {
	return &RelocatableBuilder{}
}

func (builder *RelocatableBuilder) AddSection(section BuilderSection) {
	builder.sections = append(builder.sections, section)
}

func (builder *RelocatableBuilder) AddSymbol(symbol BuilderSymbol) {
	builder.symbols = append(builder.symbols, symbol)
}

func (builder *RelocatableBuilder) AddRelocation(reloc BuilderRelocation) {
	builder.relocations = append(builder.relocations, reloc)
}

type stringTableBuilder struct {
	content []byte
	offsets map[string]uint32
}

func newStringTableBuilder() *stringTableBuilder {
	return &stringTableBuilder{
		content: []byte{0},
		offsets: map[string]uint32{"": 0},
	}
}

func (table *stringTableBuilder) add(name string) uint32 {
	offset, ok := table.offsets[name]
	if ok {
		return offset
	}

	offset = uint32(len(table.content))
	table.content = append(table.content, name...)
	table.content = append(table.content, 0)
	table.offsets[name] = offset
	return offset
}

func (builder *RelocatableBuilder) Bytes() ([]byte, error) {
	sectionIndices := map[string]SectionIndex{}
	for idx, section := range builder.sections {
		_, ok := sectionIndices[section.Name]
		if ok {
			return nil, fmt.Errorf("duplicate section (%s)", section.Name)
		}
		sectionIndices[section.Name] = SectionIndex(idx + 1)
	}

	// Local symbols must precede global symbols.
	ordered := []BuilderSymbol{}
	for _, symbol := range builder.symbols {
		if symbol.Binding == SymbolBindingLocal {
			ordered = append(ordered, symbol)
		}
	}
	numLocals := len(ordered) + 1
	for _, symbol := range builder.symbols {
		if symbol.Binding != SymbolBindingLocal {
			ordered = append(ordered, symbol)
		}
	}

	strtab := newStringTableBuilder()
	symbolIndices := map[string]uint32{}
	symtab := []SymbolEntry{{}}
	for idx, symbol := range ordered {
		shndx := SectionIndexUndefined
		switch symbol.Section {
		case "":
		case Absolute:
			shndx = SectionIndexAbsolute
		default:
			index, ok := sectionIndices[symbol.Section]
			if !ok {
				return nil, fmt.Errorf(
					"symbol (%s) refers to unknown section (%s)",
					symbol.Name,
					symbol.Section)
			}
			shndx = index
		}

		symtab = append(
			symtab,
			SymbolEntry{
				NameIndex:    strtab.add(symbol.Name),
				Info:         SymbolInfo(symbol.Binding, symbol.Type),
				SectionIndex: shndx,
				Value:        symbol.Value,
				Size:         symbol.Size,
			})
		if symbol.Name != "" {
			symbolIndices[symbol.Name] = uint32(idx + 1)
		}
	}

	relocsBySection := map[string][]RelocationEntry{}
	relocOrder := []string{}
	for _, reloc := range builder.relocations {
		_, ok := sectionIndices[reloc.Section]
		if !ok {
			return nil, fmt.Errorf(
				"relocation refers to unknown section (%s)",
				reloc.Section)
		}

		symIdx, ok := symbolIndices[reloc.Symbol]
		if !ok && reloc.Symbol != "" {
			return nil, fmt.Errorf(
				"relocation refers to unknown symbol (%s)",
				reloc.Symbol)
		}

		_, ok = relocsBySection[reloc.Section]
		if !ok {
			relocOrder = append(relocOrder, reloc.Section)
		}
		relocsBySection[reloc.Section] = append(
			relocsBySection[reloc.Section],
			RelocationEntry{
				Offset: reloc.Offset,
				Info:   RelocationInfo(symIdx, reloc.Type),
				Addend: reloc.Addend,
			})
	}

	shstrtab := newStringTableBuilder()
	headers := []SectionHeaderEntry{{}}
	contents := [][]byte{nil}

	for _, section := range builder.sections {
		size := uint64(len(section.Content))
		if section.Type == SectionTypeNoSpace {
			size = section.Size
		}

		headers = append(
			headers,
			SectionHeaderEntry{
				NameIndex:        shstrtab.add(section.Name),
				SectionType:      section.Type,
				SectionFlags:     section.Flags,
				Size:             size,
				AddressAlignment: section.Alignment,
			})
		contents = append(contents, section.Content)
	}

	symtabIndex := uint32(len(headers) + len(relocOrder))
	for _, name := range relocOrder {
		content, err := binary.Append(
			nil,
			binary.LittleEndian,
			relocsBySection[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode relocations: %w", err)
		}

		headers = append(
			headers,
			SectionHeaderEntry{
				NameIndex:        shstrtab.add(".rela" + name),
				SectionType:      SectionTypeRelocationWithAddends,
				SectionFlags:     SectionInfoHoldsSectionIndex,
				Size:             uint64(len(content)),
				Link:             symtabIndex,
				Info:             uint32(sectionIndices[name]),
				AddressAlignment: 8,
				EntrySize:        Elf64RelocationEntrySize,
			})
		contents = append(contents, content)
	}

	symtabContent, err := binary.Append(nil, binary.LittleEndian, symtab)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbol table: %w", err)
	}

	headers = append(
		headers,
		SectionHeaderEntry{
			NameIndex:        shstrtab.add(SymbolTableName),
			SectionType:      SectionTypeSymbolTable,
			Size:             uint64(len(symtabContent)),
			Link:             symtabIndex + 1,
			Info:             uint32(numLocals),
			AddressAlignment: 8,
			EntrySize:        Elf64SymbolEntrySize,
		})
	contents = append(contents, symtabContent)

	headers = append(
		headers,
		SectionHeaderEntry{
			NameIndex:        shstrtab.add(StringTableName),
			SectionType:      SectionTypeStringTable,
			Size:             uint64(len(strtab.content)),
			AddressAlignment: 1,
		})
	contents = append(contents, strtab.content)

	shstrtabIndex := len(headers)
	nameIndex := shstrtab.add(SectionStringTableName)
	headers = append(
		headers,
		SectionHeaderEntry{
			NameIndex:        nameIndex,
			SectionType:      SectionTypeStringTable,
			Size:             uint64(len(shstrtab.content)),
			AddressAlignment: 1,
		})
	contents = append(contents, shstrtab.content)

	out := make([]byte, Elf64HeaderSize)
	for idx := 1; idx < len(headers); idx++ {
		if headers[idx].SectionType == SectionTypeNoSpace {
			continue
		}

		for len(out)%8 != 0 {
			out = append(out, 0)
		}
		headers[idx].Offset = uint64(len(out))
		out = append(out, contents[idx]...)
	}

	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	sectionHeaderOffset := uint64(len(out))

	out, err = binary.Append(out, binary.LittleEndian, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode section headers: %w", err)
	}

	header := ElfHeader{
		Identifier: Identifier{
			Class:             Class64,
			DataEncoding:      DataEncodingTwosComplementLittleEndian,
			IdentifierVersion: IdentifierVersion,
		},
		FileType:                FileTypeRelocatable,
		MachineArchitecture:     MachineArchitectureX86_64,
		FormatVersion:           FormatVersion,
		SectionHeaderOffset:     sectionHeaderOffset,
		ElfHeaderSize:           Elf64HeaderSize,
		SectionHeaderEntrySize:  Elf64SectionHeaderEntrySize,
		NumSectionHeaderEntries: uint16(len(headers)),
		SectionStringTableIndex: SectionIndex(shstrtabIndex),
	}
	copy(header.Magic[:], IdentifierMagic)

	_, err = binary.Encode(out[:Elf64HeaderSize], binary.LittleEndian, header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode elf header: %w", err)
	}

	return out, nil
}

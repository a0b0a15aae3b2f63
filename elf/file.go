package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Resources:
// https://refspecs.linuxfoundation.org/

var (
	supportedOperatingSystemABIs = map[OperatingSystemABI]struct{}{
		OperatingSystemABIUnixSystemV: struct{}{},
		OperatingSystemABILinux:       struct{}{},
	}
)

type File struct {
	ElfHeader
	Sections       []Section
	ProgramHeaders []ProgramHeaderEntry
}

func (file *File) GetSection(name string) (Section, bool) {
	for _, section := range file.Sections {
		if section.Name() == name {
			return section, true
		}
	}

	return nil, false
}

func (file *File) SectionAt(index SectionIndex) (Section, bool) {
	if int(index) >= len(file.Sections) {
		return nil, false
	}
	return file.Sections[index], true
}

// SymbolTable returns the static symbol table, falling back to the dynamic
// symbol table for stripped shared objects.
func (file *File) SymbolTable() (*SymbolTableSection, bool) {
	var dynamic *SymbolTableSection
	for _, section := range file.Sections {
		table, ok := section.(*SymbolTableSection)
		if !ok {
			continue
		}

		if table.SectionType == SectionTypeSymbolTable {
			return table, true
		}
		dynamic = table
	}

	return dynamic, dynamic != nil
}

func (file *File) RelocationSections() []*RelocationSection {
	result := []*RelocationSection{}
	for _, section := range file.Sections {
		relocs, ok := section.(*RelocationSection)
		if ok {
			result = append(result, relocs)
		}
	}
	return result
}

type parser struct {
	content []byte

	binary.ByteOrder

	File
}

func Parse(reader io.Reader) (*File, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read elf file: %w", err)
	}

	return ParseBytes(content)
}

func ParseBytes(content []byte) (*File, error) {
	p := parser{
		content: content,
	}

	err := p.parse()
	if err != nil {
		return nil, err
	}

	return &p.File, nil
}

func (p *parser) parse() error {
	// NOTE: identifier (e_ident) has no endian-ness.  We must parse identifier
	// to determine the elf file's endian-ness (including the elf header).
	err := p.parseIdentifier()
	if err != nil {
		return err
	}

	err = p.parseHeader()
	if err != nil {
		return err
	}

	err = p.parseSectionHeaders()
	if err != nil {
		return err
	}

	return p.parseProgramHeaders()
}

func (p *parser) parseIdentifier() error {
	if len(p.content) < Elf64HeaderSize {
		return fmt.Errorf("file too small to be an elf file")
	}

	id := &Identifier{}
	_, err := binary.Decode(p.content, binary.NativeEndian, id)
	if err != nil {
		return fmt.Errorf("failed to parse identifier: %w", err)
	}

	if !bytes.Equal(id.Magic[:], IdentifierMagic) {
		return fmt.Errorf("invalid elf magic number")
	}

	if id.Class != Class64 {
		return fmt.Errorf("unsupported elf class: %s", id.Class)
	}

	if id.DataEncoding != DataEncodingTwosComplementLittleEndian {
		return fmt.Errorf("unsupported data encoding: %s", id.DataEncoding)
	}
	p.ByteOrder = binary.LittleEndian

	if id.IdentifierVersion != IdentifierVersion {
		return fmt.Errorf(
			"unsupported identifier version: %d",
			id.IdentifierVersion)
	}

	_, ok := supportedOperatingSystemABIs[id.OperatingSystemABI]
	if !ok {
		return fmt.Errorf("unsupported os/abi: %s", id.OperatingSystemABI)
	}

	if id.ABIVersion != ABIVersion {
		return fmt.Errorf("unsupported abi verison: %d", id.ABIVersion)
	}

	return nil
}

func (p *parser) parseHeader() error {
	_, err := binary.Decode(p.content, p.ByteOrder, &p.ElfHeader)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	if p.MachineArchitecture != MachineArchitectureX86_64 {
		return fmt.Errorf(
			"unsupported machine architecture: %s",
			p.MachineArchitecture)
	}

	if p.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version: %d", p.FormatVersion)
	}

	if p.ElfHeaderSize != Elf64HeaderSize {
		return fmt.Errorf("unexpected elf64 header size: %d", p.ElfHeaderSize)
	}

	// Relocatable objects have no program headers (and usually a zero entry
	// size).
	if p.NumProgramHeaderEntries > 0 &&
		p.ProgramHeaderEntrySize != Elf64ProgramHeaderEntrySize {

		return fmt.Errorf(
			"unexpected elf64 program header entry size: %d",
			p.ProgramHeaderEntrySize)
	}

	if p.NumSectionHeaderEntries > 0 &&
		p.SectionHeaderEntrySize != Elf64SectionHeaderEntrySize {

		return fmt.Errorf(
			"unexpected elf64 section header entry size: %d",
			p.SectionHeaderEntrySize)
	}

	// For simplicity, we'll disallow extended section header.  Most elf structs
	// (e.g., Elf64_Sym.st_shndx) don't support extended section indexing.
	if p.SectionHeaderOffset > 0 && p.NumSectionHeaderEntries == 0 {
		return fmt.Errorf("extended section header not supported")
	}

	return nil
}

func (p *parser) parseSectionHeaders() error {
	if p.NumSectionHeaderEntries == 0 {
		return nil
	}

	if p.SectionHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"out of bound section header offset (%d)",
			p.SectionHeaderOffset)
	}

	sectionHeaders := make([]SectionHeaderEntry, p.NumSectionHeaderEntries)
	_, err := binary.Decode(
		p.content[p.SectionHeaderOffset:],
		p.ByteOrder,
		sectionHeaders)
	if err != nil {
		return fmt.Errorf("failed to read section header entries: %w", err)
	}

	for idx, header := range sectionHeaders {
		index := SectionIndex(idx)

		var sectionContent []byte
		if header.SectionType != SectionTypeNoSpace &&
			header.SectionType != SectionTypeNull {

			start := header.Offset
			end := start + header.Size
			if end > uint64(len(p.content)) || end < start {
				return fmt.Errorf(
					"out of bound section (%d > %d)",
					end,
					len(p.content))
			}

			sectionContent = p.content[start:end]
		}

		switch header.SectionType {
		case SectionTypeStringTable:
			p.Sections = append(
				p.Sections,
				NewStringTableSection(index, header, sectionContent))
		case SectionTypeSymbolTable, SectionTypeDynamicSymbolTable:
			table, err := p.parseSymbolTable(index, header, sectionContent)
			if err != nil {
				return err
			}
			p.Sections = append(p.Sections, table)
		case SectionTypeRelocationWithAddends:
			relocs, err := p.parseRelocations(index, header, sectionContent)
			if err != nil {
				return err
			}
			p.Sections = append(p.Sections, relocs)
		default:
			p.Sections = append(
				p.Sections,
				newRawSection(index, header, sectionContent))
		}
	}

	// Bind section names
	if p.SectionStringTableIndex != SectionIndexUndefined {
		idx := int(p.SectionStringTableIndex)
		if idx >= len(p.Sections) {
			return fmt.Errorf(
				"section name index out of bound (%d >= %d)",
				idx,
				len(p.Sections))
		}

		table, ok := p.Sections[idx].(*StringTableSection)
		if !ok {
			return fmt.Errorf("section name index does not point to a string table")
		}

		for _, section := range p.Sections {
			section.BindSectionNameTable(table)
		}
	}

	// Bind sh_link section
	// See elf spec. Figure 1-12. sh_link and sh_info Interpretation.
	for _, section := range p.Sections {
		hdr := section.Header()

		if hdr.Link == 0 { // section 0 is always undefined
			continue
		}

		if hdr.Link >= uint32(len(p.Sections)) {
			return fmt.Errorf(
				"section (%s) link index out of bound (%d >= %d)",
				section.Name(),
				hdr.Link,
				len(p.Sections))
		}

		switch hdr.SectionType {
		case SectionTypeDynamic,
			SectionTypeSymbolTable,
			SectionTypeDynamicSymbolTable:

			table, ok := p.Sections[hdr.Link].(*StringTableSection)
			if !ok {
				return fmt.Errorf("string table index does not point to a string table")
			}

			section.BindStringTable(table)
		case SectionTypeRelocationWithAddends:
			table, ok := p.Sections[hdr.Link].(*SymbolTableSection)
			if !ok {
				return fmt.Errorf(
					"symbol table index (%d) does not point to a symbol table (%s)",
					hdr.Link,
					p.Sections[hdr.Link].Name())
			}

			section.BindSymbolTable(table)
		}
	}

	// Bind sh_info section
	for _, section := range p.Sections {
		hdr := section.Header()

		if hdr.Info == 0 ||
			hdr.SectionType != SectionTypeRelocationWithAddends {
			continue
		}

		if hdr.Info >= uint32(len(p.Sections)) {
			return fmt.Errorf(
				"relocation target index out of bound (%d >= %d)",
				hdr.Info,
				len(p.Sections))
		}

		section.BindTarget(p.Sections[hdr.Info])
	}

	return nil
}

func (p *parser) parseSymbolTable(
	index SectionIndex,
	header SectionHeaderEntry,
	content []byte,
) (
	*SymbolTableSection,
	error,
) {
	if len(content)%Elf64SymbolEntrySize != 0 {
		return nil, fmt.Errorf("invalid symbol table size (%d)", len(content))
	}

	numEntries := len(content) / Elf64SymbolEntrySize
	rawEntries := make([]SymbolEntry, numEntries)
	_, err := binary.Decode(content, p.ByteOrder, rawEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbol table: %w", err)
	}

	table := &SymbolTableSection{
		BaseSection: newBaseSection(index, header),
	}

	symbols := make([]*Symbol, 0, numEntries)
	for idx, entry := range rawEntries {
		symbols = append(
			symbols,
			&Symbol{
				SymbolEntry: entry,
				TableIndex:  uint32(idx),
				Parent:      table,
			})
	}

	table.Symbols = symbols
	return table, nil
}

func (p *parser) parseRelocations(
	index SectionIndex,
	header SectionHeaderEntry,
	content []byte,
) (
	*RelocationSection,
	error,
) {
	if len(content)%Elf64RelocationEntrySize != 0 {
		return nil, fmt.Errorf(
			"invalid relocation section size (%d)",
			len(content))
	}

	rawEntries := make([]RelocationEntry, len(content)/Elf64RelocationEntrySize)
	_, err := binary.Decode(content, p.ByteOrder, rawEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relocations: %w", err)
	}

	section := &RelocationSection{
		BaseSection: newBaseSection(index, header),
	}
	for _, entry := range rawEntries {
		section.Relocations = append(
			section.Relocations,
			&Relocation{
				RelocationEntry: entry,
			})
	}

	return section, nil
}

func (p *parser) parseProgramHeaders() error {
	if p.NumProgramHeaderEntries == 0 {
		return nil
	}

	if p.ProgramHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"out of bound program header offset (%d)",
			p.ProgramHeaderOffset)
	}

	programHeaders := make([]ProgramHeaderEntry, p.NumProgramHeaderEntries)
	_, err := binary.Decode(
		p.content[p.ProgramHeaderOffset:],
		p.ByteOrder,
		programHeaders)
	if err != nil {
		return fmt.Errorf("failed to read program header entries: %w", err)
	}

	p.ProgramHeaders = programHeaders
	return nil
}

// Based on linux's man page, elf.h, golang's debug/elf package, the elf 1.2
// spec and the x86-64 psABI (relocation types).
package elf

import (
	"fmt"
)

var (
	// EI_MAG0 - EI_MAG3
	IdentifierMagic = []byte{0x7f, 'E', 'L', 'F'}
)

const (
	IdentifierVersion = 1 // EI_CURRENT
	ABIVersion        = 0
	FormatVersion     = 1 // EV_CURRENT

	ElfIdentifierSize           = 16
	Elf64HeaderSize             = 64
	Elf64SectionHeaderEntrySize = 64
	Elf64ProgramHeaderEntrySize = 56
	Elf64SymbolEntrySize        = 24
	Elf64RelocationEntrySize    = 24
)

// EI_CLASS
type Class byte

const (
	ClassNone = Class(0) // ELFCLASSNONE
	Class32   = Class(1) // ELFCLASS32
	Class64   = Class(2) // ELFCLASS64
)

func (class Class) String() string {
	switch class {
	case Class32:
		return "Class32"
	case Class64:
		return "Class64"
	default:
		return fmt.Sprintf("Class(%d)", byte(class))
	}
}

// EI_DATA
type DataEncoding byte

const (
	DataEncodingNone                       = DataEncoding(0) // ELFDATANONE
	DataEncodingTwosComplementLittleEndian = DataEncoding(1) // ELFDATA2LSB
	DataEncodingTwosComplementBigEndian    = DataEncoding(2) // ELFDATA2MSB
)

func (encoding DataEncoding) String() string {
	switch encoding {
	case DataEncodingTwosComplementLittleEndian:
		return "LittleEndian"
	case DataEncodingTwosComplementBigEndian:
		return "BigEndian"
	default:
		return fmt.Sprintf("DataEncoding(%d)", byte(encoding))
	}
}

// EI_OSABI
type OperatingSystemABI byte

const (
	OperatingSystemABIUnixSystemV = OperatingSystemABI(0) // ELFOSABI_NONE
	OperatingSystemABILinux       = OperatingSystemABI(3) // ELFOSABI_GNU
)

func (osAbi OperatingSystemABI) String() string {
	switch osAbi {
	case OperatingSystemABIUnixSystemV:
		return "UnixSystemV"
	case OperatingSystemABILinux:
		return "Linux"
	default:
		return fmt.Sprintf("OperatingSystemABI(%d)", byte(osAbi))
	}
}

// e_type
type FileType uint16

const (
	FileTypeNone         = FileType(0) // ET_NONE
	FileTypeRelocatable  = FileType(1) // ET_REL
	FileTypeExecutable   = FileType(2) // ET_EXEC
	FileTypeSharedObject = FileType(3) // ET_DYN
	FileTypeCore         = FileType(4) // ET_CORE
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeRelocatable:
		return "Relocatable"
	case FileTypeExecutable:
		return "Executable"
	case FileTypeSharedObject:
		return "SharedObject"
	case FileTypeCore:
		return "Core"
	default:
		return fmt.Sprintf("FileType(%d)", uint16(ft))
	}
}

type ProgramType uint32

const (
	ProgramNull     = ProgramType(0) // PT_NULL
	ProgramLoadable = ProgramType(1) // PT_LOAD
	ProgramDynamic  = ProgramType(2) // PT_DYNAMIC
)

type ProgramFlags uint32

const (
	ProgramFlagExecutableBit = ProgramFlags(0x1)
	ProgramFlagWritableBit   = ProgramFlags(0x2)
	ProgramFlagReadableBit   = ProgramFlags(0x4)
)

type SectionType uint32

const (
	SectionTypeNull                  = SectionType(0)  // SHT_NULL
	SectionTypeProgramDefinedInfo    = SectionType(1)  // SHT_PROGBITS
	SectionTypeSymbolTable           = SectionType(2)  // SHT_SYMTAB
	SectionTypeStringTable           = SectionType(3)  // SHT_STRTAB
	SectionTypeRelocationWithAddends = SectionType(4)  // SHT_RELA
	SectionTypeSymbolHashTable       = SectionType(5)  // SHT_HASH
	SectionTypeDynamic               = SectionType(6)  // SHT_DYNAMIC
	SectionTypeNote                  = SectionType(7)  // SHT_NOTE
	SectionTypeNoSpace               = SectionType(8)  // SHT_NOBITS
	SectionTypeRelocationNoAddends   = SectionType(9)  // SHT_REL
	SectionTypeDynamicSymbolTable    = SectionType(11) // SHT_DYNSYM
)

func (stype SectionType) String() string {
	switch stype {
	case SectionTypeNull:
		return "Null"
	case SectionTypeProgramDefinedInfo:
		return "ProgBits"
	case SectionTypeSymbolTable:
		return "SymTab"
	case SectionTypeStringTable:
		return "StrTab"
	case SectionTypeRelocationWithAddends:
		return "Rela"
	case SectionTypeNoSpace:
		return "NoBits"
	case SectionTypeRelocationNoAddends:
		return "Rel"
	case SectionTypeDynamicSymbolTable:
		return "DynSym"
	default:
		return fmt.Sprintf("SectionType(%d)", uint32(stype))
	}
}

type SectionFlags uint64

const (
	SectionContainsWritableData  = SectionFlags(0x1)   // SHF_WRITE
	SectionOccupiesMemory        = SectionFlags(0x2)   // SHF_ALLOC
	SectionContainsInstructions  = SectionFlags(0x4)   // SHF_EXECINSTR
	SectionMayBeMerged           = SectionFlags(0x10)  // SHF_MERGE
	SectionContainsStrings       = SectionFlags(0x20)  // SHF_STRINGS
	SectionInfoHoldsSectionIndex = SectionFlags(0x40)  // SHF_INFO_LINK
	SectionIsGroupMember         = SectionFlags(0x200) // SHF_GROUP
	SectionContainsTLSData       = SectionFlags(0x400) // SHF_TLS
	SectionIsCompressed          = SectionFlags(0x800) // SHF_COMPRESSED
)

func (flags SectionFlags) String() string {
	result := []byte("---")
	if flags&SectionContainsWritableData != 0 {
		result[0] = 'w'
	}
	if flags&SectionOccupiesMemory != 0 {
		result[1] = 'a'
	}
	if flags&SectionContainsInstructions != 0 {
		result[2] = 'x'
	}
	return string(result)
}

// e_machine
type MachineArchitecture uint16

const (
	MachineArchitectureNone   = MachineArchitecture(0)  // EM_NONE
	MachineArchitectureX86_64 = MachineArchitecture(62) // EM_X86_64
)

func (arch MachineArchitecture) String() string {
	switch arch {
	case MachineArchitectureX86_64:
		return "x86-64"
	default:
		return fmt.Sprintf("MachineArchitecture(%d)", uint16(arch))
	}
}

// The bottom 4 bits of st_info
type SymbolType byte

func SymbolInfoToType(info byte) SymbolType {
	return SymbolType(info & 0xf)
}

const (
	SymbolTypeNone                     = SymbolType(0)  // STT_NOTYPE
	SymbolTypeObject                   = SymbolType(1)  // STT_OBJECT
	SymbolTypeFunction                 = SymbolType(2)  // STT_FUNC
	SymbolTypeSection                  = SymbolType(3)  // STT_SECTION
	SymbolTypeSourceFile               = SymbolType(4)  // STT_FILE
	SymbolTypeUninitializedCommonBlock = SymbolType(5)  // STT_COMMON
	SymbolTypeTLSObject                = SymbolType(6)  // STT_TLS
	SymbolTypeIndirectFunction         = SymbolType(10) // STT_GNU_IFUNC
)

func (st SymbolType) String() string {
	switch st {
	case SymbolTypeNone:
		return "NoType"
	case SymbolTypeObject:
		return "Object"
	case SymbolTypeFunction:
		return "Function"
	case SymbolTypeSection:
		return "Section"
	case SymbolTypeSourceFile:
		return "SourceFile"
	case SymbolTypeIndirectFunction:
		return "IndirectFunction"
	default:
		return fmt.Sprintf("SymbolType(%d)", byte(st))
	}
}

// The top 4 bits of st_info
type SymbolBinding byte

func SymbolInfoToBinding(info byte) SymbolBinding {
	return SymbolBinding(info >> 4)
}

func SymbolInfo(binding SymbolBinding, symbolType SymbolType) byte {
	return byte(binding)<<4 | byte(symbolType)&0xf
}

const (
	SymbolBindingLocal  = SymbolBinding(0) // STB_LOCAL
	SymbolBindingGlobal = SymbolBinding(1) // STB_GLOBAL
	SymbolBindingWeak   = SymbolBinding(2) // STB_WEAK
)

func (binding SymbolBinding) String() string {
	switch binding {
	case SymbolBindingLocal:
		return "Local"
	case SymbolBindingGlobal:
		return "Global"
	case SymbolBindingWeak:
		return "Weak"
	default:
		return fmt.Sprintf("SymbolBinding(%d)", byte(binding))
	}
}

type SymbolVisibility byte

const (
	SymbolVisibilityDefault = SymbolVisibility(0) // STV_DEFAULT
	SymbolVisibilityHidden  = SymbolVisibility(2) // STV_HIDDEN
)

type SectionIndex uint16

const (
	SectionIndexUndefined = SectionIndex(0)
	SectionIndexAbsolute  = SectionIndex(0xfff1)
	SectionIndexCommon    = SectionIndex(0xfff2)

	SectionStringTableName = ".shstrtab"
	StringTableName        = ".strtab"
	SymbolTableName        = ".symtab"
)

// Relocation types (ELF64_R_TYPE) from the x86-64 psABI.
type RelocationType uint32

const (
	R_X86_64_NONE            = RelocationType(0)
	R_X86_64_64              = RelocationType(1)
	R_X86_64_PC32            = RelocationType(2)
	R_X86_64_GOT32           = RelocationType(3)
	R_X86_64_PLT32           = RelocationType(4)
	R_X86_64_GOTPCREL        = RelocationType(9)
	R_X86_64_32              = RelocationType(10)
	R_X86_64_32S             = RelocationType(11)
	R_X86_64_16              = RelocationType(12)
	R_X86_64_8               = RelocationType(14)
	R_X86_64_PC64            = RelocationType(24)
	R_X86_64_GOTOFF64        = RelocationType(25)
	R_X86_64_GOTPC32         = RelocationType(26)
	R_X86_64_GOT64           = RelocationType(27)
	R_X86_64_GOTPCREL64      = RelocationType(28)
	R_X86_64_GOTPC64         = RelocationType(29)
	R_X86_64_PLTOFF64        = RelocationType(31)
	R_X86_64_GOTPCRELX       = RelocationType(41)
	R_X86_64_REX_GOTPCRELX   = RelocationType(42)
)

var relocationTypeNames = map[RelocationType]string{
	R_X86_64_NONE:          "R_X86_64_NONE",
	R_X86_64_64:            "R_X86_64_64",
	R_X86_64_PC32:          "R_X86_64_PC32",
	R_X86_64_GOT32:         "R_X86_64_GOT32",
	R_X86_64_PLT32:         "R_X86_64_PLT32",
	R_X86_64_GOTPCREL:      "R_X86_64_GOTPCREL",
	R_X86_64_32:            "R_X86_64_32",
	R_X86_64_32S:           "R_X86_64_32S",
	R_X86_64_16:            "R_X86_64_16",
	R_X86_64_8:             "R_X86_64_8",
	R_X86_64_PC64:          "R_X86_64_PC64",
	R_X86_64_GOTOFF64:      "R_X86_64_GOTOFF64",
	R_X86_64_GOTPC32:       "R_X86_64_GOTPC32",
	R_X86_64_GOT64:         "R_X86_64_GOT64",
	R_X86_64_GOTPCREL64:    "R_X86_64_GOTPCREL64",
	R_X86_64_GOTPC64:       "R_X86_64_GOTPC64",
	R_X86_64_PLTOFF64:      "R_X86_64_PLTOFF64",
	R_X86_64_GOTPCRELX:     "R_X86_64_GOTPCRELX",
	R_X86_64_REX_GOTPCRELX: "R_X86_64_REX_GOTPCRELX",
}

func (rt RelocationType) String() string {
	name, ok := relocationTypeNames[rt]
	if ok {
		return name
	}
	return fmt.Sprintf("RelocationType(%d)", uint32(rt))
}

// Header structs matching c's elf64 header definitions.  These are only used
// for (de-)serialization.

// e_ident
type Identifier struct {
	Magic              [4]byte // EI_MAG0 ... EI_MAG3
	Class                      // EI_CLASS
	DataEncoding               // EI_DATA
	IdentifierVersion  byte    // EI_VERSION
	OperatingSystemABI         // EI_OSABI
	ABIVersion         byte    // EI_ABIVERSION
	Padding            [7]byte // EI_PAD
}

// Elf64_Ehdr
type ElfHeader struct {
	Identifier                           // e_ident[EI_NIDENT]
	FileType                             // e_type
	MachineArchitecture                  // e_machine
	FormatVersion           uint32       // e_version
	EntryPointAddress       uint64       // e_entry
	ProgramHeaderOffset     uint64       // e_phoff
	SectionHeaderOffset     uint64       // e_shoff
	ArchitectureFlags       uint32       // e_flags
	ElfHeaderSize           uint16       // e_ehsize
	ProgramHeaderEntrySize  uint16       // e_phentsize
	NumProgramHeaderEntries uint16       // e_phnum
	SectionHeaderEntrySize  uint16       // e_shentsize
	NumSectionHeaderEntries uint16       // e_shnum
	SectionStringTableIndex SectionIndex // e_shstrndx
}

// Elf64_Phdr
type ProgramHeaderEntry struct {
	ProgramType            // p_type
	ProgramFlags           // p_flags
	ContentOffset   uint64 // p_offset
	VirtualAddress  uint64 // p_vaddr
	PhysicalAddress uint64 // p_paddr
	FileImageSize   uint64 // filesz
	MemoryImageSize uint64 // p_memsz
	Alignment       uint64 // p_align
}

// Elf64_Shdr
type SectionHeaderEntry struct {
	NameIndex        uint32 // sh_name
	SectionType             // sh_type
	SectionFlags            // sh_flags
	Address          uint64 // sh_addr
	Offset           uint64 // sh_offset
	Size             uint64 // sh_size
	Link             uint32 // sh_link
	Info             uint32 // sh_info
	AddressAlignment uint64 // sh_addralign
	EntrySize        uint64 // sh_entsize
}

// Elf64_Sym
type SymbolEntry struct {
	NameIndex        uint32 // st_name
	Info             byte   // st_info.  (4 bits st_bind, 4 bits st_type)
	SymbolVisibility        // st_other
	SectionIndex            // st_shndx
	Value            uint64 // st_value
	Size             uint64 // st_size
}

// Elf64_Rela
type RelocationEntry struct {
	Offset uint64 // r_offset
	Info   uint64 // r_info.  (32 bits symbol index, 32 bits type)
	Addend int64  // r_addend
}

func (entry RelocationEntry) SymbolIndex() uint32 {
	return uint32(entry.Info >> 32)
}

func (entry RelocationEntry) Type() RelocationType {
	return RelocationType(entry.Info & 0xffffffff)
}

func RelocationInfo(symbolIndex uint32, relocType RelocationType) uint64 {
	return uint64(symbolIndex)<<32 | uint64(relocType)
}

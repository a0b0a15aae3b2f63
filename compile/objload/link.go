package objload

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/elf"
)

const (
	tocSection = ".toc"
	tocOffset  = 0x8000
)

// LinkCallbacks receives the problems found while relocating a compiled
// module.  None of them abort the load.
type LinkCallbacks interface {
	MultipleDefinition(module string, name string)
	UndefinedSymbol(module string, name string, section string)
	RelocOverflow(
		module string,
		name string,
		section string,
		relocType elf.RelocationType)
	RelocDangerous(module string, section string, message string)
	UnattachedReloc(module string, name string, section string)
}

// LoggingLinkCallbacks reports link problems as warnings.
type LoggingLinkCallbacks struct {
	Logger logrus.FieldLogger
}

func (callbacks LoggingLinkCallbacks) logger() logrus.FieldLogger {
	if callbacks.Logger == nil {
		return logrus.StandardLogger()
	}
	return callbacks.Logger
}

func (callbacks LoggingLinkCallbacks) MultipleDefinition(
	module string,
	name string,
) {
	callbacks.logger().WithField("symbol", name).Warnf(
		"Compiled module \"%s\": multiple symbol definitions of \"%s\".",
		module,
		name)
}

func (callbacks LoggingLinkCallbacks) UndefinedSymbol(
	module string,
	name string,
	section string,
) {
	callbacks.logger().WithField("symbol", name).Warnf(
		"Cannot resolve relocation to \"%s\" from compiled module \"%s\" "+
			"section \"%s\".",
		name,
		module,
		section)
}

func (callbacks LoggingLinkCallbacks) RelocOverflow(
	module string,
	name string,
	section string,
	relocType elf.RelocationType,
) {
	callbacks.logger().WithField("symbol", name).Warnf(
		"Compiled module \"%s\" section \"%s\": relocation %s overflows for "+
			"\"%s\".",
		module,
		section,
		relocType,
		name)
}

func (callbacks LoggingLinkCallbacks) RelocDangerous(
	module string,
	section string,
	message string,
) {
	callbacks.logger().WithField("section", section).Warnf(
		"Compiled module \"%s\" section \"%s\": dangerous relocation: %s",
		module,
		section,
		message)
}

func (callbacks LoggingLinkCallbacks) UnattachedReloc(
	module string,
	name string,
	section string,
) {
	callbacks.logger().WithField("symbol", name).Warnf(
		"Compiled module \"%s\" section \"%s\": unattached relocation to "+
			"\"%s\".",
		module,
		section,
		name)
}

type linker struct {
	module    string
	file      *elf.File
	addresses map[elf.SectionIndex]VirtualAddress

	// Runtime values of the object's undefined symbols.
	resolved map[string]VirtualAddress

	inferior  Inferior
	symbols   *symbols.Table
	callbacks LinkCallbacks
	logger    logrus.FieldLogger
}

// tocAddress places .TOC. the way the linker would: in .toc whenever it
// exists, else in the first allocated section, else in the absolute
// section.  Sections which were not mapped have address 0.
func (linker *linker) tocAddress() VirtualAddress {
	section, ok := linker.file.GetSection(tocSection)
	if !ok {
		section = nil
		for _, candidate := range linker.file.Sections {
			flags := candidate.Header().SectionFlags
			if flags&elf.SectionOccupiesMemory != 0 {
				section = candidate
				break
			}
		}
	}

	if section == nil {
		return tocOffset
	}

	return linker.addresses[section.Index()] + tocOffset
}

// resolveSymbols resolves the object's undefined symbols against the
// program's minimal symbols.
func (linker *linker) resolveSymbols() error {
	linker.resolved = map[string]VirtualAddress{}

	symtab, ok := linker.file.SymbolTable()
	if !ok {
		return nil
	}

	defined := map[string]struct{}{}
	missing := 0
	for _, symbol := range symtab.Symbols {
		if symbol.Name == "" {
			continue
		}

		if !symbol.IsUndefined() {
			if symbol.Binding() == elf.SymbolBindingLocal {
				continue
			}

			_, ok := defined[symbol.Name]
			if ok {
				linker.callbacks.MultipleDefinition(linker.module, symbol.Name)
			}
			defined[symbol.Name] = struct{}{}
			continue
		}

		switch symbol.Name {
		case protocol.GlobalOffsetTableSymbol:
			// Code is compiled with -mcmodel=large; the got is never used.
			linker.resolved[symbol.Name] = 0
			continue
		case protocol.TOCSymbol:
			linker.resolved[symbol.Name] = linker.tocAddress()
			continue
		}

		minSym, ok := linker.symbols.LookupMinimalSymbol(symbol.Name)
		if ok {
			switch minSym.Class {
			case symbols.TextSymbol,
				symbols.DataSymbol,
				symbols.BssSymbol,
				symbols.AbsoluteSymbol:

				linker.resolved[symbol.Name] = minSym.Address
				continue

			case symbols.IndirectFunctionSymbol:
				addr, err := linker.inferior.ResolveIndirectFunction(
					minSym.Address)
				if err != nil {
					return err
				}
				linker.resolved[symbol.Name] = addr
				continue
			}
		}

		linker.logger.WithField("symbol", symbol.Name).Warnf(
			"Could not find symbol \"%s\" for compiled module \"%s\".",
			symbol.Name,
			linker.module)
		missing++
	}

	if missing == 1 {
		return fmt.Errorf("%d symbol was missing, cannot continue.", missing)
	} else if missing > 1 {
		return fmt.Errorf("%d symbols were missing, cannot continue.", missing)
	}

	return nil
}

// symbolValue returns the runtime value of a relocation's symbol.
func (linker *linker) symbolValue(
	reloc *elf.Relocation,
	section string,
) (
	VirtualAddress,
	bool,
) {
	symbol := reloc.Symbol
	if symbol == nil {
		return 0, true
	}

	switch symbol.SectionIndex {
	case elf.SectionIndexUndefined:
		addr, ok := linker.resolved[symbol.Name]
		if !ok {
			linker.callbacks.UndefinedSymbol(linker.module, symbol.Name, section)
			return 0, false
		}
		return addr, true

	case elf.SectionIndexAbsolute:
		return VirtualAddress(symbol.Value), true

	case elf.SectionIndexCommon:
		linker.callbacks.RelocDangerous(
			linker.module,
			section,
			fmt.Sprintf("common symbol \"%s\" is not allocated", symbol.Name))
		return 0, false
	}

	base, ok := linker.addresses[symbol.SectionIndex]
	if !ok {
		linker.callbacks.UnattachedReloc(linker.module, symbol.Name, section)
		return 0, false
	}

	if symbol.Type() == elf.SymbolTypeSection {
		return base, true
	}
	return base + VirtualAddress(symbol.Value), true
}

// relocatedContents returns the section's contents with all relocations
// applied.
func (linker *linker) relocatedContents(
	section elf.Section,
	relocSections []*elf.RelocationSection,
) (
	[]byte,
	error,
) {
	raw, err := section.RawContent()
	if err != nil {
		return nil, fmt.Errorf(
			"failed to read compiled module section %s: %w",
			section.Name(),
			err)
	}

	contents := make([]byte, len(raw))
	copy(contents, raw)

	place := linker.addresses[section.Index()]
	for _, relocSection := range relocSections {
		if relocSection.Target == nil ||
			relocSection.Target.Index() != section.Index() {

			continue
		}

		for _, reloc := range relocSection.Relocations {
			err := linker.apply(section.Name(), contents, place, reloc)
			if err != nil {
				return nil, err
			}
		}
	}

	return contents, nil
}

func (linker *linker) apply(
	section string,
	contents []byte,
	sectionAddr VirtualAddress,
	reloc *elf.Relocation,
) error {
	relocType := reloc.Type()
	if relocType == elf.R_X86_64_NONE {
		return nil
	}

	symbolValue, ok := linker.symbolValue(reloc, section)
	if !ok {
		return nil
	}

	name := ""
	if reloc.Symbol != nil {
		name = reloc.Symbol.Name
	}

	value := int64(symbolValue) + reloc.Addend
	place := int64(sectionAddr) + int64(reloc.Offset)

	size := 0
	overflow := false
	switch relocType {
	case elf.R_X86_64_64:
		size = 8
	case elf.R_X86_64_PC64:
		size = 8
		value -= place
	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
		size = 4
		value -= place
		overflow = value < math.MinInt32 || value > math.MaxInt32
	case elf.R_X86_64_32:
		size = 4
		overflow = value < 0 || value > math.MaxUint32
	case elf.R_X86_64_32S:
		size = 4
		overflow = value < math.MinInt32 || value > math.MaxInt32
	case elf.R_X86_64_16:
		size = 2
		overflow = value < math.MinInt16 || value > math.MaxUint16
	case elf.R_X86_64_8:
		size = 1
		overflow = value < math.MinInt8 || value > math.MaxUint8
	default:
		return fmt.Errorf(
			"Compiled module \"%s\" section \"%s\": unsupported relocation %s.",
			linker.module,
			section,
			relocType)
	}

	if reloc.Offset+uint64(size) > uint64(len(contents)) {
		linker.callbacks.RelocDangerous(
			linker.module,
			section,
			fmt.Sprintf(
				"%s at offset 0x%x is out of bound",
				relocType,
				reloc.Offset))
		return nil
	}

	if overflow {
		linker.callbacks.RelocOverflow(linker.module, name, section, relocType)
		return nil
	}

	out := contents[reloc.Offset:]
	switch size {
	case 8:
		binary.LittleEndian.PutUint64(out, uint64(value))
	case 4:
		binary.LittleEndian.PutUint32(out, uint32(value))
	case 2:
		binary.LittleEndian.PutUint16(out, uint16(value))
	case 1:
		out[0] = byte(value)
	}

	return nil
}

// relocate writes every allocated section (with relocations applied) into
// the inferior.
func (linker *linker) relocate() error {
	relocSections := linker.file.RelocationSections()

	for _, section := range linker.file.Sections {
		addr, ok := linker.addresses[section.Index()]
		if !ok {
			continue
		}

		header := section.Header()
		if header.SectionType == elf.SectionTypeNoSpace {
			// Anonymous mappings are already zero filled.
			continue
		}

		contents, err := linker.relocatedContents(section, relocSections)
		if err != nil {
			return err
		}

		err = linker.inferior.WriteMemory(addr, contents)
		if err != nil {
			return fmt.Errorf(
				"failed to write compiled module section %s at %s: %w",
				section.Name(),
				addr,
				err)
		}
	}

	return nil
}

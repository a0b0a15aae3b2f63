package elf

import (
	"fmt"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type FileSuite struct{}

func TestFile(t *testing.T) {
	suite.RunTests(t, &FileSuite{})
}

func buildObject(t *testing.T) *File {
	builder := NewRelocatableBuilder()
	builder.AddSection(BuilderSection{
		Name:      ".text",
		Type:      SectionTypeProgramDefinedInfo,
		Flags:     SectionOccupiesMemory | SectionContainsInstructions,
		Alignment: 16,
		Content:   []byte{0x55, 0x48, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0xc3},
	})
	builder.AddSection(BuilderSection{
		Name:      ".bss",
		Type:      SectionTypeNoSpace,
		Flags:     SectionOccupiesMemory | SectionContainsWritableData,
		Alignment: 8,
		Size:      32,
	})
	builder.AddSymbol(BuilderSymbol{
		Name:    "_ZN3foo3barEv",
		Binding: SymbolBindingGlobal,
		Type:    SymbolTypeFunction,
		Section: ".text",
		Size:    12,
	})
	builder.AddSymbol(BuilderSymbol{
		Name:    "local_counter",
		Binding: SymbolBindingLocal,
		Type:    SymbolTypeObject,
		Section: ".bss",
		Value:   8,
		Size:    8,
	})
	builder.AddSymbol(BuilderSymbol{
		Name:    "memcpy",
		Binding: SymbolBindingGlobal,
	})
	builder.AddRelocation(BuilderRelocation{
		Section: ".text",
		Offset:  3,
		Symbol:  "memcpy",
		Type:    R_X86_64_64,
		Addend:  -2,
	})

	content, err := builder.Bytes()
	expect.Nil(t, err)

	file, err := ParseBytes(content)
	expect.Nil(t, err)
	return file
}

func (FileSuite) TestRelocatableRoundTrip(t *testing.T) {
	file := buildObject(t)

	expect.Equal(t, FileTypeRelocatable, file.FileType)
	expect.Equal(t, 0, len(file.ProgramHeaders))

	text, ok := file.GetSection(".text")
	expect.True(t, ok)
	expect.Equal(t, SectionIndex(1), text.Index())
	expect.Equal(t, uint64(16), text.Header().AddressAlignment)

	content, err := text.RawContent()
	expect.Nil(t, err)
	expect.Equal(t, 12, len(content))
	expect.Equal(t, byte(0xc3), content[11])

	bss, ok := file.GetSection(".bss")
	expect.True(t, ok)
	expect.Equal(t, uint64(32), bss.Header().Size)
	expect.Equal(t, SectionTypeNoSpace, bss.Header().SectionType)
}

func (FileSuite) TestSymbolTable(t *testing.T) {
	file := buildObject(t)

	symtab, ok := file.SymbolTable()
	expect.True(t, ok)
	expect.Equal(t, 4, len(symtab.Symbols))

	// locals are emitted before globals
	expect.Equal(t, "local_counter", symtab.Symbols[1].Name)
	expect.Equal(t, SymbolBindingLocal, symtab.Symbols[1].Binding())

	matches := symtab.SymbolsByName("foo::bar()")
	expect.Equal(t, 1, len(matches))
	expect.Equal(t, "_ZN3foo3barEv", matches[0].Name)
	expect.Equal(t, SymbolTypeFunction, matches[0].Type())

	matches = symtab.SymbolsByName("memcpy")
	expect.Equal(t, 1, len(matches))
	expect.True(t, matches[0].IsUndefined())
}

func (FileSuite) TestSymbolDescriptions(t *testing.T) {
	file := buildObject(t)

	symtab, ok := file.SymbolTable()
	expect.True(t, ok)

	local := symtab.Symbols[1]
	expect.Equal(
		t,
		"Local Object",
		fmt.Sprintf("%s %s", local.Binding(), local.Type()))

	expect.Equal(t, "Weak", SymbolBindingWeak.String())
	expect.Equal(t, "SymbolBinding(10)", SymbolBinding(10).String())
}

func (FileSuite) TestRelocations(t *testing.T) {
	file := buildObject(t)

	relocSections := file.RelocationSections()
	expect.Equal(t, 1, len(relocSections))

	relocs := relocSections[0]
	expect.Equal(t, ".rela.text", relocs.Name())
	expect.NotNil(t, relocs.Target)
	expect.Equal(t, ".text", relocs.Target.Name())
	expect.Equal(t, 1, len(relocs.Relocations))

	reloc := relocs.Relocations[0]
	expect.Equal(t, uint64(3), reloc.Offset)
	expect.Equal(t, int64(-2), reloc.Addend)
	expect.Equal(t, R_X86_64_64, reloc.Type())
	expect.NotNil(t, reloc.Symbol)
	expect.Equal(t, "memcpy", reloc.Symbol.Name)
}

func (FileSuite) TestRejectsGarbage(t *testing.T) {
	_, err := ParseBytes([]byte("not an elf file"))
	expect.Error(t, err, "too small")

	content := make([]byte, 64)
	_, err = ParseBytes(content)
	expect.Error(t, err, "invalid elf magic number")
}

func (FileSuite) TestBuilderRejectsUnknownSymbol(t *testing.T) {
	builder := NewRelocatableBuilder()
	builder.AddSection(BuilderSection{
		Name:  ".text",
		Type:  SectionTypeProgramDefinedInfo,
		Flags: SectionOccupiesMemory,
	})
	builder.AddRelocation(BuilderRelocation{
		Section: ".text",
		Symbol:  "missing",
		Type:    R_X86_64_PC32,
	})

	_, err := builder.Bytes()
	expect.Error(t, err, "unknown symbol (missing)")
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pattyshack/badc/elf"
)

// Dumps an elf file, usually a compiled module's relocatable object left in
// the compile temp directory by "debug: true".
func main() {
	symbols := true
	relocations := true

	cmd := &cobra.Command{
		Use:   "print-elf <file>",
		Short: "Print an elf file's sections, symbols and relocations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			file, err := elf.ParseBytes(content)
			if err != nil {
				return err
			}

			printFile(cmd.OutOrStdout(), file, symbols, relocations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&symbols, "symbols", true, "print symbol tables")
	cmd.Flags().BoolVar(
		&relocations,
		"relocations",
		true,
		"print relocation sections")

	err := cmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func printFile(
	out io.Writer,
	file *elf.File,
	printSymbols bool,
	printRelocations bool,
) {
	fmt.Fprintf(out, "Header: %v\n", file.ElfHeader)

	fmt.Fprintln(out, "Sections:", len(file.Sections))
	for sectionIdx, section := range file.Sections {
		allocated := ""
		if section.Header().SectionFlags&elf.SectionOccupiesMemory != 0 {
			allocated = " (alloc)"
		}
		fmt.Fprintf(
			out,
			"  [%d] %s%s: %v\n",
			sectionIdx,
			section.Name(),
			allocated,
			section.Header())

		switch s := section.(type) {
		case *elf.SymbolTableSection:
			if !printSymbols {
				continue
			}

			for symbolIdx, entry := range s.Symbols {
				fmt.Fprintf(
					out,
					"    %d: %x %d %s %s %d %s\n",
					symbolIdx,
					entry.Value,
					entry.Size,
					entry.Type(),
					entry.Binding(),
					entry.SectionIndex,
					entry.PrettyName())
			}
		case *elf.RelocationSection:
			if !printRelocations {
				continue
			}

			target := "<none>"
			if s.Target != nil {
				target = s.Target.Name()
			}
			fmt.Fprintf(out, "    applies to %s\n", target)

			for _, reloc := range s.Relocations {
				name := "<none>"
				if reloc.Symbol != nil {
					name = reloc.Symbol.PrettyName()
				}

				fmt.Fprintf(
					out,
					"    0x%x %s %s%+d\n",
					reloc.Offset,
					reloc.Type(),
					name,
					reloc.Addend)
			}
		}
	}

	fmt.Fprintln(out, "Program headers:", len(file.ProgramHeaders))
	for headerIdx, header := range file.ProgramHeaders {
		fmt.Fprintf(out, "  [%d] %v\n", headerIdx, header)
	}
}

package main

import (
	godwarf "debug/dwarf"
	goelf "debug/elf"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pattyshack/badc/dwarf"
)

// Prints the decoded frame base and location expressions of every
// function, variable and parameter, i.e., what the compile scope generator
// sees when it emits the register struct accesses.
func main() {
	cmd := &cobra.Command{
		Use:   "print-dwarf <file>",
		Short: "Print an elf file's dwarf location expressions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := goelf.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			data, err := file.DWARF()
			if err != nil {
				return fmt.Errorf("failed to read dwarf: %w", err)
			}

			return printLocations(cmd.OutOrStdout(), data)
		},
	}

	err := cmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func printLocations(out io.Writer, data *godwarf.Data) error {
	reader := data.Reader()
	depth := 0
	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		if entry.Tag == 0 {
			depth--
			continue
		}

		indent := strings.Repeat("  ", depth)
		if entry.Children {
			depth++
		}

		switch entry.Tag {
		case godwarf.TagCompileUnit,
			godwarf.TagSubprogram,
			godwarf.TagLexDwarfBlock,
			godwarf.TagVariable,
			godwarf.TagFormalParameter:
		default:
			continue
		}

		name, _ := entry.Val(godwarf.AttrName).(string)
		fmt.Fprintf(out, "%s%s %s\n", indent, entry.Tag, name)

		for _, attr := range []godwarf.Attr{
			godwarf.AttrFrameBase,
			godwarf.AttrLocation,
		} {
			field := entry.AttrField(attr)
			if field == nil {
				continue
			}

			expr, ok := field.Val.([]byte)
			if !ok {
				// location lists
				fmt.Fprintf(out, "%s  %s: %v\n", indent, attr, field.Val)
				continue
			}

			instructions, err := dwarf.DecodeExpression(expr)
			if err != nil {
				fmt.Fprintf(out, "%s  %s: %s\n", indent, attr, err)
				continue
			}

			for _, inst := range instructions {
				fmt.Fprintf(out, "%s  %s: %s\n", indent, attr, inst)
			}
		}
	}
}

package protocol

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/debugger/registers"
)

// Identifiers shared by the generated source, the compiler front end and
// the compiled module's symbol table.
const (
	WrapperFunctionName = "_gdb_expr"

	RegisterStructTag   = "__gdb_regs"
	RegisterArgName     = "__regs"
	RegisterStructDummy = "_dummy"

	OutParamType = "void *"
	OutParamName = "__gdb_out_param"

	ExprValueName   = "__gdb_expr_val"
	ExprPointerType = "__gdb_expr_ptr_type"

	UintptrTypeName = "__gdb_uintptr"
	IntptrTypeName  = "__gdb_intptr"

	// Diagnostics for the user's code are reported against this file name.
	CommandLineFileName  = "gdb command line"
	CommandLineDirective = "#line 1 \"" + CommandLineFileName + "\""

	// The prefix of the variables holding dynamic array bounds.
	DynamicPropertyPrefix = "__gdb_prop_"

	GlobalOffsetTableSymbol = "_GLOBAL_OFFSET_TABLE_"
	TOCSymbol               = ".TOC."
)

// RegisterName returns the register struct field name mirroring reg.
func RegisterName(reg registers.Spec) string {
	return "__" + reg.Name
}

// RegisterByName is the inverse of RegisterName.
func RegisterByName(name string) (registers.Spec, error) {
	if !strings.HasPrefix(name, "__") {
		return registers.Spec{}, fmt.Errorf("Invalid register name \"%s\".", name)
	}

	reg, ok := registers.ByName(name[2:])
	if !ok || !reg.IsRaw {
		return registers.Spec{}, fmt.Errorf(
			"Cannot find gdbarch register \"%s\".",
			name[2:])
	}

	return reg, nil
}

// SubstitutionName is the name of the local variable holding the address of
// a frame relative symbol.
func SubstitutionName(symbolName string) string {
	return "__" + symbolName
}

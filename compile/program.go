package compile

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/debugger/registers"
)

// Language describes how a source language's compiled expression program is
// generated.
type Language struct {
	Name string

	// Passed to the compiler driver (-x <SourceLanguage>).
	SourceLanguage string

	// The front end library's context entry point for the language.
	EntryPoint string

	// Front end versions to request, in order of preference.
	Versions []VersionPair

	// Code emitted before the user's code (after the prelude), by scope.
	Headers map[protocol.Scope]string

	// Code emitted after the user's code, by scope.
	Footers map[protocol.Scope]string

	// Brackets the user's code (except in raw scope).
	PushUserExpression string
	PopUserExpression  string

	// PrintInput captures the value of the expression in the print scopes.
	// Arguments: the expression, and the address-of operator applied to the
	// captured value (empty for print value scope).
	PrintInput string

	// Print address scope's address-of operator.
	AddressOf string

	requiresCPlus bool
	newConverter  func(*Instance) typeConverter
}

type VersionPair struct {
	Base     protocol.Version
	Language protocol.Version
}

var (
	C = &Language{
		Name:           "c",
		SourceLanguage: "c",
		EntryPoint:     "gcc_c_fe_context",
		Versions: []VersionPair{
			{protocol.BaseVersion1, protocol.CVersion1},
			{protocol.BaseVersion0, protocol.CVersion0},
		},
		Headers: map[protocol.Scope]string{
			protocol.SimpleScope: fmt.Sprintf(
				"void %s (struct %s *%s) {\n",
				protocol.WrapperFunctionName,
				protocol.RegisterStructTag,
				protocol.RegisterArgName),
			// <string.h> is needed for the memcpy call in PrintInput.
			protocol.PrintAddressScope: printHeader("#include <string.h>\n"),
			protocol.PrintValueScope:   printHeader("#include <string.h>\n"),
		},
		Footers: map[protocol.Scope]string{
			protocol.SimpleScope:       "}\n",
			protocol.PrintAddressScope: "}\n",
			protocol.PrintValueScope:   "}\n",
		},
		PrintInput: "__auto_type " + protocol.ExprValueName + " = %[1]s;\n" +
			"typeof (%[1]s) *" + protocol.ExprPointerType + ";\n" +
			"__builtin_memcpy (" + protocol.OutParamName + ", %[2]s" +
			protocol.ExprValueName + ",\n" +
			"\tsizeof (*" + protocol.ExprPointerType + "));\n",
		AddressOf:    "&",
		newConverter: newCTypeConverter,
	}

	CPlus = &Language{
		Name:           "c++",
		SourceLanguage: "c++",
		EntryPoint:     "gcc_cp_fe_context",
		Versions: []VersionPair{
			{protocol.BaseVersion1, protocol.CPlusVersion0},
		},
		Headers: map[protocol.Scope]string{
			protocol.SimpleScope: fmt.Sprintf(
				"void %s (struct %s *%s) {\n",
				protocol.WrapperFunctionName,
				protocol.RegisterStructTag,
				protocol.RegisterArgName),
			protocol.PrintAddressScope: printHeader(
				"#include <cstring>\n#include <bits/move.h>\n"),
			protocol.PrintValueScope: printHeader(
				"#include <cstring>\n#include <bits/move.h>\n"),
		},
		Footers: map[protocol.Scope]string{
			protocol.SimpleScope:       "}\n",
			protocol.PrintAddressScope: "}\n",
			protocol.PrintValueScope:   "}\n",
		},
		PushUserExpression: "#pragma GCC push_user_expression\n",
		PopUserExpression:  "#pragma GCC pop_user_expression\n",
		PrintInput: "auto " + protocol.ExprValueName + " = %[1]s;\n" +
			"decltype ( %[1]s ) *" + protocol.ExprPointerType + ";\n" +
			"std::memcpy (" + protocol.OutParamName + ", %[2]s (" +
			protocol.ExprValueName + "),\n" +
			"\tsizeof (*" + protocol.ExprPointerType + "));\n",
		AddressOf:     "__builtin_addressof",
		requiresCPlus: true,
		newConverter:  newCPlusTypeConverter,
	}

	languages = []*Language{C, CPlus}
)

func printHeader(includes string) string {
	return fmt.Sprintf(
		"%svoid %s (struct %s *%s, %s %s) {\n",
		includes,
		protocol.WrapperFunctionName,
		protocol.RegisterStructTag,
		protocol.RegisterArgName,
		protocol.OutParamType,
		protocol.OutParamName)
}

func LanguageByName(name string) (*Language, bool) {
	for _, lang := range languages {
		if lang.Name == name {
			return lang, true
		}
	}
	return nil, false
}

// Macro is a preprocessor macro in scope at the expression's location.
type Macro struct {
	Name string

	// nil for object-like macros.
	Params []string

	Replacement string

	// Macros defined on the compiler command line are supplied by the
	// compile arguments instead.
	FromCommandLine bool
}

type MacroSource interface {
	MacrosAt(instance *Instance) []Macro
}

// modeForSize returns the gcc machine mode of an integer of the given byte
// size.
func modeForSize(size uintptr) (string, bool) {
	switch size {
	case 1:
		return "QI", true
	case 2:
		return "HI", true
	case 4:
		return "SI", true
	case 8:
		return "DI", true
	default:
		return "", false
	}
}

func writeRegisterStruct(builder *strings.Builder, used RegisterSet) {
	fmt.Fprintf(builder, "struct %s {\n", protocol.RegisterStructTag)
	seen := false
	for _, reg := range registers.RawSpecs {
		if !used.Contains(reg) {
			continue
		}
		seen = true

		name := protocol.RegisterName(reg)

		// Target type names (int64_t, etc.) may not be defined in the
		// inferior, so only builtin spellings are used.
		switch reg.Representation {
		case registers.PointerRepresentation:
			fmt.Fprintf(builder, "  %s %s;\n", protocol.UintptrTypeName, name)
			continue
		case registers.IntegerRepresentation:
			mode, ok := modeForSize(reg.Size)
			if ok {
				fmt.Fprintf(
					builder,
					"  int __attribute__ ((__mode__(__%s__))) %s;\n",
					mode,
					name)
				continue
			}
		}

		fmt.Fprintf(
			builder,
			"  unsigned char %s[%d] "+
				"__attribute__((__aligned__(__BIGGEST_ALIGNMENT__)));\n",
			name,
			reg.Size)
	}

	if !seen {
		fmt.Fprintf(builder, "  char %s;\n", protocol.RegisterStructDummy)
	}

	builder.WriteString("};\n\n")
}

func writeMacros(builder *strings.Builder, macros []Macro) {
	for _, macro := range macros {
		if macro.FromCommandLine {
			continue
		}

		// Redefining an identical macro would still warn.
		fmt.Fprintf(builder, "#ifndef %s\n# define %s", macro.Name, macro.Name)
		if macro.Params != nil {
			fmt.Fprintf(builder, "(%s)", strings.Join(macro.Params, ", "))
		}
		fmt.Fprintf(builder, " %s\n#endif\n", macro.Replacement)
	}
}

// ComputeProgram generates the program compiling the user's input in the
// instance's scope.
func (instance *Instance) ComputeProgram(input string) (string, error) {
	scope := instance.options.Scope
	lang := instance.language

	builder := &strings.Builder{}
	locations := &strings.Builder{}

	if scope != protocol.RawScope {
		// Variable locations are generated first since they determine which
		// registers the register struct mirrors.
		used, err := instance.options.Locations.GenerateLocations(
			instance,
			locations)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(
			builder,
			"typedef unsigned int __attribute__ ((__mode__(__pointer__))) %s;\n",
			protocol.UintptrTypeName)
		fmt.Fprintf(
			builder,
			"typedef int __attribute__ ((__mode__(__pointer__))) %s;\n",
			protocol.IntptrTypeName)

		for size := uintptr(1); size <= 8; size *= 2 {
			mode, _ := modeForSize(size)
			fmt.Fprintf(
				builder,
				"typedef int __attribute__ ((__mode__(__%s__))) __gdb_int_%s;\n",
				mode,
				mode)
		}

		writeRegisterStruct(builder, used)
	}

	builder.WriteString(lang.Headers[scope])

	if scope != protocol.RawScope {
		builder.WriteString(locations.String())
		builder.WriteString(lang.PushUserExpression)
	}

	if instance.options.Macros != nil {
		writeMacros(builder, instance.options.Macros.MacrosAt(instance))
	}

	// The user's code has its own scope so that its extern declarations do
	// not clash with the declarations supplied by the debugger.
	if scope != protocol.RawScope {
		builder.WriteString("{\n")
	}

	builder.WriteString(protocol.CommandLineDirective + "\n")

	if scope.IsPrint() {
		addressOf := ""
		if scope == protocol.PrintAddressScope {
			addressOf = lang.AddressOf
		}
		fmt.Fprintf(builder, lang.PrintInput, input, addressOf)
	} else {
		builder.WriteString(input)
	}

	// The semicolon goes on its own line so that a trailing // comment
	// cannot swallow it.  Automatic semicolons would be confusing for
	// larger inputs.
	builder.WriteString("\n")
	if !strings.Contains(input, "\n") {
		builder.WriteString(";\n")
	}

	if scope != protocol.RawScope {
		builder.WriteString("}\n")
		builder.WriteString(lang.PopUserExpression)
	}

	builder.WriteString(lang.Footers[scope])

	return builder.String(), nil
}

package gcc

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
)

func writeInNamespace(out *strings.Builder, namespace []string, text string) {
	for _, name := range namespace {
		out.WriteString("namespace ")
		out.WriteString(name)
		out.WriteString(" { ")
	}

	out.WriteString(text)

	for range namespace {
		out.WriteString(" }")
	}
	out.WriteString("\n")
}

// pointerCast returns the cast to pointer to the given type.
func (fe *FrontEnd) pointerCast(handle protocol.PluginType) string {
	return "(" + fe.declare(handle, fe.wrap(handle, "*")) + ")"
}

func (fe *FrontEnd) recordBody(handle protocol.PluginType) string {
	t := fe.lookupType(handle)

	out := &strings.Builder{}
	out.WriteString("{")
	for idx, field := range t.fields {
		out.WriteString(" ")
		out.WriteString(fe.fieldDeclaration(field, idx))
		out.WriteString(";")
	}
	out.WriteString(" }")
	return out.String()
}

func (fe *FrontEnd) fieldDeclaration(field field, idx int) string {
	fieldType := fe.lookupType(field.fieldType)
	isBitField := field.bitSize != 0 &&
		field.bitSize != 8*fe.sizeOf(field.fieldType)

	if field.name == "" && !isBitField {
		// Anonymous member
		switch fieldType.kind {
		case recordKind:
			return "struct " + fe.recordBody(field.fieldType)
		case unionKind:
			return "union " + fe.recordBody(field.fieldType)
		}
		field.name = fmt.Sprintf("__gdb_field_%d", idx)
	}

	result := fe.declare(field.fieldType, field.name)
	if isBitField {
		result += fmt.Sprintf(" : %d", field.bitSize)
	}
	return result
}

func (fe *FrontEnd) enumDefinition(handle protocol.PluginType) string {
	t := fe.lookupType(handle)
	if t.tag == "" {
		fe.tagName(handle)
	}

	header := "enum " + t.tag
	if fe.isCPlus {
		header += " : " + fe.renderTypeName(t.target)
	} else if len(t.constants) == 0 {
		return header + ";"
	}

	constants := []string{}
	for _, constant := range t.constants {
		constants = append(
			constants,
			fmt.Sprintf("%s = %d", constant.name, constant.value))
	}

	return header + " { " + strings.Join(constants, ", ") + " };"
}

// boundDeclarations returns the bound non-typedef declarations.  When a name
// is bound more than once in the same namespace, a local binding takes
// precedence over a global one, and otherwise the last binding wins.
func (fe *FrontEnd) boundDeclarations() []*declaration {
	result := []*declaration{}
	index := map[string]int{}
	for _, decl := range fe.decls {
		if !decl.isBound || decl.kind == protocol.TypedefSymbol {
			continue
		}

		key := strings.Join(
			append(append([]string{}, decl.namespace...), decl.name),
			"::")
		idx, ok := index[key]
		if !ok {
			index[key] = len(result)
			result = append(result, decl)
			continue
		}

		if !result[idx].isGlobal && decl.isGlobal {
			continue
		}
		result[idx] = decl
	}
	return result
}

func (fe *FrontEnd) renderDeclaration(out *strings.Builder, decl *declaration) {
	if fe.lookupType(decl.declType).kind == errorKind {
		return
	}

	if len(decl.namespace) > 0 {
		// Namespace members can't be macros.  Bind them as references to the
		// inferior's memory instead.
		var text string
		if decl.isConstant {
			text = fmt.Sprintf(
				"static const %s = (%s) %d;",
				fe.declare(decl.declType, decl.name),
				fe.renderTypeName(decl.declType),
				decl.value)
		} else {
			text = fmt.Sprintf(
				"static %s = *%s0x%x;",
				fe.declare(decl.declType, fe.wrap(decl.declType, "&"+decl.name)),
				fe.pointerCast(decl.declType),
				decl.address)
		}

		writeInNamespace(out, decl.namespace, text)
		return
	}

	switch {
	case decl.isConstant:
		fmt.Fprintf(
			out,
			"#define %s ((%s) %d)\n",
			decl.name,
			fe.renderTypeName(decl.declType),
			decl.value)
	case decl.substitution != "":
		fmt.Fprintf(
			out,
			"#define %s (*%s%s)\n",
			decl.name,
			fe.pointerCast(decl.declType),
			decl.substitution)
	default:
		fmt.Fprintf(
			out,
			"#define %s (*%s0x%x)\n",
			decl.name,
			fe.pointerCast(decl.declType),
			decl.address)
	}
}

// renderDeclarations renders the types and declarations supplied by the
// oracle.  The result must be placed at file scope, before the generated
// wrapper function.
func (fe *FrontEnd) renderDeclarations() string {
	out := &strings.Builder{}

	// Forward declarations first, since records may refer to each other
	// through pointers.
	for idx, t := range fe.types {
		handle := protocol.PluginType(idx + 1)
		switch t.kind {
		case recordKind:
			fe.tagName(handle)
			writeInNamespace(out, t.namespace, "struct "+t.tag+";")
		case unionKind:
			fe.tagName(handle)
			writeInNamespace(out, t.namespace, "union "+t.tag+";")
		}
	}

	for _, handle := range fe.finished {
		t := fe.lookupType(handle)
		if t.kind == enumKind {
			writeInNamespace(out, t.namespace, fe.enumDefinition(handle))
		}
	}

	for idx, t := range fe.types {
		if t.kind != vectorKind {
			continue
		}

		fmt.Fprintf(
			out,
			"typedef %s %s __attribute__ ((__vector_size__ (%d)));\n",
			fe.renderTypeName(t.target),
			vectorTypedefName(protocol.PluginType(idx+1)),
			fe.sizeOf(protocol.PluginType(idx+1)))
	}

	for _, handle := range fe.finished {
		t := fe.lookupType(handle)
		if t.kind == enumKind {
			continue
		}

		// Stubs stay incomplete.
		if t.size == 0 && len(t.fields) == 0 {
			continue
		}

		keyword := "struct"
		if t.kind == unionKind {
			keyword = "union"
		}

		writeInNamespace(
			out,
			t.namespace,
			keyword+" "+t.tag+" "+fe.recordBody(handle)+";")
	}

	for _, decl := range fe.typedefs {
		if fe.lookupType(decl.declType).kind == errorKind {
			continue
		}

		writeInNamespace(
			out,
			decl.namespace,
			"typedef "+fe.declare(decl.declType, decl.name)+";")
	}

	for _, decl := range fe.boundDeclarations() {
		fe.renderDeclaration(out, decl)
	}

	return out.String()
}

package gcc

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
)

type typeKind int

const (
	errorKind = typeKind(iota)
	namedKind // void, bool, char, int and float types
	pointerKind
	referenceKind
	arrayKind
	vlaKind
	vectorKind
	recordKind
	unionKind
	enumKind
	functionKind
	qualifiedKind
	complexKind
)

type field struct {
	name      string
	fieldType protocol.PluginType
	bitSize   uint64
	bitPos    uint64
}

type enumConstant struct {
	name  string
	value int64
}

type pluginType struct {
	kind typeKind

	// namedKind
	name string
	size uint64

	// The pointee / element / return / qualified / complex component type
	target protocol.PluginType

	// arrays (-1 for unknown count) and vectors
	count int64

	// vla upper bound variable
	bound string

	// functions
	params    []protocol.PluginType
	isVarargs bool

	qualifiers protocol.Qualifiers

	isRvalue bool

	// records, unions and enums
	tag       string
	namespace []string // c++ only
	fields    []field
	constants []enumConstant
	isFinal   bool
}

func (fe *FrontEnd) newType(t *pluginType) protocol.PluginType {
	fe.types = append(fe.types, t)
	return protocol.PluginType(len(fe.types))
}

func (fe *FrontEnd) lookupType(handle protocol.PluginType) *pluginType {
	if handle == 0 || int(handle) > len(fe.types) {
		panic(fmt.Sprintf("invalid type handle %d", handle))
	}
	return fe.types[handle-1]
}

func (fe *FrontEnd) VoidType() protocol.PluginType {
	return fe.newType(&pluginType{kind: namedKind, name: "void", size: 1})
}

func (fe *FrontEnd) BoolType() protocol.PluginType {
	name := "_Bool"
	if fe.isCPlus {
		name = "bool"
	}
	return fe.newType(&pluginType{kind: namedKind, name: name, size: 1})
}

func (fe *FrontEnd) CharType() protocol.PluginType {
	return fe.newType(&pluginType{kind: namedKind, name: "char", size: 1})
}

// IntType returns the canonical spelling of the integer type with the given
// size.  name is only used for diagnostics.
func (fe *FrontEnd) IntType(
	isUnsigned bool,
	size uint64,
	name string,
) protocol.PluginType {
	var spelling string
	switch size {
	case 1:
		spelling = "signed char"
		if isUnsigned {
			spelling = "unsigned char"
		}
	case 2:
		spelling = "short"
	case 4:
		spelling = "int"
	case 8:
		spelling = "long"
	case 16:
		spelling = "__int128"
	default:
		if name == "" {
			name = "integer"
		}
		return fe.Error(
			fmt.Sprintf("unsupported %d byte %s type", size, name))
	}

	if isUnsigned && size != 1 {
		spelling = "unsigned " + spelling
	}

	return fe.newType(&pluginType{kind: namedKind, name: spelling, size: size})
}

func (fe *FrontEnd) FloatType(size uint64, name string) protocol.PluginType {
	var spelling string
	switch size {
	case 4:
		spelling = "float"
	case 8:
		spelling = "double"
	case 16:
		spelling = "long double"
	default:
		if name == "" {
			name = "floating point"
		}
		return fe.Error(
			fmt.Sprintf("unsupported %d byte %s type", size, name))
	}

	return fe.newType(&pluginType{kind: namedKind, name: spelling, size: size})
}

func (fe *FrontEnd) BuildPointerType(
	target protocol.PluginType,
) protocol.PluginType {
	return fe.newType(&pluginType{kind: pointerKind, target: target})
}

func (fe *FrontEnd) BuildArrayType(
	element protocol.PluginType,
	count int64,
) protocol.PluginType {
	return fe.newType(&pluginType{
		kind:   arrayKind,
		target: element,
		count:  count,
	})
}

func (fe *FrontEnd) BuildVlaArrayType(
	element protocol.PluginType,
	upperBoundName string,
) protocol.PluginType {
	return fe.newType(&pluginType{
		kind:   vlaKind,
		target: element,
		bound:  upperBoundName,
	})
}

func (fe *FrontEnd) BuildVectorType(
	element protocol.PluginType,
	count int64,
) protocol.PluginType {
	if count <= 0 {
		return fe.Error("vector type with unknown size is not supported")
	}

	return fe.newType(&pluginType{
		kind:   vectorKind,
		target: element,
		count:  count,
	})
}

func (fe *FrontEnd) BuildRecordType() protocol.PluginType {
	return fe.newType(&pluginType{kind: recordKind})
}

func (fe *FrontEnd) BuildUnionType() protocol.PluginType {
	return fe.newType(&pluginType{kind: unionKind})
}

func (fe *FrontEnd) checkTagged(
	handle protocol.PluginType,
	kinds ...typeKind,
) (
	*pluginType,
	error,
) {
	if handle == 0 || int(handle) > len(fe.types) {
		return nil, fmt.Errorf("invalid type handle %d", handle)
	}

	t := fe.lookupType(handle)
	for _, kind := range kinds {
		if t.kind == kind {
			if t.isFinal {
				return nil, fmt.Errorf("type %d is already finished", handle)
			}
			return t, nil
		}
	}

	return nil, fmt.Errorf("type %d is not a %s type", handle, kindName(kinds[0]))
}

func kindName(kind typeKind) string {
	switch kind {
	case recordKind, unionKind:
		return "record"
	case enumKind:
		return "enum"
	}
	return "tagged"
}

func (fe *FrontEnd) BuildAddField(
	record protocol.PluginType,
	name string,
	fieldType protocol.PluginType,
	bitSize uint64,
	bitPos uint64,
) error {
	t, err := fe.checkTagged(record, recordKind, unionKind)
	if err != nil {
		return err
	}

	t.fields = append(t.fields, field{
		name:      name,
		fieldType: fieldType,
		bitSize:   bitSize,
		bitPos:    bitPos,
	})
	return nil
}

func (fe *FrontEnd) FinishRecordOrUnion(
	record protocol.PluginType,
	size uint64,
) error {
	t, err := fe.checkTagged(record, recordKind, unionKind)
	if err != nil {
		return err
	}

	t.size = size
	t.isFinal = true
	fe.finished = append(fe.finished, record)
	return nil
}

func (fe *FrontEnd) BuildEnumType(
	underlying protocol.PluginType,
) protocol.PluginType {
	return fe.newType(&pluginType{
		kind:   enumKind,
		target: underlying,
		size:   fe.sizeOf(underlying),
	})
}

func (fe *FrontEnd) BuildAddEnumConstant(
	enum protocol.PluginType,
	name string,
	value int64,
) error {
	t, err := fe.checkTagged(enum, enumKind)
	if err != nil {
		return err
	}

	t.constants = append(t.constants, enumConstant{name: name, value: value})
	return nil
}

func (fe *FrontEnd) FinishEnumType(enum protocol.PluginType) error {
	t, err := fe.checkTagged(enum, enumKind)
	if err != nil {
		return err
	}

	t.isFinal = true
	fe.finished = append(fe.finished, enum)
	return nil
}

func (fe *FrontEnd) BuildFunctionType(
	returnType protocol.PluginType,
	params []protocol.PluginType,
	isVarargs bool,
) protocol.PluginType {
	return fe.newType(&pluginType{
		kind:      functionKind,
		target:    returnType,
		params:    append([]protocol.PluginType{}, params...),
		isVarargs: isVarargs,
	})
}

func (fe *FrontEnd) BuildQualifiedType(
	unqualified protocol.PluginType,
	qualifiers protocol.Qualifiers,
) protocol.PluginType {
	if qualifiers == 0 {
		return unqualified
	}

	return fe.newType(&pluginType{
		kind:       qualifiedKind,
		target:     unqualified,
		qualifiers: qualifiers,
	})
}

func (fe *FrontEnd) BuildComplexType(
	base protocol.PluginType,
) protocol.PluginType {
	return fe.newType(&pluginType{kind: complexKind, target: base})
}

// sizeOf returns the type's byte size, or zero if unknown.
func (fe *FrontEnd) sizeOf(handle protocol.PluginType) uint64 {
	t := fe.lookupType(handle)
	switch t.kind {
	case namedKind, recordKind, unionKind, enumKind:
		return t.size
	case errorKind:
		return 4
	case pointerKind, referenceKind:
		return 8
	case arrayKind, vectorKind:
		if t.count < 0 {
			return 0
		}
		return uint64(t.count) * fe.sizeOf(t.target)
	case qualifiedKind:
		return fe.sizeOf(t.target)
	case complexKind:
		return 2 * fe.sizeOf(t.target)
	}
	return 0
}

func qualifierString(qualifiers protocol.Qualifiers) string {
	parts := []string{}
	if qualifiers&protocol.QualifierConst != 0 {
		parts = append(parts, "const")
	}
	if qualifiers&protocol.QualifierVolatile != 0 {
		parts = append(parts, "volatile")
	}
	if qualifiers&protocol.QualifierRestrict != 0 {
		parts = append(parts, "__restrict__")
	}
	return strings.Join(parts, " ")
}

// tagName returns the type's (possibly generated) tag, qualified by its
// namespace.
func (fe *FrontEnd) tagName(handle protocol.PluginType) string {
	t := fe.lookupType(handle)
	if t.tag == "" {
		t.tag = fmt.Sprintf("__gdb_tag_%d", handle)
	}

	if len(t.namespace) == 0 {
		return t.tag
	}
	return strings.Join(t.namespace, "::") + "::" + t.tag
}

func (fe *FrontEnd) specifier(handle protocol.PluginType) string {
	t := fe.lookupType(handle)
	switch t.kind {
	case errorKind:
		return "int"
	case namedKind:
		return t.name
	case recordKind:
		return "struct " + fe.tagName(handle)
	case unionKind:
		return "union " + fe.tagName(handle)
	case enumKind:
		return "enum " + fe.tagName(handle)
	case complexKind:
		return "_Complex " + fe.specifier(t.target)
	case vectorKind:
		return vectorTypedefName(handle)
	}

	panic("should never happen")
}

// declare renders a declaration of declarator with the given type.  An
// empty declarator renders an abstract declarator (e.g., for casts).
func (fe *FrontEnd) declare(handle protocol.PluginType, declarator string) string {
	t := fe.lookupType(handle)
	switch t.kind {
	case pointerKind, referenceKind:
		op := "*"
		if t.kind == referenceKind {
			op = "&"
			if t.isRvalue {
				op = "&&"
			}
		}
		return fe.declare(t.target, fe.wrap(t.target, op+declarator))

	case qualifiedKind:
		target := fe.lookupType(t.target)
		if target.kind == pointerKind {
			// Qualifiers of the pointer itself follow the '*'.
			return fe.declare(
				target.target,
				fe.wrap(
					target.target,
					strings.TrimSpace(
						"*"+qualifierString(t.qualifiers)+" "+declarator)))
		}

		return qualifierString(t.qualifiers) + " " +
			fe.declare(t.target, declarator)

	case arrayKind:
		count := ""
		if t.count >= 0 {
			count = fmt.Sprintf("%d", t.count)
		}
		return fe.declare(t.target, declarator+"["+count+"]")

	case vlaKind:
		return fe.declare(t.target, declarator+"["+t.bound+" + 1]")

	case functionKind:
		params := []string{}
		for _, param := range t.params {
			params = append(params, fe.declare(param, ""))
		}

		if t.isVarargs {
			// An empty c parameter list already means unspecified.
			if len(params) > 0 || fe.isCPlus {
				params = append(params, "...")
			}
		} else if len(params) == 0 {
			params = append(params, "void")
		}

		return fe.declare(
			t.target,
			declarator+"("+strings.Join(params, ", ")+")")
	}

	spec := fe.specifier(handle)
	if declarator == "" {
		return spec
	}
	return spec + " " + declarator
}

// wrap parenthesizes a pointer declarator whose target binds tighter.
func (fe *FrontEnd) wrap(target protocol.PluginType, declarator string) string {
	switch fe.lookupType(target).kind {
	case arrayKind, vlaKind, functionKind:
		return "(" + declarator + ")"
	}
	return declarator
}

func vectorTypedefName(handle protocol.PluginType) string {
	return fmt.Sprintf("__gdb_vector_%d", handle)
}

func (fe *FrontEnd) renderTypeName(handle protocol.PluginType) string {
	return fe.declare(handle, "")
}

package types

import (
	"fmt"
	"strings"
)

type Code string

const (
	ErrorCode    = Code("error")
	VoidCode     = Code("void")
	BoolCode     = Code("bool")
	CharCode     = Code("char")
	IntCode      = Code("int")
	FloatCode    = Code("float")
	ComplexCode  = Code("complex")
	PointerCode  = Code("pointer")
	ArrayCode    = Code("array")
	StructCode   = Code("struct")
	UnionCode    = Code("union")
	EnumCode     = Code("enum")
	FunctionCode = Code("function")
	TypedefCode  = Code("typedef")

	// c++ only
	ReferenceCode       = Code("reference")
	RvalueReferenceCode = Code("rvalue reference")
	NamespaceCode       = Code("namespace")
)

type Qualifiers uint8

const (
	Const    = Qualifiers(1)
	Volatile = Qualifiers(2)
	Restrict = Qualifiers(4)
)

func (q Qualifiers) String() string {
	parts := []string{}
	if q&Const != 0 {
		parts = append(parts, "const")
	}
	if q&Volatile != 0 {
		parts = append(parts, "volatile")
	}
	if q&Restrict != 0 {
		parts = append(parts, "restrict")
	}
	return strings.Join(parts, " ")
}

type PropertyKind string

const (
	UndefinedProperty = PropertyKind("undefined")
	ConstProperty     = PropertyKind("const")

	// The value is computed at runtime from a dwarf location expression /
	// location list (e.g., a vla bound).
	LocationExpressionProperty = PropertyKind("location expression")
	LocationListProperty       = PropertyKind("location list")
)

// DynamicProperty is an array bound.  Non-constant properties are identified
// by their address; the same property always maps to the same runtime
// variable.
type DynamicProperty struct {
	Kind  PropertyKind
	Const int64

	// Only applicable to location expression / list.  The c expression that
	// computes the property's value in the inferior.
	Expression string
}

func (prop *DynamicProperty) IsConst() bool {
	return prop.Kind == ConstProperty
}

type Bounds struct {
	Low  *DynamicProperty
	High *DynamicProperty
}

type Field struct {
	Name string
	Type *Type

	// Only applicable to struct / union members
	BitPos  uint64
	BitSize uint64 // 0 means the field type's full width

	// Only applicable to enum values
	EnumValue int64

	IsArtificial bool

	// c++ base class
	IsBaseClass bool
}

type Type struct {
	Code Code
	Name string

	// Byte size
	Size uint64

	IsUnsigned bool

	// The pointee / element / typedef target / return type / complex
	// component type.
	Target *Type

	// struct / union members, function parameters, enum values
	Fields []Field

	// Only applicable to arrays
	Bounds   *Bounds
	IsVector bool

	// Only applicable to functions
	IsPrototyped bool
	HasVarargs   bool

	// Only applicable to structs (c++ class-key)
	IsDeclaredClass bool

	// Only applicable to enums (c++ enum class)
	IsScopedEnum bool

	// Set when the struct / union / enum has no body (incomplete).
	IsStub bool

	// Types owned by an objfile become invalid once the objfile is released.
	ObjfileOwned bool

	Qualifiers Qualifiers

	main       *Type // the unqualified type, nil if this type is unqualified
	variants   map[Qualifiers]*Type
	pointer    *Type
	reference  *Type
	resolved   *Type
	isResolved bool
}

func (t *Type) String() string {
	name := t.Name
	if name == "" {
		switch t.Code {
		case PointerCode:
			name = t.Target.String() + " *"
		case ReferenceCode:
			name = t.Target.String() + " &"
		case RvalueReferenceCode:
			name = t.Target.String() + " &&"
		case ArrayCode:
			count, ok := t.NumElements()
			if ok {
				name = fmt.Sprintf("%s [%d]", t.Target, count)
			} else {
				name = t.Target.String() + " []"
			}
		case FunctionCode:
			params := []string{}
			for _, param := range t.Fields {
				params = append(params, param.Type.String())
			}
			if t.HasVarargs {
				params = append(params, "...")
			}
			name = fmt.Sprintf("%s (%s)", t.Target, strings.Join(params, ", "))
		case StructCode, UnionCode, EnumCode:
			name = fmt.Sprintf("%s {...}", t.Code)
		default:
			name = string(t.Code)
		}
	} else {
		switch t.Code {
		case StructCode, UnionCode, EnumCode:
			name = fmt.Sprintf("%s %s", t.Code, name)
		}
	}

	if t.Qualifiers != 0 {
		return t.Qualifiers.String() + " " + name
	}
	return name
}

// IsUnqualified reports whether this is the main variant of its type.
func (t *Type) IsUnqualified() bool {
	return t.main == nil
}

func (t *Type) Unqualified() *Type {
	if t.main == nil {
		return t
	}
	return t.main
}

// Qualified returns the (memoized) variant of t with exactly the given
// qualifiers.
func Qualified(t *Type, qualifiers Qualifiers) *Type {
	main := t.Unqualified()
	if qualifiers == 0 {
		return main
	}

	variant, ok := main.variants[qualifiers]
	if ok {
		return variant
	}

	if main.variants == nil {
		main.variants = map[Qualifiers]*Type{}
	}

	copied := *main
	copied.Qualifiers = qualifiers
	copied.main = main
	copied.variants = nil
	copied.pointer = nil
	copied.reference = nil
	copied.resolved = nil
	copied.isResolved = false

	main.variants[qualifiers] = &copied
	return &copied
}

// PointerTo returns the (memoized) pointer type to t.
func PointerTo(t *Type) *Type {
	if t.pointer == nil {
		t.pointer = &Type{
			Code:         PointerCode,
			Size:         8,
			IsUnsigned:   true,
			Target:       t,
			ObjfileOwned: t.ObjfileOwned,
		}
	}
	return t.pointer
}

func ReferenceTo(t *Type) *Type {
	if t.reference == nil {
		t.reference = &Type{
			Code:         ReferenceCode,
			Size:         8,
			IsUnsigned:   true,
			Target:       t,
			ObjfileOwned: t.ObjfileOwned,
		}
	}
	return t.reference
}

func ArrayOf(element *Type, count int64) *Type {
	return &Type{
		Code:   ArrayCode,
		Size:   element.Size * uint64(count),
		Target: element,
		Bounds: &Bounds{
			Low:  &DynamicProperty{Kind: ConstProperty},
			High: &DynamicProperty{Kind: ConstProperty, Const: count - 1},
		},
	}
}

// CheckTypedef strips typedefs, keeping the typedef's qualifiers on the
// resolved type.
func CheckTypedef(t *Type) *Type {
	if t.isResolved {
		return t.resolved
	}

	resolved := t
	qualifiers := Qualifiers(0)
	seen := map[*Type]struct{}{}
	for resolved.Code == TypedefCode && resolved.Target != nil {
		_, ok := seen[resolved]
		if ok { // malformed debug info
			break
		}
		seen[resolved] = struct{}{}

		qualifiers |= resolved.Qualifiers
		resolved = resolved.Target
	}

	if qualifiers != 0 {
		resolved = Qualified(resolved, resolved.Qualifiers|qualifiers)
	}

	t.resolved = resolved
	t.isResolved = true
	return resolved
}

// NumElements returns the array's element count when both bounds are
// constant.
func (t *Type) NumElements() (int64, bool) {
	if t.Code != ArrayCode || t.Bounds == nil {
		return 0, false
	}

	if !t.Bounds.Low.IsConst() || !t.Bounds.High.IsConst() {
		return 0, false
	}

	return t.Bounds.High.Const - t.Bounds.Low.Const + 1, true
}

func (t *Type) IsIntegral() bool {
	switch CheckTypedef(t).Code {
	case IntCode, CharCode, BoolCode, EnumCode:
		return true
	}
	return false
}

func (t *Type) IsPointerLike() bool {
	switch CheckTypedef(t).Code {
	case PointerCode, ReferenceCode, RvalueReferenceCode:
		return true
	}
	return false
}

func (t *Type) FieldByName(name string) (Field, bool) {
	for _, field := range t.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

type typePair struct {
	a *Type
	b *Type
}

// DeepEqual reports whether two types are structurally equal.  Recursive
// types are handled by assuming pairs under comparison are equal.
func DeepEqual(a *Type, b *Type) bool {
	return deepEqual(a, b, map[typePair]struct{}{})
}

func deepEqual(a *Type, b *Type, visiting map[typePair]struct{}) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	pair := typePair{a, b}
	_, ok := visiting[pair]
	if ok {
		return true
	}
	visiting[pair] = struct{}{}

	if a.Code != b.Code ||
		a.Name != b.Name ||
		a.Size != b.Size ||
		a.IsUnsigned != b.IsUnsigned ||
		a.IsVector != b.IsVector ||
		a.HasVarargs != b.HasVarargs ||
		a.Qualifiers != b.Qualifiers ||
		len(a.Fields) != len(b.Fields) {

		return false
	}

	if (a.Bounds == nil) != (b.Bounds == nil) {
		return false
	}

	if a.Bounds != nil {
		if *a.Bounds.Low != *b.Bounds.Low || *a.Bounds.High != *b.Bounds.High {
			return false
		}
	}

	if !deepEqual(a.Target, b.Target, visiting) {
		return false
	}

	for idx, field := range a.Fields {
		other := b.Fields[idx]
		if field.Name != other.Name ||
			field.BitPos != other.BitPos ||
			field.BitSize != other.BitSize ||
			field.EnumValue != other.EnumValue {

			return false
		}

		if !deepEqual(field.Type, other.Type, visiting) {
			return false
		}
	}

	return true
}

// CopyRecursive deep copies objfile owned types so that the copy outlives
// the objfile.  Types not owned by an objfile are returned as is.  copied
// maps original types to their copies and may be shared across calls.
func CopyRecursive(t *Type, copied map[*Type]*Type) *Type {
	if t == nil || !t.ObjfileOwned {
		return t
	}

	result, ok := copied[t]
	if ok {
		return result
	}

	if !t.IsUnqualified() {
		result = Qualified(CopyRecursive(t.Unqualified(), copied), t.Qualifiers)
		copied[t] = result
		return result
	}

	result = &Type{
		Code:            t.Code,
		Name:            t.Name,
		Size:            t.Size,
		IsUnsigned:      t.IsUnsigned,
		IsVector:        t.IsVector,
		IsPrototyped:    t.IsPrototyped,
		HasVarargs:      t.HasVarargs,
		IsDeclaredClass: t.IsDeclaredClass,
		IsScopedEnum:    t.IsScopedEnum,
		IsStub:          t.IsStub,
	}

	// Register before recursing so that self references terminate.
	copied[t] = result

	result.Target = CopyRecursive(t.Target, copied)

	if t.Bounds != nil {
		result.Bounds = &Bounds{
			Low:  copyProperty(t.Bounds.Low),
			High: copyProperty(t.Bounds.High),
		}
	}

	if len(t.Fields) > 0 {
		result.Fields = make([]Field, 0, len(t.Fields))
		for _, field := range t.Fields {
			field.Type = CopyRecursive(field.Type, copied)
			result.Fields = append(result.Fields, field)
		}
	}

	return result
}

func copyProperty(prop *DynamicProperty) *DynamicProperty {
	if prop == nil {
		return nil
	}
	result := *prop
	return &result
}

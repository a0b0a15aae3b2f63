package types

import (
	"debug/dwarf"
)

// DwarfConverter converts debug/dwarf types into the debugger's type model.
// Conversions are memoized per converter, and recursive types are
// registered before their members are converted.
type DwarfConverter struct {
	*Builtins

	objfileOwned bool

	converted map[dwarf.Type]*Type
}

func NewDwarfConverter(builtins *Builtins, objfileOwned bool) *DwarfConverter {
	if builtins == nil {
		builtins = Builtin
	}

	return &DwarfConverter{
		Builtins:     builtins,
		objfileOwned: objfileOwned,
		converted:    map[dwarf.Type]*Type{},
	}
}

func (converter *DwarfConverter) Convert(dt dwarf.Type) *Type {
	if dt == nil {
		return converter.Void
	}

	result, ok := converter.converted[dt]
	if ok {
		return result
	}

	switch t := dt.(type) {
	case *dwarf.QualType:
		qualifiers := Qualifiers(0)
		switch t.Qual {
		case "const":
			qualifiers = Const
		case "volatile":
			qualifiers = Volatile
		case "restrict":
			qualifiers = Restrict
		}

		inner := converter.Convert(t.Type)
		result = Qualified(inner, inner.Qualifiers|qualifiers)
		converter.converted[dt] = result
		return result

	case *dwarf.StructType:
		result = converter.newType(StructCode, t.StructName, t.ByteSize)
		switch t.Kind {
		case "union":
			result.Code = UnionCode
		case "class":
			result.IsDeclaredClass = true
		}
		result.IsStub = t.Incomplete

		converter.converted[dt] = result

		for _, field := range t.Field {
			bitPos := uint64(field.ByteOffset) * 8
			if field.DataBitOffset != 0 {
				bitPos = uint64(field.DataBitOffset)
			} else if field.BitSize != 0 && field.BitOffset != 0 {
				// dwarf 2/3 big endian style bit offset
				bitPos += uint64(field.ByteSize*8 - field.BitOffset - field.BitSize)
			}

			result.Fields = append(
				result.Fields,
				Field{
					Name:    field.Name,
					Type:    converter.Convert(field.Type),
					BitPos:  bitPos,
					BitSize: uint64(field.BitSize),
				})
		}

		return result

	case *dwarf.TypedefType:
		result = converter.newType(TypedefCode, t.Name, t.ByteSize)
		converter.converted[dt] = result
		result.Target = converter.Convert(t.Type)
		if result.Size == 0 {
			result.Size = result.Target.Size
		}
		return result

	case *dwarf.PtrType:
		result = converter.newType(PointerCode, "", 8)
		result.IsUnsigned = true
		converter.converted[dt] = result
		result.Target = converter.Convert(t.Type)
		return result

	case *dwarf.ArrayType:
		result = converter.newType(ArrayCode, "", t.ByteSize)
		converter.converted[dt] = result
		result.Target = converter.Convert(t.Type)

		high := &DynamicProperty{Kind: UndefinedProperty}
		if t.Count >= 0 {
			high = &DynamicProperty{Kind: ConstProperty, Const: t.Count - 1}
		}
		result.Bounds = &Bounds{
			Low:  &DynamicProperty{Kind: ConstProperty},
			High: high,
		}
		return result

	case *dwarf.FuncType:
		result = converter.newType(FunctionCode, "", 1)
		result.IsPrototyped = true
		converter.converted[dt] = result

		result.Target = converter.Convert(t.ReturnType)
		for _, param := range t.ParamType {
			_, ok := param.(*dwarf.DotDotDotType)
			if ok {
				result.HasVarargs = true
				continue
			}

			result.Fields = append(
				result.Fields,
				Field{Type: converter.Convert(param)})
		}
		return result

	case *dwarf.EnumType:
		result = converter.newType(EnumCode, t.EnumName, t.ByteSize)
		result.IsUnsigned = true
		for _, value := range t.Val {
			if value.Val < 0 {
				result.IsUnsigned = false
			}
			result.Fields = append(
				result.Fields,
				Field{Name: value.Name, EnumValue: value.Val})
		}

	case *dwarf.VoidType:
		result = converter.Void

	case *dwarf.BoolType:
		result = converter.newType(BoolCode, t.Name, t.ByteSize)
		result.IsUnsigned = true

	case *dwarf.CharType:
		result = converter.newType(CharCode, t.Name, t.ByteSize)

	case *dwarf.UcharType:
		result = converter.newType(CharCode, t.Name, t.ByteSize)
		result.IsUnsigned = true

	case *dwarf.IntType:
		result = converter.newType(IntCode, t.Name, t.ByteSize)

	case *dwarf.UintType:
		result = converter.newType(IntCode, t.Name, t.ByteSize)
		result.IsUnsigned = true

	case *dwarf.AddrType:
		result = converter.newType(IntCode, t.Name, t.ByteSize)
		result.IsUnsigned = true

	case *dwarf.FloatType:
		result = converter.newType(FloatCode, t.Name, t.ByteSize)

	case *dwarf.ComplexType:
		result = converter.newType(ComplexCode, t.Name, t.ByteSize)
		switch t.ByteSize {
		case 8:
			result.Target = converter.Float
		case 32:
			result.Target = converter.LongDouble
		default:
			result.Target = converter.Double
		}

	default:
		result = converter.Error
	}

	converter.converted[dt] = result
	return result
}

func (converter *DwarfConverter) newType(
	code Code,
	name string,
	size int64,
) *Type {
	if size < 0 {
		size = 0
	}

	return &Type{
		Code:         code,
		Name:         name,
		Size:         uint64(size),
		ObjfileOwned: converter.objfileOwned,
	}
}

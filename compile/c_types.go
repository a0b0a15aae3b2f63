package compile

import (
	"fmt"

	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/debugger/types"
)

type typeConverter interface {
	// convert converts a typedef-resolved type which is not in the cache.
	convert(t *types.Type) protocol.PluginType
}

// DynamicPropertyName returns the name of the variable holding a dynamic
// array bound's value.  The name is derived from the property's identity.
func DynamicPropertyName(prop *types.DynamicProperty) string {
	return fmt.Sprintf("%s%p", protocol.DynamicPropertyPrefix, prop)
}

type cTypeConverter struct {
	instance *Instance
}

func newCTypeConverter(instance *Instance) typeConverter {
	return cTypeConverter{instance: instance}
}

func (converter cTypeConverter) convert(t *types.Type) protocol.PluginType {
	// Qualified types are converted as their unqualified type plus
	// qualifiers.
	if t.Qualifiers != 0 {
		return converter.convertQualified(t)
	}

	fe := converter.instance.frontEnd
	switch t.Code {
	case types.PointerCode:
		return fe.BuildPointerType(converter.instance.ConvertType(t.Target))
	case types.ArrayCode:
		return converter.convertArray(t)
	case types.StructCode, types.UnionCode:
		return converter.convertRecord(t)
	case types.EnumCode:
		return converter.convertEnum(t)
	case types.FunctionCode:
		return converter.convertFunction(t)
	case types.IntCode, types.CharCode:
		return converter.convertInt(t)
	case types.FloatCode:
		return converter.convertFloat(t)
	case types.VoidCode:
		return fe.VoidType()
	case types.BoolCode:
		return fe.BoolType()
	case types.ComplexCode:
		return fe.BuildComplexType(converter.instance.ConvertType(t.Target))
	case types.ErrorCode:
		// Assume int, like the expression evaluator does.
		converter.instance.warn("variable has unknown type; assuming int")
		return converter.convertInt(types.Builtin.Int)
	}

	return fe.Error("cannot convert gdb type to gcc type")
}

func (converter cTypeConverter) convertQualified(
	t *types.Type,
) protocol.PluginType {
	unqualified := converter.instance.ConvertType(t.Unqualified())

	qualifiers := protocol.Qualifiers(0)
	if t.Qualifiers&types.Const != 0 {
		qualifiers |= protocol.QualifierConst
	}
	if t.Qualifiers&types.Volatile != 0 {
		qualifiers |= protocol.QualifierVolatile
	}
	if t.Qualifiers&types.Restrict != 0 {
		qualifiers |= protocol.QualifierRestrict
	}

	if qualifiers == 0 {
		return unqualified
	}

	return converter.instance.frontEnd.BuildQualifiedType(
		unqualified,
		qualifiers)
}

func (converter cTypeConverter) convertArray(
	t *types.Type,
) protocol.PluginType {
	fe := converter.instance.frontEnd
	element := converter.instance.ConvertType(t.Target)

	if t.Bounds == nil {
		if t.IsVector {
			return fe.BuildVectorType(element, -1)
		}
		return fe.BuildArrayType(element, -1)
	}

	low := t.Bounds.Low
	if low != nil && !low.IsConst() {
		return fe.Error("array type with non-constant lower bound is not supported")
	}

	if low != nil && low.Const != 0 {
		return fe.Error(
			"cannot convert array type with non-zero lower bound to C")
	}

	high := t.Bounds.High
	if high != nil &&
		(high.Kind == types.LocationExpressionProperty ||
			high.Kind == types.LocationListProperty) {

		if t.IsVector {
			return fe.Error("variably-sized vector type is not supported")
		}

		return fe.BuildVlaArrayType(element, DynamicPropertyName(high))
	}

	count := int64(-1)
	if high != nil && high.IsConst() {
		count = high.Const + 1
	}

	if t.IsVector {
		return fe.BuildVectorType(element, count)
	}
	return fe.BuildArrayType(element, count)
}

func (converter cTypeConverter) convertRecord(
	t *types.Type,
) protocol.PluginType {
	fe := converter.instance.frontEnd

	var record protocol.PluginType
	if t.Code == types.StructCode {
		record = fe.BuildRecordType()
	} else {
		record = fe.BuildUnionType()
	}

	// Fields may refer back to this record.
	converter.instance.InsertType(t, record)

	for _, field := range t.Fields {
		fieldType := converter.instance.ConvertType(field.Type)

		bitSize := field.BitSize
		if bitSize == 0 {
			bitSize = 8 * types.CheckTypedef(field.Type).Size
		}

		err := fe.BuildAddField(
			record,
			field.Name,
			fieldType,
			bitSize,
			field.BitPos)
		if err != nil {
			fe.Error(err.Error())
		}
	}

	err := fe.FinishRecordOrUnion(record, t.Size)
	if err != nil {
		fe.Error(err.Error())
	}

	return record
}

func (converter cTypeConverter) convertEnum(
	t *types.Type,
) protocol.PluginType {
	fe := converter.instance.frontEnd

	underlying := fe.IntType(t.IsUnsigned, t.Size, "")
	enum := fe.BuildEnumType(underlying)

	for _, field := range t.Fields {
		err := fe.BuildAddEnumConstant(enum, field.Name, field.EnumValue)
		if err != nil {
			fe.Error(err.Error())
		}
	}

	err := fe.FinishEnumType(enum)
	if err != nil {
		fe.Error(err.Error())
	}

	return enum
}

// Self-referential function types cannot be converted.  C does not have
// them.
func (converter cTypeConverter) convertFunction(
	t *types.Type,
) protocol.PluginType {
	isVarargs := t.HasVarargs || !t.IsPrototyped

	target := t.Target
	if target == nil {
		// Functions without debug info have no return type.
		converter.instance.warn("function has unknown return type; assuming int")
		target = types.Builtin.Int
	}

	returnType := converter.instance.ConvertType(target)

	params := make([]protocol.PluginType, 0, len(t.Fields))
	for _, param := range t.Fields {
		params = append(params, converter.instance.ConvertType(param.Type))
	}

	return converter.instance.frontEnd.BuildFunctionType(
		returnType,
		params,
		isVarargs)
}

func (converter cTypeConverter) convertInt(
	t *types.Type,
) protocol.PluginType {
	fe := converter.instance.frontEnd
	if fe.LanguageVersion() >= protocol.CVersion1 &&
		t.Code == types.CharCode &&
		t.Name == "char" {

		// plain char has no signedness
		return fe.CharType()
	}

	return converter.instance.intType(t.IsUnsigned, t.Size, t.Name)
}

func (converter cTypeConverter) convertFloat(
	t *types.Type,
) protocol.PluginType {
	fe := converter.instance.frontEnd

	name := t.Name
	if fe.LanguageVersion() < protocol.CVersion1 {
		name = ""
	}
	return fe.FloatType(t.Size, name)
}

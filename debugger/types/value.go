package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	. "github.com/pattyshack/badc/debugger/common"
)

type Value struct {
	Type *Type

	// Zero if the value does not live in inferior memory.
	Address VirtualAddress

	Contents []byte
}

func NewValue(t *Type, address VirtualAddress, contents []byte) *Value {
	return &Value{
		Type:     t,
		Address:  address,
		Contents: contents,
	}
}

// Field extracts a struct / union member, including bit fields.
func (value *Value) Field(field Field) (*Value, error) {
	fieldType := CheckTypedef(field.Type)

	if field.BitSize == 0 || field.BitSize == fieldType.Size*8 &&
		field.BitPos%8 == 0 {

		start := field.BitPos / 8
		end := start + fieldType.Size
		if end > uint64(len(value.Contents)) {
			return nil, fmt.Errorf(
				"field (%s) out of bound (%d > %d)",
				field.Name,
				end,
				len(value.Contents))
		}

		address := value.Address
		if address != 0 {
			address += VirtualAddress(start)
		}

		return NewValue(field.Type, address, value.Contents[start:end]), nil
	}

	if field.BitSize > 64 {
		return nil, fmt.Errorf(
			"unsupported bit field (%s) size (%d)",
			field.Name,
			field.BitSize)
	}

	var bits uint64
	for idx := uint64(0); idx < field.BitSize; idx++ {
		pos := field.BitPos + idx
		if pos/8 >= uint64(len(value.Contents)) {
			return nil, fmt.Errorf("bit field (%s) out of bound", field.Name)
		}

		if value.Contents[pos/8]&(1<<(pos%8)) != 0 {
			bits |= 1 << idx
		}
	}

	// sign extend
	if !fieldType.IsUnsigned && field.BitSize < 64 &&
		bits&(1<<(field.BitSize-1)) != 0 {

		bits |= math.MaxUint64 << field.BitSize
	}

	contents := make([]byte, 8)
	binary.LittleEndian.PutUint64(contents, bits)
	return NewValue(field.Type, 0, contents[:fieldType.Size]), nil
}

func (value *Value) Uint64() uint64 {
	var buffer [8]byte
	copy(buffer[:], value.Contents)
	return binary.LittleEndian.Uint64(buffer[:])
}

func (value *Value) Int64() int64 {
	size := len(value.Contents)
	if size >= 8 {
		return int64(value.Uint64())
	}

	shift := 64 - uint(size)*8
	return int64(value.Uint64()<<shift) >> shift
}

// Format renders the value using c syntax.
func (value *Value) Format() string {
	builder := &strings.Builder{}
	value.format(builder)
	return builder.String()
}

func (value *Value) format(builder *strings.Builder) {
	t := CheckTypedef(value.Type)

	switch t.Code {
	case BoolCode:
		if value.Uint64() != 0 {
			builder.WriteString("true")
		} else {
			builder.WriteString("false")
		}

	case CharCode:
		var v int64
		if t.IsUnsigned {
			v = int64(value.Uint64())
		} else {
			v = value.Int64()
		}
		builder.WriteString(strconv.FormatInt(v, 10))
		builder.WriteString(" ")
		builder.WriteString(strconv.QuoteRune(rune(uint8(v))))

	case IntCode:
		if t.IsUnsigned {
			builder.WriteString(strconv.FormatUint(value.Uint64(), 10))
		} else {
			builder.WriteString(strconv.FormatInt(value.Int64(), 10))
		}

	case EnumCode:
		v := value.Int64()
		if t.IsUnsigned {
			v = int64(value.Uint64())
		}
		for _, field := range t.Fields {
			if field.EnumValue == v {
				builder.WriteString(field.Name)
				return
			}
		}
		builder.WriteString(strconv.FormatInt(v, 10))

	case FloatCode:
		switch len(value.Contents) {
		case 4:
			f := math.Float32frombits(uint32(value.Uint64()))
			builder.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
		case 8:
			f := math.Float64frombits(value.Uint64())
			builder.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		default:
			fmt.Fprintf(builder, "<%d byte float>", len(value.Contents))
		}

	case PointerCode, ReferenceCode, RvalueReferenceCode:
		fmt.Fprintf(builder, "(%s) 0x%x", t, value.Uint64())

	case ArrayCode:
		element := CheckTypedef(t.Target)
		count, ok := t.NumElements()
		if !ok || element.Size == 0 {
			builder.WriteString("{...}")
			return
		}

		builder.WriteString("{")
		for idx := int64(0); idx < count; idx++ {
			start := uint64(idx) * element.Size
			end := start + element.Size
			if end > uint64(len(value.Contents)) {
				break
			}

			if idx > 0 {
				builder.WriteString(", ")
			}
			NewValue(t.Target, 0, value.Contents[start:end]).format(builder)
		}
		builder.WriteString("}")

	case StructCode, UnionCode:
		builder.WriteString("{")
		for idx, field := range t.Fields {
			if idx > 0 {
				builder.WriteString(", ")
			}

			builder.WriteString(field.Name)
			builder.WriteString(" = ")

			member, err := value.Field(field)
			if err != nil {
				fmt.Fprintf(builder, "<error: %s>", err)
				continue
			}
			member.format(builder)
		}
		builder.WriteString("}")

	case FunctionCode:
		fmt.Fprintf(builder, "{%s} %s", t, value.Address)

	case VoidCode:
		builder.WriteString("void")

	default:
		fmt.Fprintf(builder, "<%s>", t.Code)
	}
}

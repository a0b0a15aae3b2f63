package dwarf

import (
	"encoding/binary"
	"fmt"
)

type Operation uint8

const (
	DW_OP_addr           = Operation(0x03)
	DW_OP_deref          = Operation(0x06)
	DW_OP_const1u        = Operation(0x08)
	DW_OP_const1s        = Operation(0x09)
	DW_OP_const2u        = Operation(0x0a)
	DW_OP_const2s        = Operation(0x0b)
	DW_OP_const4u        = Operation(0x0c)
	DW_OP_const4s        = Operation(0x0d)
	DW_OP_const8u        = Operation(0x0e)
	DW_OP_const8s        = Operation(0x0f)
	DW_OP_constu         = Operation(0x10)
	DW_OP_consts         = Operation(0x11)
	DW_OP_minus          = Operation(0x1c)
	DW_OP_plus           = Operation(0x22)
	DW_OP_plus_uconst    = Operation(0x23)
	DW_OP_lit0           = Operation(0x30)
	DW_OP_lit31          = Operation(0x4f)
	DW_OP_reg0           = Operation(0x50)
	DW_OP_reg31          = Operation(0x6f)
	DW_OP_breg0          = Operation(0x70)
	DW_OP_breg31         = Operation(0x8f)
	DW_OP_regx           = Operation(0x90)
	DW_OP_fbreg          = Operation(0x91)
	DW_OP_bregx          = Operation(0x92)
	DW_OP_piece          = Operation(0x93)
	DW_OP_call_frame_cfa = Operation(0x9c)
	DW_OP_stack_value    = Operation(0x9f)
)

var operationNames = map[Operation]string{
	DW_OP_addr:           "DW_OP_addr",
	DW_OP_deref:          "DW_OP_deref",
	DW_OP_const1u:        "DW_OP_const1u",
	DW_OP_const1s:        "DW_OP_const1s",
	DW_OP_const2u:        "DW_OP_const2u",
	DW_OP_const2s:        "DW_OP_const2s",
	DW_OP_const4u:        "DW_OP_const4u",
	DW_OP_const4s:        "DW_OP_const4s",
	DW_OP_const8u:        "DW_OP_const8u",
	DW_OP_const8s:        "DW_OP_const8s",
	DW_OP_constu:         "DW_OP_constu",
	DW_OP_consts:         "DW_OP_consts",
	DW_OP_minus:          "DW_OP_minus",
	DW_OP_plus:           "DW_OP_plus",
	DW_OP_plus_uconst:    "DW_OP_plus_uconst",
	DW_OP_regx:           "DW_OP_regx",
	DW_OP_fbreg:          "DW_OP_fbreg",
	DW_OP_bregx:          "DW_OP_bregx",
	DW_OP_piece:          "DW_OP_piece",
	DW_OP_call_frame_cfa: "DW_OP_call_frame_cfa",
	DW_OP_stack_value:    "DW_OP_stack_value",
}

func (operation Operation) String() string {
	switch {
	case DW_OP_lit0 <= operation && operation <= DW_OP_lit31:
		return fmt.Sprintf("DW_OP_lit%d", operation-DW_OP_lit0)
	case DW_OP_reg0 <= operation && operation <= DW_OP_reg31:
		return fmt.Sprintf("DW_OP_reg%d", operation-DW_OP_reg0)
	case DW_OP_breg0 <= operation && operation <= DW_OP_breg31:
		return fmt.Sprintf("DW_OP_breg%d", operation-DW_OP_breg0)
	}

	name, ok := operationNames[operation]
	if ok {
		return name
	}
	return fmt.Sprintf("DW_OP_unknown(0x%02x)", uint8(operation))
}

// Instruction is a single decoded location expression operation.  Register
// numbers (reg*, breg*, regx, bregx) are normalized into Register.
type Instruction struct {
	Operation

	Register int

	// Unsigned operands (addr, const*u, constu, plus_uconst, piece).
	Unsigned uint64

	// Signed operands (const*s, consts, fbreg, breg*, bregx).
	Signed int64
}

func (inst Instruction) String() string {
	return fmt.Sprintf(
		"%s (reg=%d unsigned=%d signed=%d)",
		inst.Operation,
		inst.Register,
		inst.Unsigned,
		inst.Signed)
}

// DecodeExpression decodes a (little endian) location expression.  Only the
// operations compiled code may refer to are supported.
func DecodeExpression(expr []byte) ([]Instruction, error) {
	decode := NewCursor(binary.LittleEndian, expr)

	result := []Instruction{}
	for !decode.HasReachedEnd() {
		opValue, err := decode.U8()
		if err != nil {
			return nil, err
		}

		inst := Instruction{Operation: Operation(opValue)}
		err = inst.decodeOperands(decode)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to decode %s operand: %w",
				inst.Operation,
				err)
		}

		result = append(result, inst)
	}

	return result, nil
}

func (inst *Instruction) decodeOperands(decode *Cursor) error {
	var err error

	op := inst.Operation
	switch {
	case DW_OP_lit0 <= op && op <= DW_OP_lit31:
		inst.Unsigned = uint64(op - DW_OP_lit0)
		return nil
	case DW_OP_reg0 <= op && op <= DW_OP_reg31:
		inst.Register = int(op - DW_OP_reg0)
		return nil
	case DW_OP_breg0 <= op && op <= DW_OP_breg31:
		inst.Register = int(op - DW_OP_breg0)
		inst.Signed, err = decode.SLEB128(64)
		return err
	}

	switch op {
	case DW_OP_addr, DW_OP_const8u:
		inst.Unsigned, err = Fixed[uint64](decode)
	case DW_OP_const1u:
		inst.Unsigned, err = widen[uint8, uint64](decode)
	case DW_OP_const2u:
		inst.Unsigned, err = widen[uint16, uint64](decode)
	case DW_OP_const4u:
		inst.Unsigned, err = widen[uint32, uint64](decode)
	case DW_OP_const1s:
		inst.Signed, err = widen[int8, int64](decode)
	case DW_OP_const2s:
		inst.Signed, err = widen[int16, int64](decode)
	case DW_OP_const4s:
		inst.Signed, err = widen[int32, int64](decode)
	case DW_OP_const8s:
		inst.Signed, err = Fixed[int64](decode)
	case DW_OP_constu, DW_OP_plus_uconst, DW_OP_piece:
		inst.Unsigned, err = decode.ULEB128(64)
	case DW_OP_consts, DW_OP_fbreg:
		inst.Signed, err = decode.SLEB128(64)
	case DW_OP_regx:
		var reg uint64
		reg, err = decode.ULEB128(32)
		inst.Register = int(reg)
	case DW_OP_bregx:
		var reg uint64
		reg, err = decode.ULEB128(32)
		if err != nil {
			return err
		}
		inst.Register = int(reg)
		inst.Signed, err = decode.SLEB128(64)
	case DW_OP_deref,
		DW_OP_minus,
		DW_OP_plus,
		DW_OP_call_frame_cfa,
		DW_OP_stack_value:
		// no operands
	default:
		return fmt.Errorf("unsupported operation")
	}

	return err
}

func widen[T fixedSize, R uint64 | int64](decode *Cursor) (R, error) {
	value, err := Fixed[T](decode)
	return R(value), err
}

// IsRegister reports whether the instruction names a register location
// (DW_OP_reg* / DW_OP_regx).
func (inst Instruction) IsRegister() bool {
	return inst.Operation == DW_OP_regx ||
		(DW_OP_reg0 <= inst.Operation && inst.Operation <= DW_OP_reg31)
}

// IsBaseRegister reports whether the instruction computes a register
// relative address (DW_OP_breg* / DW_OP_bregx).
func (inst Instruction) IsBaseRegister() bool {
	return inst.Operation == DW_OP_bregx ||
		(DW_OP_breg0 <= inst.Operation && inst.Operation <= DW_OP_breg31)
}

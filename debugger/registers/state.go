package registers

import (
	"fmt"
	"reflect"

	"github.com/pattyshack/badc/ptrace"
)

type State struct {
	gpr ptrace.UserRegs
	fpr ptrace.UserFPRegs
}

func NewState(gpr ptrace.UserRegs, fpr ptrace.UserFPRegs) State {
	return State{
		gpr: gpr,
		fpr: fpr,
	}
}

// The result is a Uint of the register's width, or a Uint128 for x87 / xmm
// registers.
func (state State) Value(reg Spec) Value {
	var data reflect.Value
	switch reg.Class {
	case GeneralClass:
		data = reflect.ValueOf(state.gpr)
	case FloatingPointClass:
		switch reg.Field {
		case stSpace:
			return U128(
				state.fpr.StSpace[2*reg.Index+1],
				state.fpr.StSpace[2*reg.Index])
		case xmmSpace:
			return U128(
				state.fpr.XmmSpace[2*reg.Index+1],
				state.fpr.XmmSpace[2*reg.Index])
		}
		data = reflect.ValueOf(state.fpr)
	default:
		panic(fmt.Sprintf("invalid register: %#v", reg))
	}

	value := data.FieldByName(reg.Field).Uint()
	switch reg.Size {
	case 1:
		if reg.IsHighRegister {
			value >>= 8
		}
		return U8(uint8(value))
	case 2:
		return U16(uint16(value))
	case 4:
		return U32(uint32(value))
	case 8:
		return U64(value)
	default:
		panic(fmt.Sprintf("invalid register: %#v", reg))
	}
}

func (state State) WithValue(reg Spec, value Value) (State, error) {
	err := reg.CanAccept(value)
	if err != nil {
		return State{}, err
	}

	newState := state

	var data reflect.Value
	switch reg.Class {
	case GeneralClass:
		data = reflect.Indirect(reflect.ValueOf(&newState.gpr))
	case FloatingPointClass:
		u128 := value.ToUint128()
		switch reg.Field {
		case stSpace:
			newState.fpr.StSpace[2*reg.Index] = u128.Low
			newState.fpr.StSpace[2*reg.Index+1] = u128.High
			return newState, nil
		case xmmSpace:
			newState.fpr.XmmSpace[2*reg.Index] = u128.Low
			newState.fpr.XmmSpace[2*reg.Index+1] = u128.High
			return newState, nil
		}
		data = reflect.Indirect(reflect.ValueOf(&newState.fpr))
	default:
		panic(fmt.Sprintf("invalid register: %#v", reg))
	}

	field := data.FieldByName(reg.Field)
	current := field.Uint()
	val := value.ToUint64()

	// Sub-registers only replace their own bits, except 32-bit writes which
	// zero extend as the hardware does.
	switch reg.Size {
	case 1:
		if reg.IsHighRegister {
			val = (current &^ 0xff00) | (val << 8)
		} else {
			val = (current &^ 0xff) | val
		}
	case 2:
		val = (current &^ 0xffff) | val
	}

	field.SetUint(val)
	return newState, nil
}

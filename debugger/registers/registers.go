package registers

import (
	"fmt"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/ptrace"
)

// Tracer is the subset of ptrace.Tracer used for register access.
type Tracer interface {
	GetGeneralRegisters() (*ptrace.UserRegs, error)
	SetGeneralRegisters(*ptrace.UserRegs) error
	GetFloatingPointRegisters() (*ptrace.UserFPRegs, error)
	SetFloatingPointRegisters(*ptrace.UserFPRegs) error
}

type Registers struct {
	tracer Tracer
}

func New(tracer Tracer) *Registers {
	return &Registers{
		tracer: tracer,
	}
}

func (registers *Registers) GetState() (State, error) {
	gpr, err := registers.tracer.GetGeneralRegisters()
	if err != nil {
		return State{}, err
	}

	fpr, err := registers.tracer.GetFloatingPointRegisters()
	if err != nil {
		return State{}, err
	}

	return NewState(*gpr, *fpr), nil
}

func (registers *Registers) SetState(state State) error {
	err := registers.tracer.SetGeneralRegisters(&state.gpr)
	if err != nil {
		return err
	}

	return registers.tracer.SetFloatingPointRegisters(&state.fpr)
}

func (registers *Registers) GetProgramCounter() (State, VirtualAddress, error) {
	state, err := registers.GetState()
	if err != nil {
		return State{}, 0, fmt.Errorf("failed to read program counter: %w", err)
	}

	return state, VirtualAddress(state.Value(ProgramCounter).ToUint64()), nil
}

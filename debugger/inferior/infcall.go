package inferior

import (
	"fmt"
	"syscall"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/registers"
)

const (
	redZoneSize    = 128
	stackAlignment = 16
)

// DummyFrameDtor runs exactly once when its dummy frame is discarded.
// registersValid is true when the call ran to completion and its result
// registers are available.
type DummyFrameDtor func(registersValid bool)

// DummyFrame represents an inferior function call pushed by the debugger.
type DummyFrame struct {
	Function VirtualAddress

	saved    registers.State
	returnTo VirtualAddress

	dtor DummyFrameDtor
}

func (frame *DummyFrame) runDtor(registersValid bool) {
	dtor := frame.dtor
	frame.dtor = nil
	if dtor != nil {
		dtor(registersValid)
	}
}

// HasDtor returns true while the frame's dtor has not run.
func (frame *DummyFrame) HasDtor() bool {
	return frame.dtor != nil
}

type CallResult struct {
	// rax
	Value uint64

	// The result registers of the completed call.
	Registers registers.State
}

func (process *Process) DummyFrames() []*DummyFrame {
	return process.dummyFrames
}

// CallFunctionByHand calls the function at fn with integer class arguments
// (at most six), using the program's entry point as the return address.
//
// dtor (may be nil) is attached to the call's dummy frame.  The dummy frame
// is popped when the call returns; when the call is interrupted the frame is
// either popped immediately (UnwindOnSignal) or left on the stack until a
// later Resume completes the call, or until UnwindDummyFrames.
func (process *Process) CallFunctionByHand(
	fn VirtualAddress,
	args []uint64,
	dtor DummyFrameDtor,
) (
	CallResult,
	error,
) {
	if len(args) > len(registers.ArgumentRegisters) {
		return CallResult{}, fmt.Errorf(
			"%w. too many arguments (%d) in function call",
			ErrInvalidArgument,
			len(args))
	}

	if !process.status.Stopped {
		return CallResult{}, fmt.Errorf(
			"cannot call function at %s. process %d is not stopped",
			fn,
			process.Pid)
	}

	returnTo, err := process.EntryPoint()
	if err != nil {
		return CallResult{}, err
	}

	saved, err := process.Registers.GetState()
	if err != nil {
		return CallResult{}, err
	}

	state, err := setUpCall(saved, fn, returnTo, args)
	if err != nil {
		return CallResult{}, err
	}

	sp := VirtualAddress(state.Value(registers.StackPointer).ToUint64())
	err = process.WriteMemory(sp, registers.U64(uint64(returnTo)).ToBytes())
	if err != nil {
		return CallResult{}, fmt.Errorf(
			"failed to push dummy frame return address: %w",
			err)
	}

	err = process.acquireReturnTrap(returnTo)
	if err != nil {
		return CallResult{}, err
	}

	err = process.Registers.SetState(state)
	if err != nil {
		_ = process.releaseReturnTrap()
		return CallResult{}, err
	}

	frame := &DummyFrame{
		Function: fn,
		saved:    saved,
		returnTo: returnTo,
		dtor:     dtor,
	}
	process.dummyFrames = append(process.dummyFrames, frame)

	process.logger.WithField("function", fn).Debug("calling function by hand")

	status, err := process.resume()
	if err != nil {
		return CallResult{}, err
	}

	if status.IsTerminated() {
		return CallResult{}, fmt.Errorf(
			"%w. the program being debugged exited while in a function called "+
				"from the debugger",
			ErrProcessExited)
	}

	returned, ok := process.returnedDummyFrame(status)
	if ok && returned == frame {
		result, err := process.Registers.GetState()
		if err != nil {
			return CallResult{}, err
		}

		err = process.popDummyFrame(frame, true)
		if err != nil {
			return CallResult{}, err
		}

		return CallResult{
			Value:     result.Value(registers.ReturnValue).ToUint64(),
			Registers: result,
		}, nil
	}

	if process.UnwindOnSignal {
		err = process.popDummyFrame(frame, false)
		if err != nil {
			return CallResult{}, err
		}

		return CallResult{}, fmt.Errorf(
			"the program being debugged was signaled while in a function "+
				"called from the debugger (%v). the state was restored to what "+
				"it was before the call",
			status.StopSignal)
	}

	return CallResult{}, fmt.Errorf(
		"the program being debugged stopped while in a function called from "+
			"the debugger (%v). when the function is done executing, the "+
			"debugger will silently stop it",
		status.StopSignal)
}

func setUpCall(
	saved registers.State,
	fn VirtualAddress,
	returnTo VirtualAddress,
	args []uint64,
) (
	registers.State,
	error,
) {
	sp := saved.Value(registers.StackPointer).ToUint64()
	sp -= redZoneSize
	sp &^= stackAlignment - 1

	// The return address slot leaves sp+8 16-byte aligned at function entry.
	sp -= 8

	state := saved
	var err error
	for idx, arg := range args {
		state, err = state.WithValue(
			registers.ArgumentRegisters[idx],
			registers.U64(arg))
		if err != nil {
			return registers.State{}, err
		}
	}

	// rax holds the number of vector registers used by variadic calls.
	state, err = state.WithValue(registers.ReturnValue, registers.U64(0))
	if err != nil {
		return registers.State{}, err
	}

	state, err = state.WithValue(registers.StackPointer, registers.U64(sp))
	if err != nil {
		return registers.State{}, err
	}

	return state.WithValue(registers.ProgramCounter, registers.U64(uint64(fn)))
}

// popDummyFrame pops frame and every frame pushed after it.
func (process *Process) popDummyFrame(
	frame *DummyFrame,
	registersValid bool,
) error {
	idx := len(process.dummyFrames) - 1
	for ; idx >= 0; idx-- {
		if process.dummyFrames[idx] == frame {
			break
		}
	}

	if idx < 0 {
		panic("should never happen")
	}

	var firstErr error
	for len(process.dummyFrames) > idx {
		top := process.dummyFrames[len(process.dummyFrames)-1]
		process.dummyFrames = process.dummyFrames[:len(process.dummyFrames)-1]

		err := process.Registers.SetState(top.saved)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to pop dummy frame: %w", err)
		}

		top.runDtor(registersValid && top == frame)
	}

	err := process.releaseReturnTrap()
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to pop dummy frame: %w", err)
	}

	if firstErr == nil {
		process.status.NextInstructionAddress = VirtualAddress(
			frame.saved.Value(registers.ProgramCounter).ToUint64())
	}

	return firstErr
}

// acquireReturnTrap enables the return trap shared by every dummy frame.
// All calls return to the same address (the program's entry point).
func (process *Process) acquireReturnTrap(addr VirtualAddress) error {
	if process.returnTrap != nil {
		if process.returnTrap.Address() != addr {
			panic("should never happen")
		}
		return nil
	}

	site, err := process.stopSites.Allocate(addr)
	if err != nil {
		return err
	}

	err = site.Enable()
	if err != nil {
		_ = site.Deallocate()
		return err
	}

	process.returnTrap = site
	return nil
}

// releaseReturnTrap removes the return trap once no dummy frame uses it.
func (process *Process) releaseReturnTrap() error {
	if process.returnTrap == nil || len(process.dummyFrames) > 0 {
		return nil
	}

	site := process.returnTrap
	process.returnTrap = nil
	return site.Deallocate()
}

// returnedDummyFrame returns the innermost dummy frame when status is the
// stop at its return trap.
func (process *Process) returnedDummyFrame(
	status Status,
) (
	*DummyFrame,
	bool,
) {
	if !status.Stopped ||
		status.StopSignal != syscall.SIGTRAP ||
		len(process.dummyFrames) == 0 ||
		process.returnTrap == nil {

		return nil, false
	}

	site, ok := process.stopSites.Triggered(status.NextInstructionAddress)
	if !ok || site != process.returnTrap {
		return nil, false
	}

	return process.dummyFrames[len(process.dummyFrames)-1], true
}

// UnwindDummyFrames discards every outstanding dummy frame, restoring the
// registers saved by the outermost call.
func (process *Process) UnwindDummyFrames() error {
	if len(process.dummyFrames) == 0 {
		return nil
	}

	return process.popDummyFrame(process.dummyFrames[0], false)
}

// discardDummyFrames drops dummy frames of a terminated process without
// touching its (gone) state.
func (process *Process) discardDummyFrames() {
	for len(process.dummyFrames) > 0 {
		top := process.dummyFrames[len(process.dummyFrames)-1]
		process.dummyFrames = process.dummyFrames[:len(process.dummyFrames)-1]
		top.runDtor(false)
	}
}

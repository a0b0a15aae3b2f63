package inferior

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/memory"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/stoppoint"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/procfs"
	"github.com/pattyshack/badc/ptrace"
)

// Tracer is the subset of ptrace.Tracer used to control the inferior.
type Tracer interface {
	registers.Tracer
	memory.Tracer

	Resume(signal int) error
	Wait() (syscall.WaitStatus, error)
	Close() error
}

type Process struct {
	Pid int

	ownsProcess bool
	tracer      Tracer

	Memory    *memory.VirtualMemory
	Registers *registers.Registers
	*memory.Disassembler

	Symbols *symbols.Table

	AuxiliaryVector procfs.AuxiliaryVector

	// When true, a signal received during an inferior function call discards
	// the call's dummy frame.  Otherwise the frame is kept until the call
	// returns (see Resume), or until UnwindDummyFrames.
	UnwindOnSignal bool

	status Status

	stopSites *stoppoint.SoftwareStopSites

	// Shared by every outstanding dummy frame.
	returnTrap  *stoppoint.SoftwareStopSite
	dummyFrames []*DummyFrame

	signaler *Signaler
	runHook  RunHook

	logger logrus.FieldLogger
}

func newProcess(
	tracer Tracer,
	pid int,
	ownsProcess bool,
	auxv procfs.AuxiliaryVector,
	table *symbols.Table,
	logger logrus.FieldLogger,
) *Process {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mem := memory.New(pid, tracer)
	stopSites := stoppoint.NewSoftwareStopSites(mem)
	process := &Process{
		Pid:             pid,
		ownsProcess:     ownsProcess,
		tracer:          tracer,
		Memory:          mem,
		Registers:       registers.New(tracer),
		Disassembler:    memory.NewDisassembler(mem, stopSites, table.SymbolAt),
		Symbols:         table,
		AuxiliaryVector: auxv,
		UnwindOnSignal:  true,
		status: Status{
			Pid:     pid,
			Stopped: true,
		},
		stopSites: stopSites,
		logger:    logger.WithField("pid", pid),
	}
	process.signaler = &Signaler{process: process}
	return process
}

// NewProcess wraps an already stopped tracee.  Primarily used for testing.
func NewProcess(
	tracer Tracer,
	pid int,
	auxv procfs.AuxiliaryVector,
	table *symbols.Table,
	logger logrus.FieldLogger,
) *Process {
	return newProcess(tracer, pid, false, auxv, table, logger)
}

// Launch starts the program and runs it to its entry point, at which point
// the dynamic loader has mapped all initial shared libraries.
func Launch(
	path string,
	args []string,
	logger logrus.FieldLogger,
) (
	*Process,
	error,
) {
	cmd := exec.Command(path, args...)
	tracer, err := ptrace.StartAndAttachToProcess(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start process %s: %w", path, err)
	}

	auxv, err := procfs.GetAuxiliaryVector(tracer.Pid)
	if err != nil {
		_ = tracer.Close()
		return nil, err
	}

	process := newProcess(
		tracer,
		tracer.Pid,
		true,
		auxv,
		symbols.NewTable(logger),
		logger)

	err = process.runToEntryPoint()
	if err != nil {
		_ = process.Close()
		return nil, err
	}

	err = process.ReloadSymbols()
	if err != nil {
		_ = process.Close()
		return nil, err
	}

	return process, nil
}

func Attach(pid int, logger logrus.FieldLogger) (*Process, error) {
	tracer, err := ptrace.AttachToProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to process %d: %w", pid, err)
	}

	auxv, err := procfs.GetAuxiliaryVector(pid)
	if err != nil {
		_ = tracer.Close()
		return nil, err
	}

	process := newProcess(
		tracer,
		pid,
		false,
		auxv,
		symbols.NewTable(logger),
		logger)

	err = process.ReloadSymbols()
	if err != nil {
		_ = process.Close()
		return nil, err
	}

	return process, nil
}

// ReloadSymbols rebuilds the symbol table from the process's current
// mappings.
func (process *Process) ReloadSymbols() error {
	table, err := symbols.LoadProcess(process.Pid, process.logger)
	if err != nil {
		return fmt.Errorf(
			"failed to load symbols for process %d: %w",
			process.Pid,
			err)
	}

	for _, objfile := range table.Objfiles() {
		process.Symbols.Add(objfile)
	}
	return nil
}

func (process *Process) Close() error {
	err := process.UnwindDummyFrames()
	if err != nil {
		process.logger.WithError(err).Debug("failed to unwind dummy frames")
	}

	if process.ownsProcess && !process.status.IsTerminated() {
		_ = syscall.Kill(process.Pid, syscall.SIGKILL)
	}

	return process.tracer.Close()
}

func (process *Process) Status() Status {
	return process.status
}

func (process *Process) EntryPoint() (VirtualAddress, error) {
	entry, ok := process.AuxiliaryVector[procfs.AT_Entry]
	if !ok {
		return 0, fmt.Errorf(
			"process %d has no entry point in its auxiliary vector",
			process.Pid)
	}
	return VirtualAddress(entry), nil
}

// Resume continues the inferior and waits for it to stop.  When the
// inferior finishes a function call which was left running (see
// UnwindOnSignal), the call's dummy frame is silently popped.
func (process *Process) Resume() (Status, error) {
	status, err := process.resume()
	if err != nil {
		return Status{}, err
	}

	frame, ok := process.returnedDummyFrame(status)
	if !ok {
		return status, nil
	}

	process.logger.WithField("function", frame.Function).Debug(
		"function called from the debugger returned")

	err = process.popDummyFrame(frame, true)
	if err != nil {
		return Status{}, err
	}

	process.status.ReturnedFromDummyFrame = true
	return process.status, nil
}

func (process *Process) resume() (Status, error) {
	if process.status.IsTerminated() {
		return process.status, ErrProcessExited
	}

	if process.runHook != nil {
		done := process.runHook(process.signaler)
		defer done()
	}

	err := process.tracer.Resume(0)
	if err != nil {
		return Status{}, fmt.Errorf(
			"failed to resume process %d: %w",
			process.Pid,
			err)
	}

	return process.wait()
}

func (process *Process) wait() (Status, error) {
	waitStatus, err := process.tracer.Wait()
	if err != nil {
		return Status{}, fmt.Errorf(
			"failed to wait for process %d: %w",
			process.Pid,
			err)
	}

	status := newStatus(process.Pid, waitStatus)
	if status.Stopped {
		_, pc, err := process.Registers.GetProgramCounter()
		if err != nil {
			return Status{}, err
		}
		status.NextInstructionAddress = pc
	}

	process.status = status
	if status.IsTerminated() {
		process.discardDummyFrames()
		process.stopSites.Forget()
		process.returnTrap = nil
	}

	return status, nil
}

func (process *Process) runToEntryPoint() error {
	entry, err := process.EntryPoint()
	if err != nil {
		return err
	}

	site, err := process.stopSites.Allocate(entry)
	if err != nil {
		return err
	}

	err = site.Enable()
	if err != nil {
		_ = site.Deallocate()
		return err
	}

	status, err := process.resume()
	if err != nil {
		return err
	}

	// Termination already dropped the site.
	if !status.IsTerminated() {
		err = site.Deallocate()
		if err != nil {
			return err
		}
	}

	if !status.Stopped || status.StopSignal != syscall.SIGTRAP {
		return fmt.Errorf(
			"process %d did not reach its entry point: %s",
			process.Pid,
			status)
	}

	state, err := process.Registers.GetState()
	if err != nil {
		return err
	}

	state, err = state.WithValue(
		registers.ProgramCounter,
		registers.U64(uint64(entry)))
	if err != nil {
		return err
	}

	process.status.NextInstructionAddress = entry
	return process.Registers.SetState(state)
}

// ReadMemory reads the inferior's memory as the program sees it, i.e.,
// without the debugger's traps.
func (process *Process) ReadMemory(addr VirtualAddress, out []byte) error {
	n, err := process.Memory.Read(addr, out)
	if err != nil {
		return err
	}

	process.stopSites.ReplaceStopSiteBytes(addr, out[:n])

	if n != len(out) {
		return fmt.Errorf(
			"cannot access memory at address %s (read %d of %d bytes)",
			addr,
			n,
			len(out))
	}
	return nil
}

func (process *Process) WriteMemory(addr VirtualAddress, data []byte) error {
	n, err := process.Memory.Write(addr, data)
	if err != nil {
		return err
	}

	if n != len(data) {
		return fmt.Errorf(
			"cannot access memory at address %s (wrote %d of %d bytes)",
			addr,
			n,
			len(data))
	}
	return nil
}

// RegisterValue reads a register of the selected (innermost) frame.
func (process *Process) RegisterValue(
	reg registers.Spec,
) (
	registers.Value,
	error,
) {
	if !process.status.Stopped {
		return nil, fmt.Errorf("register %s is not available", reg.Name)
	}

	state, err := process.Registers.GetState()
	if err != nil {
		return nil, err
	}

	return state.Value(reg), nil
}

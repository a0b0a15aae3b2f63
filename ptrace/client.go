package ptrace

import (
	"fmt"
	"os/exec"
	"syscall"
)

// NOTE: ptrace is implemented as a single os-threaded server serving Tracer
// clients in arbitrary goroutines since all ptrace calls to a process,
// including PTRACE_TRACEME in exec.Cmd.Start, must originate from the same os
// thread.
//
// https://github.com/golang/go/issues/7699
// https://github.com/golang/go/issues/43685
type Tracer struct {
	Pid int

	server *traceServer
}

// StartAndAttachToProcess starts cmd stopped at its first instruction.
func StartAndAttachToProcess(cmd *exec.Cmd) (*Tracer, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}

	// Child process invokes PTRACE_TRACEME on start.
	cmd.SysProcAttr.Ptrace = true

	// Set pgid to a different group to ensure SIGINT sent to the debugger's
	// terminal group won't be forwarded to the inferior.
	cmd.SysProcAttr.Setpgid = true

	tracer := &Tracer{
		server: newTraceServer(),
	}

	err := tracer.do(false, func() error {
		err := cmd.Start()
		if err != nil {
			return fmt.Errorf("failed to start process: %w", err)
		}

		// Consume the initial SIGTRAP stop triggered by PTRACE_TRACEME + exec.
		err = waitForStop(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf(
				"failed to wait for process %d to start: %w",
				cmd.Process.Pid,
				err)
		}
		return nil
	})
	if err != nil {
		tracer.server.shutdown()
		return nil, err
	}

	tracer.Pid = cmd.Process.Pid
	return tracer, nil
}

// AttachToProcess attaches to a running process and waits for it to stop.
func AttachToProcess(pid int) (*Tracer, error) {
	tracer := &Tracer{
		Pid:    pid,
		server: newTraceServer(),
	}

	err := tracer.do(false, func() error {
		err := syscall.PtraceAttach(pid)
		if err != nil {
			return fmt.Errorf("failed to attach to process %d: %w", pid, err)
		}

		err = waitForStop(pid)
		if err != nil {
			return fmt.Errorf(
				"failed to wait for process %d to stop: %w",
				pid,
				err)
		}
		return nil
	})
	if err != nil {
		tracer.server.shutdown()
		return nil, err
	}

	return tracer, nil
}

func waitForStop(pid int) error {
	var status syscall.WaitStatus
	_, err := syscall.Wait4(pid, &status, 0, nil)
	return err
}

func (tracer *Tracer) do(detach bool, run operation) error {
	done := make(chan error, 1)

	select {
	case <-tracer.server.ctx.Done():
		return fmt.Errorf(
			"invalid operation. tracer has detached from process %d",
			tracer.Pid)
	case tracer.server.calls <- call{run: run, detach: detach, done: done}:
		return <-done
	}
}

// wrap runs a single ptrace request, annotating its error with what failed.
func (tracer *Tracer) wrap(what string, run func(pid int) error) error {
	return tracer.do(false, func() error {
		err := run(tracer.Pid)
		if err != nil {
			return fmt.Errorf(
				"failed to %s (process %d): %w",
				what,
				tracer.Pid,
				err)
		}
		return nil
	})
}

func (tracer *Tracer) Close() error {
	select {
	case <-tracer.server.ctx.Done():
		return nil
	default:
		return tracer.Detach()
	}
}

func (tracer *Tracer) Detach() error {
	return tracer.do(true, func() error {
		err := syscall.PtraceDetach(tracer.Pid)
		if err != nil {
			return fmt.Errorf(
				"failed to detach from process %d: %w",
				tracer.Pid,
				err)
		}
		return nil
	})
}

func (tracer *Tracer) Resume(signal int) error {
	return tracer.wrap("resume", func(pid int) error {
		return syscall.PtraceCont(pid, signal)
	})
}

// Wait blocks until the traced process changes state.
func (tracer *Tracer) Wait() (syscall.WaitStatus, error) {
	var status syscall.WaitStatus
	err := tracer.wrap("wait", func(pid int) error {
		_, err := syscall.Wait4(pid, &status, syscall.WALL, nil)
		return err
	})
	return status, err
}

func (tracer *Tracer) GetGeneralRegisters() (*UserRegs, error) {
	out := &UserRegs{}
	err := tracer.wrap("get general registers", func(pid int) error {
		return syscall.PtraceGetRegs(pid, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetGeneralRegisters(in *UserRegs) error {
	return tracer.wrap("set general registers", func(pid int) error {
		return syscall.PtraceSetRegs(pid, in)
	})
}

func (tracer *Tracer) GetFloatingPointRegisters() (*UserFPRegs, error) {
	out := &UserFPRegs{}
	err := tracer.wrap("get floating point registers", func(pid int) error {
		return getFPRegs(pid, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetFloatingPointRegisters(in *UserFPRegs) error {
	return tracer.wrap("set floating point registers", func(pid int) error {
		return setFPRegs(pid, in)
	})
}

// This uses process_vm_readv instead of PTRACE_PEEKDATA for reading
// efficiency.  This is included as part of the tracer since the read
// permission is governed by ptrace.
func (tracer *Tracer) ReadFromVirtualMemory(
	addr uintptr,
	data []byte,
) (
	int,
	error,
) {
	count := 0
	err := tracer.wrap(
		fmt.Sprintf("process_vm_readv at %#x (%d)", addr, len(data)),
		func(pid int) error {
			var err error
			count, err = readVirtualMemory(pid, addr, data)
			return err
		})
	return count, err
}

// NOTE: PTRACE_POKEDATA is used for writes since process_vm_writev does not
// support writing to protected memory areas (e.g., the dummy frame's return
// trap in the text section).
func (tracer *Tracer) PokeData(addr uintptr, data []byte) (int, error) {
	count := 0
	err := tracer.wrap(
		fmt.Sprintf("poke data (%#x ; %d)", addr, len(data)),
		func(pid int) error {
			var err error
			count, err = syscall.PtracePokeData(pid, addr, data)
			return err
		})
	return count, err
}

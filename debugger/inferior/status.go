package inferior

import (
	"fmt"
	"syscall"

	. "github.com/pattyshack/badc/debugger/common"
)

type Status struct {
	Pid int

	Stopped    bool
	StopSignal syscall.Signal

	Signaled bool
	Signal   syscall.Signal

	Exited     bool
	ExitStatus int

	// Only populated when the process is stopped.
	NextInstructionAddress VirtualAddress

	// Set by Resume when the stop completed an interrupted function call,
	// whose dummy frame was popped.
	ReturnedFromDummyFrame bool
}

func newStatus(pid int, waitStatus syscall.WaitStatus) Status {
	status := Status{
		Pid: pid,
	}

	if waitStatus.Stopped() {
		status.Stopped = true
		status.StopSignal = waitStatus.StopSignal()
	} else if waitStatus.Signaled() {
		status.Signaled = true
		status.Signal = waitStatus.Signal()
	} else if waitStatus.Exited() {
		status.Exited = true
		status.ExitStatus = waitStatus.ExitStatus()
	}

	return status
}

func (status Status) IsTerminated() bool {
	return status.Signaled || status.Exited
}

func (status Status) String() string {
	switch {
	case status.Stopped:
		return fmt.Sprintf(
			"process %d stopped\n  at: %s\n  with signal: %v",
			status.Pid,
			status.NextInstructionAddress,
			status.StopSignal)
	case status.Signaled:
		return fmt.Sprintf(
			"process %d terminated with signal: %v",
			status.Pid,
			status.Signal)
	case status.Exited:
		return fmt.Sprintf(
			"process %d exited with status: %d",
			status.Pid,
			status.ExitStatus)
	default:
		return fmt.Sprintf("process %d running", status.Pid)
	}
}

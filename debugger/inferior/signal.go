package inferior

import (
	"fmt"
	"os"
	"syscall"
)

// RunHook is called each time the inferior is resumed.  The returned
// function is called once the inferior stops.  The hook typically routes
// terminal interrupts to the signaler while the inferior runs, since the
// traced program is not in the terminal's foreground process group.
type RunHook func(signaler *Signaler) (done func())

func (process *Process) SetRunHook(hook RunHook) {
	process.runHook = hook
}

func (process *Process) Signaler() *Signaler {
	return process.signaler
}

// Signaler forwards signals received by the debugger to the inferior.
type Signaler struct {
	process *Process
}

// HandleSignal forwards signal to the running inferior.
func (signaler *Signaler) HandleSignal(signal os.Signal) {
	sig, ok := signal.(syscall.Signal)
	if !ok {
		sig = syscall.SIGINT
	}

	err := signaler.ToProcess(sig)
	if err != nil {
		signaler.process.logger.WithError(err).Warn(
			"failed to forward signal")
	}
}

func (signaler *Signaler) ToProcess(signal syscall.Signal) error {
	return signaler.process.Signal(signal)
}

func (signaler *Signaler) InterruptProcess() error {
	return signaler.ToProcess(syscall.SIGINT)
}

func (process *Process) Signal(signal syscall.Signal) error {
	err := syscall.Kill(process.Pid, signal)
	if err != nil {
		return fmt.Errorf("failed to signal to process %d (%v): %w",
			process.Pid,
			signal,
			err)
	}

	return nil
}

package memory

import (
	"fmt"

	. "github.com/pattyshack/badc/debugger/common"
)

// Tracer is the subset of ptrace.Tracer used for memory access.
type Tracer interface {
	ReadFromVirtualMemory(addr uintptr, data []byte) (int, error)
	PokeData(addr uintptr, data []byte) (int, error)
}

type Reader interface {
	Read(addr VirtualAddress, out []byte) (int, error)
}

type VirtualMemory struct {
	pid    int
	tracer Tracer
}

func New(pid int, tracer Tracer) *VirtualMemory {
	return &VirtualMemory{
		pid:    pid,
		tracer: tracer,
	}
}

func (vm *VirtualMemory) Read(addr VirtualAddress, out []byte) (int, error) {
	count, err := vm.tracer.ReadFromVirtualMemory(uintptr(addr), out)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to read from virtual memory at %s (%d) for process %d: %w",
			addr,
			len(out),
			vm.pid,
			err)
	}

	return count, nil
}

func (vm *VirtualMemory) Write(addr VirtualAddress, data []byte) (int, error) {
	count, err := vm.tracer.PokeData(uintptr(addr), data)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to write to virtual memory at %s (%d) for process %d: %w",
			addr,
			len(data),
			vm.pid,
			err)
	}

	return count, nil
}

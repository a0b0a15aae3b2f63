package inferior

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/procfs"
)

const (
	mapFailed = ^uint64(0)
)

func (process *Process) lookupFunction(names ...string) (VirtualAddress, error) {
	for _, name := range names {
		symbol, ok := process.Symbols.LookupMinimalSymbol(name)
		if !ok {
			continue
		}

		if symbol.Class == symbols.IndirectFunctionSymbol {
			return process.ResolveIndirectFunction(symbol.Address)
		}
		return symbol.Address, nil
	}

	return 0, fmt.Errorf("cannot find function %s in the inferior", names[0])
}

// Mmap allocates anonymous private memory in the inferior by calling the
// inferior's mmap.
func (process *Process) Mmap(
	size uint64,
	prot Protection,
) (
	VirtualAddress,
	error,
) {
	fn, err := process.lookupFunction("mmap64", "mmap")
	if err != nil {
		return 0, err
	}

	result, err := process.CallFunctionByHand(
		fn,
		[]uint64{
			0,
			size,
			uint64(prot),
			uint64(unix.MAP_PRIVATE | unix.MAP_ANONYMOUS),
			^uint64(0), // fd -1
			0,
		},
		nil)
	if err != nil {
		return 0, err
	}

	if result.Value == mapFailed {
		return 0, fmt.Errorf(
			"Failed inferior mmap call for %d bytes, errno is changed.",
			size)
	}

	process.logger.WithFields(logrus.Fields{
		"address":    VirtualAddress(result.Value),
		"size":       size,
		"protection": prot,
	}).Debug("inferior mmap")

	return VirtualAddress(result.Value), nil
}

func (process *Process) Munmap(addr VirtualAddress, size uint64) error {
	fn, err := process.lookupFunction("munmap")
	if err != nil {
		return err
	}

	result, err := process.CallFunctionByHand(
		fn,
		[]uint64{uint64(addr), size},
		nil)
	if err != nil {
		return err
	}

	if result.Value != 0 {
		return fmt.Errorf(
			"Failed inferior munmap call at %s for %d bytes, errno is changed.",
			addr,
			size)
	}

	return nil
}

// ResolveIndirectFunction calls a STT_GNU_IFUNC resolver with the process's
// hardware capabilities and returns the selected implementation.
func (process *Process) ResolveIndirectFunction(
	resolver VirtualAddress,
) (
	VirtualAddress,
	error,
) {
	hwcap := process.AuxiliaryVector[procfs.AT_HardwareCapabilities]

	result, err := process.CallFunctionByHand(resolver, []uint64{hwcap}, nil)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to resolve indirect function at %s: %w",
			resolver,
			err)
	}

	return VirtualAddress(result.Value), nil
}

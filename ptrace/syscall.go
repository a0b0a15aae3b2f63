package ptrace

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	vmPageSize = 0x1000
)

// This matches user_regs_struct (64bit variant) defined in <sys/user.h>
type UserRegs = syscall.PtraceRegs

// This matches user_fpregs_struct (64bit variant) defined in <sys/user.h>
type UserFPRegs struct {
	Cwd      uint16 // Control
	Swd      uint16 // Status
	Ftw      uint16 // Tag
	Fop      uint16 // Last instruction opcode
	Rip      uint64 // Instruction pointer
	Rdp      uint64 // Data pointer
	Mxcsr    uint32 // MXCSR register state
	MxcrMask uint32 // MXCR mask

	// NOTE: c's st_space and xmm_space are defined as uint32 arrays.  We use
	// uint64 arrays here to simplify Uint128 representation.
	StSpace  [16]uint64 // 8*16 bytes for each FP-reg = 128 bytes
	XmmSpace [32]uint64 // 16*16 bytes for each XMM-reg = 256 bytes

	Padding [24]uint32
}

func ptracePtr(request int, pid int, addr uintptr, data unsafe.Pointer) error {
	_, _, errno := syscall.Syscall6(
		syscall.SYS_PTRACE,
		uintptr(request),
		uintptr(pid),
		addr,
		uintptr(data),
		0,
		0)
	if errno == 0 {
		return nil
	}
	return errno
}

func getFPRegs(pid int, out *UserFPRegs) error {
	return ptracePtr(syscall.PTRACE_GETFPREGS, pid, 0, unsafe.Pointer(out))
}

func setFPRegs(pid int, in *UserFPRegs) error {
	return ptracePtr(syscall.PTRACE_SETFPREGS, pid, 0, unsafe.Pointer(in))
}

// splitRemoteIovecs chunks [addr, addr+size) into page aligned remote iovecs
// as required by process_vm_readv.
func splitRemoteIovecs(addr uintptr, size int) []unix.RemoteIovec {
	var iovs []unix.RemoteIovec
	for size > 0 {
		chunk := vmPageSize - int(addr%vmPageSize)
		if chunk > size {
			chunk = size
		}

		iovs = append(iovs, unix.RemoteIovec{Base: addr, Len: chunk})
		size -= chunk
		addr += uintptr(chunk)
	}
	return iovs
}

func readVirtualMemory(pid int, addr uintptr, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	localIovs := make([]unix.Iovec, 1)
	localIovs[0].Base = &data[0]
	localIovs[0].SetLen(len(data))

	return unix.ProcessVMReadv(
		pid,
		localIovs,
		splitRemoteIovecs(addr, len(data)),
		0)
}

package common

import (
	"fmt"
)

var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrProcessExited   = fmt.Errorf("process exited")
)

type VirtualAddress uint64

func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(addr))
}

// AlignUp rounds addr up to the next multiple of alignment (which must be a
// power of two, or zero / one for no alignment).
func (addr VirtualAddress) AlignUp(alignment uint64) VirtualAddress {
	if alignment <= 1 {
		return addr
	}
	return VirtualAddress((uint64(addr) + alignment - 1) &^ (alignment - 1))
}

type AddressRange struct {
	Low  VirtualAddress
	High VirtualAddress
}

func (ar AddressRange) Contains(addr VirtualAddress) bool {
	return ar.Low <= addr && addr < ar.High
}

func (ar AddressRange) Size() uint64 {
	return uint64(ar.High - ar.Low)
}

type AddressRanges []AddressRange

func (ars AddressRanges) Contains(addr VirtualAddress) bool {
	for _, ar := range ars {
		if ar.Contains(addr) {
			return true
		}
	}
	return false
}

// Memory protection bits, matching PROT_READ / PROT_WRITE / PROT_EXEC.
type Protection uint32

const (
	ProtectionRead    = Protection(0x1)
	ProtectionWrite   = Protection(0x2)
	ProtectionExecute = Protection(0x4)
)

func (prot Protection) String() string {
	rwx := []byte("---")
	if prot&ProtectionRead != 0 {
		rwx[0] = 'r'
	}
	if prot&ProtectionWrite != 0 {
		rwx[1] = 'w'
	}
	if prot&ProtectionExecute != 0 {
		rwx[2] = 'x'
	}
	return string(rwx)
}

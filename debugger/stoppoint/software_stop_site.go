package stoppoint

import (
	"fmt"

	. "github.com/pattyshack/badc/debugger/common"
)

const (
	int3Instruction = byte(0xcc)
)

// Memory is the inferior memory the int3 instructions are written to.
type Memory interface {
	Read(addr VirtualAddress, out []byte) (int, error)
	Write(addr VirtualAddress, data []byte) (int, error)
}

// SoftwareStopSites tracks the int3 traps planted by the debugger itself:
// the entry point trap used while starting the program, and the return
// trap shared by the outstanding dummy frames.
type SoftwareStopSites struct {
	memory Memory

	allocated map[VirtualAddress]*SoftwareStopSite
}

func NewSoftwareStopSites(mem Memory) *SoftwareStopSites {
	return &SoftwareStopSites{
		memory:    mem,
		allocated: map[VirtualAddress]*SoftwareStopSite{},
	}
}

func (pool *SoftwareStopSites) Allocate(
	address VirtualAddress,
) (
	*SoftwareStopSite,
	error,
) {
	_, ok := pool.allocated[address]
	if ok {
		return nil, fmt.Errorf("duplicate software stop site at %s", address)
	}

	site := &SoftwareStopSite{
		pool:    pool,
		address: address,
	}
	pool.allocated[address] = site
	return site, nil
}

func (pool *SoftwareStopSites) deallocate(site *SoftwareStopSite) error {
	foundSite := pool.allocated[site.address]
	if foundSite != site {
		return fmt.Errorf(
			"software stop site at %s already deallocated",
			site.address)
	}

	err := site.Disable()
	if err != nil {
		return err
	}

	delete(pool.allocated, site.address)
	return nil
}

// Forget drops every site without restoring the original bytes, e.g.,
// when the process is gone.
func (pool *SoftwareStopSites) Forget() {
	for _, site := range pool.allocated {
		site.isEnabled = false
	}
	pool.allocated = map[VirtualAddress]*SoftwareStopSite{}
}

// ReplaceStopSiteBytes restores the original bytes of every enabled site
// within [startAddr, startAddr + len(memorySlice)).
func (pool *SoftwareStopSites) ReplaceStopSiteBytes(
	startAddr VirtualAddress,
	memorySlice []byte,
) {
	for _, site := range pool.allocated {
		site.ReplaceStopSiteBytes(startAddr, memorySlice)
	}
}

// Triggered returns the enabled site whose int3 the inferior just executed.
func (pool *SoftwareStopSites) Triggered(
	pc VirtualAddress,
) (
	*SoftwareStopSite,
	bool,
) {
	// pc is one past the int3 instruction.  Since int3 is a single byte
	// instruction, pc - 1 is a valid instruction address whenever it is a
	// stop site.
	site, ok := pool.allocated[pc-1]
	if ok && site.IsEnabled() {
		return site, true
	}
	return nil, false
}

type SoftwareStopSite struct {
	pool *SoftwareStopSites

	address      VirtualAddress
	isEnabled    bool
	originalData byte
}

func (site *SoftwareStopSite) Address() VirtualAddress {
	return site.address
}

func (site *SoftwareStopSite) Deallocate() error {
	return site.pool.deallocate(site)
}

func (site *SoftwareStopSite) IsEnabled() bool {
	return site.isEnabled
}

func (site *SoftwareStopSite) Enable() error {
	if site.isEnabled {
		return nil
	}

	originalData, err := site.swapData(int3Instruction)
	if err != nil {
		return fmt.Errorf("failed to enable software stop site: %w", err)
	}

	site.isEnabled = true
	site.originalData = originalData
	return nil
}

func (site *SoftwareStopSite) Disable() error {
	if !site.isEnabled {
		return nil
	}

	_, err := site.swapData(site.originalData)
	if err != nil {
		return fmt.Errorf("failed to disable software stop site: %w", err)
	}

	site.isEnabled = false
	return nil
}

func (site *SoftwareStopSite) swapData(newData byte) (byte, error) {
	buffer := make([]byte, 1)

	count, err := site.pool.memory.Read(site.address, buffer)
	if err != nil {
		return 0, err
	} else if count != 1 {
		return 0, fmt.Errorf(
			"failed to read from memory at %s. "+
				"incorrect number of bytes read (%d != 1)",
			site.address,
			count)
	}

	originalData := buffer[0]
	buffer[0] = newData

	count, err = site.pool.memory.Write(site.address, buffer)
	if err != nil {
		return 0, err
	} else if count != 1 {
		return 0, fmt.Errorf(
			"failed to write to memory at %s. "+
				"incorrect number of bytes written (%d != 1)",
			site.address,
			count)
	}

	return originalData, nil
}

func (site *SoftwareStopSite) ReplaceStopSiteBytes(
	startAddr VirtualAddress,
	memorySlice []byte,
) {
	if !site.isEnabled {
		return
	}

	endAddr := startAddr + VirtualAddress(len(memorySlice))
	if startAddr <= site.address && site.address < endAddr {
		memorySlice[int(site.address-startAddr)] = site.originalData
	}
}

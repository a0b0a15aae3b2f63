package memory

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	. "github.com/pattyshack/badc/debugger/common"
)

const (
	maxX64InstructionLength = 15
)

// SymbolLookup returns the name and start address of the symbol containing
// addr, or "" when there is none.
type SymbolLookup func(addr VirtualAddress) (string, VirtualAddress)

type Instruction struct {
	Address VirtualAddress
	x86asm.Inst

	// "<name+offset>" of the instruction address.  Empty when unknown.
	Location string

	text string
}

func (inst Instruction) String() string {
	if inst.Location == "" {
		return fmt.Sprintf("0x%016x: %s", uint64(inst.Address), inst.text)
	}
	return fmt.Sprintf(
		"0x%016x %s: %s",
		uint64(inst.Address),
		inst.Location,
		inst.text)
}

type Instructions []Instruction

func (insts Instructions) String() string {
	builder := strings.Builder{}
	for _, inst := range insts {
		builder.WriteString(inst.String())
		builder.WriteString("\n")
	}
	return builder.String()
}

type StopSiteBytes interface {
	// If an enabled stop site is in the range
	//    [startAddr, startAddr + len(memorySlice))
	// replace the stop site bytes with the original data bytes in the
	// memorySlice.
	ReplaceStopSiteBytes(startAddr VirtualAddress, memorySlice []byte)
}

// Disassembler decodes inferior code.  Symbol names are resolved at decode
// time since compiled modules (and their symbols) are short lived.
type Disassembler struct {
	memory    Reader
	stopSites StopSiteBytes
	lookup    SymbolLookup
}

// stopSites and lookup may be nil.
func NewDisassembler(
	memory Reader,
	stopSites StopSiteBytes,
	lookup SymbolLookup,
) *Disassembler {
	return &Disassembler{
		memory:    memory,
		stopSites: stopSites,
		lookup:    lookup,
	}
}

func (disassembler *Disassembler) symbolize(addr uint64) (string, uint64) {
	if disassembler.lookup == nil {
		return "", 0
	}

	name, start := disassembler.lookup(VirtualAddress(addr))
	return name, uint64(start)
}

func (disassembler *Disassembler) location(addr VirtualAddress) string {
	name, start := disassembler.symbolize(uint64(addr))
	if name == "" {
		return ""
	}

	offset := uint64(addr) - start
	if offset == 0 {
		return "<" + name + ">"
	}
	return fmt.Sprintf("<%s+%d>", name, offset)
}

func (disassembler *Disassembler) Disassemble(
	startAddress VirtualAddress,
	numInstructions int,
) (
	Instructions,
	error,
) {
	if numInstructions < 0 {
		return nil, fmt.Errorf(
			"invalid number of instructions to disassemble: %d",
			numInstructions)
	} else if numInstructions == 0 {
		return nil, nil
	}

	data := make([]byte, numInstructions*maxX64InstructionLength)
	n, err := disassembler.memory.Read(startAddress, data)
	if err != nil {
		return nil, err
	}
	data = data[:n]

	if disassembler.stopSites != nil {
		disassembler.stopSites.ReplaceStopSiteBytes(startAddress, data)
	}

	address := startAddress
	result := make(Instructions, 0, numInstructions)
	for len(data) > 0 && len(result) < numInstructions {
		inst, err := x86asm.Decode(data, 64)
		if err != nil {
			break
		}

		result = append(
			result,
			Instruction{
				Address:  address,
				Inst:     inst,
				Location: disassembler.location(address),
				text: x86asm.GNUSyntax(
					inst,
					uint64(address),
					disassembler.symbolize),
			})

		data = data[inst.Len:]
		address += VirtualAddress(inst.Len)
	}

	return result, nil
}

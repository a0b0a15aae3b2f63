package procfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// See elf.h for the full list of auxiliary vector entry types, system v abi
// amd64 supplement section 3.4.3 for description.
type AuxiliaryVectorEntryType uint64

const (
	AT_EndOfVector = AuxiliaryVectorEntryType(0) // AT_NULL
	AT_Ignore      = AuxiliaryVectorEntryType(1) // AT_IGNORE

	AT_ProgramHeader = AuxiliaryVectorEntryType(3) // AT_PHDR
	AT_PageSize      = AuxiliaryVectorEntryType(6) // AT_PAGESZ

	// AT_BASE. base address at which the interpreter program was loaded into
	// memory.
	AT_BaseAddress = AuxiliaryVectorEntryType(7)

	// AT_ENTRY. entry point of the application program
	AT_Entry = AuxiliaryVectorEntryType(9)

	// AT_HWCAP. cpu capability bits, handed to ifunc resolvers.
	AT_HardwareCapabilities = AuxiliaryVectorEntryType(16)

	// AT_HWCAP2
	AT_HardwareCapabilities2 = AuxiliaryVectorEntryType(26)
)

type AuxiliaryVector map[AuxiliaryVectorEntryType]uint64

// NOTE: access to this is governed by ptrace
func GetAuxiliaryVector(pid int) (AuxiliaryVector, error) {
	content, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", pid))
	if err != nil {
		return nil, fmt.Errorf(
			"failed to read process %d's auxiliary vector: %w",
			pid,
			err)
	}

	result, err := ParseAuxiliaryVector(content)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to decode process %d's auxiliary vector: %w",
			pid,
			err)
	}
	return result, nil
}

func ParseAuxiliaryVector(content []byte) (AuxiliaryVector, error) {
	result := AuxiliaryVector{}
	for len(content) >= 16 {
		entryType := AuxiliaryVectorEntryType(
			binary.LittleEndian.Uint64(content))
		value := binary.LittleEndian.Uint64(content[8:])
		content = content[16:]

		if entryType == AT_EndOfVector {
			return result, nil
		}

		if entryType == AT_Ignore {
			continue
		}

		result[entryType] = value
	}

	return nil, fmt.Errorf("auxiliary vector is not terminated")
}

type MappedMemoryRegion struct {
	LowAddress  uint64
	HighAddress uint64

	Read    bool
	Write   bool
	Execute bool
	Private bool // (copy on write)

	Offset uint64

	Inode uint

	Pathname string
}

// IsFileBacked returns true for regions mapped from a regular file (as
// opposed to [heap], [stack], anonymous mappings, etc).
func (region MappedMemoryRegion) IsFileBacked() bool {
	return region.Inode != 0 && strings.HasPrefix(region.Pathname, "/")
}

func GetMappedMemoryRegions(pid int) ([]MappedMemoryRegion, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return ParseMappedMemoryRegions(string(content))
}

func ParseMappedMemoryRegions(content string) ([]MappedMemoryRegion, error) {
	result := []MappedMemoryRegion{}
	for _, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("malformed memory map entry (%s)", line)
		}

		var err error
		entry := MappedMemoryRegion{}

		low, high, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, fmt.Errorf("malformed address range (%s)", fields[0])
		}

		entry.LowAddress, err = strconv.ParseUint(low, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse low address: %w", err)
		}

		entry.HighAddress, err = strconv.ParseUint(high, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse high address: %w", err)
		}

		perms := fields[1] + "----"
		entry.Read = perms[0] == 'r'
		entry.Write = perms[1] == 'w'
		entry.Execute = perms[2] == 'x'
		entry.Private = perms[3] == 'p'

		entry.Offset, err = strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse offset: %w", err)
		}

		inode, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse inode: %w", err)
		}
		entry.Inode = uint(inode)

		if len(fields) > 5 {
			entry.Pathname = strings.Join(fields[5:], " ")
		}

		result = append(result, entry)
	}

	return result, nil
}

func GetExecutableSymlinkPath(pid int) string {
	return fmt.Sprintf("/proc/%d/exe", pid)
}

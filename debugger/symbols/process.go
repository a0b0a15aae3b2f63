package symbols

import (
	"os"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/elf"
	"github.com/pattyshack/badc/procfs"
)

const (
	pageSize = 0x1000
)

// LoadProcess builds a symbol table from the file backed mappings of a
// running process.  Files that cannot be parsed are skipped with a warning.
func LoadProcess(pid int, logger logrus.FieldLogger) (*Table, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	regions, err := procfs.GetMappedMemoryRegions(pid)
	if err != nil {
		return nil, err
	}

	table := NewTable(logger)
	for _, mapping := range MappedFiles(regions) {
		objfile, err := LoadMappedFile(mapping, logger)
		if err != nil {
			logger.WithError(err).WithField("path", mapping.Path).Warn(
				"failed to load symbols")
			continue
		}

		table.Add(objfile)
	}

	return table, nil
}

type MappedFile struct {
	Path string

	// Address of the mapping with file offset zero
	Base VirtualAddress
}

// MappedFiles returns the distinct file backed mappings in mapping order.
func MappedFiles(regions []procfs.MappedMemoryRegion) []MappedFile {
	result := []MappedFile{}
	indices := map[string]int{}
	for _, region := range regions {
		if !region.IsFileBacked() {
			continue
		}

		idx, ok := indices[region.Pathname]
		if !ok {
			idx = len(result)
			indices[region.Pathname] = idx
			result = append(
				result,
				MappedFile{
					Path: region.Pathname,
					Base: VirtualAddress(region.LowAddress),
				})
		}

		if region.Offset == 0 &&
			VirtualAddress(region.LowAddress) < result[idx].Base {

			result[idx].Base = VirtualAddress(region.LowAddress)
		}
	}

	return result
}

func LoadMappedFile(
	mapping MappedFile,
	logger logrus.FieldLogger,
) (
	*Objfile,
	error,
) {
	content, err := os.ReadFile(mapping.Path)
	if err != nil {
		return nil, err
	}

	file, err := elf.ParseBytes(content)
	if err != nil {
		return nil, err
	}

	objfile, err := NewObjfile(
		mapping.Path,
		file,
		LoadBias(file, mapping.Base),
		nil)
	if err != nil {
		return nil, err
	}

	err = objfile.OpenDebugInfo(mapping.Path, logger)
	if err != nil {
		logger.WithError(err).WithField("path", mapping.Path).Warn(
			"failed to read debug info")
	}

	return objfile, nil
}

// LoadBias is the difference between the file's runtime and link time
// addresses.  Fixed position executables have no bias.
func LoadBias(file *elf.File, base VirtualAddress) VirtualAddress {
	if file.FileType == elf.FileTypeExecutable {
		return 0
	}

	for _, header := range file.ProgramHeaders {
		if header.ProgramType != elf.ProgramLoadable {
			continue
		}

		linkBase := VirtualAddress(header.VirtualAddress &^ (pageSize - 1))
		return base - linkBase
	}

	return base
}

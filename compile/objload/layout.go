package objload

import (
	"fmt"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/elf"
)

func sectionProtection(header elf.SectionHeaderEntry) Protection {
	prot := ProtectionRead
	if header.SectionFlags&elf.SectionContainsWritableData != 0 {
		prot |= ProtectionWrite
	}
	if header.SectionFlags&elf.SectionContainsInstructions != 0 {
		prot |= ProtectionExecute
	}
	return prot
}

// sectionGroup is a run of consecutive allocated sections sharing the same
// protection.  Each group is backed by one inferior mapping.
type sectionGroup struct {
	prot         Protection
	maxAlignment uint64
	size         uint64

	sections []elf.Section
	offsets  []uint64
}

func (group *sectionGroup) add(section elf.Section) {
	header := section.Header()

	alignment := header.AddressAlignment
	if alignment == 0 {
		alignment = 1
	}

	if alignment > group.maxAlignment {
		group.maxAlignment = alignment
	}

	offset := uint64(VirtualAddress(group.size).AlignUp(alignment))
	group.sections = append(group.sections, section)
	group.offsets = append(group.offsets, offset)
	group.size = offset + header.Size
}

// layoutSections maps every allocated section of the object into the
// inferior, returning the sections' runtime addresses.  Every mapping is
// recorded in munmaps, including those of a partially failed layout.
func layoutSections(
	file *elf.File,
	inferior Inferior,
	munmaps *MunmapList,
	logger logrus.FieldLogger,
) (
	map[elf.SectionIndex]VirtualAddress,
	error,
) {
	groups := []*sectionGroup{}
	var current *sectionGroup
	for _, section := range file.Sections {
		header := section.Header()
		if header.SectionFlags&elf.SectionOccupiesMemory == 0 ||
			header.Size == 0 {

			continue
		}

		prot := sectionProtection(header)
		if current == nil || current.prot != prot {
			current = &sectionGroup{prot: prot, maxAlignment: 1}
			groups = append(groups, current)
		}
		current.add(section)
	}

	addresses := map[elf.SectionIndex]VirtualAddress{}
	for _, group := range groups {
		addr, err := inferior.Mmap(group.size, group.prot)
		if err != nil {
			return nil, err
		}
		munmaps.Add(addr, group.size)

		if addr.AlignUp(group.maxAlignment) != addr {
			return nil, fmt.Errorf(
				"Inferior compiled module address %s is not aligned to BFD "+
					"required %s.",
				addr,
				VirtualAddress(group.maxAlignment))
		}

		for idx, section := range group.sections {
			sectionAddr := addr + VirtualAddress(group.offsets[idx])
			addresses[section.Index()] = sectionAddr

			logger.WithFields(logrus.Fields{
				"section":    section.Name(),
				"address":    sectionAddr,
				"size":       section.Header().Size,
				"protection": group.prot,
			}).Debug("placed compiled module section")
		}
	}

	return addresses, nil
}

package procfs

import (
	"encoding/binary"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type ProcfsSuite struct{}

func TestProcfs(t *testing.T) {
	suite.RunTests(t, &ProcfsSuite{})
}

func (ProcfsSuite) TestParseMappedMemoryRegions(t *testing.T) {
	content := "" +
		"555555554000-555555555000 r--p 00000000 fd:01 1054 /usr/bin/my prog\n" +
		"555555555000-555555556000 r-xp 00001000 fd:01 1054 /usr/bin/my prog\n" +
		"7ffff7fc1000-7ffff7fc5000 rw-p 00000000 00:00 0 \n" +
		"7ffffffde000-7ffffffff000 rw-p 00000000 00:00 0                          [stack]\n"

	regions, err := ParseMappedMemoryRegions(content)
	expect.Nil(t, err)
	expect.Equal(t, 4, len(regions))

	expect.Equal(t, uint64(0x555555554000), regions[0].LowAddress)
	expect.Equal(t, uint64(0x555555555000), regions[0].HighAddress)
	expect.True(t, regions[0].Read)
	expect.False(t, regions[0].Execute)
	expect.Equal(t, "/usr/bin/my prog", regions[0].Pathname)
	expect.True(t, regions[0].IsFileBacked())

	expect.True(t, regions[1].Execute)
	expect.Equal(t, uint64(0x1000), regions[1].Offset)

	expect.Equal(t, "", regions[2].Pathname)
	expect.False(t, regions[2].IsFileBacked())

	expect.Equal(t, "[stack]", regions[3].Pathname)
	expect.False(t, regions[3].IsFileBacked())
}

func (ProcfsSuite) TestParseMappedMemoryRegionsMalformed(t *testing.T) {
	_, err := ParseMappedMemoryRegions("garbage\n")
	expect.Error(t, err, "malformed memory map entry")
}

func (ProcfsSuite) TestParseAuxiliaryVector(t *testing.T) {
	content := []byte{}
	for _, pair := range [][2]uint64{
		{uint64(AT_Entry), 0x401000},
		{uint64(AT_Ignore), 7},
		{uint64(AT_HardwareCapabilities), 0xbfebfbff},
		{uint64(AT_EndOfVector), 0},
	} {
		content = binary.LittleEndian.AppendUint64(content, pair[0])
		content = binary.LittleEndian.AppendUint64(content, pair[1])
	}

	auxv, err := ParseAuxiliaryVector(content)
	expect.Nil(t, err)
	expect.Equal(t, 2, len(auxv))
	expect.Equal(t, uint64(0x401000), auxv[AT_Entry])
	expect.Equal(t, uint64(0xbfebfbff), auxv[AT_HardwareCapabilities])

	_, err = ParseAuxiliaryVector(content[:16])
	expect.Error(t, err, "not terminated")
}

package ptrace

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type IovecSuite struct{}

func TestIovec(t *testing.T) {
	suite.RunTests(t, &IovecSuite{})
}

func (IovecSuite) TestAligned(t *testing.T) {
	iovs := splitRemoteIovecs(0x2000, 0x1800)
	expect.Equal(t, 2, len(iovs))
	expect.Equal(t, uintptr(0x2000), iovs[0].Base)
	expect.Equal(t, 0x1000, iovs[0].Len)
	expect.Equal(t, uintptr(0x3000), iovs[1].Base)
	expect.Equal(t, 0x800, iovs[1].Len)
}

func (IovecSuite) TestUnaligned(t *testing.T) {
	iovs := splitRemoteIovecs(0x2ff0, 0x20)
	expect.Equal(t, 2, len(iovs))
	expect.Equal(t, uintptr(0x2ff0), iovs[0].Base)
	expect.Equal(t, 0x10, iovs[0].Len)
	expect.Equal(t, uintptr(0x3000), iovs[1].Base)
	expect.Equal(t, 0x10, iovs[1].Len)
}

func (IovecSuite) TestWithinPage(t *testing.T) {
	iovs := splitRemoteIovecs(0x2004, 8)
	expect.Equal(t, 1, len(iovs))
	expect.Equal(t, 8, iovs[0].Len)

	expect.Equal(t, 0, len(splitRemoteIovecs(0x2004, 0)))
}

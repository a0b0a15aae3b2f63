package protocol

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/badc/debugger/registers"
)

type ProtocolSuite struct{}

func TestProtocol(t *testing.T) {
	suite.RunTests(t, &ProtocolSuite{})
}

func (ProtocolSuite) TestNumParameters(t *testing.T) {
	expect.Equal(t, 1, SimpleScope.NumParameters())
	expect.Equal(t, 0, RawScope.NumParameters())
	expect.Equal(t, 2, PrintAddressScope.NumParameters())
	expect.Equal(t, 2, PrintValueScope.NumParameters())

	expect.False(t, SimpleScope.IsPrint())
	expect.True(t, PrintValueScope.IsPrint())
}

func (ProtocolSuite) TestRegisterNameRoundTrip(t *testing.T) {
	for _, reg := range registers.RawSpecs {
		name := RegisterName(reg)
		expect.Equal(t, "__"+reg.Name, name)

		found, err := RegisterByName(name)
		expect.Nil(t, err)
		expect.Equal(t, reg.Name, found.Name)
	}
}

func (ProtocolSuite) TestRegisterByNameErrors(t *testing.T) {
	_, err := RegisterByName("rax")
	expect.Error(t, err, "Invalid register name \"rax\".")

	_, err = RegisterByName("__bogus")
	expect.Error(t, err, "Cannot find gdbarch register \"bogus\".")

	// Sub-registers are never mirrored.
	_, err = RegisterByName("__eax")
	expect.Error(t, err, "Cannot find gdbarch register \"eax\".")
}

func (ProtocolSuite) TestRegisteredFrontEnd(t *testing.T) {
	calls := 0
	RegisterFrontEnd(
		"test-frontend",
		"test_fe_context",
		func(base Version, lang Version) (BaseFrontEnd, error) {
			calls++
			return nil, ErrUnsupportedVersion
		})

	context, err := LoadFrontEnd("test-frontend", "test_fe_context")
	expect.Nil(t, err)

	_, err = context(BaseVersion1, CVersion1)
	expect.Error(t, err, "does not support the required version")
	expect.Equal(t, 1, calls)
}

func (ProtocolSuite) TestMissingLibrary(t *testing.T) {
	_, err := LoadFrontEnd("/nonexistent/libcc1.so", "fe_context")
	expect.Error(t, err, "Could not load /nonexistent/libcc1.so")
}

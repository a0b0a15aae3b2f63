package registers

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/badc/ptrace"
)

type RegistersSuite struct{}

func TestRegisters(t *testing.T) {
	suite.RunTests(t, &RegistersSuite{})
}

type fakeTracer struct {
	gpr ptrace.UserRegs
	fpr ptrace.UserFPRegs
}

func (tracer *fakeTracer) GetGeneralRegisters() (*ptrace.UserRegs, error) {
	out := tracer.gpr
	return &out, nil
}

func (tracer *fakeTracer) SetGeneralRegisters(in *ptrace.UserRegs) error {
	tracer.gpr = *in
	return nil
}

func (tracer *fakeTracer) GetFloatingPointRegisters() (
	*ptrace.UserFPRegs,
	error,
) {
	out := tracer.fpr
	return &out, nil
}

func (tracer *fakeTracer) SetFloatingPointRegisters(
	in *ptrace.UserFPRegs,
) error {
	tracer.fpr = *in
	return nil
}

func (RegistersSuite) TestRax(t *testing.T) {
	rax, ok := ByName("rax")
	expect.True(t, ok)
	expect.Equal(t, 0, rax.DwarfId)
	expect.Equal(t, 8, int(rax.Size))
	expect.True(t, rax.IsRaw)
	expect.Equal(t, IntegerRepresentation, rax.Representation)

	state := State{}
	state.gpr.Rax = 0x0123456789abcdef

	expect.Equal(t, U64(0x0123456789abcdef), state.Value(rax))

	eax, _ := ByName("eax")
	expect.Equal(t, U32(0x89abcdef), state.Value(eax))

	ah, _ := ByName("ah")
	expect.True(t, ah.IsHighRegister)
	expect.Equal(t, U8(0xcd), state.Value(ah))

	al, _ := ByName("al")
	expect.Equal(t, U8(0xef), state.Value(al))

	newState, err := state.WithValue(ah, U8(0x42))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0123456789ab42ef), newState.gpr.Rax)

	newState, err = state.WithValue(ax(t), U16(0x1122))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0123456789ab1122), newState.gpr.Rax)

	newState, err = state.WithValue(eax, U32(1))
	expect.Nil(t, err)
	expect.Equal(t, uint64(1), newState.gpr.Rax)

	// original is unmodified
	expect.Equal(t, uint64(0x0123456789abcdef), state.gpr.Rax)
}

func ax(t *testing.T) Spec {
	reg, ok := ByName("ax")
	expect.True(t, ok)
	return reg
}

func (RegistersSuite) TestR10(t *testing.T) {
	r10, ok := ByName("r10")
	expect.True(t, ok)
	expect.Equal(t, 10, r10.DwarfId)

	r10b, ok := ByName("r10b")
	expect.True(t, ok)
	expect.Equal(t, -1, r10b.DwarfId)
	expect.False(t, r10b.IsRaw)

	state := State{}
	state.gpr.R10 = 0xffff

	newState, err := state.WithValue(r10b, U8(0))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0xff00), newState.gpr.R10)
}

func (RegistersSuite) TestSizeMismatch(t *testing.T) {
	rax, _ := ByName("rax")

	_, err := State{}.WithValue(rax, U32(1))
	expect.Error(t, err, "does not match value size")
}

func (RegistersSuite) TestXmm(t *testing.T) {
	xmm3, ok := ByName("xmm3")
	expect.True(t, ok)
	expect.Equal(t, 20, xmm3.DwarfId)
	expect.Equal(t, OpaqueRepresentation, xmm3.Representation)

	state, err := State{}.WithValue(xmm3, U128(0xaa, 0xbb))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0xbb), state.fpr.XmmSpace[6])
	expect.Equal(t, uint64(0xaa), state.fpr.XmmSpace[7])
	expect.Equal(t, Value(U128(0xaa, 0xbb)), state.Value(xmm3))
}

func (RegistersSuite) TestSpecialRegisters(t *testing.T) {
	expect.Equal(t, "rip", ProgramCounter.Name)
	expect.Equal(t, PointerRepresentation, ProgramCounter.Representation)
	expect.Equal(t, "rsp", StackPointer.Name)
	expect.Equal(t, PointerRepresentation, StackPointer.Representation)
	expect.Equal(t, "rbp", FramePointer.Name)

	eflags, _ := ByName("eflags")
	expect.Equal(t, OpaqueRepresentation, eflags.Representation)

	expect.Equal(t, 6, len(ArgumentRegisters))
	expect.Equal(t, "rdi", ArgumentRegisters[0].Name)
	expect.Equal(t, "r9", ArgumentRegisters[5].Name)

	for _, reg := range RawSpecs {
		expect.True(t, reg.IsRaw)
	}
	expect.Equal(t, 24+8+16, len(RawSpecs))
}

func (RegistersSuite) TestRoundTripThroughTracer(t *testing.T) {
	tracer := &fakeTracer{}
	tracer.gpr.Rip = 0x401000

	regs := New(tracer)

	state, pc, err := regs.GetProgramCounter()
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x401000), uint64(pc))

	rdi, _ := ByName("rdi")
	state, err = state.WithValue(rdi, U64(7))
	expect.Nil(t, err)

	err = regs.SetState(state)
	expect.Nil(t, err)
	expect.Equal(t, uint64(7), tracer.gpr.Rdi)
}

func (RegistersSuite) TestValueBytes(t *testing.T) {
	expect.Equal(t, []byte{0x34, 0x12}, U16(0x1234).ToBytes())
	expect.Equal(t, "0x00001234", U32(0x1234).String())

	u128 := U128(0x0807060504030201, 0x100f0e0d0c0b0a09)
	expect.Equal(t, 16, len(u128.ToBytes()))
	expect.Equal(t, byte(0x09), u128.ToBytes()[0])
	expect.Equal(t, byte(0x08), u128.ToBytes()[15])

	low, err := LowBytes(U64(0x0102030405060708), 4)
	expect.Nil(t, err)
	expect.Equal(t, []byte{0x08, 0x07, 0x06, 0x05}, low)

	_, err = LowBytes(U16(1), 8)
	expect.Error(t, err, "8 bytes requested from a 2 byte register value")
}

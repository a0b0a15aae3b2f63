package compile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/inferior"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/types"
)

type DriverSuite struct{}

func TestDriver(t *testing.T) {
	suite.RunTests(t, &DriverSuite{})
}

// stoppedInferior is a stopped process whose selected frame is at pc.
type stoppedInferior struct {
	pc VirtualAddress
}

func (stoppedInferior) ReadMemory(VirtualAddress, []byte) error {
	return fmt.Errorf("unexpected read")
}

func (stoppedInferior) WriteMemory(VirtualAddress, []byte) error {
	return fmt.Errorf("unexpected write")
}

func (inf stoppedInferior) RegisterValue(
	reg registers.Spec,
) (
	registers.Value,
	error,
) {
	if reg.Name != registers.ProgramCounter.Name {
		return nil, fmt.Errorf("unexpected register %s", reg.Name)
	}
	return registers.U64(uint64(inf.pc)), nil
}

func (stoppedInferior) Mmap(uint64, Protection) (VirtualAddress, error) {
	return 0, fmt.Errorf("unexpected mmap")
}

func (stoppedInferior) Munmap(VirtualAddress, uint64) error {
	return fmt.Errorf("unexpected munmap")
}

func (stoppedInferior) ResolveIndirectFunction(
	VirtualAddress,
) (
	VirtualAddress,
	error,
) {
	return 0, fmt.Errorf("unexpected ifunc")
}

func (stoppedInferior) CallFunctionByHand(
	VirtualAddress,
	[]uint64,
	inferior.DummyFrameDtor,
) (
	inferior.CallResult,
	error,
) {
	return inferior.CallResult{}, fmt.Errorf("unexpected call")
}

func (stoppedInferior) DummyFrames() []*inferior.DummyFrame {
	return nil
}

type driverFixture struct {
	driver *Driver
	output *bytes.Buffer

	frontEnds []*fakeFrontEnd

	// The requested (base, language) versions.
	requests []VersionPair

	// Requests for base versions above this are rejected.
	maxBase protocol.Version

	// Used by every front end created.
	compile func(fe *fakeFrontEnd, objectFile string) error
}

func newDriverFixture(t *testing.T, config Config) *driverFixture {
	prog := newProgram()
	logger, _ := test.NewNullLogger()

	config.TempDir = t.TempDir()

	fixture := &driverFixture{
		output:  &bytes.Buffer{},
		maxBase: protocol.BaseVersion1,
	}

	fixture.driver = NewDriver(DriverOptions{
		Config:   config,
		Inferior: stoppedInferior{pc: 0x401010},
		Symbols:  prog.table,
		Output:   fixture.output,
		Logger:   logger,
		LoadFrontEnd: func(
			library string,
			entryPoint string,
		) (
			protocol.ContextFunc,
			error,
		) {
			if library != DefaultFrontEndLibrary {
				return nil, fmt.Errorf("unknown library %s", library)
			}
			return fixture.newContext, nil
		},
	})

	return fixture
}

func (fixture *driverFixture) newContext(
	base protocol.Version,
	language protocol.Version,
) (
	protocol.BaseFrontEnd,
	error,
) {
	fixture.requests = append(fixture.requests, VersionPair{base, language})
	if base > fixture.maxBase {
		return nil, protocol.ErrUnsupportedVersion
	}

	fe := newFakeFrontEnd()
	fe.baseVersion = base
	fe.languageVersion = language
	fe.compile = fixture.compile
	fixture.frontEnds = append(fixture.frontEnds, fe)
	return fe, nil
}

func (DriverSuite) TestNotRunning(t *testing.T) {
	driver := NewDriver(DriverOptions{})

	err := driver.EvalCompileCommand("", "x = 1", protocol.SimpleScope, nil)
	expect.True(t, errors.Is(err, ErrNotRunning))
}

func (DriverSuite) TestNoInput(t *testing.T) {
	fixture := newDriverFixture(t, DefaultConfig())

	err := fixture.driver.EvalCompileCommand("", "", protocol.SimpleScope, nil)
	expect.True(t, errors.Is(err, ErrNoInput))
	expect.Equal(t, 0, len(fixture.requests))
}

func (DriverSuite) TestUnsupportedLanguage(t *testing.T) {
	fixture := newDriverFixture(t, DefaultConfig())
	fixture.driver.Language = &Language{Name: "fortran"}

	err := fixture.driver.EvalCompileCommand("", "x", protocol.SimpleScope, nil)
	expect.Error(t, err, "No compiler support for language fortran.")
}

func (DriverSuite) TestUnsupportedVersion(t *testing.T) {
	fixture := newDriverFixture(t, DefaultConfig())
	fixture.maxBase = -1

	err := fixture.driver.EvalCompileCommand("", "x", protocol.SimpleScope, nil)
	expect.True(t, errors.Is(err, protocol.ErrUnsupportedVersion))
	expect.Equal(t, C.Versions, fixture.requests)
}

func (DriverSuite) TestDriverFilenameRequiresVersion1(t *testing.T) {
	config := DefaultConfig()
	config.Driver = "/usr/bin/x86_64-linux-gnu-gcc"

	fixture := newDriverFixture(t, config)
	fixture.maxBase = protocol.BaseVersion0

	err := fixture.driver.EvalCompileCommand("", "x", protocol.SimpleScope, nil)
	expect.Error(t, err, "requires GCC version 6 or higher")

	expect.Equal(t, 1, len(fixture.frontEnds))
	expect.Equal(t, 1, fixture.frontEnds[0].destroyed)
}

func (DriverSuite) TestCompilationFailure(t *testing.T) {
	fixture := newDriverFixture(t, DefaultConfig())

	source := ""
	object := ""
	fixture.compile = func(fe *fakeFrontEnd, objectFile string) error {
		content, err := os.ReadFile(fe.sourceFile)
		if err != nil {
			return err
		}
		source = string(content)
		object = objectFile

		fe.print("gdb command line:1:1: error: 'y' undeclared\n")
		return fmt.Errorf("exit status 1")
	}

	err := fixture.driver.EvalCompileCommand(
		"",
		"counter = y",
		protocol.SimpleScope,
		nil)
	expect.True(t, errors.Is(err, ErrCompilationFailed))

	expect.True(
		t,
		strings.Contains(
			fixture.output.String(),
			"error: 'y' undeclared"))

	// The program is generated in the scope of the selected frame.
	expect.True(t, strings.Contains(source, "__counter ="))
	expect.True(t, strings.HasSuffix(object, "out0.o"))

	fe := fixture.frontEnds[0]
	expect.Equal(t, DefaultTripletRegexp, fe.triplet)
	expect.Equal(
		t,
		append(
			append([]string{}, DefaultConfig().Args...),
			DefaultConfig().TargetArgs...),
		fe.args)
	expect.False(t, fe.verbose)
	expect.Equal(t, 1, fe.destroyed)

	// The failed compilation's files are removed.
	entries, err := os.ReadDir(fixture.driver.tempDir)
	expect.Nil(t, err)
	expect.Equal(t, 0, len(entries))

	dir := fixture.driver.tempDir
	expect.Nil(t, fixture.driver.Close())
	_, err = os.Stat(dir)
	expect.True(t, os.IsNotExist(err))
}

func (DriverSuite) TestCompileFileIncludesSource(t *testing.T) {
	fixture := newDriverFixture(t, DefaultConfig())

	path := filepath.Join(t.TempDir(), "snippet.c")
	expect.Nil(t, os.WriteFile(path, []byte("counter++;\n"), 0600))

	source := ""
	fixture.compile = func(fe *fakeFrontEnd, objectFile string) error {
		content, err := os.ReadFile(fe.sourceFile)
		if err != nil {
			return err
		}
		source = string(content)
		return fmt.Errorf("stop")
	}

	err := fixture.driver.EvalCompileFile(path, protocol.SimpleScope)
	expect.True(t, errors.Is(err, ErrCompilationFailed))
	expect.True(
		t,
		strings.Contains(
			source,
			"#line 1 \"gdb command line\"\n#include \""+path+"\"\n"))

	err = fixture.driver.EvalCompileFile(
		filepath.Join(t.TempDir(), "missing.c"),
		protocol.SimpleScope)
	expect.Error(t, err, "Couldn't open file")
}

func (DriverSuite) TestPrintValue(t *testing.T) {
	output := &bytes.Buffer{}
	driver := NewDriver(DriverOptions{Output: output})

	err := driver.printValue(
		types.NewValue(types.Builtin.Int, 0, []byte{42, 0, 0, 0}),
		nil)
	expect.Nil(t, err)

	err = driver.printValue(
		types.NewValue(types.Builtin.Int, 0, []byte{0xff, 0xff, 0xff, 0xff}),
		nil)
	expect.Nil(t, err)

	expect.Equal(t, "$1 = 42\n$2 = -1\n", output.String())
	expect.Equal(t, 2, driver.History.Len())
}

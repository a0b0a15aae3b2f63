package extension

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

type fakeRouter struct {
	handler SignalHandler
}

func (router *fakeRouter) Install(handler SignalHandler) SignalHandler {
	previous := router.handler
	router.handler = handler
	return previous
}

func (router *fakeRouter) Installed() SignalHandler {
	return router.handler
}

type otherHandler struct{}

func (*otherHandler) HandleSignal(os.Signal) {}

type fakeScriptOps struct {
	sourced  []string
	executed []string

	autoLoad bool
}

func (ops *fakeScriptOps) SourceScript(file io.Reader, path string) error {
	ops.sourced = append(ops.sourced, path)
	return nil
}

func (ops *fakeScriptOps) SourceObjfileScript(
	objfile *symbols.Objfile,
	file io.Reader,
	path string,
) error {
	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	ops.sourced = append(ops.sourced, path+":"+string(content))
	return nil
}

func (ops *fakeScriptOps) ExecuteObjfileScript(
	objfile *symbols.Objfile,
	name string,
	text string,
) error {
	ops.executed = append(ops.executed, name+":"+text)
	return nil
}

func (ops *fakeScriptOps) AutoLoadEnabled() bool {
	return ops.autoLoad
}

type baseOps struct{}

func (baseOps) Initialized() bool {
	return true
}

type cooperativeOps struct {
	baseOps
	pending bool
}

func (ops *cooperativeOps) SetQuitFlag() {
	ops.pending = true
}

func (ops *cooperativeOps) CheckQuitFlag() bool {
	pending := ops.pending
	ops.pending = false
	return pending
}

type printerOps struct {
	baseOps
	registry *Registry

	status Status
	err    error
	text   string

	calls            int
	activeDuringCall *Descriptor
}

func (ops *printerOps) ApplyValuePrettyPrinter(
	value *types.Value,
	out io.Writer,
	recurse int,
	options *ValuePrintOptions,
) (
	Status,
	error,
) {
	ops.calls++
	ops.activeDuringCall = ops.registry.Active()
	if ops.status == StatusOK {
		_, _ = io.WriteString(out, ops.text)
	}
	return ops.status, ops.err
}

type conditionOps struct {
	baseOps
	hasCondition bool
	stop         BreakpointStop
	calls        int
}

func (ops *conditionOps) BreakpointHasCondition(Breakpoint) bool {
	return ops.hasCondition
}

func (ops *conditionOps) BreakpointConditionSaysStop(Breakpoint) BreakpointStop {
	ops.calls++
	return ops.stop
}

type fakeBreakpoint int

func (bp fakeBreakpoint) Number() int {
	return int(bp)
}

type fakeWorker string

func (fakeWorker) ArgumentTypes() []*types.Type {
	return nil
}

func (fakeWorker) Invoke(*types.Value, []*types.Value) (*types.Value, error) {
	return nil, nil
}

type xmethodOps struct {
	baseOps
	workers []XmethodWorker
	err     error
}

func (ops *xmethodOps) MatchingXmethodWorkers(
	*types.Type,
	string,
) (
	[]XmethodWorker,
	error,
) {
	return ops.workers, ops.err
}

type typePrinterSessionFake struct {
	names  map[*types.Type]string
	closed *int
}

func (session *typePrinterSessionFake) Apply(
	t *types.Type,
) (
	string,
	Status,
	error,
) {
	name, ok := session.names[t]
	if !ok {
		return "", StatusNop, nil
	}
	return name, StatusOK, nil
}

func (session *typePrinterSessionFake) Close() {
	*session.closed++
}

type typePrinterOps struct {
	baseOps
	names   map[*types.Type]string
	started int
	closed  int
}

func (ops *typePrinterOps) StartTypePrinters() TypePrinterSession {
	ops.started++
	return &typePrinterSessionFake{
		names:  ops.names,
		closed: &ops.closed,
	}
}

type evalOps struct {
	baseOps
	evaluated [][]string
}

func (ops *evalOps) EvalFromControlCommand(lines []string) error {
	ops.evaluated = append(ops.evaluated, lines)
	return nil
}

type initOps struct {
	baseOps
	router *fakeRouter

	initialized       bool
	handlerDuringInit SignalHandler
}

func (ops *initOps) Initialize() error {
	ops.initialized = true
	ops.handlerDuringInit = ops.router.Installed()
	return nil
}

type promptOps struct {
	baseOps
	prompt string
}

func (ops *promptOps) BeforePrompt(string) (string, Status, error) {
	if ops.prompt == "" {
		return "", StatusNop, nil
	}
	return ops.prompt, StatusOK, nil
}

type recordingExecutor struct {
	commands []string
}

func (executor *recordingExecutor) ExecuteCommand(line string) error {
	if line == "fail" {
		return fmt.Errorf("command failed")
	}
	executor.commands = append(executor.commands, line)
	return nil
}

func implementation(ops Ops) *Implementation {
	if ops == nil {
		return nil
	}
	return &Implementation{
		ScriptOps: &fakeScriptOps{},
		Ops:       ops,
	}
}

type testRegistry struct {
	*Registry

	router   *fakeRouter
	initial  SignalHandler
	output   *bytes.Buffer
	executor *recordingExecutor
}

func newTestRegistry(t *testing.T, python Ops, guile Ops) *testRegistry {
	logger, _ := test.NewNullLogger()
	initial := &otherHandler{}
	router := &fakeRouter{handler: initial}
	output := &bytes.Buffer{}
	executor := &recordingExecutor{}

	registry, err := NewRegistry(Options{
		Executor: executor,
		Output:   output,
		Python:   implementation(python),
		Guile:    implementation(guile),
		Router:   router,
		Logger:   logger,
	})
	expect.Nil(t, err)

	return &testRegistry{
		Registry: registry,
		router:   router,
		initial:  initial,
		output:   output,
		executor: executor,
	}
}

func expectPanic(t *testing.T, fn func()) {
	defer func() {
		expect.NotNil(t, recover())
	}()
	fn()
}

type ExtensionSuite struct{}

func TestExtension(t *testing.T) {
	suite.RunTests(t, &ExtensionSuite{})
}

func (ExtensionSuite) TestRegistryOrder(t *testing.T) {
	registry := newTestRegistry(t, nil, nil)

	names := []string{}
	for _, lang := range registry.All() {
		names = append(names, lang.Name)
	}
	expect.Equal(t, []string{"gdb", "python", "guile"}, names)

	lang, ok := registry.LanguageOfFile("/tmp/foo-gdb.py")
	expect.True(t, ok)
	expect.Equal(t, TagPython, lang.Tag)

	lang, ok = registry.LanguageOfFile("init.gdb")
	expect.True(t, ok)
	expect.Equal(t, TagBuiltin, lang.Tag)

	_, ok = registry.LanguageOfFile("init.txt")
	expect.False(t, ok)

	lang, ok = registry.ByName("guile")
	expect.True(t, ok)
	expect.Equal(t, "-gdb.scm", lang.AutoLoadSuffix)
	expect.False(t, lang.IsSupported())
	expect.False(t, registry.Initialized(lang))

	expect.Equal(t, registry.Builtin(), registry.Active())
}

func (ExtensionSuite) TestMissingScriptOps(t *testing.T) {
	_, err := NewRegistry(Options{
		Python: &Implementation{Ops: &evalOps{}},
		Router: &fakeRouter{},
	})
	expect.Error(t, err, "extension language python has no script ops")
}

func (ExtensionSuite) TestActivationsUnwind(t *testing.T) {
	for length := 1; length <= 3; length++ {
		count := 1
		for i := 0; i < length; i++ {
			count *= 3
		}

		for seq := 0; seq < count; seq++ {
			registry := newTestRegistry(t, &cooperativeOps{}, nil)
			langs := registry.All()

			activations := []*Activation{}
			value := seq
			for i := 0; i < length; i++ {
				lang := langs[value%3]
				value /= 3

				activations = append(activations, registry.SetActive(lang))
				expect.Equal(t, lang, registry.Active())
			}

			for i := len(activations) - 1; i >= 0; i-- {
				registry.Restore(activations[i])
			}

			expect.Equal(t, registry.Builtin(), registry.Active())
			expect.Equal(t, registry.initial, registry.router.Installed())
		}
	}
}

func (ExtensionSuite) TestCooperativeLanguageInstallsHandler(t *testing.T) {
	registry := newTestRegistry(t, &cooperativeOps{}, &evalOps{})
	python := registry.Extensions()[0]
	guile := registry.Extensions()[1]

	outer := registry.SetActive(guile)
	expect.Equal(t, registry.initial, registry.router.Installed())

	inner := registry.SetActive(python)
	expect.Equal(
		t,
		SignalHandler(registry.sigintHandler),
		registry.router.Installed())

	registry.Restore(inner)
	expect.Equal(t, registry.initial, registry.router.Installed())
	expect.Equal(t, guile, registry.Active())

	registry.Restore(outer)
}

func (ExtensionSuite) TestRestoreOutOfOrderPanics(t *testing.T) {
	registry := newTestRegistry(t, &cooperativeOps{}, nil)
	python := registry.Extensions()[0]

	outer := registry.SetActive(python)
	_ = registry.SetActive(registry.Builtin())

	expectPanic(t, func() {
		registry.Restore(outer)
	})
}

func (ExtensionSuite) TestCheckQuitFlagClears(t *testing.T) {
	registry := newTestRegistry(t, nil, nil)

	expect.False(t, registry.CheckQuitFlag())

	registry.SetQuitFlag()
	select {
	case <-registry.Wakeup():
		// Put the wake up back, CheckQuitFlag drains it.
		registry.wakeup <- struct{}{}
	default:
		t.Fatal("event loop not woken")
	}

	expect.True(t, registry.CheckQuitFlag())
	expect.False(t, registry.CheckQuitFlag())
	expect.Equal(t, 0, len(registry.wakeup))
}

func (ExtensionSuite) TestCooperativeQuitFlagDeliveredOnce(t *testing.T) {
	python := &cooperativeOps{}
	registry := newTestRegistry(t, python, nil)

	activation := registry.SetActive(registry.Extensions()[0])

	registry.SetQuitFlag()
	expect.True(t, python.pending)
	expect.False(t, registry.quitFlag.Load())

	expect.True(t, registry.CheckQuitFlag())
	expect.False(t, registry.CheckQuitFlag())

	registry.Restore(activation)
	expect.False(t, registry.CheckQuitFlag())
}

func (ExtensionSuite) TestPendingQuitFollowsActiveLanguage(t *testing.T) {
	python := &cooperativeOps{}
	registry := newTestRegistry(t, python, nil)

	registry.SetQuitFlag()
	expect.True(t, registry.quitFlag.Load())

	activation := registry.SetActive(registry.Extensions()[0])
	expect.True(t, python.pending)
	expect.False(t, registry.quitFlag.Load())

	registry.Restore(activation)
	expect.False(t, python.pending)
	expect.True(t, registry.quitFlag.Load())

	expect.True(t, registry.CheckQuitFlag())
	expect.False(t, registry.CheckQuitFlag())
}

func (ExtensionSuite) TestSignalRoutesToQuitFlag(t *testing.T) {
	registry := newTestRegistry(t, nil, nil)

	activation := registry.SetActive(registry.Builtin())
	registry.router.Installed().HandleSignal(os.Interrupt)
	registry.Restore(activation)

	expect.True(t, registry.CheckQuitFlag())
}

type countingHandler struct {
	count int
}

func (handler *countingHandler) HandleSignal(os.Signal) {
	handler.count++
}

func (ExtensionSuite) TestInferiorRunningForwardsSigint(t *testing.T) {
	python := &cooperativeOps{}
	registry := newTestRegistry(t, python, nil)
	pythonLang := registry.Extensions()[0]

	activation := registry.SetActive(pythonLang)

	forward := &countingHandler{}
	done := registry.InferiorRunning(forward)
	expect.Equal(t, registry.Builtin(), registry.Active())
	expect.True(t, registry.cooperativeDisabled)
	expect.Equal(t, SignalHandler(forward), registry.router.Installed())

	registry.router.Installed().HandleSignal(os.Interrupt)
	expect.Equal(t, 1, forward.count)
	expect.False(t, python.pending)
	expect.False(t, registry.CheckQuitFlag())

	done()
	expect.Equal(t, pythonLang, registry.Active())
	expect.False(t, registry.cooperativeDisabled)
	expect.Equal(
		t,
		SignalHandler(registry.sigintHandler),
		registry.router.Installed())

	registry.Restore(activation)
	expect.Equal(t, registry.initial, registry.router.Installed())
}

func (ExtensionSuite) TestDisableCooperativeSigintHandling(t *testing.T) {
	python := &cooperativeOps{}
	registry := newTestRegistry(t, python, nil)
	pythonLang := registry.Extensions()[0]

	activation := registry.SetActive(pythonLang)

	enable := registry.DisableCooperativeSigintHandling()
	expect.Equal(t, registry.Builtin(), registry.Active())

	// Nested activations are suppressed.
	nested := registry.SetActive(pythonLang)
	expect.Nil(t, nested)
	expect.Equal(t, registry.Builtin(), registry.Active())
	registry.Restore(nested)

	enableInner := registry.DisableCooperativeSigintHandling()

	registry.SetQuitFlag()
	expect.False(t, python.pending)
	expect.True(t, registry.quitFlag.Load())

	enableInner()
	expect.True(t, registry.cooperativeDisabled)

	expectPanic(t, func() {
		registry.Restore(&Activation{})
	})

	enable()
	expect.False(t, registry.cooperativeDisabled)
	expect.Equal(t, pythonLang, registry.Active())

	// The pending interrupt moved back to python.
	expect.True(t, python.pending)

	registry.Restore(activation)
	expect.Equal(t, registry.initial, registry.router.Installed())
	expect.True(t, registry.CheckQuitFlag())
	expect.False(t, registry.CheckQuitFlag())
}

func (ExtensionSuite) TestFirstResponderDispatch(t *testing.T) {
	python := &printerOps{status: StatusOK, text: "python"}
	guile := &printerOps{status: StatusOK, text: "guile"}
	registry := newTestRegistry(t, python, guile)
	python.registry = registry.Registry
	guile.registry = registry.Registry

	out := &bytes.Buffer{}
	ok, err := registry.ApplyValuePrettyPrinter(&types.Value{}, out, 0, nil)
	expect.Nil(t, err)
	expect.True(t, ok)
	expect.Equal(t, "python", out.String())
	expect.Equal(t, 1, python.calls)
	expect.Equal(t, 0, guile.calls)
	expect.Equal(t, registry.Extensions()[0], python.activeDuringCall)
	expect.Equal(t, registry.Builtin(), registry.Active())

	python.status = StatusNop
	out.Reset()
	ok, err = registry.ApplyValuePrettyPrinter(&types.Value{}, out, 0, nil)
	expect.Nil(t, err)
	expect.True(t, ok)
	expect.Equal(t, "guile", out.String())
	expect.Equal(t, 2, python.calls)
	expect.Equal(t, 1, guile.calls)

	guile.status = StatusNop
	ok, err = registry.ApplyValuePrettyPrinter(&types.Value{}, out, 0, nil)
	expect.Nil(t, err)
	expect.False(t, ok)
}

func (ExtensionSuite) TestDispatchErrorStops(t *testing.T) {
	python := &printerOps{err: fmt.Errorf("printer exploded")}
	guile := &printerOps{status: StatusOK, text: "guile"}
	registry := newTestRegistry(t, python, guile)
	python.registry = registry.Registry
	guile.registry = registry.Registry

	ok, err := registry.ApplyValuePrettyPrinter(
		&types.Value{},
		&bytes.Buffer{},
		0,
		nil)
	expect.Error(t, err, "Python: printer exploded")
	expect.False(t, ok)
	expect.Equal(t, 0, guile.calls)
	expect.Equal(t, registry.Builtin(), registry.Active())
}

func (ExtensionSuite) TestBreakpointConditionQueriesEveryLanguage(t *testing.T) {
	python := &conditionOps{stop: StopUnset}
	guile := &conditionOps{hasCondition: true, stop: StopNo}
	registry := newTestRegistry(t, python, guile)

	expect.Equal(t, StopNo, registry.BreakpointConditionSaysStop(fakeBreakpoint(1)))
	expect.Equal(t, 1, python.calls)
	expect.Equal(t, 1, guile.calls)

	python.stop = StopYes
	guile.stop = StopUnset
	expect.Equal(t, StopYes, registry.BreakpointConditionSaysStop(fakeBreakpoint(1)))
	expect.Equal(t, 2, guile.calls)

	lang, ok := registry.BreakpointConditionLanguage(fakeBreakpoint(1), TagNone)
	expect.True(t, ok)
	expect.Equal(t, TagGuile, lang.Tag)

	_, ok = registry.BreakpointConditionLanguage(fakeBreakpoint(1), TagGuile)
	expect.False(t, ok)

	guile.stop = StopNo
	expectPanic(t, func() {
		registry.BreakpointConditionSaysStop(fakeBreakpoint(1))
	})
}

func (ExtensionSuite) TestXmethodWorkersCollectAll(t *testing.T) {
	python := &xmethodOps{workers: []XmethodWorker{fakeWorker("a")}}
	guile := &xmethodOps{
		workers: []XmethodWorker{fakeWorker("b"), fakeWorker("c")},
	}
	registry := newTestRegistry(t, python, guile)

	workers, err := registry.MatchingXmethodWorkers(types.Builtin.Int, "size")
	expect.Nil(t, err)
	expect.Equal(
		t,
		[]XmethodWorker{fakeWorker("a"), fakeWorker("b"), fakeWorker("c")},
		workers)

	guile.err = fmt.Errorf("bad matcher")
	_, err = registry.MatchingXmethodWorkers(types.Builtin.Int, "size")
	expect.Error(
		t,
		err,
		"error while looking for matching xmethod workers defined in Guile")
}

func (ExtensionSuite) TestTypePrinters(t *testing.T) {
	named := &types.Type{Code: types.StructCode, Name: "foo"}
	python := &typePrinterOps{names: map[*types.Type]string{}}
	guile := &typePrinterOps{
		names: map[*types.Type]string{named: "bar"},
	}
	registry := newTestRegistry(t, python, guile)

	printers := registry.StartTypePrinters()
	expect.Equal(t, 1, python.started)
	expect.Equal(t, 1, guile.started)

	name, ok, err := printers.Apply(named)
	expect.Nil(t, err)
	expect.True(t, ok)
	expect.Equal(t, "bar", name)

	_, ok, err = printers.Apply(types.Builtin.Int)
	expect.Nil(t, err)
	expect.False(t, ok)

	printers.Close()
	expect.Equal(t, 1, python.closed)
	expect.Equal(t, 1, guile.closed)
}

func (ExtensionSuite) TestBeforePrompt(t *testing.T) {
	python := &promptOps{}
	registry := newTestRegistry(t, python, nil)

	prompt, err := registry.BeforePrompt("(badc) ")
	expect.Nil(t, err)
	expect.Equal(t, "(badc) ", prompt)

	python.prompt = "[py] "
	prompt, err = registry.BeforePrompt("(badc) ")
	expect.Nil(t, err)
	expect.Equal(t, "[py] ", prompt)
}

func (ExtensionSuite) TestFinishInitialization(t *testing.T) {
	python := &initOps{}
	registry := newTestRegistry(t, python, nil)
	python.router = registry.router

	err := registry.FinishInitialization()
	expect.Nil(t, err)
	expect.True(t, python.initialized)
	expect.Nil(t, python.handlerDuringInit)
	expect.Equal(t, registry.initial, registry.router.Installed())
}

func (ExtensionSuite) TestUnsupportedControlCommand(t *testing.T) {
	registry := newTestRegistry(t, &evalOps{}, nil)

	err := registry.EvalFromControlCommand(ControlGuile, []string{"(display 1)"})
	expect.Error(
		t,
		err,
		"Guile scripting is not supported in this copy of the debugger.")

	guile, _ := registry.ByTag(TagGuile)
	err = guile.ScriptOps.SourceScript(strings.NewReader(""), "foo.scm")
	expect.Error(t, err, "Guile scripting is not supported")
}

func (ExtensionSuite) TestBuiltinScript(t *testing.T) {
	python := &evalOps{}
	registry := newTestRegistry(t, python, nil)

	path := filepath.Join(t.TempDir(), "init.gdb")
	script := strings.Join(
		[]string{
			"# setup",
			"echo hello\\tworld\\n",
			"break main",
			"python",
			"import gdb",
			"print(1)",
			"end",
			"python print(2)",
			"",
			"run",
		},
		"\n")
	err := os.WriteFile(path, []byte(script), 0644)
	expect.Nil(t, err)

	err = registry.SourceScript(path)
	expect.Nil(t, err)

	expect.Equal(t, "hello\tworld\n", registry.output.String())
	expect.Equal(t, []string{"break main", "run"}, registry.executor.commands)
	expect.Equal(
		t,
		[][]string{{"import gdb", "print(1)"}, {"print(2)"}},
		python.evaluated)
}

func (ExtensionSuite) TestBuiltinScriptErrors(t *testing.T) {
	registry := newTestRegistry(t, &evalOps{}, nil)
	ops := registry.Builtin().ScriptOps

	err := ops.SourceScript(strings.NewReader("run\nfail\n"), "x.gdb")
	expect.Error(t, err, "x.gdb:2: command failed")

	err = ops.SourceScript(strings.NewReader("python\nprint(1)\n"), "y.gdb")
	expect.Error(t, err, "y.gdb:1: python block is not terminated by end")

	err = ops.SourceScript(strings.NewReader("guile\n(display 1)\nend\n"), "z.gdb")
	expect.Error(t, err, "z.gdb:3: Guile scripting is not supported")
}

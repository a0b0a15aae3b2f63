package extension

import (
	"fmt"
	"io"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

type Tag int

const (
	TagNone = Tag(iota)
	TagBuiltin
	TagPython
	TagGuile
)

func (tag Tag) String() string {
	switch tag {
	case TagNone:
		return "none"
	case TagBuiltin:
		return "builtin"
	case TagPython:
		return "python"
	case TagGuile:
		return "guile"
	default:
		return fmt.Sprintf("unknown tag (%d)", int(tag))
	}
}

// ControlType identifies the built-in script control block (e.g.,
// "python ... end") that embeds a language's code.
type ControlType int

const (
	ControlNone = ControlType(iota)
	ControlPython
	ControlGuile
)

// ScriptOps sources script files.  Every registered language provides
// these, even when the language itself is not supported.
type ScriptOps interface {
	SourceScript(file io.Reader, path string) error

	// Sources a script auto-loaded on behalf of objfile.
	SourceObjfileScript(
		objfile *symbols.Objfile,
		file io.Reader,
		path string,
	) error

	// Executes inline script text embedded in objfile's .debug_gdb_scripts
	// section.
	ExecuteObjfileScript(objfile *symbols.Objfile, name string, text string) error

	AutoLoadEnabled() bool
}

// Ops is the full extension interface.  A language implements any subset of
// the capability interfaces below in addition to Ops; the dispatcher skips
// languages lacking a capability.
type Ops interface {
	Initialized() bool
}

type Initializer interface {
	Initialize() error
}

type Shutdowner interface {
	Shutdown()
}

type ControlCommandEvaluator interface {
	EvalFromControlCommand(lines []string) error
}

type Status int

const (
	// The language declined the request.
	StatusNop = Status(iota)

	// The language handled the request.
	StatusOK
)

func (status Status) String() string {
	if status == StatusOK {
		return "ok"
	}
	return "nop"
}

type ValuePrintOptions struct {
	Raw     bool
	Summary bool
	Format  byte
}

type ValuePrettyPrinter interface {
	ApplyValuePrettyPrinter(
		value *types.Value,
		out io.Writer,
		recurse int,
		options *ValuePrintOptions,
	) (
		Status,
		error,
	)
}

// TypePrinterSession holds a language's type printers for the duration of
// one print operation.
type TypePrinterSession interface {
	Apply(t *types.Type) (string, Status, error)
	Close()
}

type TypePrinterProvider interface {
	StartTypePrinters() TypePrinterSession
}

type Frame interface {
	Level() int
	PC() VirtualAddress
	FunctionName() string
}

type FrameFilterFlags uint

const (
	PrintLevel     = FrameFilterFlags(1)
	PrintFrameInfo = FrameFilterFlags(2)
	PrintArgs      = FrameFilterFlags(4)
	PrintLocals    = FrameFilterFlags(8)
	PrintMore      = FrameFilterFlags(16)
	PrintRawFrame  = FrameFilterFlags(32)
)

type FrameArgs int

const (
	NoValues = FrameArgs(iota)
	AllValues
	SimpleValues
	CLIScalarValues
	CLIAllValues
	CLIPresence
)

type FrameFilterStatus int

const (
	FrameFilterNoFilters = FrameFilterStatus(iota)
	FrameFilterOK

	// The filter reached the end of the stack before printing frameHigh
	// frames.
	FrameFilterCompleted
)

type FrameFilterer interface {
	// frameHigh is -1 when there is no frame budget.
	ApplyFrameFilter(
		frame Frame,
		flags FrameFilterFlags,
		args FrameArgs,
		out io.Writer,
		frameLow int,
		frameHigh int,
	) (
		FrameFilterStatus,
		error,
	)
}

type ValuePreserver interface {
	// copied maps objfile owned types to their preserved copies.
	PreserveValues(
		objfile *symbols.Objfile,
		copied map[*types.Type]*types.Type,
	)
}

type Breakpoint interface {
	Number() int
}

type BreakpointStop int

const (
	StopUnset = BreakpointStop(iota)
	StopNo
	StopYes
)

type BreakpointConditionChecker interface {
	BreakpointHasCondition(bp Breakpoint) bool
}

type BreakpointConditionEvaluator interface {
	BreakpointConditionSaysStop(bp Breakpoint) BreakpointStop
}

// QuitFlagSetter and QuitFlagChecker make up cooperative SIGINT handling.
// Both may be called from the signal delivery goroutine.
type QuitFlagSetter interface {
	SetQuitFlag()
}

type QuitFlagChecker interface {
	// Returns true if an interrupt was pending, clearing it.
	CheckQuitFlag() bool
}

type BeforePromptHook interface {
	BeforePrompt(prompt string) (string, Status, error)
}

type XmethodWorker interface {
	ArgumentTypes() []*types.Type
	Invoke(object *types.Value, args []*types.Value) (*types.Value, error)
}

type XmethodMatcher interface {
	MatchingXmethodWorkers(
		objectType *types.Type,
		methodName string,
	) (
		[]XmethodWorker,
		error,
	)
}

type Colorizer interface {
	Colorize(filename string, contents string) (string, bool)
}

type DisassemblyColorizer interface {
	ColorizeDisassembly(contents string) (string, bool)
}

type MissingFileResult struct {
	// Look for the file again, the handler may have installed it.
	TryAgain bool

	Filename string
}

func (result MissingFileResult) IsEmpty() bool {
	return !result.TryAgain && result.Filename == ""
}

type MissingDebugInfoHandler interface {
	HandleMissingDebugInfo(objfile *symbols.Objfile) MissingFileResult
}

type ObjfileFinder interface {
	FindObjfileFromBuildId(buildId []byte, filename string) MissingFileResult
}

// Descriptor is a registered language.  Descriptors are immutable once the
// registry is built.
type Descriptor struct {
	Tag Tag

	Name            string
	CapitalizedName string

	// e.g., ".py"
	Suffix string

	// Appended to an objfile's path to locate its auto-load script, e.g.
	// "-gdb.py"
	AutoLoadSuffix string

	ControlType ControlType

	ScriptOps ScriptOps

	// nil when the language has no extension support.
	Ops Ops
}

func (lang *Descriptor) String() string {
	return lang.Name
}

// IsSupported returns false for languages registered without an
// implementation.
func (lang *Descriptor) IsSupported() bool {
	_, ok := lang.ScriptOps.(unsupportedScriptOps)
	return !ok
}

func (lang *Descriptor) validate() error {
	if lang.Name == "" || lang.CapitalizedName == "" {
		return fmt.Errorf("%w. unnamed extension language", ErrInvalidArgument)
	}

	if lang.ScriptOps == nil {
		return fmt.Errorf(
			"%w. extension language %s has no script ops",
			ErrInvalidArgument,
			lang.Name)
	}

	return nil
}

func (lang *Descriptor) unsupportedError() error {
	return fmt.Errorf(
		"%s scripting is not supported in this copy of the debugger.",
		lang.CapitalizedName)
}

type unsupportedScriptOps struct {
	lang *Descriptor
}

func (ops unsupportedScriptOps) SourceScript(io.Reader, string) error {
	return ops.lang.unsupportedError()
}

func (ops unsupportedScriptOps) SourceObjfileScript(
	*symbols.Objfile,
	io.Reader,
	string,
) error {
	return ops.lang.unsupportedError()
}

func (ops unsupportedScriptOps) ExecuteObjfileScript(
	*symbols.Objfile,
	string,
	string,
) error {
	return ops.lang.unsupportedError()
}

func (unsupportedScriptOps) AutoLoadEnabled() bool {
	return false
}

// Implementation supplies an optional language's script and extension ops.
type Implementation struct {
	ScriptOps ScriptOps
	Ops       Ops
}

func newOptionalDescriptor(
	tag Tag,
	name string,
	capitalizedName string,
	suffix string,
	controlType ControlType,
	impl *Implementation,
) *Descriptor {
	lang := &Descriptor{
		Tag:             tag,
		Name:            name,
		CapitalizedName: capitalizedName,
		Suffix:          suffix,
		AutoLoadSuffix:  "-gdb" + suffix,
		ControlType:     controlType,
	}

	if impl == nil {
		lang.ScriptOps = unsupportedScriptOps{lang: lang}
	} else {
		lang.ScriptOps = impl.ScriptOps
		lang.Ops = impl.Ops
	}

	return lang
}

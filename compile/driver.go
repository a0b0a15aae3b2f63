package compile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/objload"
	"github.com/pattyshack/badc/compile/objrun"
	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
	"github.com/pattyshack/badc/extension"
)

const (
	DefaultFrontEndLibrary = "libcc1.so"
	DefaultTripletRegexp   = "x86_64(-[^-]*)?-linux-gnu"

	tempDirPattern = "gdbobj-"
)

var (
	ErrNotRunning = fmt.Errorf(
		"The program must be running for the compile command to work.")

	ErrNoInput = fmt.Errorf(
		"Neither a simple expression, or a multi-line specified.")

	ErrCompilationFailed = fmt.Errorf("Compilation failed.")

	errDriverFilename = fmt.Errorf(
		"Command 'set compile-gcc' requires GCC version 6 or higher " +
			"(libcc1 interface version 1 or higher)")
)

// Config controls how compiled expressions are built.
type Config struct {
	// Explicit compiler driver.  Takes precedence over TripletRegexp.
	Driver string `yaml:"driver"`

	// The compiler driver is the first executable in $PATH matching
	// <TripletRegexp>-gcc.
	TripletRegexp string `yaml:"triplet_regexp"`

	Args []string `yaml:"args"`

	// Architecture specific arguments, appended to Args.
	TargetArgs []string `yaml:"target_args"`

	FrontEndLibrary string `yaml:"front_end_library"`

	// Log the generated source and make the compiler verbose.
	Debug bool `yaml:"debug"`

	// Root of the per session temporary directory.  Defaults to
	// os.TempDir().
	TempDir string `yaml:"temp_dir"`
}

func DefaultConfig() Config {
	return Config{
		TripletRegexp: DefaultTripletRegexp,
		Args: []string{
			"-O0",
			"-gdwarf-4",
			"-fPIE",
			"-Wall",
			"-Wno-unused-but-set-variable",
			"-Wno-unused-variable",
			"-fno-stack-protector",
		},
		TargetArgs:      []string{"-m64", "-mcmodel=large"},
		FrontEndLibrary: DefaultFrontEndLibrary,
	}
}

type DriverOptions struct {
	Config Config

	// Defaults to C.
	Language *Language

	// nil when there's no running program.
	Inferior objrun.Inferior
	Symbols  *symbols.Table

	// Optional.  Used for pretty printing and value preservation.
	Extensions *extension.Registry

	// Optional.
	Macros MacroSource

	// Receives compiler diagnostics and printed values.  Defaults to
	// os.Stdout.
	Output io.Writer

	// Defaults to protocol.LoadFrontEnd.
	LoadFrontEnd func(library string, entryPoint string) (
		protocol.ContextFunc,
		error)

	// Defaults to DwarfDebugInfo.
	DebugInfo objload.ModuleDebugInfo

	Logger logrus.FieldLogger
}

// Driver implements the compile commands: it generates the program,
// compiles it with the language's front end, loads the resulting object
// into the inferior and runs it.
type Driver struct {
	DriverOptions

	History *ValueHistory

	tempDir string
	counter int

	// The module currently being run.
	running *objload.Module
}

func NewDriver(options DriverOptions) *Driver {
	if options.Language == nil {
		options.Language = C
	}

	if options.Output == nil {
		options.Output = os.Stdout
	}

	if options.LoadFrontEnd == nil {
		options.LoadFrontEnd = protocol.LoadFrontEnd
	}

	if options.Config.FrontEndLibrary == "" {
		options.Config.FrontEndLibrary = DefaultFrontEndLibrary
	}

	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}

	if options.DebugInfo == nil {
		options.DebugInfo = objload.DwarfDebugInfo{Logger: options.Logger}
	}

	return &Driver{
		DriverOptions: options,
		History:       &ValueHistory{},
	}
}

// Close removes the session's temporary directory.
func (driver *Driver) Close() error {
	if driver.tempDir == "" {
		return nil
	}

	err := os.Remove(driver.tempDir)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", driver.tempDir, err)
	}

	driver.tempDir = ""
	return nil
}

// compileFileNames returns the next source / object file pair in the
// session's temporary directory.
func (driver *Driver) compileFileNames() (string, string, error) {
	if driver.tempDir == "" {
		dir, err := os.MkdirTemp(driver.Config.TempDir, tempDirPattern)
		if err != nil {
			return "", "", fmt.Errorf(
				"failed to create compile temporary directory: %w",
				err)
		}
		driver.tempDir = dir
	}

	idx := driver.counter
	driver.counter++

	base := filepath.Join(driver.tempDir, fmt.Sprintf("out%d", idx))
	return base + ".c", base + ".o", nil
}

func (driver *Driver) frameScope() (VirtualAddress, *symbols.Block) {
	value, err := driver.Inferior.RegisterValue(registers.ProgramCounter)
	if err != nil {
		driver.Logger.WithError(err).Debug(
			"no selected frame, compiling in the global scope")
		return 0, nil
	}

	pc := VirtualAddress(value.ToUint64())
	block, ok := driver.Symbols.BlockForPC(pc)
	if !ok {
		return pc, nil
	}
	return pc, block
}

func (driver *Driver) newFrontEnd() (protocol.CFrontEnd, error) {
	lang := driver.Language
	if lang.EntryPoint == "" {
		return nil, fmt.Errorf("No compiler support for language %s.", lang.Name)
	}

	context, err := driver.LoadFrontEnd(
		driver.Config.FrontEndLibrary,
		lang.EntryPoint)
	if err != nil {
		return nil, err
	}

	for _, version := range lang.Versions {
		frontEnd, err := context(version.Base, version.Language)
		if errors.Is(err, protocol.ErrUnsupportedVersion) {
			continue
		} else if err != nil {
			return nil, err
		}

		cFrontEnd, ok := frontEnd.(protocol.CFrontEnd)
		if !ok {
			frontEnd.Destroy()
			return nil, fmt.Errorf(
				"No compiler support for language %s.",
				lang.Name)
		}
		return cFrontEnd, nil
	}

	return nil, protocol.ErrUnsupportedVersion
}

// compileToObject compiles input (or the named file when input is empty)
// in the given scope and returns the source / object file names.
func (driver *Driver) compileToObject(
	file string,
	input string,
	scope protocol.Scope,
) (
	string,
	string,
	error,
) {
	if driver.Inferior == nil {
		return "", "", ErrNotRunning
	}

	if file != "" {
		input = fmt.Sprintf("#include \"%s\"\n", file)
	} else if input == "" {
		return "", "", ErrNoInput
	}

	frontEnd, err := driver.newFrontEnd()
	if err != nil {
		return "", "", err
	}

	pc, block := driver.frameScope()

	instance, err := NewInstance(
		driver.Language,
		frontEnd,
		InstanceOptions{
			Scope:    scope,
			Block:    block,
			PC:       pc,
			Symbols:  driver.Symbols,
			Resolver: driver.Inferior,
			Macros:   driver.Macros,
			Logger:   driver.Logger,
		})
	if err != nil {
		frontEnd.Destroy()
		return "", "", err
	}
	defer instance.Destroy()

	frontEnd.SetVerbose(driver.Config.Debug)
	if driver.Config.Driver != "" {
		err := frontEnd.SetDriverFilename(driver.Config.Driver)
		if err != nil {
			return "", "", errDriverFilename
		}
	} else {
		regexp := driver.Config.TripletRegexp
		if regexp == "" {
			regexp = DefaultTripletRegexp
		}

		err := frontEnd.SetTripletRegexp(regexp)
		if err != nil {
			return "", "", err
		}
	}

	args := append([]string{}, driver.Config.Args...)
	args = append(args, driver.Config.TargetArgs...)
	err = frontEnd.SetArguments(args)
	if err != nil {
		return "", "", err
	}

	code, err := instance.ComputeProgram(input)
	if err != nil {
		return "", "", err
	}

	if driver.Config.Debug {
		driver.Logger.Infof("Compiling code:\n%s", code)
	}

	sourceFile, objectFile, err := driver.compileFileNames()
	if err != nil {
		return "", "", err
	}

	err = os.WriteFile(sourceFile, []byte(code), 0600)
	if err != nil {
		return "", "", fmt.Errorf(
			"Could not open source file for writing: %w",
			err)
	}

	frontEnd.SetSourceFile(sourceFile)
	frontEnd.SetPrintCallback(func(message string) {
		io.WriteString(driver.Output, message)
	})

	err = frontEnd.Compile(objectFile)
	if err != nil {
		driver.Logger.WithError(err).Debug("compilation failed")
		driver.removeFiles(sourceFile, objectFile)
		return "", "", ErrCompilationFailed
	}

	if driver.Config.Debug {
		driver.Logger.Infof("object file produced: %s", objectFile)
	}

	return sourceFile, objectFile, nil
}

func (driver *Driver) removeFiles(paths ...string) {
	for _, path := range paths {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			driver.Logger.WithError(err).Debugf("failed to remove %s", path)
		}
	}
}

// EvalCompileCommand compiles, loads and runs input (or the named file) in
// the selected frame's scope.  options is only used by the print scopes and
// may be nil.
func (driver *Driver) EvalCompileCommand(
	file string,
	input string,
	scope protocol.Scope,
	options *extension.ValuePrintOptions,
) error {
	sourceFile, objectFile, err := driver.compileToObject(file, input, scope)
	if err != nil {
		return err
	}

	module, err := objload.Load(
		objload.Options{
			Inferior:  driver.Inferior,
			Symbols:   driver.Symbols,
			DebugInfo: driver.DebugInfo,
			Logger:    driver.Logger,
		},
		sourceFile,
		objectFile,
		scope,
		options)
	if err != nil {
		driver.removeFiles(sourceFile, objectFile)
		return err
	}

	if module == nil {
		// The expression is an array, whose address can't be printed as a
		// value of the expression's type.
		if scope != protocol.PrintAddressScope {
			panic("should never happen")
		}

		driver.removeFiles(sourceFile, objectFile)
		return driver.EvalCompileCommand(
			file,
			input,
			protocol.PrintValueScope,
			options)
	}

	preservers := []objrun.ValuePreserver{driver.History}
	if driver.Extensions != nil {
		preservers = append(preservers, driver.Extensions)
	}

	driver.running = module
	defer func() {
		driver.running = nil
	}()

	return objrun.Run(
		objrun.Options{
			Inferior:   driver.Inferior,
			Symbols:    driver.Symbols,
			Print:      driver.printValue,
			Preservers: preservers,
			Logger:     driver.Logger,
		},
		module)
}

// EvalCompileFile compiles and runs the named source file.
func (driver *Driver) EvalCompileFile(path string, scope protocol.Scope) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("Couldn't open file %s: %w", path, err)
	}

	_, err = os.Stat(abs)
	if err != nil {
		return fmt.Errorf("Couldn't open file %s: %w", path, err)
	}

	return driver.EvalCompileCommand(abs, "", scope, nil)
}

// printValue records the compiled expression's value in the history and
// prints it, through the extension languages' pretty printers when one
// applies.
func (driver *Driver) printValue(value *types.Value, scopeData any) error {
	var objfile *symbols.Objfile
	if driver.running != nil {
		objfile = driver.running.Objfile
	}

	idx := driver.History.Record(value, objfile)
	fmt.Fprintf(driver.Output, "$%d = ", idx)

	options, _ := scopeData.(*extension.ValuePrintOptions)
	if options == nil {
		options = &extension.ValuePrintOptions{}
	}

	if driver.Extensions != nil && !options.Raw {
		ok, err := driver.Extensions.ApplyValuePrettyPrinter(
			value,
			driver.Output,
			0,
			options)
		if err != nil {
			return err
		}

		if ok {
			io.WriteString(driver.Output, "\n")
			return nil
		}
	}

	_, err := io.WriteString(driver.Output, value.Format()+"\n")
	return err
}

// Package gcc is a compiler front end which renders the declarations the
// debugger supplies as C / C++ source, and compiles the result with the gcc
// driver.
package gcc

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
)

const (
	// The library / entry point names the front end is registered under.
	Library           = "libcc1.so"
	CEntryPoint       = "gcc_c_fe_context"
	CPlusEntryPoint   = "gcc_cp_fe_context"
	defaultDriverName = "gcc"
)

// Register makes the C and C++ front ends available to
// protocol.LoadFrontEnd.
func Register(logger logrus.FieldLogger) {
	protocol.RegisterFrontEnd(Library, CEntryPoint, NewCContext(logger))
	protocol.RegisterFrontEnd(Library, CPlusEntryPoint, NewCPlusContext(logger))
}

func NewCContext(logger logrus.FieldLogger) protocol.ContextFunc {
	return func(
		base protocol.Version,
		lang protocol.Version,
	) (
		protocol.BaseFrontEnd,
		error,
	) {
		if base > protocol.BaseVersion1 || lang > protocol.CVersion1 {
			return nil, protocol.ErrUnsupportedVersion
		}
		return newFrontEnd(base, lang, false, logger), nil
	}
}

func NewCPlusContext(logger logrus.FieldLogger) protocol.ContextFunc {
	return func(
		base protocol.Version,
		lang protocol.Version,
	) (
		protocol.BaseFrontEnd,
		error,
	) {
		if base != protocol.BaseVersion1 || lang > protocol.CPlusVersion0 {
			return nil, protocol.ErrUnsupportedVersion
		}
		return &CPlusFrontEnd{
			FrontEnd: newFrontEnd(base, lang, true, logger),
		}, nil
	}
}

// FrontEnd implements protocol.CFrontEnd.  Type and declaration handles are
// indices into the front end's tables.
type FrontEnd struct {
	baseVersion     protocol.Version
	languageVersion protocol.Version
	isCPlus         bool

	args          []string
	driver        string
	tripletRegexp string
	sourceFile    string
	print         func(string)
	verbose       bool

	oracle protocol.Oracle

	// handle - 1 indexed
	types []*pluginType
	decls []*declaration

	// Tagged types in finish order.
	finished []protocol.PluginType

	// Bound (named) types.
	typedefs []*declaration

	// Namespace binding levels (c++ only).  The outermost level is the
	// global namespace.
	bindingLevels []string

	errors []string

	lookPath func(file string) (string, error)
	run      runCommand
	logger   logrus.FieldLogger
}

func newFrontEnd(
	base protocol.Version,
	lang protocol.Version,
	isCPlus bool,
	logger logrus.FieldLogger,
) *FrontEnd {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &FrontEnd{
		baseVersion:     base,
		languageVersion: lang,
		isCPlus:         isCPlus,
		print:           func(string) {},
		lookPath:        lookPath,
		run:             runDriver,
		logger:          logger.WithField("front end", "gcc"),
	}
}

func (fe *FrontEnd) Version() protocol.Version {
	return fe.baseVersion
}

func (fe *FrontEnd) LanguageVersion() protocol.Version {
	return fe.languageVersion
}

func (fe *FrontEnd) SetArguments(args []string) error {
	fe.args = append([]string{}, args...)
	return nil
}

func (fe *FrontEnd) SetTripletRegexp(pattern string) error {
	_, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid triplet regexp %s: %w", pattern, err)
	}

	fe.tripletRegexp = pattern
	fe.driver = ""
	return nil
}

func (fe *FrontEnd) SetDriverFilename(path string) error {
	if fe.baseVersion < protocol.BaseVersion1 {
		return protocol.ErrUnsupportedVersion
	}

	fe.driver = path
	fe.tripletRegexp = ""
	return nil
}

func (fe *FrontEnd) SetSourceFile(path string) {
	fe.sourceFile = path
}

func (fe *FrontEnd) SetPrintCallback(callback func(message string)) {
	if callback == nil {
		callback = func(string) {}
	}
	fe.print = callback
}

func (fe *FrontEnd) SetVerbose(verbose bool) {
	fe.verbose = verbose
}

func (fe *FrontEnd) SetOracle(oracle protocol.Oracle) {
	fe.oracle = oracle
}

// Error records a compilation error.  The returned handle may be used as
// any type.
func (fe *FrontEnd) Error(message string) protocol.PluginType {
	fe.logger.WithField("error", message).Debug("front end error")
	fe.errors = append(fe.errors, message)
	return fe.newType(&pluginType{kind: errorKind})
}

func (fe *FrontEnd) Destroy() {
	fe.types = nil
	fe.decls = nil
	fe.finished = nil
	fe.typedefs = nil
	fe.oracle = nil
}

// lookPath searches $PATH for the first executable whose base name matches
// pattern.
func lookPath(pattern string) (string, error) {
	re, err := regexp.Compile("^(" + pattern + ")$")
	if err != nil {
		return "", err
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !re.MatchString(entry.Name()) {
				continue
			}

			info, err := entry.Info()
			if err != nil || info.Mode()&0111 == 0 {
				continue
			}

			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("no executable matching %s found in $PATH", pattern)
}

// driverPath returns the compiler driver to run.
func (fe *FrontEnd) driverPath() string {
	if fe.driver != "" {
		return fe.driver
	}

	if fe.tripletRegexp != "" {
		path, err := fe.lookPath(fe.tripletRegexp + "-" + defaultDriverName)
		if err == nil {
			return path
		}

		fe.logger.WithError(err).Debug("falling back to the default driver")
	}

	return defaultDriverName
}

package extension

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Options struct {
	// Runs built-in script commands that are not handled by the script
	// language itself.
	Executor CommandExecutor

	// Destination of built-in script "echo" output.  Defaults to stdout.
	Output io.Writer

	AutoLoadBuiltinScripts bool

	// nil means the language is not supported.
	Python *Implementation
	Guile  *Implementation

	// Defaults to the os/signal backed router.
	Router SignalRouter

	Logger logrus.FieldLogger
}

// Registry is the ordered set of extension languages, plus the cooperative
// SIGINT state shared by them.
type Registry struct {
	logger logrus.FieldLogger

	builtin *Descriptor

	// Priority ordered.  Python must precede Guile.
	extensions []*Descriptor

	router        SignalRouter
	sigintHandler *debuggerSigintHandler

	active              atomic.Pointer[Descriptor]
	activations         []*Activation
	cooperativeDisabled bool

	quitFlag atomic.Bool
	wakeup   chan struct{}
}

func NewRegistry(options Options) (*Registry, error) {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := options.Router
	if router == nil {
		router = NewSignalRouter()
	}

	output := options.Output
	if output == nil {
		output = os.Stdout
	}

	registry := &Registry{
		logger: logger,
		router: router,
		wakeup: make(chan struct{}, 1),
	}
	registry.sigintHandler = &debuggerSigintHandler{registry: registry}

	registry.builtin = &Descriptor{
		Tag:             TagBuiltin,
		Name:            "gdb",
		CapitalizedName: "GDB",
		Suffix:          ".gdb",
		AutoLoadSuffix:  "-gdb.gdb",
		ControlType:     ControlNone,
		ScriptOps: &builtinScriptOps{
			registry:        registry,
			executor:        options.Executor,
			output:          output,
			autoLoadEnabled: options.AutoLoadBuiltinScripts,
		},
	}

	registry.extensions = []*Descriptor{
		newOptionalDescriptor(
			TagPython,
			"python",
			"Python",
			".py",
			ControlPython,
			options.Python),
		newOptionalDescriptor(
			TagGuile,
			"guile",
			"Guile",
			".scm",
			ControlGuile,
			options.Guile),
	}

	for _, lang := range registry.All() {
		err := lang.validate()
		if err != nil {
			return nil, err
		}
	}

	registry.active.Store(registry.builtin)
	return registry, nil
}

func (registry *Registry) Builtin() *Descriptor {
	return registry.builtin
}

// Extensions returns the non-builtin languages in dispatch order.
func (registry *Registry) Extensions() []*Descriptor {
	return registry.extensions
}

// All returns the builtin language followed by Extensions().
func (registry *Registry) All() []*Descriptor {
	return append([]*Descriptor{registry.builtin}, registry.extensions...)
}

func (registry *Registry) ByTag(tag Tag) (*Descriptor, bool) {
	for _, lang := range registry.All() {
		if lang.Tag == tag {
			return lang, true
		}
	}
	return nil, false
}

func (registry *Registry) ByName(name string) (*Descriptor, bool) {
	for _, lang := range registry.All() {
		if lang.Name == name {
			return lang, true
		}
	}
	return nil, false
}

// LanguageOfFile returns the language whose suffix matches path.
func (registry *Registry) LanguageOfFile(path string) (*Descriptor, bool) {
	for _, lang := range registry.All() {
		if strings.HasSuffix(path, lang.Suffix) {
			return lang, true
		}
	}
	return nil, false
}

func (registry *Registry) AutoLoadEnabled(lang *Descriptor) bool {
	return lang.ScriptOps.AutoLoadEnabled()
}

// FinishInitialization runs every language's initializer with the default
// SIGINT disposition in place.
func (registry *Registry) FinishInitialization() error {
	for _, lang := range registry.extensions {
		initializer, ok := lang.Ops.(Initializer)
		if !ok {
			continue
		}

		err := registry.withDefaultSigint(initializer.Initialize)
		if err != nil {
			return fmt.Errorf(
				"failed to initialize %s: %w",
				lang.CapitalizedName,
				err)
		}
	}

	return nil
}

func (registry *Registry) Initialized(lang *Descriptor) bool {
	if lang.Ops == nil {
		return false
	}
	return lang.Ops.Initialized()
}

func (registry *Registry) Shutdown() {
	for _, lang := range registry.extensions {
		shutdowner, ok := lang.Ops.(Shutdowner)
		if ok {
			shutdowner.Shutdown()
		}
	}
}

// SourceScript sources path with the language matching its suffix, falling
// back to the builtin language.
func (registry *Registry) SourceScript(path string) error {
	lang, ok := registry.LanguageOfFile(path)
	if !ok {
		lang = registry.builtin
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open script %s: %w", path, err)
	}
	defer file.Close()

	return lang.ScriptOps.SourceScript(file, path)
}

// EvalFromControlCommand runs the body of an embedded language control
// block.
func (registry *Registry) EvalFromControlCommand(
	controlType ControlType,
	lines []string,
) error {
	for _, lang := range registry.extensions {
		if lang.ControlType != controlType {
			continue
		}

		evaluator, ok := lang.Ops.(ControlCommandEvaluator)
		if !ok {
			return lang.unsupportedError()
		}

		return registry.withActive(lang, func() error {
			return evaluator.EvalFromControlCommand(lines)
		})
	}

	panic("should never happen")
}

package compile

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// IndirectFunctionResolver resolves STT_GNU_IFUNC symbols in the inferior.
type IndirectFunctionResolver interface {
	ResolveIndirectFunction(resolver VirtualAddress) (VirtualAddress, error)
}

type InstanceOptions struct {
	Scope protocol.Scope

	// The innermost block at the selected frame's pc.  nil means the global
	// scope.
	Block *symbols.Block
	PC    VirtualAddress

	Symbols  *symbols.Table
	Resolver IndirectFunctionResolver

	// Defaults to the dwarf location generator.
	Locations LocationGenerator

	// Optional.
	Macros MacroSource

	Logger logrus.FieldLogger
}

// Instance holds the state of one compilation: the front end, the type
// conversion cache and the symbol error cache.  An instance must not be
// reused across compilations.
type Instance struct {
	options InstanceOptions

	language  *Language
	frontEnd  protocol.CFrontEnd
	converter typeConverter
	logger    logrus.FieldLogger

	// Keyed by the typedef-resolved type.
	typeCache map[*types.Type]protocol.PluginType

	// Errors computing a symbol's location, reported (once) if the compiler
	// asks for the symbol.
	symbolErrors map[*symbols.Symbol]string

	// c++ only
	scopes []*compileScope

	destroyed bool
}

func NewInstance(
	language *Language,
	frontEnd protocol.BaseFrontEnd,
	options InstanceOptions,
) (
	*Instance,
	error,
) {
	cFrontEnd, ok := frontEnd.(protocol.CFrontEnd)
	if !ok {
		return nil, fmt.Errorf(
			"%w. front end does not support language %s",
			ErrInvalidArgument,
			language.Name)
	}

	if language.requiresCPlus {
		_, ok := frontEnd.(protocol.CPlusFrontEnd)
		if !ok {
			return nil, fmt.Errorf(
				"%w. front end does not support language %s",
				ErrInvalidArgument,
				language.Name)
		}
	}

	if options.Symbols == nil {
		options.Symbols = symbols.NewTable(options.Logger)
	}

	if options.Locations == nil {
		options.Locations = DwarfLocations{}
	}

	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	instance := &Instance{
		options:      options,
		language:     language,
		frontEnd:     cFrontEnd,
		logger:       logger.WithField("language", language.Name),
		typeCache:    map[*types.Type]protocol.PluginType{},
		symbolErrors: map[*symbols.Symbol]string{},
	}
	instance.converter = language.newConverter(instance)

	cFrontEnd.SetOracle(instance)
	return instance, nil
}

func (instance *Instance) Language() *Language {
	return instance.language
}

func (instance *Instance) FrontEnd() protocol.CFrontEnd {
	return instance.frontEnd
}

func (instance *Instance) Scope() protocol.Scope {
	return instance.options.Scope
}

func (instance *Instance) Block() *symbols.Block {
	return instance.options.Block
}

// ConvertType returns the front end handle of t, converting it on first use.
func (instance *Instance) ConvertType(t *types.Type) protocol.PluginType {
	// Typedefs are only needed as symbols by the compiler.
	t = types.CheckTypedef(t)

	handle, ok := instance.typeCache[t]
	if ok {
		return handle
	}

	handle = instance.converter.convert(t)
	instance.InsertType(t, handle)
	return handle
}

// InsertType records t's handle.  Re-inserting the same pair is a no-op.
// Struct and union conversion inserts the forward declared handle before
// converting fields so that recursive references terminate.
func (instance *Instance) InsertType(
	t *types.Type,
	handle protocol.PluginType,
) {
	existing, ok := instance.typeCache[t]
	if ok {
		if existing != handle {
			panic("should never happen")
		}
		return
	}

	instance.typeCache[t] = handle
}

// InsertSymbolError records the reason symbol cannot be used by compiled
// code.  Only the first error is kept.
func (instance *Instance) InsertSymbolError(
	symbol *symbols.Symbol,
	message string,
) {
	_, ok := instance.symbolErrors[symbol]
	if ok {
		return
	}
	instance.symbolErrors[symbol] = message
}

// symbolErrorOnce returns the symbol's recorded error the first time it is
// asked for, and nil afterward.
func (instance *Instance) symbolErrorOnce(symbol *symbols.Symbol) error {
	message := instance.symbolErrors[symbol]
	if message == "" {
		return nil
	}

	instance.symbolErrors[symbol] = ""
	return errors.New(message)
}

func (instance *Instance) intType(
	isUnsigned bool,
	size uint64,
	name string,
) protocol.PluginType {
	if instance.frontEnd.LanguageVersion() < protocol.CVersion1 {
		name = ""
	}
	return instance.frontEnd.IntType(isUnsigned, size, name)
}

func (instance *Instance) warn(message string) {
	instance.logger.Warn(message)
}

// Destroy releases the front end.  Safe to call more than once.
func (instance *Instance) Destroy() {
	if instance.destroyed {
		return
	}
	instance.destroyed = true
	instance.frontEnd.Destroy()
}

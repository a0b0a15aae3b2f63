package compile

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// ConvertSymbol declares identifier to the front end.  Lookup failures are
// not errors; the compiler reports the undeclared identifier itself.
func (instance *Instance) ConvertSymbol(
	request protocol.OracleRequest,
	identifier string,
) {
	var err error
	switch request {
	case protocol.OracleSymbol:
		err = instance.convertVariableOrFunction(identifier)
	case protocol.OracleTag:
		err = instance.convertTag(identifier)
	case protocol.OracleLabel:
		// Jumping to labels in the inferior is not supported.
		return
	default:
		panic("should never happen")
	}

	if err != nil {
		instance.frontEnd.Error(err.Error())
	}
}

// lookup returns the symbol visible from the instance's block, and whether
// it is local to the enclosing function.
func (instance *Instance) lookup(
	name string,
	domain symbols.Domain,
) (
	*symbols.Symbol,
	bool,
	bool,
) {
	block := instance.options.Block
	for ; block != nil && block.Function != nil; block = block.Superblock {
		symbol, ok := block.LookupLocal(name, domain)
		if ok {
			return symbol, true, true
		}
	}

	symbol, ok := instance.options.Symbols.ScopeAt(block).LookupSymbol(
		name,
		domain)
	return symbol, false, ok
}

// lookupGlobal ignores the enclosing function's locals.
func (instance *Instance) lookupGlobal(
	name string,
	domain symbols.Domain,
) (
	*symbols.Symbol,
	bool,
) {
	block := instance.options.Block
	for block != nil && block.Function != nil {
		block = block.Superblock
	}

	return instance.options.Symbols.ScopeAt(block).LookupSymbol(name, domain)
}

func (instance *Instance) convertVariableOrFunction(identifier string) error {
	symbol, isLocal, ok := instance.lookup(identifier, symbols.VarDomain)
	if ok {
		instance.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"class":      symbol.Class,
			"local":      isLocal,
		}).Debug("converting debug symbol")

		// A local shadowing a global still needs the global declared,
		// since the user's code may refer to it through an extern
		// declaration.
		if isLocal {
			global, ok := instance.lookupGlobal(identifier, symbols.VarDomain)
			if ok && global != symbol {
				err := instance.convertOneSymbol(global, true, false)
				if err != nil {
					return err
				}
			}
		}

		return instance.convertOneSymbol(symbol, !isLocal, isLocal)
	}

	minSym, ok := instance.options.Symbols.LookupMinimalSymbol(identifier)
	if !ok {
		instance.logger.Debugf(
			"convert symbol \"%s\": no minimal symbol found",
			identifier)
		return nil
	}

	return instance.convertMinimalSymbol(identifier, minSym)
}

func (instance *Instance) convertTag(identifier string) error {
	symbol, isLocal, ok := instance.lookup(identifier, symbols.StructDomain)
	if !ok {
		instance.logger.Debugf("convert tag \"%s\": not found", identifier)
		return nil
	}

	return instance.convertOneSymbol(symbol, !isLocal, isLocal)
}

func (instance *Instance) convertOneSymbol(
	symbol *symbols.Symbol,
	isGlobal bool,
	isLocal bool,
) error {
	err := instance.symbolErrorOnce(symbol)
	if err != nil {
		return err
	}

	fe := instance.frontEnd

	name := symbol.Name
	if instance.language.requiresCPlus {
		scope := instance.newScope(symbol.Name)
		instance.enterScope(scope)
		defer instance.leaveScope()
		name = scope.identifier
	}

	symType := symbol.Type
	if symbol.Class == symbols.FunctionSymbol {
		symType = symbol.FunctionType()
	} else if symType == nil {
		symType = types.Builtin.NoDebugData
	}

	switch symbol.Class {
	case symbols.TagSymbol:
		handle := instance.ConvertType(symType)

		// c++ type conversion binds the tag in the type's scope.
		if instance.language.requiresCPlus {
			return nil
		}
		return fe.TagBind(name, handle, symbol.File, symbol.Line)

	case symbols.TypedefSymbol:
		decl := fe.BuildDecl(
			name,
			protocol.TypedefSymbol,
			instance.ConvertType(symType),
			"",
			0,
			symbol.File,
			symbol.Line)
		return fe.Bind(decl, isGlobal)

	case symbols.ConstantSymbol:
		// Enumerators are declared by their enum type's conversion.
		if types.CheckTypedef(symType).Code == types.EnumCode {
			instance.ConvertType(symType)
			return nil
		}

		return fe.BuildConstant(
			instance.ConvertType(symType),
			name,
			symbol.Value,
			symbol.File,
			symbol.Line)
	}

	kind := protocol.VariableSymbol
	substitution := ""
	address := symbol.Address

	switch symbol.Class {
	case symbols.FunctionSymbol:
		kind = protocol.FunctionSymbol

		minSym, ok := instance.options.Symbols.LookupMinimalSymbol(symbol.Name)
		if ok && minSym.Class == symbols.IndirectFunctionSymbol {
			address, err = instance.resolveIndirectFunction(minSym)
			if err != nil {
				return err
			}
		}

	case symbols.VariableSymbol:

	case symbols.ComputedSymbol:
		if !isLocal {
			return fmt.Errorf(
				"Symbol \"%s\" is local to a function outside the current scope.",
				symbol.Name)
		}

		substitution = protocol.SubstitutionName(symbol.Name)
		address = 0

	default:
		return fmt.Errorf(
			"Unsupported symbol class %s of \"%s\".",
			symbol.Class,
			symbol.Name)
	}

	decl := fe.BuildDecl(
		name,
		kind,
		instance.ConvertType(symType),
		substitution,
		uint64(address),
		symbol.File,
		symbol.Line)
	return fe.Bind(decl, isGlobal)
}

func (instance *Instance) convertMinimalSymbol(
	identifier string,
	minSym *symbols.MinimalSymbol,
) error {
	instance.logger.WithFields(logrus.Fields{
		"identifier": identifier,
		"class":      minSym.Class,
		"address":    minSym.Address,
	}).Debug("converting minimal symbol")

	symType := types.Builtin.NoDebugData
	kind := protocol.VariableSymbol
	address := minSym.Address

	switch minSym.Class {
	case symbols.TextSymbol:
		symType = types.Builtin.NoDebugText
		kind = protocol.FunctionSymbol

	case symbols.IndirectFunctionSymbol:
		symType = types.Builtin.NoDebugText
		kind = protocol.FunctionSymbol

		var err error
		address, err = instance.resolveIndirectFunction(minSym)
		if err != nil {
			return err
		}
	}

	fe := instance.frontEnd
	decl := fe.BuildDecl(
		identifier,
		kind,
		instance.ConvertType(symType),
		"",
		uint64(address),
		"",
		0)
	return fe.Bind(decl, true)
}

func (instance *Instance) resolveIndirectFunction(
	minSym *symbols.MinimalSymbol,
) (
	VirtualAddress,
	error,
) {
	if instance.options.Resolver == nil {
		return 0, fmt.Errorf(
			"Cannot resolve indirect function \"%s\" without a running program.",
			minSym.Name)
	}

	address, err := instance.options.Resolver.ResolveIndirectFunction(
		minSym.Address)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to resolve indirect function %s: %w",
			minSym.Name,
			err)
	}

	return address, nil
}

// SymbolAddress returns the address of the function named identifier.
func (instance *Instance) SymbolAddress(identifier string) (uint64, bool) {
	symbol, _, ok := instance.lookup(identifier, symbols.VarDomain)
	if ok && symbol.Class == symbols.FunctionSymbol {
		instance.logger.Debugf(
			"symbol address \"%s\": found function at %s",
			identifier,
			symbol.Address)
		return uint64(symbol.Address), true
	}

	minSym, ok := instance.options.Symbols.LookupMinimalSymbol(identifier)
	if !ok {
		instance.logger.Debugf(
			"symbol address \"%s\": not found",
			identifier)
		return 0, false
	}

	switch minSym.Class {
	case symbols.TextSymbol:
		return uint64(minSym.Address), true

	case symbols.IndirectFunctionSymbol:
		address, err := instance.resolveIndirectFunction(minSym)
		if err != nil {
			instance.logger.WithError(err).Warn("failed to compute symbol address")
			return 0, false
		}
		return uint64(address), true
	}

	return 0, false
}

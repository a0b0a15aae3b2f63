package objload

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
	"github.com/pattyshack/badc/elf"
)

type Options struct {
	Inferior Inferior
	Symbols  *symbols.Table

	// Defaults to DwarfDebugInfo.
	DebugInfo ModuleDebugInfo

	// Defaults to LoggingLinkCallbacks.
	Callbacks LinkCallbacks

	Logger logrus.FieldLogger
}

func openObject(objectFile string) (*elf.File, error) {
	content, err := os.ReadFile(objectFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectFile, err)
	}

	file, err := elf.ParseBytes(content)
	if err != nil {
		return nil, fmt.Errorf(
			"\"%s\": not in loadable format: %w",
			objectFile,
			err)
	}

	if file.FileType != elf.FileTypeRelocatable {
		return nil, fmt.Errorf("\"%s\": not in object format.", objectFile)
	}

	return file, nil
}

// wrapperFunction returns the compiled module's entry point after checking
// its signature against the scope.
func wrapperFunction(
	objfile *symbols.Objfile,
	module string,
	scope protocol.Scope,
) (
	*symbols.Symbol,
	error,
) {
	function, ok := objfile.LookupGlobalOrStatic(
		protocol.WrapperFunctionName,
		symbols.VarDomain)
	if !ok || function.Class != symbols.FunctionSymbol {
		return nil, fmt.Errorf(
			"Cannot find function \"%s\" in compiled module \"%s\".",
			protocol.WrapperFunctionName,
			module)
	}

	fnType := types.CheckTypedef(function.FunctionType())
	if fnType.Code != types.FunctionCode {
		return nil, fmt.Errorf(
			"Invalid type code %s of function \"%s\" in compiled module \"%s\".",
			fnType.Code,
			protocol.WrapperFunctionName,
			module)
	}

	if len(fnType.Fields) != scope.NumParameters() {
		return nil, fmt.Errorf(
			"Invalid %d parameters of function \"%s\" in compiled module \"%s\".",
			len(fnType.Fields),
			protocol.WrapperFunctionName,
			module)
	}

	if fnType.Target != nil &&
		types.CheckTypedef(fnType.Target).Code != types.VoidCode {

		return nil, fmt.Errorf(
			"Invalid return type of function \"%s\" in compiled module \"%s\".",
			protocol.WrapperFunctionName,
			module)
	}

	return function, nil
}

type loader struct {
	Options

	sourceFile string
	objectFile string
	scope      protocol.Scope

	munmaps *MunmapList
	objfile *symbols.Objfile
}

// Load injects the compiled object into the inferior: its allocated sections
// are mapped and relocated against the program's symbols, and the register
// struct / out value scratch regions are allocated.
//
// Load returns a nil module (and nil error) when a print address scope
// expression must be recompiled in print value scope.  Everything acquired
// is released when Load does not return a module.
func Load(
	options Options,
	sourceFile string,
	objectFile string,
	scope protocol.Scope,
	scopeData any,
) (
	*Module,
	error,
) {
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	options.Logger = options.Logger.WithField("module", objectFile)

	if options.DebugInfo == nil {
		options.DebugInfo = DwarfDebugInfo{Logger: options.Logger}
	}

	if options.Callbacks == nil {
		options.Callbacks = LoggingLinkCallbacks{Logger: options.Logger}
	}

	loader := &loader{
		Options:    options,
		sourceFile: sourceFile,
		objectFile: objectFile,
		scope:      scope,
		munmaps:    &MunmapList{},
	}

	module, err := loader.load(scopeData)
	if module == nil {
		loader.release()
	}
	return module, err
}

func (loader *loader) release() {
	err := loader.munmaps.UnmapAll(loader.Inferior)
	if err != nil {
		loader.Logger.WithError(err).Debug(
			"failed to unmap compiled module regions")
	}

	if loader.objfile != nil {
		err := loader.Symbols.Remove(loader.objfile)
		if err != nil {
			loader.Logger.WithError(err).Debug(
				"failed to remove compiled module objfile")
		}
		loader.objfile = nil
	}
}

func (loader *loader) load(scopeData any) (*Module, error) {
	file, err := openObject(loader.objectFile)
	if err != nil {
		return nil, err
	}

	addresses, err := layoutSections(
		file,
		loader.Inferior,
		loader.munmaps,
		loader.Logger)
	if err != nil {
		return nil, err
	}

	objfile, err := symbols.NewObjfile(loader.objectFile, file, 0, addresses)
	if err != nil {
		return nil, err
	}

	loader.Symbols.Add(objfile)
	loader.objfile = objfile

	err = loader.DebugInfo.ReadDebugInfo(objfile, loader.objectFile)
	if err != nil {
		return nil, err
	}

	function, err := wrapperFunction(objfile, loader.objectFile, loader.scope)
	if err != nil {
		return nil, err
	}

	linker := &linker{
		module:    loader.objectFile,
		file:      file,
		addresses: addresses,
		inferior:  loader.Inferior,
		symbols:   loader.Symbols,
		callbacks: loader.Callbacks,
		logger:    loader.Logger,
	}

	err = linker.resolveSymbols()
	if err != nil {
		return nil, err
	}

	err = linker.relocate()
	if err != nil {
		return nil, err
	}

	regsType, err := registersType(function, loader.objectFile)
	if err != nil {
		return nil, err
	}

	regsAddr := VirtualAddress(0)
	if regsType != nil {
		regsAddr, err = loader.Inferior.Mmap(regsType.Size, ProtectionRead)
		if err != nil {
			return nil, err
		}
		loader.munmaps.Add(regsAddr, regsType.Size)

		err = storeRegisters(loader.Inferior, regsType, regsAddr)
		if err != nil {
			return nil, err
		}
	}

	var outType *types.Type
	outAddr := VirtualAddress(0)
	if loader.scope.IsPrint() {
		outType, err = outValueType(function, loader.objectFile, loader.scope)
		if err != nil {
			return nil, err
		}

		if outType == nil {
			loader.Logger.Debug(
				"expression has no address; retrying in print value scope")
			return nil, nil
		}

		outAddr, err = loader.Inferior.Mmap(
			outType.Size,
			ProtectionRead|ProtectionWrite)
		if err != nil {
			return nil, err
		}
		loader.munmaps.Add(outAddr, outType.Size)
	}

	loader.Logger.WithFields(logrus.Fields{
		"function":  function.Address,
		"registers": regsAddr,
		"out":       outAddr,
		"scope":     loader.scope,
	}).Debug("loaded compiled module")

	return &Module{
		Objfile:          objfile,
		SourceFile:       loader.sourceFile,
		ObjectFile:       loader.objectFile,
		Function:         function,
		FunctionAddress:  function.Address,
		RegistersAddress: regsAddr,
		OutValueAddress:  outAddr,
		OutValueType:     outType,
		Scope:            loader.scope,
		ScopeData:        scopeData,
		Munmaps:          loader.munmaps,
	}, nil
}

package objrun

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/objload"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/inferior"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

type Inferior interface {
	objload.Inferior

	CallFunctionByHand(
		fn VirtualAddress,
		args []uint64,
		dtor inferior.DummyFrameDtor,
	) (
		inferior.CallResult,
		error,
	)

	DummyFrames() []*inferior.DummyFrame
}

// ValuePreserver copies the objfile owned types of the values it holds
// before the objfile is released.
type ValuePreserver interface {
	PreserveValues(
		objfile *symbols.Objfile,
		copied map[*types.Type]*types.Type)
}

// ValuePrinter prints a print scope expression's value.  scopeData is the
// module's ScopeData.
type ValuePrinter func(value *types.Value, scopeData any) error

type Options struct {
	Inferior Inferior
	Symbols  *symbols.Table

	// Required for the print scopes.
	Print ValuePrinter

	Preservers []ValuePreserver

	// Defaults to os.Remove.
	RemoveFile func(path string) error

	Logger logrus.FieldLogger
}

// moduleCleanup releases everything the compiled module holds.  It runs
// exactly once: as the call's dummy frame dtor, or directly when the call
// fails before its dummy frame was pushed.
type moduleCleanup struct {
	Options
	module *objload.Module

	// Set while the call is in progress.  A dummy frame discarded later
	// (by unwinding) must not print.
	executing bool

	done bool

	printErr error
}

func (cleanup *moduleCleanup) run(registersValid bool) {
	if cleanup.done {
		return
	}
	cleanup.done = true

	module := cleanup.module
	if cleanup.executing && registersValid && module.Scope.IsPrint() {
		cleanup.printErr = cleanup.printOutValue()
	}

	copied := map[*types.Type]*types.Type{}
	for _, preserver := range cleanup.Preservers {
		preserver.PreserveValues(module.Objfile, copied)
	}

	err := cleanup.Symbols.Remove(module.Objfile)
	if err != nil {
		cleanup.Logger.WithError(err).Debug(
			"failed to remove compiled module objfile")
	}
	cleanup.Symbols.ClearSymtabUsers()

	for _, path := range []string{module.SourceFile, module.ObjectFile} {
		if path == "" {
			continue
		}

		err := cleanup.RemoveFile(path)
		if err != nil {
			cleanup.Logger.WithError(err).Debugf("failed to remove %s", path)
		}
	}

	err = module.Munmaps.UnmapAll(cleanup.Inferior)
	if err != nil {
		cleanup.Logger.WithError(err).Debug(
			"failed to unmap compiled module regions")
	}

	cleanup.Logger.Debug("discarded compiled module")
}

func (cleanup *moduleCleanup) printOutValue() error {
	module := cleanup.module

	contents := make([]byte, module.OutValueType.Size)
	err := cleanup.Inferior.ReadMemory(module.OutValueAddress, contents)
	if err != nil {
		return fmt.Errorf("failed to read compiled expression value: %w", err)
	}

	if cleanup.Print == nil {
		panic("should never happen")
	}

	return cleanup.Print(
		types.NewValue(module.OutValueType, module.OutValueAddress, contents),
		module.ScopeData)
}

// Run calls the compiled module's wrapper function.  The module is
// discarded when the call's dummy frame is: immediately if the call
// completes or fails, later if the call stopped and its frame is unwound.
func Run(options Options, module *objload.Module) error {
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	options.Logger = options.Logger.WithField("module", module.ObjectFile)

	if options.RemoveFile == nil {
		options.RemoveFile = os.Remove
	}

	cleanup := &moduleCleanup{
		Options:   options,
		module:    module,
		executing: true,
	}

	fnType := types.CheckTypedef(module.Function.FunctionType())

	args := []uint64{}
	if len(fnType.Fields) >= 1 {
		args = append(args, uint64(module.RegistersAddress))
	}
	if len(fnType.Fields) >= 2 {
		args = append(args, uint64(module.OutValueAddress))
	}

	_, err := options.Inferior.CallFunctionByHand(
		module.FunctionAddress,
		args,
		cleanup.run)
	cleanup.executing = false

	if err != nil {
		dtorFound := false
		for _, frame := range options.Inferior.DummyFrames() {
			if frame.Function == module.FunctionAddress && frame.HasDtor() {
				dtorFound = true
				break
			}
		}

		if dtorFound && cleanup.done {
			panic("should never happen")
		}

		if !dtorFound && !cleanup.done {
			cleanup.run(false)
		}

		return err
	}

	if !cleanup.done {
		panic("should never happen")
	}

	return cleanup.printErr
}

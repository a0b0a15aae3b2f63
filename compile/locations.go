package compile

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
	"github.com/pattyshack/badc/dwarf"
)

// RegisterSet is the set of registers the generated code reads through the
// register struct.
type RegisterSet map[string]struct{}

func (set RegisterSet) Add(reg registers.Spec) {
	set[reg.Name] = struct{}{}
}

func (set RegisterSet) Contains(reg registers.Spec) bool {
	_, ok := set[reg.Name]
	return ok
}

// LocationGenerator emits C statements (into the wrapper function's body)
// computing the address of every frame relative symbol visible from the
// instance's block, and the value of every dynamic array bound those
// symbols' types use.  A symbol whose location cannot be computed is
// recorded with Instance.InsertSymbolError instead of failing the whole
// compilation.
type LocationGenerator interface {
	GenerateLocations(
		instance *Instance,
		out *strings.Builder,
	) (
		RegisterSet,
		error,
	)
}

// cfa - rbp once the frame pointer is set up
const cfaFramePointerOffset = 16

// DwarfLocations handles the location forms unoptimized code uses: frame
// base relative (DW_OP_fbreg) and register relative (DW_OP_bregN)
// addresses.  A DW_OP_call_frame_cfa frame base is computed from rbp, which
// is only valid after the function's prologue.
type DwarfLocations struct{}

type locationWriter struct {
	instance *Instance
	out      *strings.Builder
	used     RegisterSet

	emittedBounds map[*types.DynamicProperty]struct{}
}

func (DwarfLocations) GenerateLocations(
	instance *Instance,
	out *strings.Builder,
) (
	RegisterSet,
	error,
) {
	writer := &locationWriter{
		instance:      instance,
		out:           out,
		used:          RegisterSet{},
		emittedBounds: map[*types.DynamicProperty]struct{}{},
	}

	seen := map[string]struct{}{}
	for block := instance.Block(); block != nil; block = block.Superblock {
		if block.Function == nil { // static / global scope
			break
		}

		for _, symbol := range block.Symbols {
			if symbol.Class != symbols.ComputedSymbol {
				continue
			}

			// Inner declarations shadow outer ones.
			_, ok := seen[symbol.Name]
			if ok {
				continue
			}
			seen[symbol.Name] = struct{}{}

			writer.generateBounds(symbol.Type)
			writer.generateSymbol(block.Function, symbol)
		}
	}

	return writer.used, nil
}

func (writer *locationWriter) generateBounds(t *types.Type) {
	for t != nil {
		t = types.CheckTypedef(t)
		if t.Code != types.ArrayCode {
			return
		}

		if t.Bounds != nil && t.Bounds.High != nil {
			writer.generateBound(t.Bounds.High)
		}
		t = t.Target
	}
}

func (writer *locationWriter) generateBound(prop *types.DynamicProperty) {
	if prop.Kind != types.LocationExpressionProperty &&
		prop.Kind != types.LocationListProperty {
		return
	}

	_, ok := writer.emittedBounds[prop]
	if ok {
		return
	}
	writer.emittedBounds[prop] = struct{}{}

	expression := prop.Expression
	if expression == "" {
		// The array is still declared, with an unknown (zero) bound.
		expression = "0"
	}

	fmt.Fprintf(
		writer.out,
		"  %s %s = %s;\n",
		protocol.IntptrTypeName,
		DynamicPropertyName(prop),
		expression)
}

func (writer *locationWriter) generateSymbol(
	function *symbols.Symbol,
	symbol *symbols.Symbol,
) {
	base, offset, err := writer.address(function, symbol)
	if err != nil {
		writer.instance.InsertSymbolError(symbol, err.Error())
		return
	}

	writer.used.Add(base)
	fmt.Fprintf(
		writer.out,
		"  %s %s = (%s) %s->%s + (%d);\n",
		protocol.UintptrTypeName,
		protocol.SubstitutionName(symbol.Name),
		protocol.UintptrTypeName,
		protocol.RegisterArgName,
		protocol.RegisterName(base),
		offset)
}

// address returns the symbol's address as base register + offset.
func (writer *locationWriter) address(
	function *symbols.Symbol,
	symbol *symbols.Symbol,
) (
	registers.Spec,
	int64,
	error,
) {
	if len(symbol.Location) == 0 {
		return registers.Spec{}, 0, fmt.Errorf(
			"Symbol \"%s\" is optimized out.",
			symbol.Name)
	}

	inst, err := singleInstruction(symbol.Location)
	if err != nil {
		return registers.Spec{}, 0, fmt.Errorf(
			"Symbol \"%s\" has an invalid location: %w",
			symbol.Name,
			err)
	}

	switch {
	case inst.Operation == dwarf.DW_OP_fbreg:
		base, baseOffset, err := frameBase(function)
		if err != nil {
			return registers.Spec{}, 0, fmt.Errorf(
				"Symbol \"%s\": %w",
				symbol.Name,
				err)
		}
		return base, baseOffset + inst.Signed, nil

	case inst.IsBaseRegister():
		reg, err := dwarfRegister(inst.Register)
		if err != nil {
			return registers.Spec{}, 0, fmt.Errorf(
				"Symbol \"%s\": %w",
				symbol.Name,
				err)
		}
		return reg, inst.Signed, nil

	case inst.IsRegister():
		return registers.Spec{}, 0, fmt.Errorf(
			"Symbol \"%s\" is held in a register and has no address.",
			symbol.Name)
	}

	return registers.Spec{}, 0, fmt.Errorf(
		"Symbol \"%s\" has an unsupported location (%s).",
		symbol.Name,
		inst.Operation)
}

func frameBase(function *symbols.Symbol) (registers.Spec, int64, error) {
	if function == nil || len(function.FrameBase) == 0 {
		return registers.Spec{}, 0, fmt.Errorf("function has no frame base")
	}

	inst, err := singleInstruction(function.FrameBase)
	if err != nil {
		return registers.Spec{}, 0, fmt.Errorf("invalid frame base: %w", err)
	}

	switch {
	case inst.Operation == dwarf.DW_OP_call_frame_cfa:
		return registers.FramePointer, cfaFramePointerOffset, nil

	case inst.IsBaseRegister():
		reg, err := dwarfRegister(inst.Register)
		return reg, inst.Signed, err

	case inst.IsRegister():
		reg, err := dwarfRegister(inst.Register)
		return reg, 0, err
	}

	return registers.Spec{}, 0, fmt.Errorf(
		"unsupported frame base (%s)",
		inst.Operation)
}

func dwarfRegister(id int) (registers.Spec, error) {
	reg, ok := registers.ById(id)
	if !ok || !reg.IsRaw {
		return registers.Spec{}, fmt.Errorf("unknown dwarf register %d", id)
	}
	return reg, nil
}

func singleInstruction(expr []byte) (dwarf.Instruction, error) {
	instructions, err := dwarf.DecodeExpression(expr)
	if err != nil {
		return dwarf.Instruction{}, err
	}

	if len(instructions) != 1 {
		return dwarf.Instruction{}, fmt.Errorf(
			"expected a single operation, found %d",
			len(instructions))
	}

	return instructions[0], nil
}

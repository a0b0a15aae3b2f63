package objload

import (
	"fmt"

	"github.com/pattyshack/badc/compile/protocol"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// registersType returns the register struct the wrapper function takes as
// its first parameter, or nil if the wrapper takes no parameters.
func registersType(
	function *symbols.Symbol,
	module string,
) (
	*types.Type,
	error,
) {
	fnType := types.CheckTypedef(function.FunctionType())
	if len(fnType.Fields) == 0 {
		return nil, nil
	}

	ptrType := types.CheckTypedef(fnType.Fields[0].Type)
	if ptrType.Code != types.PointerCode {
		return nil, fmt.Errorf(
			"Invalid type code %s of first parameter of function \"%s\" in "+
				"compiled module \"%s\".",
			ptrType.Code,
			function.Name,
			module)
	}

	regsType := types.CheckTypedef(ptrType.Target)
	if regsType.Code != types.StructCode {
		return nil, fmt.Errorf(
			"Invalid type code %s of dereferenced first parameter of function "+
				"\"%s\" in compiled module \"%s\".",
			regsType.Code,
			function.Name,
			module)
	}

	return regsType, nil
}

// storeRegisters copies the selected frame's registers into the inferior's
// register struct at base.
func storeRegisters(
	inferior Inferior,
	regsType *types.Type,
	base VirtualAddress,
) error {
	for _, field := range regsType.Fields {
		if field.Name == protocol.RegisterStructDummy {
			continue
		}

		if field.BitPos%8 != 0 || field.BitSize != 0 {
			return fmt.Errorf(
				"Invalid register \"%s\" position %d bits or size %d bits",
				field.Name,
				field.BitPos,
				field.BitSize)
		}

		fieldType := types.CheckTypedef(field.Type)
		if fieldType.Code != types.IntCode &&
			fieldType.Code != types.PointerCode {

			return fmt.Errorf(
				"Invalid register \"%s\" type code %s",
				field.Name,
				fieldType.Code)
		}

		reg, err := protocol.RegisterByName(field.Name)
		if err != nil {
			return err
		}

		value, err := inferior.RegisterValue(reg)
		if err != nil {
			return fmt.Errorf(
				"Register \"%s\" is not available: %w",
				field.Name,
				err)
		}

		contents, err := registers.LowBytes(value, fieldType.Size)
		if err != nil {
			return fmt.Errorf("Invalid register \"%s\": %w", field.Name, err)
		}

		addr := base + VirtualAddress(field.BitPos/8)
		err = inferior.WriteMemory(addr, contents)
		if err != nil {
			return fmt.Errorf(
				"Cannot write register \"%s\" to inferior memory at %s.",
				field.Name,
				addr)
		}
	}

	return nil
}

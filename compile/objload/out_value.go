package objload

import (
	"fmt"

	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// outValueType returns the type of the value the print scope wrapper copies
// into its out parameter.
//
// In print address scope, a nil type (without error) means the expression
// is an array or a function, whose address cannot be taken the usual way;
// the expression must be recompiled in print value scope.
func outValueType(
	function *symbols.Symbol,
	module string,
	scope protocol.Scope,
) (
	*types.Type,
	error,
) {
	block := function.Block
	if block == nil {
		return nil, fmt.Errorf(
			"No \"%s\" symbol found",
			protocol.ExprValueName)
	}

	valSym, ok := block.LookupLocal(protocol.ExprValueName, symbols.VarDomain)
	if !ok || valSym.Type == nil {
		return nil, fmt.Errorf(
			"No \"%s\" symbol found",
			protocol.ExprValueName)
	}

	ptrSym, ok := block.LookupLocal(
		protocol.ExprPointerType,
		symbols.VarDomain)
	if !ok || ptrSym.Type == nil {
		return nil, fmt.Errorf(
			"No \"%s\" symbol found",
			protocol.ExprPointerType)
	}

	valType := types.CheckTypedef(valSym.Type)

	ptrType := types.CheckTypedef(ptrSym.Type)
	if ptrType.Code != types.PointerCode {
		return nil, fmt.Errorf(
			"Type of \"%s\" is not a pointer",
			protocol.ExprPointerType)
	}

	fromPtr := types.CheckTypedef(ptrType.Target)
	if types.DeepEqual(valType, fromPtr) {
		if scope != protocol.PrintAddressScope {
			return nil, fmt.Errorf(
				"Expected address scope in compiled module \"%s\".",
				module)
		}
		return valType, nil
	}

	if valType.Code != types.PointerCode {
		return nil, fmt.Errorf(
			"Invalid type code %s of symbol \"%s\" in compiled module \"%s\".",
			fromPtr.Code,
			protocol.ExprValueName,
			module)
	}

	result := fromPtr
	switch fromPtr.Code {
	case types.ArrayCode:
		fromPtr = types.CheckTypedef(fromPtr.Target)
	case types.FunctionCode:
	default:
		return nil, fmt.Errorf(
			"Invalid type code %s of symbol \"%s\" in compiled module \"%s\".",
			fromPtr.Code,
			protocol.ExprValueName,
			module)
	}

	if !types.DeepEqual(fromPtr, types.CheckTypedef(valType.Target)) {
		return nil, fmt.Errorf(
			"Referenced types do not match for symbols \"%s\" and \"%s\" in "+
				"compiled module \"%s\".",
			protocol.ExprValueName,
			protocol.ExprPointerType,
			module)
	}

	if scope == protocol.PrintAddressScope {
		return nil, nil
	}
	return result, nil
}

package gcc

import (
	"fmt"

	"github.com/pattyshack/badc/compile/protocol"
)

// CPlusFrontEnd implements protocol.CPlusFrontEnd.
//
// Namespaces are rendered as namespace blocks.  Class scopes are not
// supported: members of a class can't be declared outside of the class
// body.
type CPlusFrontEnd struct {
	*FrontEnd
}

func (fe *CPlusFrontEnd) BuildReferenceType(
	target protocol.PluginType,
	isRvalue bool,
) protocol.PluginType {
	return fe.newType(&pluginType{
		kind:     referenceKind,
		target:   target,
		isRvalue: isRvalue,
	})
}

func (fe *CPlusFrontEnd) PushNamespace(name string) error {
	fe.bindingLevels = append(fe.bindingLevels, name)
	return nil
}

func (fe *CPlusFrontEnd) PushClass(class protocol.PluginType) error {
	return fmt.Errorf(
		"declarations nested in class %s are not supported",
		fe.renderTypeName(class))
}

func (fe *CPlusFrontEnd) PopBindingLevel(name string) error {
	if len(fe.bindingLevels) == 0 {
		return fmt.Errorf("cannot pop binding level %s: no binding level", name)
	}

	top := fe.bindingLevels[len(fe.bindingLevels)-1]
	if top != name {
		return fmt.Errorf(
			"cannot pop binding level %s: current binding level is %s",
			name,
			top)
	}

	fe.bindingLevels = fe.bindingLevels[:len(fe.bindingLevels)-1]
	return nil
}

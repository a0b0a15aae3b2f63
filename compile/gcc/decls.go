package gcc

import (
	"fmt"

	"github.com/pattyshack/badc/compile/protocol"
)

type declaration struct {
	name         string
	kind         protocol.SymbolKind
	declType     protocol.PluginType
	substitution string
	address      uint64

	// constants only
	isConstant bool
	value      int64

	namespace []string // c++ only

	isBound  bool
	isGlobal bool

	filename string
	line     int
}

// currentNamespace returns the namespace entered since the innermost global
// namespace binding level.
func (fe *FrontEnd) currentNamespace() []string {
	result := []string{}
	for _, level := range fe.bindingLevels {
		if level == "" {
			result = result[:0]
			continue
		}
		result = append(result, level)
	}
	return result
}

func (fe *FrontEnd) BuildDecl(
	name string,
	kind protocol.SymbolKind,
	declType protocol.PluginType,
	substitution string,
	address uint64,
	filename string,
	line int,
) protocol.PluginDecl {
	if kind == protocol.FunctionSymbol && address == 0 && fe.oracle != nil {
		addr, ok := fe.oracle.SymbolAddress(name)
		if ok {
			address = addr
		}
	}

	fe.decls = append(fe.decls, &declaration{
		name:         name,
		kind:         kind,
		declType:     declType,
		substitution: substitution,
		address:      address,
		namespace:    fe.currentNamespace(),
		filename:     filename,
		line:         line,
	})
	return protocol.PluginDecl(len(fe.decls))
}

func (fe *FrontEnd) Bind(decl protocol.PluginDecl, isGlobal bool) error {
	if decl == 0 || int(decl) > len(fe.decls) {
		return fmt.Errorf("invalid declaration handle %d", decl)
	}

	d := fe.decls[decl-1]
	if d.isBound {
		return fmt.Errorf("declaration of %s is already bound", d.name)
	}

	switch d.kind {
	case protocol.FunctionSymbol, protocol.VariableSymbol:
		if d.substitution == "" && d.address == 0 {
			return fmt.Errorf("%s %s has no address", d.kind, d.name)
		}
	case protocol.TypedefSymbol:
		fe.typedefs = append(fe.typedefs, d)
	case protocol.LabelSymbol:
		return fmt.Errorf("labels are not supported")
	}

	d.isBound = true
	d.isGlobal = isGlobal
	return nil
}

func (fe *FrontEnd) TagBind(
	name string,
	tagged protocol.PluginType,
	filename string,
	line int,
) error {
	if tagged == 0 || int(tagged) > len(fe.types) {
		return fmt.Errorf("invalid type handle %d", tagged)
	}

	t := fe.lookupType(tagged)
	switch t.kind {
	case recordKind, unionKind, enumKind:
	case errorKind:
		// already reported
		return nil
	default:
		return fmt.Errorf("cannot bind tag %s to a non-tagged type", name)
	}

	if t.tag != "" && t.tag != name {
		return fmt.Errorf(
			"type tagged %s cannot be re-tagged as %s",
			t.tag,
			name)
	}

	t.tag = name
	t.namespace = fe.currentNamespace()
	return nil
}

func (fe *FrontEnd) BuildConstant(
	constType protocol.PluginType,
	name string,
	value int64,
	filename string,
	line int,
) error {
	fe.decls = append(fe.decls, &declaration{
		name:       name,
		kind:       protocol.VariableSymbol,
		declType:   constType,
		isConstant: true,
		value:      value,
		namespace:  fe.currentNamespace(),
		isBound:    true,
		isGlobal:   true,
		filename:   filename,
		line:       line,
	})
	return nil
}

package compile

import (
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// scopeComponent is one component of a qualified c++ name.
type scopeComponent struct {
	name string

	// Set for class components, nil for namespaces.
	class *types.Type
}

// compileScope is the sequence of namespace components leading to a name,
// ending in at most one class component, followed by the name itself.
type compileScope struct {
	components []scopeComponent

	// The remaining (unqualified, or nested within the class component)
	// name.
	identifier string

	pushed bool
}

func (scope *compileScope) sameAs(other *compileScope) bool {
	if len(scope.components) != len(other.components) {
		return false
	}

	for idx, component := range scope.components {
		if component.name != other.components[idx].name {
			return false
		}
	}
	return true
}

// splitQualifiedName splits name on "::", ignoring separators nested in
// template argument lists.
func splitQualifiedName(name string) []string {
	components := []string{}
	depth := 0
	start := 0
	for idx := 0; idx < len(name); idx++ {
		switch name[idx] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case ':':
			if depth == 0 && idx+1 < len(name) && name[idx+1] == ':' {
				components = append(components, name[start:idx])
				idx++
				start = idx + 1
			}
		}
	}
	return append(components, name[start:])
}

// newScope computes the scope of a qualified name.  Components are
// namespaces until the first component naming a class.
func (instance *Instance) newScope(name string) *compileScope {
	parts := splitQualifiedName(name)

	scope := &compileScope{}
	for idx, part := range parts[:len(parts)-1] {
		prefix := strings.Join(parts[:idx+1], "::")

		symbol, ok := instance.options.Symbols.LookupSymbol(
			prefix,
			symbols.StructDomain)
		if ok && symbol.Type != nil &&
			types.CheckTypedef(symbol.Type).Code != types.NamespaceCode {

			scope.components = append(
				scope.components,
				scopeComponent{
					name:  part,
					class: symbol.Type,
				})
			scope.identifier = strings.Join(parts[idx+1:], "::")
			return scope
		}

		scope.components = append(scope.components, scopeComponent{name: part})
	}

	scope.identifier = parts[len(parts)-1]
	return scope
}

func (instance *Instance) cplusFrontEnd() protocol.CPlusFrontEnd {
	return instance.frontEnd.(protocol.CPlusFrontEnd)
}

// enterScope pushes the scope's namespaces (and class) unless the scope is
// already the current one.
func (instance *Instance) enterScope(scope *compileScope) {
	scope.pushed = len(instance.scopes) == 0 ||
		!instance.scopes[len(instance.scopes)-1].sameAs(scope)
	instance.scopes = append(instance.scopes, scope)

	if !scope.pushed {
		return
	}

	fe := instance.cplusFrontEnd()

	instance.checkScopeError(fe.PushNamespace(""))
	for _, component := range scope.components {
		if component.class == nil {
			instance.checkScopeError(fe.PushNamespace(component.name))
		} else {
			instance.checkScopeError(
				fe.PushClass(instance.ConvertType(component.class)))
		}
	}
}

func (instance *Instance) leaveScope() {
	if len(instance.scopes) == 0 {
		panic("should never happen")
	}

	scope := instance.scopes[len(instance.scopes)-1]
	instance.scopes = instance.scopes[:len(instance.scopes)-1]

	if !scope.pushed {
		return
	}

	fe := instance.cplusFrontEnd()
	for idx := len(scope.components) - 1; idx >= 0; idx-- {
		instance.checkScopeError(
			fe.PopBindingLevel(scope.components[idx].name))
	}
	instance.checkScopeError(fe.PopBindingLevel(""))
}

func (instance *Instance) checkScopeError(err error) {
	if err != nil {
		instance.frontEnd.Error(err.Error())
	}
}

type cplusTypeConverter struct {
	cTypeConverter
}

func newCPlusTypeConverter(instance *Instance) typeConverter {
	return cplusTypeConverter{
		cTypeConverter: cTypeConverter{instance: instance},
	}
}

func (converter cplusTypeConverter) convert(t *types.Type) protocol.PluginType {
	if t.Qualifiers != 0 {
		return converter.convertQualified(t)
	}

	instance := converter.instance
	switch t.Code {
	case types.ReferenceCode, types.RvalueReferenceCode:
		return instance.cplusFrontEnd().BuildReferenceType(
			instance.ConvertType(t.Target),
			t.Code == types.RvalueReferenceCode)

	case types.StructCode, types.UnionCode, types.EnumCode:
		if t.Name == "" {
			break
		}

		scope := instance.newScope(t.Name)
		instance.enterScope(scope)
		defer instance.leaveScope()

		var handle protocol.PluginType
		if t.Code == types.EnumCode {
			handle = converter.convertEnum(t)
		} else {
			handle = converter.convertRecord(t)
		}

		instance.checkScopeError(
			instance.frontEnd.TagBind(scope.identifier, handle, "", 0))
		return handle

	case types.NamespaceCode:
		return instance.frontEnd.Error("cannot convert a namespace to a type")
	}

	return converter.cTypeConverter.convert(t)
}

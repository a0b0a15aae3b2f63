package compile

import (
	"fmt"
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
)

// fakeFrontEnd records the types and declarations built through it as
// human readable strings.
type fakeFrontEnd struct {
	baseVersion     protocol.Version
	languageVersion protocol.Version

	oracle protocol.Oracle

	types  []string
	decls  []string
	events []string

	args       []string
	triplet    string
	driver     string
	sourceFile string
	verbose    bool
	print      func(string)

	// Invoked by Compile.  Compile succeeds when nil.
	compile func(fe *fakeFrontEnd, objectFile string) error

	destroyed int
}

func newFakeFrontEnd() *fakeFrontEnd {
	return &fakeFrontEnd{
		baseVersion:     protocol.BaseVersion1,
		languageVersion: protocol.CVersion1,
	}
}

func (fe *fakeFrontEnd) newType(description string) protocol.PluginType {
	fe.types = append(fe.types, description)
	return protocol.PluginType(len(fe.types))
}

func (fe *fakeFrontEnd) describe(handle protocol.PluginType) string {
	if handle == 0 || int(handle) > len(fe.types) {
		return fmt.Sprintf("<invalid %d>", handle)
	}
	return fe.types[handle-1]
}

func (fe *fakeFrontEnd) record(format string, args ...any) {
	fe.events = append(fe.events, fmt.Sprintf(format, args...))
}

func (fe *fakeFrontEnd) errors() []string {
	result := []string{}
	for _, event := range fe.events {
		if strings.HasPrefix(event, "error: ") {
			result = append(result, event[len("error: "):])
		}
	}
	return result
}

func (fe *fakeFrontEnd) Version() protocol.Version {
	return fe.baseVersion
}

func (fe *fakeFrontEnd) SetArguments(args []string) error {
	fe.args = args
	return nil
}

func (fe *fakeFrontEnd) SetTripletRegexp(regexp string) error {
	fe.triplet = regexp
	return nil
}

func (fe *fakeFrontEnd) SetDriverFilename(path string) error {
	if fe.baseVersion < protocol.BaseVersion1 {
		return fmt.Errorf("unsupported")
	}
	fe.driver = path
	return nil
}

func (fe *fakeFrontEnd) SetSourceFile(path string) {
	fe.sourceFile = path
}

func (fe *fakeFrontEnd) SetPrintCallback(callback func(message string)) {
	fe.print = callback
}

func (fe *fakeFrontEnd) SetVerbose(verbose bool) {
	fe.verbose = verbose
}

func (fe *fakeFrontEnd) Compile(objectFile string) error {
	if fe.compile == nil {
		return nil
	}
	return fe.compile(fe, objectFile)
}

func (fe *fakeFrontEnd) Destroy() {
	fe.destroyed++
}

func (fe *fakeFrontEnd) LanguageVersion() protocol.Version {
	return fe.languageVersion
}

func (fe *fakeFrontEnd) SetOracle(oracle protocol.Oracle) {
	fe.oracle = oracle
}

func (fe *fakeFrontEnd) Error(message string) protocol.PluginType {
	fe.record("error: %s", message)
	return fe.newType("error")
}

func (fe *fakeFrontEnd) VoidType() protocol.PluginType {
	return fe.newType("void")
}

func (fe *fakeFrontEnd) BoolType() protocol.PluginType {
	return fe.newType("bool")
}

func (fe *fakeFrontEnd) CharType() protocol.PluginType {
	return fe.newType("char")
}

func (fe *fakeFrontEnd) IntType(
	isUnsigned bool,
	size uint64,
	name string,
) protocol.PluginType {
	if name != "" {
		return fe.newType(name)
	}

	prefix := "int"
	if isUnsigned {
		prefix = "uint"
	}
	return fe.newType(fmt.Sprintf("%s%d", prefix, 8*size))
}

func (fe *fakeFrontEnd) FloatType(size uint64, name string) protocol.PluginType {
	if name != "" {
		return fe.newType(name)
	}
	return fe.newType(fmt.Sprintf("float%d", 8*size))
}

func (fe *fakeFrontEnd) BuildPointerType(
	target protocol.PluginType,
) protocol.PluginType {
	return fe.newType("*" + fe.describe(target))
}

func (fe *fakeFrontEnd) BuildArrayType(
	element protocol.PluginType,
	count int64,
) protocol.PluginType {
	return fe.newType(fmt.Sprintf("[%d]%s", count, fe.describe(element)))
}

func (fe *fakeFrontEnd) BuildVlaArrayType(
	element protocol.PluginType,
	upperBoundName string,
) protocol.PluginType {
	return fe.newType(
		fmt.Sprintf("[%s]%s", upperBoundName, fe.describe(element)))
}

func (fe *fakeFrontEnd) BuildVectorType(
	element protocol.PluginType,
	count int64,
) protocol.PluginType {
	return fe.newType(
		fmt.Sprintf("vector[%d]%s", count, fe.describe(element)))
}

func (fe *fakeFrontEnd) BuildRecordType() protocol.PluginType {
	return fe.newType(fmt.Sprintf("struct#%d", len(fe.types)+1))
}

func (fe *fakeFrontEnd) BuildUnionType() protocol.PluginType {
	return fe.newType(fmt.Sprintf("union#%d", len(fe.types)+1))
}

func (fe *fakeFrontEnd) BuildAddField(
	record protocol.PluginType,
	name string,
	fieldType protocol.PluginType,
	bitSize uint64,
	bitPos uint64,
) error {
	fe.record(
		"field %s.%s %s size=%d pos=%d",
		fe.describe(record),
		name,
		fe.describe(fieldType),
		bitSize,
		bitPos)
	return nil
}

func (fe *fakeFrontEnd) FinishRecordOrUnion(
	record protocol.PluginType,
	size uint64,
) error {
	fe.record("finish %s size=%d", fe.describe(record), size)
	return nil
}

func (fe *fakeFrontEnd) BuildEnumType(
	underlying protocol.PluginType,
) protocol.PluginType {
	return fe.newType(
		fmt.Sprintf("enum#%d:%s", len(fe.types)+1, fe.describe(underlying)))
}

func (fe *fakeFrontEnd) BuildAddEnumConstant(
	enum protocol.PluginType,
	name string,
	value int64,
) error {
	fe.record("enumerator %s.%s=%d", fe.describe(enum), name, value)
	return nil
}

func (fe *fakeFrontEnd) FinishEnumType(enum protocol.PluginType) error {
	fe.record("finish %s", fe.describe(enum))
	return nil
}

func (fe *fakeFrontEnd) BuildFunctionType(
	returnType protocol.PluginType,
	params []protocol.PluginType,
	isVarargs bool,
) protocol.PluginType {
	parts := []string{}
	for _, param := range params {
		parts = append(parts, fe.describe(param))
	}
	if isVarargs {
		parts = append(parts, "...")
	}

	return fe.newType(
		fmt.Sprintf(
			"func(%s) %s",
			strings.Join(parts, ", "),
			fe.describe(returnType)))
}

func (fe *fakeFrontEnd) BuildQualifiedType(
	unqualified protocol.PluginType,
	qualifiers protocol.Qualifiers,
) protocol.PluginType {
	prefix := ""
	if qualifiers&protocol.QualifierConst != 0 {
		prefix += "const "
	}
	if qualifiers&protocol.QualifierVolatile != 0 {
		prefix += "volatile "
	}
	if qualifiers&protocol.QualifierRestrict != 0 {
		prefix += "restrict "
	}
	return fe.newType(prefix + fe.describe(unqualified))
}

func (fe *fakeFrontEnd) BuildComplexType(
	base protocol.PluginType,
) protocol.PluginType {
	return fe.newType("complex " + fe.describe(base))
}

func (fe *fakeFrontEnd) BuildDecl(
	name string,
	kind protocol.SymbolKind,
	declType protocol.PluginType,
	substitution string,
	address uint64,
	filename string,
	line int,
) protocol.PluginDecl {
	fe.decls = append(
		fe.decls,
		fmt.Sprintf(
			"%s %s %s subst=%s addr=0x%x",
			kind,
			name,
			fe.describe(declType),
			substitution,
			address))
	return protocol.PluginDecl(len(fe.decls))
}

func (fe *fakeFrontEnd) Bind(decl protocol.PluginDecl, isGlobal bool) error {
	fe.record("bind %s global=%v", fe.decls[decl-1], isGlobal)
	return nil
}

func (fe *fakeFrontEnd) TagBind(
	name string,
	tagged protocol.PluginType,
	filename string,
	line int,
) error {
	fe.record("tag %s %s", name, fe.describe(tagged))
	return nil
}

func (fe *fakeFrontEnd) BuildConstant(
	constType protocol.PluginType,
	name string,
	value int64,
	filename string,
	line int,
) error {
	fe.record("constant %s %s=%d", fe.describe(constType), name, value)
	return nil
}

func (fe *fakeFrontEnd) BuildReferenceType(
	target protocol.PluginType,
	isRvalue bool,
) protocol.PluginType {
	if isRvalue {
		return fe.newType("&&" + fe.describe(target))
	}
	return fe.newType("&" + fe.describe(target))
}

func (fe *fakeFrontEnd) PushNamespace(name string) error {
	fe.record("push namespace %s", name)
	return nil
}

func (fe *fakeFrontEnd) PushClass(class protocol.PluginType) error {
	fe.record("push class %s", fe.describe(class))
	return nil
}

func (fe *fakeFrontEnd) PopBindingLevel(name string) error {
	fe.record("pop %s", name)
	return nil
}

package protocol

import (
	"fmt"
)

var (
	ErrUnsupportedVersion = fmt.Errorf(
		"The loaded version of GCC does not support the required version of " +
			"the API.")
)

// Version is a front end interface version.  Newer versions are supersets
// of older ones.
type Version int

const (
	BaseVersion0 = Version(0)
	BaseVersion1 = Version(1)

	CVersion0 = Version(0)

	// Adds CharType, and type names to IntType / FloatType.
	CVersion1 = Version(1)

	CPlusVersion0 = Version(0)
)

// PluginType is the front end's handle for a converted type.  Handles are
// only meaningful to the front end that issued them.
type PluginType uint64

// PluginDecl is the front end's handle for a declaration.
type PluginDecl uint64

type Qualifiers uint8

const (
	QualifierConst    = Qualifiers(1)
	QualifierVolatile = Qualifiers(2)
	QualifierRestrict = Qualifiers(4)
)

type SymbolKind int

const (
	FunctionSymbol = SymbolKind(iota)
	VariableSymbol
	TypedefSymbol
	LabelSymbol
)

func (kind SymbolKind) String() string {
	switch kind {
	case FunctionSymbol:
		return "function"
	case VariableSymbol:
		return "variable"
	case TypedefSymbol:
		return "typedef"
	case LabelSymbol:
		return "label"
	default:
		return fmt.Sprintf("SymbolKind(%d)", int(kind))
	}
}

type OracleRequest int

const (
	// An ordinary identifier.
	OracleSymbol = OracleRequest(iota)

	// A struct / union / enum tag.
	OracleTag

	OracleLabel
)

// Oracle answers the front end's questions about identifiers the compiled
// code uses but does not declare.  ConvertSymbol declares the identifier
// (if known) through the front end's Build* / Bind calls.
type Oracle interface {
	ConvertSymbol(request OracleRequest, identifier string)

	// SymbolAddress returns the runtime address of a function.
	SymbolAddress(identifier string) (uint64, bool)
}

// BaseFrontEnd is the language independent part of the compiler front end.
type BaseFrontEnd interface {
	// Version returns the negotiated base interface version.
	Version() Version

	// SetArguments sets the compiler command line arguments.
	SetArguments(args []string) error

	// SetTripletRegexp selects the compiler driver by searching $PATH for an
	// executable whose name matches regexp + "-gcc".
	SetTripletRegexp(regexp string) error

	// SetDriverFilename selects the compiler driver explicitly.  Requires
	// BaseVersion1.
	SetDriverFilename(path string) error

	SetSourceFile(path string)

	// SetPrintCallback sets the callback which receives compiler
	// diagnostics.
	SetPrintCallback(callback func(message string))

	SetVerbose(verbose bool)

	// Compile compiles the source file into objectFile.  Oracle requests are
	// issued during compilation.
	Compile(objectFile string) error

	Destroy()
}

// CFrontEnd builds C types and declarations.
//
// Errors in type building are reported by returning the handle from Error,
// which makes the current compilation fail with the given message.
type CFrontEnd interface {
	BaseFrontEnd

	// LanguageVersion returns the negotiated C (or C++) interface version.
	LanguageVersion() Version

	SetOracle(oracle Oracle)

	Error(message string) PluginType

	VoidType() PluginType
	BoolType() PluginType

	// Only available in CVersion1.
	CharType() PluginType

	// name is only used in CVersion1 (for diagnostics).
	IntType(isUnsigned bool, size uint64, name string) PluginType
	FloatType(size uint64, name string) PluginType

	BuildPointerType(target PluginType) PluginType
	BuildArrayType(element PluginType, count int64) PluginType

	// The array's upper bound is held in the named variable.
	BuildVlaArrayType(element PluginType, upperBoundName string) PluginType

	BuildVectorType(element PluginType, count int64) PluginType

	BuildRecordType() PluginType
	BuildUnionType() PluginType
	BuildAddField(
		record PluginType,
		name string,
		fieldType PluginType,
		bitSize uint64,
		bitPos uint64,
	) error
	FinishRecordOrUnion(record PluginType, size uint64) error

	BuildEnumType(underlying PluginType) PluginType
	BuildAddEnumConstant(enum PluginType, name string, value int64) error
	FinishEnumType(enum PluginType) error

	BuildFunctionType(
		returnType PluginType,
		params []PluginType,
		isVarargs bool,
	) PluginType

	BuildQualifiedType(unqualified PluginType, qualifiers Qualifiers) PluginType
	BuildComplexType(base PluginType) PluginType

	// BuildDecl declares name.  When substitution is non-empty, the symbol's
	// address is held in the named variable instead of being address.
	BuildDecl(
		name string,
		kind SymbolKind,
		declType PluginType,
		substitution string,
		address uint64,
		filename string,
		line int,
	) PluginDecl

	Bind(decl PluginDecl, isGlobal bool) error

	// TagBind gives a struct / union / enum type a tag name.
	TagBind(name string, tagged PluginType, filename string, line int) error

	BuildConstant(
		constType PluginType,
		name string,
		value int64,
		filename string,
		line int,
	) error
}

// CPlusFrontEnd extends the C front end with C++ scopes and reference types.
type CPlusFrontEnd interface {
	CFrontEnd

	BuildReferenceType(target PluginType, isRvalue bool) PluginType

	// PushNamespace enters the named namespace.  "" is the global
	// namespace.
	PushNamespace(name string) error

	// PushClass enters the scope of a class type.
	PushClass(class PluginType) error

	// PopBindingLevel leaves the innermost namespace / class scope, which
	// must be the named one.
	PopBindingLevel(name string) error
}

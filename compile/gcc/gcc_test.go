package gcc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/badc/compile/protocol"
)

type GccSuite struct{}

func TestGcc(t *testing.T) {
	suite.RunTests(t, &GccSuite{})
}

func newTestFrontEnd() *FrontEnd {
	return newFrontEnd(protocol.BaseVersion1, protocol.CVersion1, false, nil)
}

func newTestCPlusFrontEnd() *CPlusFrontEnd {
	return &CPlusFrontEnd{
		FrontEnd: newFrontEnd(
			protocol.BaseVersion1,
			protocol.CPlusVersion0,
			true,
			nil),
	}
}

func (GccSuite) TestVersionNegotiation(t *testing.T) {
	_, err := NewCContext(nil)(protocol.BaseVersion1, protocol.CVersion1)
	expect.Nil(t, err)

	_, err = NewCContext(nil)(protocol.BaseVersion1+1, protocol.CVersion1)
	expect.Error(t, err, "does not support the required version")

	fe, err := NewCPlusContext(nil)(protocol.BaseVersion1, protocol.CPlusVersion0)
	expect.Nil(t, err)
	_, ok := fe.(protocol.CPlusFrontEnd)
	expect.True(t, ok)

	_, err = NewCPlusContext(nil)(protocol.BaseVersion0, protocol.CPlusVersion0)
	expect.Error(t, err, "does not support the required version")
}

func (GccSuite) TestDriverSelection(t *testing.T) {
	fe := newFrontEnd(protocol.BaseVersion0, protocol.CVersion0, false, nil)
	err := fe.SetDriverFilename("/usr/bin/gcc")
	expect.Equal(t, protocol.ErrUnsupportedVersion, err)

	fe = newTestFrontEnd()
	expect.Equal(t, "gcc", fe.driverPath())

	err = fe.SetTripletRegexp("x86_64(")
	expect.Error(t, err, "invalid triplet regexp")

	patterns := []string{}
	fe.lookPath = func(pattern string) (string, error) {
		patterns = append(patterns, pattern)
		return "/opt/bin/x86_64-linux-gnu-gcc", nil
	}

	err = fe.SetTripletRegexp("x86_64(-[^-]*)?-linux-gnu")
	expect.Nil(t, err)
	expect.Equal(t, "/opt/bin/x86_64-linux-gnu-gcc", fe.driverPath())
	expect.Equal(t, []string{"x86_64(-[^-]*)?-linux-gnu-gcc"}, patterns)

	err = fe.SetDriverFilename("/usr/local/bin/gcc-13")
	expect.Nil(t, err)
	expect.Equal(t, "/usr/local/bin/gcc-13", fe.driverPath())
}

func (GccSuite) TestIntSpellings(t *testing.T) {
	fe := newTestFrontEnd()

	expect.Equal(t, "signed char", fe.renderTypeName(fe.IntType(false, 1, "")))
	expect.Equal(t, "unsigned char", fe.renderTypeName(fe.IntType(true, 1, "")))
	expect.Equal(t, "short", fe.renderTypeName(fe.IntType(false, 2, "")))
	expect.Equal(t, "unsigned int", fe.renderTypeName(fe.IntType(true, 4, "")))
	expect.Equal(t, "unsigned long", fe.renderTypeName(fe.IntType(true, 8, "")))
	expect.Equal(t, "__int128", fe.renderTypeName(fe.IntType(false, 16, "")))
	expect.Equal(t, "double", fe.renderTypeName(fe.FloatType(8, "")))
	expect.Equal(t, "_Bool", fe.renderTypeName(fe.BoolType()))

	expect.Equal(t, 0, len(fe.errors))

	fe.IntType(false, 3, "weird")
	expect.Equal(t, []string{"unsupported 3 byte weird type"}, fe.errors)
}

func (GccSuite) TestDeclarators(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	pointer := fe.BuildPointerType(intType)
	expect.Equal(t, "int *x", fe.declare(pointer, "x"))

	array := fe.BuildArrayType(intType, 3)
	expect.Equal(t, "int x[3]", fe.declare(array, "x"))
	expect.Equal(
		t,
		"int (*x)[3]",
		fe.declare(fe.BuildPointerType(array), "x"))
	expect.Equal(t, "int x[]", fe.declare(fe.BuildArrayType(intType, -1), "x"))

	vla := fe.BuildVlaArrayType(intType, "__gdb_prop_0x10")
	expect.Equal(t, "int a[__gdb_prop_0x10 + 1]", fe.declare(vla, "a"))

	function := fe.BuildFunctionType(
		intType,
		[]protocol.PluginType{intType, pointer},
		false)
	expect.Equal(
		t,
		"int (*f)(int, int *)",
		fe.declare(fe.BuildPointerType(function), "f"))
	expect.Equal(t, "(int (*)(int, int *))", fe.pointerCast(function))

	noParams := fe.BuildFunctionType(fe.VoidType(), nil, false)
	expect.Equal(t, "void g(void)", fe.declare(noParams, "g"))

	varargs := fe.BuildFunctionType(intType, []protocol.PluginType{pointer}, true)
	expect.Equal(t, "int printf(int *, ...)", fe.declare(varargs, "printf"))

	unprototyped := fe.BuildFunctionType(intType, nil, true)
	expect.Equal(t, "int h()", fe.declare(unprototyped, "h"))

	constInt := fe.BuildQualifiedType(intType, protocol.QualifierConst)
	expect.Equal(t, "const int x", fe.declare(constInt, "x"))

	constPointer := fe.BuildQualifiedType(pointer, protocol.QualifierConst)
	expect.Equal(t, "int *const x", fe.declare(constPointer, "x"))

	expect.Equal(
		t,
		intType,
		fe.BuildQualifiedType(intType, 0))

	complexType := fe.BuildComplexType(fe.FloatType(8, ""))
	expect.Equal(t, "_Complex double z", fe.declare(complexType, "z"))
	expect.Equal(t, uint64(16), fe.sizeOf(complexType))
}

func (GccSuite) TestVectorTypes(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	vector := fe.BuildVectorType(intType, 4)
	name := vectorTypedefName(vector)
	expect.Equal(t, name+" v", fe.declare(vector, "v"))

	rendered := fe.renderDeclarations()
	expect.True(
		t,
		strings.Contains(
			rendered,
			"typedef int "+name+" __attribute__ ((__vector_size__ (16)));\n"))

	fe.BuildVectorType(intType, 0)
	expect.Equal(
		t,
		[]string{"vector type with unknown size is not supported"},
		fe.errors)
}

func (GccSuite) TestRenderRecords(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	record := fe.BuildRecordType()
	expect.Nil(t, fe.BuildAddField(record, "a", intType, 32, 0))
	expect.Nil(t, fe.BuildAddField(record, "b", intType, 3, 32))
	expect.Nil(
		t,
		fe.BuildAddField(record, "next", fe.BuildPointerType(record), 64, 64))
	expect.Nil(t, fe.FinishRecordOrUnion(record, 16))
	expect.Nil(t, fe.TagBind("node", record, "", 0))

	err := fe.BuildAddField(record, "c", intType, 32, 128)
	expect.Error(t, err, "is already finished")

	err = fe.TagBind("other", record, "", 0)
	expect.Error(t, err, "type tagged node cannot be re-tagged as other")

	err = fe.TagBind("int", intType, "", 0)
	expect.Error(t, err, "cannot bind tag int to a non-tagged type")

	enum := fe.BuildEnumType(intType)
	expect.Nil(t, fe.BuildAddEnumConstant(enum, "RED", 0))
	expect.Nil(t, fe.BuildAddEnumConstant(enum, "BLUE", 2))
	expect.Nil(t, fe.FinishEnumType(enum))
	expect.Nil(t, fe.TagBind("color", enum, "", 0))
	expect.Equal(t, uint64(4), fe.sizeOf(enum))

	stub := fe.BuildUnionType()
	expect.Nil(t, fe.FinishRecordOrUnion(stub, 0))

	rendered := fe.renderDeclarations()
	expect.True(t, strings.Contains(rendered, "struct node;\n"))
	expect.True(
		t,
		strings.Contains(
			rendered,
			"struct node { int a; int b : 3; struct node *next; };\n"))
	expect.True(
		t,
		strings.Contains(rendered, "enum color { RED = 0, BLUE = 2 };\n"))

	stubTag := fe.tagName(stub)
	expect.True(t, strings.Contains(rendered, "union "+stubTag+";\n"))
	expect.False(t, strings.Contains(rendered, "union "+stubTag+" {"))
}

func (GccSuite) TestAnonymousMembers(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	inner := fe.BuildUnionType()
	expect.Nil(t, fe.BuildAddField(inner, "i", intType, 32, 0))
	expect.Nil(t, fe.BuildAddField(inner, "f", fe.FloatType(4, ""), 32, 0))
	expect.Nil(t, fe.FinishRecordOrUnion(inner, 4))

	outer := fe.BuildRecordType()
	expect.Nil(t, fe.BuildAddField(outer, "", inner, 32, 0))
	expect.Nil(t, fe.FinishRecordOrUnion(outer, 4))
	expect.Nil(t, fe.TagBind("outer", outer, "", 0))

	rendered := fe.renderDeclarations()
	expect.True(
		t,
		strings.Contains(
			rendered,
			"struct outer { union { int i; float f; }; };\n"))
}

func (GccSuite) TestRenderDeclarations(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	decl := fe.BuildDecl(
		"counter",
		protocol.VariableSymbol,
		intType,
		"",
		0x1000,
		"main.c",
		3)
	expect.Nil(t, fe.Bind(decl, true))

	decl = fe.BuildDecl("x", protocol.VariableSymbol, intType, "__x", 0, "", 0)
	expect.Nil(t, fe.Bind(decl, false))

	function := fe.BuildFunctionType(
		intType,
		[]protocol.PluginType{intType},
		false)
	decl = fe.BuildDecl(
		"square",
		protocol.FunctionSymbol,
		function,
		"",
		0x401000,
		"",
		0)
	expect.Nil(t, fe.Bind(decl, true))

	decl = fe.BuildDecl("myint", protocol.TypedefSymbol, intType, "", 0, "", 0)
	expect.Nil(t, fe.Bind(decl, true))

	expect.Nil(t, fe.BuildConstant(intType, "LIMIT", -10, "", 0))

	rendered := fe.renderDeclarations()
	expect.Equal(
		t,
		"typedef int myint;\n"+
			"#define counter (*(int *)0x1000)\n"+
			"#define x (*(int *)__x)\n"+
			"#define square (*(int (*)(int))0x401000)\n"+
			"#define LIMIT ((int) -10)\n",
		rendered)
}

func (GccSuite) TestLocalBindingWins(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	global := fe.BuildDecl("v", protocol.VariableSymbol, intType, "", 0x10, "", 0)
	local := fe.BuildDecl("v", protocol.VariableSymbol, intType, "__v", 0, "", 0)
	expect.Nil(t, fe.Bind(local, false))
	expect.Nil(t, fe.Bind(global, true))

	rendered := fe.renderDeclarations()
	expect.Equal(t, "#define v (*(int *)__v)\n", rendered)
}

func (GccSuite) TestBindErrors(t *testing.T) {
	fe := newTestFrontEnd()
	intType := fe.IntType(false, 4, "int")

	err := fe.Bind(0, true)
	expect.Error(t, err, "invalid declaration handle 0")

	decl := fe.BuildDecl("v", protocol.VariableSymbol, intType, "", 0x10, "", 0)
	expect.Nil(t, fe.Bind(decl, true))
	err = fe.Bind(decl, true)
	expect.Error(t, err, "declaration of v is already bound")

	decl = fe.BuildDecl("w", protocol.VariableSymbol, intType, "", 0, "", 0)
	err = fe.Bind(decl, true)
	expect.Error(t, err, "w has no address")

	decl = fe.BuildDecl("out", protocol.LabelSymbol, intType, "", 0x20, "", 0)
	err = fe.Bind(decl, false)
	expect.Error(t, err, "labels are not supported")
}

type fakeOracle struct {
	fe        *FrontEnd
	requests  []identifier
	addresses map[string]uint64
}

func (oracle *fakeOracle) ConvertSymbol(
	request protocol.OracleRequest,
	name string,
) {
	oracle.requests = append(
		oracle.requests,
		identifier{name: name, request: request})

	fe := oracle.fe
	switch name {
	case "counter":
		decl := fe.BuildDecl(
			name,
			protocol.VariableSymbol,
			fe.IntType(false, 4, "int"),
			"",
			0x601040,
			"",
			0)
		err := fe.Bind(decl, true)
		if err != nil {
			fe.Error(err.Error())
		}
	case "nope":
		fe.Error("No symbol \"nope\" in current context.")
	}
}

func (oracle *fakeOracle) SymbolAddress(name string) (uint64, bool) {
	addr, ok := oracle.addresses[name]
	return addr, ok
}

func (GccSuite) TestFunctionAddressFromOracle(t *testing.T) {
	fe := newTestFrontEnd()
	fe.SetOracle(&fakeOracle{
		fe:        fe,
		addresses: map[string]uint64{"puts": 0x7f0010},
	})

	function := fe.BuildFunctionType(fe.VoidType(), nil, false)
	decl := fe.BuildDecl("puts", protocol.FunctionSymbol, function, "", 0, "", 0)
	expect.Nil(t, fe.Bind(decl, true))
	expect.Equal(t, uint64(0x7f0010), fe.decls[decl-1].address)
}

func (GccSuite) TestCPlusNamespaces(t *testing.T) {
	fe := newTestCPlusFrontEnd()
	intType := fe.IntType(false, 4, "int")

	expect.Equal(t, "bool", fe.renderTypeName(fe.BoolType()))
	expect.Equal(
		t,
		"int &r",
		fe.declare(fe.BuildReferenceType(intType, false), "r"))
	expect.Equal(
		t,
		"int &&r",
		fe.declare(fe.BuildReferenceType(intType, true), "r"))

	expect.Nil(t, fe.PushNamespace(""))
	expect.Nil(t, fe.PushNamespace("a"))
	expect.Nil(t, fe.PushNamespace("b"))
	expect.Equal(t, []string{"a", "b"}, fe.currentNamespace())

	decl := fe.BuildDecl("v", protocol.VariableSymbol, intType, "", 0x20, "", 0)
	expect.Nil(t, fe.Bind(decl, true))

	enum := fe.BuildEnumType(intType)
	expect.Nil(t, fe.BuildAddEnumConstant(enum, "ONE", 1))
	expect.Nil(t, fe.FinishEnumType(enum))
	expect.Nil(t, fe.TagBind("E", enum, "", 0))
	expect.Nil(t, fe.BuildConstant(intType, "LIMIT", 7, "", 0))

	err := fe.PopBindingLevel("a")
	expect.Error(t, err, "current binding level is b")

	expect.Nil(t, fe.PopBindingLevel("b"))
	expect.Nil(t, fe.PopBindingLevel("a"))
	expect.Equal(t, []string{}, fe.currentNamespace())

	expect.Nil(t, fe.PushNamespace("a"))
	expect.Nil(t, fe.PushNamespace(""))
	expect.Equal(t, []string{}, fe.currentNamespace())
	expect.Nil(t, fe.PopBindingLevel(""))
	expect.Nil(t, fe.PopBindingLevel("a"))
	expect.Nil(t, fe.PopBindingLevel(""))

	err = fe.PopBindingLevel("")
	expect.Error(t, err, "no binding level")

	record := fe.BuildRecordType()
	err = fe.PushClass(record)
	expect.Error(t, err, "are not supported")

	rendered := fe.renderDeclarations()
	expect.True(
		t,
		strings.Contains(
			rendered,
			"namespace a { namespace b { enum E : int { ONE = 1 }; } }\n"))
	expect.True(
		t,
		strings.Contains(
			rendered,
			"namespace a { namespace b { static int &v = *(int *)0x20; } }\n"))
	expect.True(
		t,
		strings.Contains(
			rendered,
			"namespace a { namespace b { "+
				"static const int LIMIT = (int) 7; } }\n"))
}

func (GccSuite) TestScanIdentifiers(t *testing.T) {
	source := "#include <stdio.h>\n" +
		"x = foo(bar.baz, p->q) + 3.5e10 + 0x1f + \"str ing\" + 'c'; // y\n" +
		"/* z */ struct s *t; __builtin_abort(); __gdb_x; int x;\n" +
		"goto done;\n"

	expect.Equal(
		t,
		[]identifier{
			{name: "x", request: protocol.OracleSymbol},
			{name: "foo", request: protocol.OracleSymbol},
			{name: "bar", request: protocol.OracleSymbol},
			{name: "p", request: protocol.OracleSymbol},
			{name: "s", request: protocol.OracleTag},
			{name: "t", request: protocol.OracleSymbol},
			{name: "done", request: protocol.OracleLabel},
		},
		scanIdentifiers(source, false))
}

func (GccSuite) TestScanQualifiedIdentifiers(t *testing.T) {
	source := "ns::var + ::glob + obj.ns2::m + ns :: inner;"

	expect.Equal(
		t,
		[]identifier{
			{name: "ns::var", request: protocol.OracleSymbol},
			{name: "glob", request: protocol.OracleSymbol},
			{name: "obj", request: protocol.OracleSymbol},
			{name: "ns::inner", request: protocol.OracleSymbol},
		},
		scanIdentifiers(source, true))
}

const testSource = "#include <stddef.h>\n" +
	"void _gdb_expr (struct __gdb_regs *__regs) {\n" +
	"#line 1 \"gdb command line\"\n" +
	"%s\n" +
	"}\n"

func writeTestSource(t *testing.T, code string) string {
	path := filepath.Join(t.TempDir(), "out0.c")
	content := strings.Replace(testSource, "%s", code, 1)
	err := os.WriteFile(path, []byte(content), 0600)
	expect.Nil(t, err)
	return path
}

func (GccSuite) TestCompile(t *testing.T) {
	fe := newTestFrontEnd()
	oracle := &fakeOracle{fe: fe}
	fe.SetOracle(oracle)

	printed := []string{}
	fe.SetPrintCallback(func(msg string) {
		printed = append(printed, msg)
	})

	var driver string
	var args []string
	fe.run = func(d string, a []string) ([]byte, error) {
		driver = d
		args = a
		return []byte("warning: unused\n"), nil
	}

	source := writeTestSource(t, "counter = counter + 1;")
	fe.SetSourceFile(source)
	expect.Nil(t, fe.SetArguments([]string{"-O0", "-fPIE"}))
	expect.Nil(t, fe.SetDriverFilename("/usr/bin/gcc-12"))
	fe.SetVerbose(true)

	err := fe.Compile("/tmp/out0.o")
	expect.Nil(t, err)

	expect.Equal(
		t,
		[]identifier{{name: "counter", request: protocol.OracleSymbol}},
		oracle.requests)

	expect.Equal(t, "/usr/bin/gcc-12", driver)
	expect.Equal(
		t,
		[]string{
			"-O0", "-fPIE", "-v",
			"-x", "c",
			"-c", source,
			"-o", "/tmp/out0.o",
		},
		args)
	expect.Equal(t, []string{"warning: unused\n"}, printed)

	content, err := os.ReadFile(source)
	expect.Nil(t, err)
	expect.Equal(
		t,
		"#include <stddef.h>\n"+
			"#define counter (*(int *)0x601040)\n"+
			"void _gdb_expr (struct __gdb_regs *__regs) {\n"+
			"#line 1 \"gdb command line\"\n"+
			"counter = counter + 1;\n"+
			"}\n",
		string(content))
}

func (GccSuite) TestCompileOracleError(t *testing.T) {
	fe := newTestFrontEnd()
	fe.SetOracle(&fakeOracle{fe: fe})

	printed := []string{}
	fe.SetPrintCallback(func(msg string) {
		printed = append(printed, msg)
	})

	ran := false
	fe.run = func(string, []string) ([]byte, error) {
		ran = true
		return nil, nil
	}

	fe.SetSourceFile(writeTestSource(t, "nope = 1;"))

	err := fe.Compile("/tmp/out0.o")
	expect.Error(t, err, "compilation failed: No symbol \"nope\"")
	expect.False(t, ran)
	expect.Equal(
		t,
		[]string{"No symbol \"nope\" in current context.\n"},
		printed)
}

func (GccSuite) TestInsertionPoint(t *testing.T) {
	raw := "#line 1 \"gdb command line\"\nvoid _gdb_expr (void) {}\n"
	expect.Equal(t, 0, insertionPoint(raw))

	withHeader := "#include <string.h>\n" + raw
	expect.Equal(t, len("#include <string.h>\n"), insertionPoint(withHeader))

	expect.Equal(t, 0, insertionPoint("int x;\n"))
}

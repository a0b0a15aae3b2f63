package extension

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/elf"
)

type AutoLoadSuite struct{}

func TestAutoLoad(t *testing.T) {
	suite.RunTests(t, &AutoLoadSuite{})
}

type autoLoadFixture struct {
	registry *testRegistry
	loader   *AutoLoader
	hook     *test.Hook
	python   *fakeScriptOps
	dir      string
}

func newAutoLoadFixture(
	t *testing.T,
	safePath []string,
	guile Ops,
) *autoLoadFixture {
	registry := newTestRegistry(t, baseOps{}, guile)

	python, ok := registry.ByTag(TagPython)
	expect.True(t, ok)
	pythonOps := python.ScriptOps.(*fakeScriptOps)
	pythonOps.autoLoad = true

	logger, hook := test.NewNullLogger()
	loader := NewAutoLoader(
		registry.Registry,
		AutoLoadOptions{
			SafePath: safePath,
			Logger:   logger,
		})

	return &autoLoadFixture{
		registry: registry,
		loader:   loader,
		hook:     hook,
		python:   pythonOps,
		dir:      t.TempDir(),
	}
}

func (fixture *autoLoadFixture) warnings() []string {
	result := []string{}
	for _, entry := range fixture.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			result = append(result, entry.Message)
		}
	}
	return result
}

func writeFile(t *testing.T, path string, content string) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	expect.Nil(t, err)

	err = os.WriteFile(path, []byte(content), 0644)
	expect.Nil(t, err)
}

func objfileWithScripts(
	t *testing.T,
	path string,
	sectionContent []byte,
) *symbols.Objfile {
	builder := elf.NewRelocatableBuilder()
	builder.AddSection(elf.BuilderSection{
		Name:      ".text",
		Type:      elf.SectionTypeProgramDefinedInfo,
		Flags:     elf.SectionOccupiesMemory | elf.SectionContainsInstructions,
		Alignment: 16,
		Content:   []byte{0xc3},
	})
	if sectionContent != nil {
		builder.AddSection(elf.BuilderSection{
			Name:      ScriptsSectionName,
			Type:      elf.SectionTypeProgramDefinedInfo,
			Alignment: 1,
			Content:   sectionContent,
		})
	}

	content, err := builder.Bytes()
	expect.Nil(t, err)

	writeFile(t, path, string(content))

	file, err := elf.ParseBytes(content)
	expect.Nil(t, err)

	objfile, err := symbols.NewObjfile(
		path,
		file,
		0,
		map[elf.SectionIndex]VirtualAddress{1: 0x1000})
	expect.Nil(t, err)
	return objfile
}

func (AutoLoadSuite) TestDeclinedOutsideSafePath(t *testing.T) {
	fixture := newAutoLoadFixture(t, []string{"/usr/lib/debug"}, nil)

	expect.False(t, fixture.loader.IsSafe("/home/u/proj/libfoo-gdb.py"))

	warnings := fixture.warnings()
	expect.Equal(t, 2, len(warnings))
	expect.Equal(
		t,
		"File \"/home/u/proj/libfoo-gdb.py\" auto-loading has been declined "+
			"by your `auto-load safe-path' set to \"/usr/lib/debug\".",
		warnings[0])
	expect.True(
		t,
		strings.Contains(
			warnings[1],
			"add-auto-load-safe-path /home/u/proj/libfoo-gdb.py"))

	// The advice is only given once.
	expect.False(t, fixture.loader.IsSafe("/home/u/proj/libbar-gdb.py"))
	expect.Equal(t, 3, len(fixture.warnings()))
}

func (AutoLoadSuite) TestSafePathMatching(t *testing.T) {
	fixture := newAutoLoadFixture(t, []string{"/usr/lib/debug/"}, nil)

	expect.True(t, fixture.loader.IsSafe("/usr/lib/debug/libc.so-gdb.py"))
	expect.True(t, fixture.loader.IsSafe("/usr/lib/debug"))
	expect.False(t, fixture.loader.IsSafe("/usr/lib/debugger/x-gdb.py"))

	fixture.loader.SetSafePath([]string{"/"})
	expect.True(t, fixture.loader.IsSafe("/anything/at/all"))
}

func (AutoLoadSuite) TestSafePathFollowsSymlinks(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)

	realDir := filepath.Join(fixture.dir, "real")
	writeFile(t, filepath.Join(realDir, "a-gdb.py"), "")

	link := filepath.Join(fixture.dir, "link")
	err := os.Symlink(realDir, link)
	expect.Nil(t, err)

	// The safe path entry's resolved location is also accepted.
	fixture.loader.AddSafePath(link)
	resolved, err := filepath.EvalSymlinks(realDir)
	expect.Nil(t, err)
	expect.True(t, fixture.loader.IsSafe(filepath.Join(resolved, "a-gdb.py")))
	expect.Equal(t, 0, len(fixture.warnings()))
}

func (AutoLoadSuite) TestObjfileScript(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)
	fixture.loader.AddSafePath(fixture.dir)

	path := filepath.Join(fixture.dir, "libfoo.so")
	objfile := objfileWithScripts(t, path, nil)
	scriptPath := realPath(path) + "-gdb.py"
	writeFile(t, scriptPath, "print('foo')")

	fixture.loader.LoadScriptsForObjfile(objfile)

	expect.Equal(
		t,
		[]string{scriptPath + ":print('foo')"},
		fixture.python.sourced)

	scripts := fixture.loader.LoadedScripts()
	expect.Equal(t, 1, len(scripts))
	expect.Equal(t, scriptPath, scripts[0].FullPath)
	expect.True(t, scripts[0].Loaded)
	expect.Equal(t, TagPython, scripts[0].Language.Tag)
}

func (AutoLoadSuite) TestObjfileScriptDeclined(t *testing.T) {
	fixture := newAutoLoadFixture(t, []string{"/usr/lib/debug"}, nil)

	path := filepath.Join(fixture.dir, "libfoo.so")
	objfile := objfileWithScripts(t, path, nil)
	writeFile(t, realPath(path)+"-gdb.py", "print('foo')")

	fixture.loader.LoadScriptsForObjfile(objfile)

	expect.Equal(t, 0, len(fixture.python.sourced))

	scripts := fixture.loader.LoadedScripts()
	expect.Equal(t, 1, len(scripts))
	expect.False(t, scripts[0].Loaded)
	expect.Equal(t, 2, len(fixture.warnings()))
}

func (AutoLoadSuite) TestAutoLoadDisabled(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)
	fixture.loader.AddSafePath(fixture.dir)
	fixture.python.autoLoad = false

	path := filepath.Join(fixture.dir, "libfoo.so")
	objfile := objfileWithScripts(t, path, nil)
	writeFile(t, realPath(path)+"-gdb.py", "print('foo')")

	fixture.loader.LoadScriptsForObjfile(objfile)

	expect.Equal(t, 0, len(fixture.python.sourced))
	expect.Equal(t, 0, len(fixture.loader.LoadedScripts()))
}

func (AutoLoadSuite) TestSectionScripts(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)
	fixture.loader.AddSafePath(fixture.dir)

	section := []byte{}
	section = append(section, sectionScriptPythonFile)
	section = append(section, "helpers.py\x00"...)
	section = append(section, sectionScriptPythonText)
	section = append(section, "inline\nprint(1)\n\x00"...)
	section = append(section, sectionScriptPythonFile)
	section = append(section, "helpers.py\x00"...)

	path := filepath.Join(fixture.dir, "prog")
	objfile := objfileWithScripts(t, path, section)
	helper := filepath.Join(filepath.Dir(realPath(path)), "helpers.py")
	writeFile(t, helper, "import os")

	fixture.loader.LoadScriptsForObjfile(objfile)

	// helpers.py is listed twice but only sourced once.
	expect.Equal(t, []string{helper + ":import os"}, fixture.python.sourced)
	expect.Equal(t, []string{"inline:print(1)\n"}, fixture.python.executed)

	scripts := fixture.loader.LoadedScripts()
	expect.Equal(t, 2, len(scripts))
	expect.Equal(t, "helpers.py", scripts[0].Name)
	expect.True(t, scripts[0].Loaded)
	expect.Equal(t, "inline", scripts[1].Name)
	expect.True(t, scripts[1].IsText)
}

func (AutoLoadSuite) TestSectionScriptWarnings(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)
	fixture.loader.AddSafePath(fixture.dir)

	section := []byte{}
	section = append(section, sectionScriptGuileFile)
	section = append(section, "a.scm\x00"...)
	section = append(section, sectionScriptGuileFile)
	section = append(section, "b.scm\x00"...)
	section = append(section, sectionScriptPythonFile)
	section = append(section, "missing.py\x00"...)
	section = append(section, sectionScriptPythonFile)
	section = append(section, "unterminated.py"...)

	path := filepath.Join(fixture.dir, "prog")
	objfile := objfileWithScripts(t, path, section)

	fixture.loader.LoadScriptsForObjfile(objfile)

	warnings := fixture.warnings()
	expect.Equal(t, 3, len(warnings))
	expect.True(
		t,
		strings.HasPrefix(warnings[0], "Unsupported auto-load script at offset 0"))
	expect.True(
		t,
		strings.HasPrefix(warnings[1], "Missing auto-load script at offset 14"))
	expect.Equal(
		t,
		"Non-nul-terminated entry in .debug_gdb_scripts at offset 26",
		warnings[2])

	scripts := fixture.loader.LoadedScripts()
	expect.Equal(t, 3, len(scripts))
	for _, script := range scripts {
		expect.False(t, script.Loaded)
	}
}

func (AutoLoadSuite) TestInvalidSectionEntry(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)

	path := filepath.Join(fixture.dir, "prog")
	objfile := objfileWithScripts(t, path, []byte{9, 'x', 0})

	fixture.loader.LoadScriptsForObjfile(objfile)

	expect.Equal(
		t,
		[]string{"Invalid entry in .debug_gdb_scripts section"},
		fixture.warnings())
}

func (AutoLoadSuite) TestClear(t *testing.T) {
	fixture := newAutoLoadFixture(t, nil, nil)
	fixture.loader.AddSafePath(fixture.dir)

	path := filepath.Join(fixture.dir, "libfoo.so")
	objfile := objfileWithScripts(t, path, nil)
	writeFile(t, realPath(path)+"-gdb.py", "")

	fixture.loader.LoadScriptsForObjfile(objfile)
	expect.Equal(t, 1, len(fixture.loader.LoadedScripts()))

	fixture.loader.Clear()
	expect.Equal(t, 0, len(fixture.loader.LoadedScripts()))
}

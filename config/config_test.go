package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pattyshack/badc/compile"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "badc.yaml")
	expect.Nil(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func (ConfigSuite) TestDefaultDirectories(t *testing.T) {
	logger, _ := test.NewNullLogger()
	options := Default().AutoLoad.Options(logger)

	expected := []string{"/usr/lib/debug", "/usr/share/gdb/auto-load"}
	expect.Equal(t, expected, options.SafePath)
	expect.Equal(t, expected, options.ScriptsDirectory)
	expect.False(t, options.Disabled)
}

func (ConfigSuite) TestDebugDirExpandsPerEntry(t *testing.T) {
	autoLoad := AutoLoad{
		DebugFileDirectory: "/a::/b",
		DataDirectory:      "/data",
	}

	expect.Equal(
		t,
		[]string{"/a/x", "/b/x", "/data/y", "/z"},
		autoLoad.ExpandDirectories(
			[]string{"$debugdir/x", "$datadir/y", "/z"}))

	autoLoad.DebugFileDirectory = ""
	expect.Equal(
		t,
		[]string{},
		autoLoad.ExpandDirectories([]string{"$debugdir"}))
}

func (ConfigSuite) TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(
		t,
		`compile:
  driver: /opt/gcc/bin/gcc
  debug: true
auto_load:
  safe_path: ["/"]
extension:
  colorize: false
`)

	config, err := Load(path)
	expect.Nil(t, err)

	expect.Equal(t, "/opt/gcc/bin/gcc", config.Compile.Driver)
	expect.True(t, config.Compile.Debug)
	expect.Equal(t, compile.DefaultConfig().Args, config.Compile.Args)
	expect.Equal(
		t,
		compile.DefaultConfig().TripletRegexp,
		config.Compile.TripletRegexp)

	expect.Equal(t, []string{"/"}, config.AutoLoad.SafePath)
	expect.Equal(
		t,
		Default().AutoLoad.ScriptsDirectory,
		config.AutoLoad.ScriptsDirectory)
	expect.True(t, config.AutoLoad.BuiltinScripts)
	expect.False(t, config.Extension.Colorize)
}

func (ConfigSuite) TestLoadEmptyFile(t *testing.T) {
	config, err := Load(writeConfig(t, ""))
	expect.Nil(t, err)
	expect.Equal(t, Default(), config)
}

func (ConfigSuite) TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "compile:\n  bogus: 1\n"))
	expect.Error(t, err, "failed to parse config")
}

func (ConfigSuite) TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	expect.Error(t, err, "failed to read config")
}

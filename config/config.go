package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/badc/compile"
	"github.com/pattyshack/badc/extension"
)

const (
	DebugDirToken = "$debugdir"
	DataDirToken  = "$datadir"

	DefaultDebugFileDirectory = "/usr/lib/debug"
	DefaultDataDirectory      = "/usr/share/gdb"
)

type AutoLoad struct {
	// Disables objfile script auto-loading for every language.
	Disabled bool `yaml:"disabled"`

	// Auto-load "-gdb.gdb" scripts written in the builtin script language.
	BuiltinScripts bool `yaml:"builtin_scripts"`

	// Directories from which scripts may be auto-loaded.  May refer to
	// $debugdir and $datadir.
	SafePath []string `yaml:"safe_path"`

	// Extra directories searched for objfile scripts.  May refer to
	// $debugdir and $datadir.
	ScriptsDirectory []string `yaml:"scripts_directory"`

	// Colon separated list of directories.  $debugdir expands to each
	// entry.
	DebugFileDirectory string `yaml:"debug_file_directory"`

	DataDirectory string `yaml:"data_directory"`
}

type Extension struct {
	// Route disassembly through the extension languages' colorizers.
	Colorize bool `yaml:"colorize"`
}

type Config struct {
	Compile   compile.Config `yaml:"compile"`
	AutoLoad  AutoLoad       `yaml:"auto_load"`
	Extension Extension      `yaml:"extension"`
}

func Default() Config {
	return Config{
		Compile: compile.DefaultConfig(),
		AutoLoad: AutoLoad{
			BuiltinScripts: true,
			SafePath: []string{
				DebugDirToken,
				DataDirToken + "/auto-load",
			},
			ScriptsDirectory: []string{
				DebugDirToken,
				DataDirToken + "/auto-load",
			},
			DebugFileDirectory: DefaultDebugFileDirectory,
			DataDirectory:      DefaultDataDirectory,
		},
		Extension: Extension{
			Colorize: true,
		},
	}
}

// Load overlays the yaml file at path on top of the default configuration.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	config := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	err = decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

// ExpandDirectories substitutes $debugdir and $datadir in dirs.  An entry
// referring to $debugdir expands into one entry per debug file directory.
func (autoLoad AutoLoad) ExpandDirectories(dirs []string) []string {
	debugDirs := []string{}
	for _, dir := range filepath.SplitList(autoLoad.DebugFileDirectory) {
		if dir != "" {
			debugDirs = append(debugDirs, dir)
		}
	}

	result := []string{}
	for _, dir := range dirs {
		dir = strings.ReplaceAll(dir, DataDirToken, autoLoad.DataDirectory)

		if !strings.Contains(dir, DebugDirToken) {
			result = append(result, dir)
			continue
		}

		for _, debugDir := range debugDirs {
			result = append(
				result,
				strings.ReplaceAll(dir, DebugDirToken, debugDir))
		}
	}

	return result
}

func (autoLoad AutoLoad) Options(
	logger logrus.FieldLogger,
) extension.AutoLoadOptions {
	return extension.AutoLoadOptions{
		Disabled:         autoLoad.Disabled,
		SafePath:         autoLoad.ExpandDirectories(autoLoad.SafePath),
		ScriptsDirectory: autoLoad.ExpandDirectories(autoLoad.ScriptsDirectory),
		Logger:           logger,
	}
}

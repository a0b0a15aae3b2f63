package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/debugger/symbols"
)

const (
	ScriptsSectionName = ".debug_gdb_scripts"

	// .debug_gdb_scripts entry kinds
	sectionScriptPythonFile = 1
	sectionScriptGuileFile  = 3
	sectionScriptPythonText = 4
	sectionScriptGuileText  = 6
)

type AutoLoadOptions struct {
	Disabled bool

	// Directories (with $debugdir / $datadir already expanded) from which
	// scripts may be auto-loaded.  "/" allows every file.
	SafePath []string

	// Extra directories searched for objfile scripts.  The objfile's
	// absolute path is appended to each directory.
	ScriptsDirectory []string

	Logger logrus.FieldLogger
}

// LoadedScript is an auto-load script seen for the current program.
type LoadedScript struct {
	Name string

	// Empty when the script was not found.
	FullPath string

	Language *Descriptor

	// False when the script was not found, or was declined by the safe path
	// policy.
	Loaded bool

	// True for scripts embedded as text in .debug_gdb_scripts.
	IsText bool
}

type loadedScriptKey struct {
	name   string
	tag    Tag
	isText bool
}

// AutoLoader sources companion scripts of objfiles, gated by each
// language's auto-load setting and the safe path policy.
type AutoLoader struct {
	registry *Registry
	logger   logrus.FieldLogger

	disabled bool

	safePathSetting  string
	safePath         []string
	scriptsDirectory []string

	advicePrinted bool

	scriptNotFoundWarningPrinted    bool
	unsupportedScriptWarningPrinted bool

	scripts map[loadedScriptKey]*LoadedScript
}

func NewAutoLoader(registry *Registry, options AutoLoadOptions) *AutoLoader {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	loader := &AutoLoader{
		registry:         registry,
		logger:           logger,
		disabled:         options.Disabled,
		scriptsDirectory: options.ScriptsDirectory,
		scripts:          map[loadedScriptKey]*LoadedScript{},
	}
	loader.SetSafePath(options.SafePath)
	return loader
}

func realPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

func (loader *AutoLoader) SetSafePath(dirs []string) {
	loader.safePathSetting = strings.Join(dirs, string(filepath.ListSeparator))
	loader.safePath = nil
	for _, dir := range dirs {
		loader.addSafePath(dir)
	}
}

// AddSafePath appends dir to the safe path.
func (loader *AutoLoader) AddSafePath(dir string) {
	if loader.safePathSetting == "" {
		loader.safePathSetting = dir
	} else {
		loader.safePathSetting += string(filepath.ListSeparator) + dir
	}
	loader.addSafePath(dir)
}

func (loader *AutoLoader) addSafePath(dir string) {
	if dir == "" {
		return
	}

	loader.safePath = append(loader.safePath, dir)

	resolved := realPath(dir)
	if resolved != dir {
		loader.logger.WithFields(logrus.Fields{
			"path":      dir,
			"real_path": resolved,
		}).Debug("auto-load: adding resolved path of safe path entry")
		loader.safePath = append(loader.safePath, resolved)
	}
}

func isInDirectory(filename string, dir string) bool {
	dir = strings.TrimRight(dir, "/")

	// "/" matches every file
	if dir == "" {
		return true
	}

	if !strings.HasPrefix(filename, dir) {
		return false
	}

	rest := filename[len(dir):]
	return rest == "" || rest[0] == '/'
}

func (loader *AutoLoader) isInSafePath(filename string) (string, bool) {
	for _, dir := range loader.safePath {
		if isInDirectory(filename, dir) {
			return filename, true
		}
	}

	resolved := realPath(filename)
	if resolved != filename {
		for _, dir := range loader.safePath {
			if isInDirectory(resolved, dir) {
				return resolved, true
			}
		}
	}

	return resolved, false
}

// IsSafe reports whether filename may be auto-loaded, warning when it is
// declined.  filename need not exist.
func (loader *AutoLoader) IsSafe(filename string) bool {
	resolved, ok := loader.isInSafePath(filename)
	if ok {
		loader.logger.WithField("path", resolved).Debug(
			"auto-load: file matches the safe path")
		return true
	}

	loader.logger.WithFields(logrus.Fields{
		"path":      resolved,
		"safe_path": loader.safePathSetting,
	}).Warnf(
		"File \"%s\" auto-loading has been declined by your "+
			"`auto-load safe-path' set to \"%s\".",
		resolved,
		loader.safePathSetting)

	if !loader.advicePrinted {
		loader.advicePrinted = true
		loader.logger.Warnf(
			"To enable execution of this file add\n"+
				"\tadd-auto-load-safe-path %s\n"+
				"line to your configuration file.\n"+
				"To completely disable this security protection add\n"+
				"\tset auto-load safe-path /\n"+
				"line to your configuration file.",
			resolved)
	}

	return false
}

// addScript records a script, returning true if it was already recorded.
func (loader *AutoLoader) addScript(script *LoadedScript) bool {
	key := loadedScriptKey{
		name:   script.Name,
		tag:    script.Language.Tag,
		isText: script.IsText,
	}

	_, ok := loader.scripts[key]
	if ok {
		return true
	}

	loader.scripts[key] = script
	return false
}

// LoadedScripts lists the scripts seen so far, sorted by name.
func (loader *AutoLoader) LoadedScripts() []*LoadedScript {
	result := make([]*LoadedScript, 0, len(loader.scripts))
	for _, script := range loader.scripts {
		result = append(result, script)
	}

	sort.Slice(result, func(i int, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Language.Tag < result[j].Language.Tag
	})
	return result
}

// Clear forgets every loaded script, e.g., when a new program is loaded.
func (loader *AutoLoader) Clear() {
	loader.scripts = map[loadedScriptKey]*LoadedScript{}
	loader.scriptNotFoundWarningPrinted = false
	loader.unsupportedScriptWarningPrinted = false
}

// LoadScriptsForObjfile sources objfile's companion scripts of every
// language (builtin first), then the scripts named by its
// .debug_gdb_scripts section.
func (loader *AutoLoader) LoadScriptsForObjfile(objfile *symbols.Objfile) {
	if loader.disabled || objfile.File == nil {
		return
	}

	for _, lang := range loader.registry.All() {
		if loader.registry.AutoLoadEnabled(lang) {
			loader.loadObjfileScript(objfile, lang)
		}
	}

	loader.loadSectionScripts(objfile)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (loader *AutoLoader) loadObjfileScript(
	objfile *symbols.Objfile,
	lang *Descriptor,
) bool {
	filename := realPath(objfile.Name) + lang.AutoLoadSuffix

	path := ""
	if fileExists(filename) {
		path = filename
	} else {
		for _, dir := range loader.scriptsDirectory {
			// filename is absolute
			candidate := dir + filename
			if fileExists(candidate) {
				path = candidate
				break
			}
		}
	}

	loader.logger.WithFields(logrus.Fields{
		"path":   filename,
		"exists": path != "",
	}).Debug("auto-load: attempted objfile script")

	if path == "" {
		return false
	}

	loader.logger.WithFields(logrus.Fields{
		"language": lang.Name,
		"path":     path,
		"objfile":  objfile.Name,
	}).Debug("auto-load: loading script by extension")

	isSafe := loader.IsSafe(path)

	// Objfile scripts are always sourced, even if listed already.
	loader.addScript(&LoadedScript{
		Name:     path,
		FullPath: path,
		Language: lang,
		Loaded:   isSafe,
	})

	if isSafe {
		loader.sourceObjfileScript(objfile, lang, path)
	}

	return true
}

func (loader *AutoLoader) sourceObjfileScript(
	objfile *symbols.Objfile,
	lang *Descriptor,
	path string,
) {
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		err = lang.ScriptOps.SourceObjfileScript(objfile, file, path)
	}

	if err != nil {
		loader.logger.WithFields(logrus.Fields{
			"path":    path,
			"objfile": objfile.Name,
		}).Warnf("failed to auto-load script %s: %s", path, err)
	}
}

func (loader *AutoLoader) loadSectionScripts(objfile *symbols.Objfile) {
	section, ok := objfile.File.GetSection(ScriptsSectionName)
	if !ok {
		return
	}

	content, err := section.RawContent()
	if err != nil {
		loader.logger.WithField("objfile", objfile.Name).Warnf(
			"Couldn't read %s section of %s",
			ScriptsSectionName,
			objfile.Name)
		return
	}

	loader.sourceSectionScripts(objfile, content)
}

func (loader *AutoLoader) sourceSectionScripts(
	objfile *symbols.Objfile,
	content []byte,
) {
	for idx := 0; idx < len(content); idx++ {
		offset := idx
		code := content[idx]

		var tag Tag
		switch code {
		case sectionScriptPythonFile, sectionScriptPythonText:
			tag = TagPython
		case sectionScriptGuileFile, sectionScriptGuileText:
			tag = TagGuile
		default:
			loader.logger.WithField("objfile", objfile.Name).Warnf(
				"Invalid entry in %s section",
				ScriptsSectionName)
			return
		}

		lang, ok := loader.registry.ByTag(tag)
		if !ok {
			panic("should never happen")
		}

		idx++
		start := idx
		for idx < len(content) && content[idx] != 0 {
			idx++
		}

		if idx == len(content) {
			loader.logger.WithField("objfile", objfile.Name).Warnf(
				"Non-nul-terminated entry in %s at offset %d",
				ScriptsSectionName,
				offset)
			return
		}

		entry := string(content[start:idx])

		switch code {
		case sectionScriptPythonFile, sectionScriptGuileFile:
			if entry == "" {
				loader.logger.WithField("objfile", objfile.Name).Warnf(
					"Empty entry in %s at offset %d",
					ScriptsSectionName,
					offset)
				continue
			}
			loader.sourceScriptFile(objfile, lang, offset, entry)
		default:
			loader.executeScriptContents(objfile, lang, offset, entry)
		}
	}
}

func (loader *AutoLoader) maybePrintUnsupportedScriptWarning(
	objfile *symbols.Objfile,
	lang *Descriptor,
	offset int,
) {
	if loader.unsupportedScriptWarningPrinted {
		return
	}
	loader.unsupportedScriptWarningPrinted = true

	loader.logger.WithField("objfile", objfile.Name).Warnf(
		"Unsupported auto-load script at offset %d in section %s\n"+
			"of file %s.\n"+
			"Use `info auto-load %s-scripts [REGEXP]' to list them.",
		offset,
		ScriptsSectionName,
		objfile.Name,
		lang.Name)
}

func (loader *AutoLoader) maybePrintScriptNotFoundWarning(
	objfile *symbols.Objfile,
	lang *Descriptor,
	offset int,
) {
	if loader.scriptNotFoundWarningPrinted {
		return
	}
	loader.scriptNotFoundWarningPrinted = true

	loader.logger.WithField("objfile", objfile.Name).Warnf(
		"Missing auto-load script at offset %d in section %s\n"+
			"of file %s.\n"+
			"Use `info auto-load %s-scripts [REGEXP]' to list them.",
		offset,
		ScriptsSectionName,
		objfile.Name,
		lang.Name)
}

// findScript searches the scripts directories, then the objfile's
// directory, for a relative script name.
func (loader *AutoLoader) findScript(
	objfile *symbols.Objfile,
	name string,
) (
	string,
	bool,
) {
	if filepath.IsAbs(name) {
		return name, fileExists(name)
	}

	dirs := append([]string{}, loader.scriptsDirectory...)
	dirs = append(dirs, filepath.Dir(realPath(objfile.Name)))

	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return realPath(candidate), true
		}
	}

	return "", false
}

func (loader *AutoLoader) sourceScriptFile(
	objfile *symbols.Objfile,
	lang *Descriptor,
	offset int,
	name string,
) {
	if !lang.IsSupported() {
		loader.maybePrintUnsupportedScriptWarning(objfile, lang, offset)
		loader.addScript(&LoadedScript{
			Name:     name,
			Language: lang,
		})
		return
	}

	if !loader.registry.AutoLoadEnabled(lang) {
		return
	}

	path, found := loader.findScript(objfile, name)
	opened := found
	if found {
		opened = loader.IsSafe(path)
	} else {
		loader.maybePrintScriptNotFoundWarning(objfile, lang, offset)
	}

	inTable := loader.addScript(&LoadedScript{
		Name:     name,
		FullPath: path,
		Language: lang,
		Loaded:   opened,
	})

	if opened && !inTable {
		loader.sourceObjfileScript(objfile, lang, path)
	}
}

func (loader *AutoLoader) executeScriptContents(
	objfile *symbols.Objfile,
	lang *Descriptor,
	offset int,
	script string,
) {
	// The first line is the script's name.
	name, text, ok := strings.Cut(script, "\n")
	if !ok {
		loader.logger.WithField("objfile", objfile.Name).Warnf(
			"Missing script name in %s section at offset %d",
			ScriptsSectionName,
			offset)
		return
	}

	if name == "" || strings.ContainsAny(name, " \t\r\v\f") {
		loader.logger.WithField("objfile", objfile.Name).Warnf(
			"Invalid script name in %s section at offset %d",
			ScriptsSectionName,
			offset)
		return
	}

	if !lang.IsSupported() {
		loader.maybePrintUnsupportedScriptWarning(objfile, lang, offset)
		loader.addScript(&LoadedScript{
			Name:     name,
			Language: lang,
			IsText:   true,
		})
		return
	}

	if !loader.registry.AutoLoadEnabled(lang) {
		return
	}

	isSafe := loader.IsSafe(objfile.Name)
	inTable := loader.addScript(&LoadedScript{
		Name:     name,
		Language: lang,
		Loaded:   isSafe,
		IsText:   true,
	})

	if !isSafe || inTable {
		return
	}

	err := lang.ScriptOps.ExecuteObjfileScript(objfile, name, text)
	if err != nil {
		loader.logger.WithFields(logrus.Fields{
			"script":  name,
			"objfile": objfile.Name,
		}).Warnf("failed to execute auto-load script %s: %s", name, err)
	}
}

func (loader *AutoLoader) String() string {
	return fmt.Sprintf("auto-load safe-path %q", loader.safePathSetting)
}

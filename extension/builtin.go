package extension

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/badc/debugger/symbols"
)

// CommandExecutor runs debugger commands found in builtin scripts.
type CommandExecutor interface {
	ExecuteCommand(line string) error
}

var controlBlocks = map[string]ControlType{
	"python": ControlPython,
	"guile":  ControlGuile,
}

// builtinScriptOps is the line based builtin script language.  Lines are
// comments (#), echo commands, embedded language blocks ("python" ...
// "end"), or debugger commands handed to the executor.
type builtinScriptOps struct {
	registry *Registry
	executor CommandExecutor
	output   io.Writer

	autoLoadEnabled bool
}

func (ops *builtinScriptOps) SourceScript(file io.Reader, path string) error {
	return ops.source(file, path)
}

func (ops *builtinScriptOps) SourceObjfileScript(
	objfile *symbols.Objfile,
	file io.Reader,
	path string,
) error {
	return ops.source(file, path)
}

func (ops *builtinScriptOps) ExecuteObjfileScript(
	objfile *symbols.Objfile,
	name string,
	text string,
) error {
	return ops.source(strings.NewReader(text), name)
}

func (ops *builtinScriptOps) AutoLoadEnabled() bool {
	return ops.autoLoadEnabled
}

func (ops *builtinScriptOps) source(file io.Reader, path string) error {
	scanner := bufio.NewScanner(file)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		command, args, _ := strings.Cut(line, " ")
		args = strings.TrimSpace(args)

		var err error
		controlType, ok := controlBlocks[command]
		if ok {
			body := []string{args}
			if args == "" {
				startLine := lineNumber
				body = nil
				terminated := false
				for scanner.Scan() {
					lineNumber++
					if strings.TrimSpace(scanner.Text()) == "end" {
						terminated = true
						break
					}
					body = append(body, scanner.Text())
				}

				if !terminated {
					return fmt.Errorf(
						"%s:%d: %s block is not terminated by end",
						path,
						startLine,
						command)
				}
			}

			err = ops.registry.EvalFromControlCommand(controlType, body)
		} else if command == "echo" {
			_, err = io.WriteString(ops.output, parseutil.Unescape(args))
		} else if ops.executor == nil {
			err = fmt.Errorf("undefined command: %q", command)
		} else {
			err = ops.executor.ExecuteCommand(line)
		}

		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNumber, err)
		}
	}

	err := scanner.Err()
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}

	return nil
}

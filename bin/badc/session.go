package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile"
	"github.com/pattyshack/badc/compile/protocol"
	"github.com/pattyshack/badc/config"
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/inferior"
	"github.com/pattyshack/badc/debugger/registers"
	"github.com/pattyshack/badc/extension"
)

type command struct {
	name string
	run  func(*session, []string) error
}

var commands = []command{
	{name: "compile", run: (*session).compile},
	{name: "continue", run: (*session).resume},
	{name: "info", run: (*session).info},
	{name: "source", run: (*session).source},
	{name: "quit", run: (*session).exit},
}

type session struct {
	config  config.Config
	process *inferior.Process
	output  io.Writer
	logger  logrus.FieldLogger

	registry   *extension.Registry
	activation *extension.Activation
	autoLoader *extension.AutoLoader
	driver     *compile.Driver

	quit bool
}

func newSession(
	cfg config.Config,
	process *inferior.Process,
	output io.Writer,
	logger logrus.FieldLogger,
) (
	*session,
	error,
) {
	sess := &session{
		config:  cfg,
		process: process,
		output:  output,
		logger:  logger,
	}

	registry, err := extension.NewRegistry(extension.Options{
		Executor:               sess,
		Output:                 output,
		AutoLoadBuiltinScripts: cfg.AutoLoad.BuiltinScripts,
		Logger:                 logger,
	})
	if err != nil {
		return nil, err
	}
	sess.registry = registry

	err = registry.FinishInitialization()
	if err != nil {
		return nil, err
	}

	// Terminal interrupts set the quit flag instead of killing the debugger,
	// and are forwarded to the inferior while it runs.
	sess.activation = registry.SetActive(registry.Builtin())
	process.SetRunHook(func(signaler *inferior.Signaler) func() {
		return registry.InferiorRunning(signaler)
	})

	sess.autoLoader = extension.NewAutoLoader(
		registry,
		cfg.AutoLoad.Options(logger))

	sess.driver = compile.NewDriver(compile.DriverOptions{
		Config:     cfg.Compile,
		Inferior:   process,
		Symbols:    process.Symbols,
		Extensions: registry,
		Output:     output,
		Logger:     logger,
	})

	for _, objfile := range process.Symbols.Objfiles() {
		sess.autoLoader.LoadScriptsForObjfile(objfile)
	}

	return sess, nil
}

func (sess *session) Close() error {
	driverErr := sess.driver.Close()
	sess.process.SetRunHook(nil)
	sess.registry.Restore(sess.activation)
	sess.registry.Shutdown()

	err := sess.process.Close()
	if err != nil {
		return err
	}
	return driverErr
}

// ExecuteCommand runs a single command line.  Commands may be abbreviated
// to any unambiguous prefix.
func (sess *session) ExecuteCommand(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	if strings.HasPrefix(args[0], "x/") {
		return sess.examineInstructions(args[0][2:], args[1:])
	}

	var matched []command
	for _, cmd := range commands {
		if cmd.name == args[0] {
			matched = []command{cmd}
			break
		}
		if strings.HasPrefix(cmd.name, args[0]) {
			matched = append(matched, cmd)
		}
	}

	switch len(matched) {
	case 0:
		return fmt.Errorf("invalid command: %s", args[0])
	case 1:
		return matched[0].run(sess, args[1:])
	default:
		names := []string{}
		for _, cmd := range matched {
			names = append(names, cmd.name)
		}
		return fmt.Errorf(
			"ambiguous command %s: %s",
			args[0],
			strings.Join(names, ", "))
	}
}

// compile code [-raw] [--] <code>
// compile print [/<format>] <expression>
// compile file [-raw] <path>
func (sess *session) compile(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("compile requires a subcommand: code, print or file")
	}

	subcommand := args[0]
	args = args[1:]

	scope := protocol.SimpleScope
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		option := args[0]
		args = args[1:]

		if option == "--" {
			break
		} else if option == "-raw" || option == "-r" {
			scope = protocol.RawScope
		} else {
			return fmt.Errorf("unknown compile option: %s", option)
		}
	}

	switch subcommand {
	case "code":
		return sess.driver.EvalCompileCommand(
			"",
			strings.Join(args, " "),
			scope,
			nil)
	case "print":
		if scope == protocol.RawScope {
			return fmt.Errorf("compile print does not accept -raw")
		}

		options := &extension.ValuePrintOptions{}
		if len(args) > 0 && strings.HasPrefix(args[0], "/") {
			format := args[0][1:]
			if len(format) != 1 {
				return fmt.Errorf("invalid print format: %s", args[0])
			}
			options.Format = format[0]
			args = args[1:]
		}

		return sess.driver.EvalCompileCommand(
			"",
			strings.Join(args, " "),
			protocol.PrintAddressScope,
			options)
	case "file":
		if len(args) != 1 {
			return fmt.Errorf("compile file requires a file name")
		}
		return sess.driver.EvalCompileFile(args[0], scope)
	default:
		return fmt.Errorf("unknown compile subcommand: %s", subcommand)
	}
}

func (sess *session) resume(args []string) error {
	status, err := sess.process.Resume()
	if err != nil {
		return err
	}

	fmt.Fprintln(sess.output, status)
	if status.IsTerminated() {
		sess.quit = true
	}
	return nil
}

func (sess *session) info(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("info requires one of: auto-load, extension-languages")
	}

	switch args[0] {
	case "auto-load":
		fmt.Fprintln(sess.output, sess.autoLoader)

		scripts := sess.autoLoader.LoadedScripts()
		if len(scripts) == 0 {
			fmt.Fprintln(sess.output, "No auto-load scripts.")
			return nil
		}

		fmt.Fprintf(sess.output, "%-8s%-8s%s\n", "Loaded", "Lang", "Script")
		for _, script := range scripts {
			loaded := "No"
			if script.Loaded {
				loaded = "Yes"
			}

			name := script.FullPath
			if name == "" {
				name = script.Name
			}

			fmt.Fprintf(
				sess.output,
				"%-8s%-8s%s\n",
				loaded,
				script.Language.Name,
				name)
		}
	case "extension-languages":
		for _, lang := range sess.registry.All() {
			fmt.Fprintf(
				sess.output,
				"%-10s initialized=%v auto-load=%v\n",
				lang.Name,
				sess.registry.Initialized(lang),
				sess.registry.AutoLoadEnabled(lang))
		}
	default:
		return fmt.Errorf("unknown info subcommand: %s", args[0])
	}

	return nil
}

func (sess *session) source(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("source requires a file name")
	}
	return sess.registry.SourceScript(args[0])
}

func (sess *session) exit(args []string) error {
	sess.quit = true
	return nil
}

// x/<count>i [address]
func (sess *session) examineInstructions(format string, args []string) error {
	if !strings.HasSuffix(format, "i") {
		return fmt.Errorf("only the instruction format (x/<count>i) is supported")
	}

	count := 1
	if len(format) > 1 {
		var err error
		count, err = strconv.Atoi(format[:len(format)-1])
		if err != nil {
			return fmt.Errorf("invalid count %s: %w", format, err)
		}
	}

	var address VirtualAddress
	if len(args) == 0 {
		value, err := sess.process.RegisterValue(registers.ProgramCounter)
		if err != nil {
			return err
		}
		address = VirtualAddress(value.ToUint64())
	} else if len(args) == 1 {
		value, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %s: %w", args[0], err)
		}
		address = VirtualAddress(value)
	} else {
		return fmt.Errorf("too many arguments")
	}

	instructions, err := sess.process.Disassemble(address, count)
	if err != nil {
		return err
	}

	text := instructions.String()
	if sess.config.Extension.Colorize {
		colorized, ok := sess.registry.ColorizeDisassembly(text)
		if ok {
			text = colorized
		}
	}

	_, err = io.WriteString(sess.output, text)
	return err
}

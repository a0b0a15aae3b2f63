package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pattyshack/badc/compile/gcc"
	"github.com/pattyshack/badc/config"
	"github.com/pattyshack/badc/debugger/inferior"
)

type flags struct {
	pid        int
	configPath string
	commands   []string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &flags{}

	cmd := &cobra.Command{
		Use:   "badc [flags] [program [args...]]",
		Short: "Debugger with compile and inject support for C and C++",
		Long: "badc attaches to (or launches) a program and compiles C / C++ " +
			"snippets into it, running them in the scope of the stopped " +
			"thread.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.pid, "pid", "p", 0, "attach to existing process pid")
	cmd.Flags().StringVarP(
		&opts.configPath,
		"config",
		"c",
		"",
		"yaml configuration file")
	cmd.Flags().StringArrayVarP(
		&opts.commands,
		"command",
		"x",
		nil,
		"execute the command before entering the interactive loop "+
			"(may be repeated)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func run(opts *flags, args []string) error {
	logger := logrus.StandardLogger()
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	}

	gcc.Register(logger)

	var process *inferior.Process
	var err error
	if opts.pid != 0 {
		if len(args) != 0 {
			return fmt.Errorf("unexpected arguments with --pid: %v", args)
		}

		process, err = inferior.Attach(opts.pid, logger)
	} else if len(args) == 0 {
		return fmt.Errorf("no program or --pid given")
	} else {
		process, err = inferior.Launch(args[0], args[1:], logger)
	}

	if err != nil {
		return err
	}

	sess, err := newSession(cfg, process, os.Stdout, logger)
	if err != nil {
		_ = process.Close()
		return err
	}
	defer func() {
		err := sess.Close()
		if err != nil {
			logger.WithError(err).Warn("failed to close session")
		}
	}()

	fmt.Println("attached to process", process.Pid)

	for _, line := range opts.commands {
		err := sess.ExecuteCommand(line)
		if err != nil {
			fmt.Println(err)
		}
	}

	return sess.interact()
}

func (sess *session) interact() error {
	rl, err := readline.New("badc > ")
	if err != nil {
		return err
	}
	defer rl.Close()

	lastLine := ""
	for !sess.quit {
		prompt, err := sess.registry.BeforePrompt("badc > ")
		if err != nil {
			sess.logger.WithError(err).Warn("before prompt hook failed")
		} else {
			rl.SetPrompt(prompt)
		}

		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		err = sess.ExecuteCommand(line)
		if err != nil {
			fmt.Println(err)
		}

		if sess.registry.CheckQuitFlag() {
			fmt.Println("Quit")
		}
	}

	return nil
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		os.Exit(1)
	}
}

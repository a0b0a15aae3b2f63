package gcc

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pattyshack/badc/compile/protocol"
)

// runCommand runs the compiler driver and returns its combined output.
type runCommand func(driver string, args []string) ([]byte, error)

func runDriver(driver string, args []string) ([]byte, error) {
	return exec.Command(driver, args...).CombinedOutput()
}

// insertionPoint returns the source offset at which the rendered
// declarations are placed: the start of the line declaring the wrapper
// function, or the command line directive when there's no wrapper.
func insertionPoint(source string) int {
	directive := strings.Index(source, protocol.CommandLineDirective)

	wrapper := -1
	prefix := "void " + protocol.WrapperFunctionName
	for pos := 0; pos < len(source); {
		if strings.HasPrefix(source[pos:], prefix) {
			wrapper = pos
			break
		}

		next := strings.IndexByte(source[pos:], '\n')
		if next < 0 {
			break
		}
		pos += next + 1
	}

	if wrapper >= 0 && (directive < 0 || wrapper < directive) {
		return wrapper
	}
	if directive >= 0 {
		return directive
	}
	return 0
}

// userCode returns the code following the command line directive.
func userCode(source string) string {
	idx := strings.Index(source, protocol.CommandLineDirective)
	if idx < 0 {
		return source
	}
	return source[idx+len(protocol.CommandLineDirective):]
}

// Compile queries the oracle for the identifiers the source file refers to,
// rewrites the source file with their declarations, and compiles it into
// objectFile.
func (fe *FrontEnd) Compile(objectFile string) error {
	if fe.sourceFile == "" {
		return fmt.Errorf("no source file specified")
	}

	content, err := os.ReadFile(fe.sourceFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fe.sourceFile, err)
	}
	source := string(content)

	if fe.oracle != nil {
		for _, ident := range scanIdentifiers(userCode(source), fe.isCPlus) {
			fe.logger.WithField("identifier", ident.name).Debug("query oracle")
			fe.oracle.ConvertSymbol(ident.request, ident.name)
		}
	}

	if len(fe.errors) > 0 {
		for _, msg := range fe.errors {
			fe.print(msg + "\n")
		}
		return fmt.Errorf("compilation failed: %s", fe.errors[0])
	}

	pos := insertionPoint(source)
	source = source[:pos] + fe.renderDeclarations() + source[pos:]

	err = os.WriteFile(fe.sourceFile, []byte(source), 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", fe.sourceFile, err)
	}

	language := "c"
	if fe.isCPlus {
		language = "c++"
	}

	args := append([]string{}, fe.args...)
	if fe.verbose {
		args = append(args, "-v")
	}
	args = append(
		args,
		"-x", language,
		"-c", fe.sourceFile,
		"-o", objectFile)

	driver := fe.driverPath()
	fe.logger.WithFields(logrus.Fields{
		"driver": driver,
		"args":   strings.Join(args, " "),
	}).Debug("compiling")

	output, err := fe.run(driver, args)
	if len(output) > 0 {
		fe.print(string(output))
	}
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", fe.sourceFile, err)
	}

	return nil
}

package extension

import (
	"fmt"
	"io"

	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

// firstResponder calls fn on every extension language implementing the
// capability C, in priority order, until a language handles the request.
// An error stops the dispatch.
func firstResponder[C any, R any](
	registry *Registry,
	fn func(C) (R, Status, error),
) (
	R,
	Status,
	error,
) {
	var zero R
	for _, lang := range registry.extensions {
		capability, ok := lang.Ops.(C)
		if !ok {
			continue
		}

		var result R
		status := StatusNop
		err := registry.withActive(lang, func() error {
			var err error
			result, status, err = fn(capability)
			return err
		})
		if err != nil {
			return zero, StatusNop, fmt.Errorf(
				"%s: %w",
				lang.CapitalizedName,
				err)
		}

		if status == StatusOK {
			return result, StatusOK, nil
		}
	}

	return zero, StatusNop, nil
}

// ApplyValuePrettyPrinter returns true if some language printed value.
func (registry *Registry) ApplyValuePrettyPrinter(
	value *types.Value,
	out io.Writer,
	recurse int,
	options *ValuePrintOptions,
) (
	bool,
	error,
) {
	_, status, err := firstResponder(
		registry,
		func(printer ValuePrettyPrinter) (struct{}, Status, error) {
			status, err := printer.ApplyValuePrettyPrinter(
				value,
				out,
				recurse,
				options)
			return struct{}{}, status, err
		})
	return status == StatusOK, err
}

// ApplyFrameFilter uses the frame filters of the first language that has
// any.
func (registry *Registry) ApplyFrameFilter(
	frame Frame,
	flags FrameFilterFlags,
	args FrameArgs,
	out io.Writer,
	frameLow int,
	frameHigh int,
) (
	FrameFilterStatus,
	error,
) {
	result, _, err := firstResponder(
		registry,
		func(filterer FrameFilterer) (FrameFilterStatus, Status, error) {
			result, err := filterer.ApplyFrameFilter(
				frame,
				flags,
				args,
				out,
				frameLow,
				frameHigh)
			if err != nil || result == FrameFilterNoFilters {
				return FrameFilterNoFilters, StatusNop, err
			}
			return result, StatusOK, nil
		})
	return result, err
}

// PreserveValues is broadcast to every language before objfile is freed.
func (registry *Registry) PreserveValues(
	objfile *symbols.Objfile,
	copied map[*types.Type]*types.Type,
) {
	for _, lang := range registry.extensions {
		preserver, ok := lang.Ops.(ValuePreserver)
		if ok {
			preserver.PreserveValues(objfile, copied)
		}
	}
}

// BreakpointConditionLanguage returns the first language, other than skip,
// which has a stop condition for bp.
func (registry *Registry) BreakpointConditionLanguage(
	bp Breakpoint,
	skip Tag,
) (
	*Descriptor,
	bool,
) {
	for _, lang := range registry.extensions {
		if lang.Tag == skip {
			continue
		}

		checker, ok := lang.Ops.(BreakpointConditionChecker)
		if ok && checker.BreakpointHasCondition(bp) {
			return lang, true
		}
	}
	return nil, false
}

// BreakpointConditionSaysStop queries every language, even after one has
// answered, since a language may need to observe every stop.  At most one
// language may give a stop / no stop answer.
func (registry *Registry) BreakpointConditionSaysStop(
	bp Breakpoint,
) BreakpointStop {
	stop := StopUnset
	for _, lang := range registry.extensions {
		evaluator, ok := lang.Ops.(BreakpointConditionEvaluator)
		if !ok {
			continue
		}

		langStop := StopUnset
		_ = registry.withActive(lang, func() error {
			langStop = evaluator.BreakpointConditionSaysStop(bp)
			return nil
		})

		if langStop != StopUnset {
			if stop != StopUnset {
				panic("should never happen")
			}
			stop = langStop
		}
	}

	return stop
}

// BeforePrompt lets the first interested language rewrite the prompt.
func (registry *Registry) BeforePrompt(prompt string) (string, error) {
	result, status, err := firstResponder(
		registry,
		func(hook BeforePromptHook) (string, Status, error) {
			return hook.BeforePrompt(prompt)
		})
	if err != nil {
		return prompt, err
	}

	if status == StatusOK {
		return result, nil
	}
	return prompt, nil
}

// MatchingXmethodWorkers collects the workers of every language.
func (registry *Registry) MatchingXmethodWorkers(
	objectType *types.Type,
	methodName string,
) (
	[]XmethodWorker,
	error,
) {
	workers := []XmethodWorker{}
	for _, lang := range registry.extensions {
		matcher, ok := lang.Ops.(XmethodMatcher)
		if !ok {
			continue
		}

		var matched []XmethodWorker
		err := registry.withActive(lang, func() error {
			var err error
			matched, err = matcher.MatchingXmethodWorkers(objectType, methodName)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf(
				"error while looking for matching xmethod workers defined in "+
					"%s: %w",
				lang.CapitalizedName,
				err)
		}

		workers = append(workers, matched...)
	}

	return workers, nil
}

func (registry *Registry) Colorize(
	filename string,
	contents string,
) (
	string,
	bool,
) {
	result, status, _ := firstResponder(
		registry,
		func(colorizer Colorizer) (string, Status, error) {
			colorized, ok := colorizer.Colorize(filename, contents)
			if !ok {
				return "", StatusNop, nil
			}
			return colorized, StatusOK, nil
		})
	return result, status == StatusOK
}

func (registry *Registry) ColorizeDisassembly(contents string) (string, bool) {
	result, status, _ := firstResponder(
		registry,
		func(colorizer DisassemblyColorizer) (string, Status, error) {
			colorized, ok := colorizer.ColorizeDisassembly(contents)
			if !ok {
				return "", StatusNop, nil
			}
			return colorized, StatusOK, nil
		})
	return result, status == StatusOK
}

func (registry *Registry) HandleMissingDebugInfo(
	objfile *symbols.Objfile,
) MissingFileResult {
	result, _, _ := firstResponder(
		registry,
		func(handler MissingDebugInfoHandler) (
			MissingFileResult,
			Status,
			error,
		) {
			result := handler.HandleMissingDebugInfo(objfile)
			if result.IsEmpty() {
				return result, StatusNop, nil
			}
			return result, StatusOK, nil
		})
	return result
}

func (registry *Registry) FindObjfileFromBuildId(
	buildId []byte,
	filename string,
) MissingFileResult {
	result, _, _ := firstResponder(
		registry,
		func(finder ObjfileFinder) (MissingFileResult, Status, error) {
			result := finder.FindObjfileFromBuildId(buildId, filename)
			if result.IsEmpty() {
				return result, StatusNop, nil
			}
			return result, StatusOK, nil
		})
	return result
}

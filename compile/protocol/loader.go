package protocol

import (
	"fmt"
	"plugin"
	"sync"
)

// ContextFunc creates a front end context supporting the requested
// versions, or returns ErrUnsupportedVersion.
type ContextFunc func(
	baseVersion Version,
	languageVersion Version,
) (
	BaseFrontEnd,
	error,
)

type frontEndKey struct {
	library    string
	entryPoint string
}

var (
	frontEndsMutex sync.Mutex
	frontEnds      = map[frontEndKey]ContextFunc{}
)

// RegisterFrontEnd makes a compiled-in front end available under the given
// library name and entry point.
func RegisterFrontEnd(library string, entryPoint string, context ContextFunc) {
	frontEndsMutex.Lock()
	defer frontEndsMutex.Unlock()

	key := frontEndKey{library: library, entryPoint: entryPoint}
	_, ok := frontEnds[key]
	if ok {
		panic("duplicate front end: " + library + " " + entryPoint)
	}
	frontEnds[key] = context
}

// LoadFrontEnd returns the context function of the named front end.
// Compiled-in front ends take precedence; otherwise library is opened as a
// go plugin and entryPoint is looked up in it.
func LoadFrontEnd(library string, entryPoint string) (ContextFunc, error) {
	frontEndsMutex.Lock()
	context, ok := frontEnds[frontEndKey{
		library:    library,
		entryPoint: entryPoint,
	}]
	frontEndsMutex.Unlock()
	if ok {
		return context, nil
	}

	lib, err := plugin.Open(library)
	if err != nil {
		return nil, fmt.Errorf("Could not load %s: %w", library, err)
	}

	symbol, err := lib.Lookup(entryPoint)
	if err != nil {
		return nil, fmt.Errorf(
			"could not find symbol %s in library %s",
			entryPoint,
			library)
	}

	switch entry := symbol.(type) {
	case func(Version, Version) (BaseFrontEnd, error):
		return entry, nil
	case *ContextFunc:
		return *entry, nil
	default:
		return nil, fmt.Errorf(
			"symbol %s in library %s is not a front end context function (%T)",
			entryPoint,
			library,
			symbol)
	}
}

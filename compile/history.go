package compile

import (
	"github.com/pattyshack/badc/debugger/symbols"
	"github.com/pattyshack/badc/debugger/types"
)

type historyEntry struct {
	value *types.Value

	// The objfile owning the value's type, if any.
	objfile *symbols.Objfile
}

// ValueHistory holds the values printed by compiled expressions ($1, $2,
// ...).  Values whose types belong to a compiled module's objfile are
// preserved before the objfile is released.
type ValueHistory struct {
	entries []historyEntry
}

// Record appends value to the history and returns its (1-based) index.
func (history *ValueHistory) Record(
	value *types.Value,
	objfile *symbols.Objfile,
) int {
	if !value.Type.ObjfileOwned {
		objfile = nil
	}

	history.entries = append(
		history.entries,
		historyEntry{
			value:   value,
			objfile: objfile,
		})
	return len(history.entries)
}

func (history *ValueHistory) Len() int {
	return len(history.entries)
}

func (history *ValueHistory) Value(index int) (*types.Value, bool) {
	if index < 1 || index > len(history.entries) {
		return nil, false
	}
	return history.entries[index-1].value, true
}

func (history *ValueHistory) PreserveValues(
	objfile *symbols.Objfile,
	copied map[*types.Type]*types.Type,
) {
	for idx, entry := range history.entries {
		if entry.objfile != objfile {
			continue
		}

		value := *entry.value
		value.Type = types.CopyRecursive(value.Type, copied)
		history.entries[idx] = historyEntry{value: &value}
	}
}

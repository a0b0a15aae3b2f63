package symbols

import (
	"fmt"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/badc/debugger/common"
)

// Table is the ordered objfile list of a program space.
type Table struct {
	logger logrus.FieldLogger

	objfiles []*Objfile

	clearSymtabObservers []func()
}

func NewTable(logger logrus.FieldLogger) *Table {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Table{
		logger: logger,
	}
}

func (table *Table) Objfiles() []*Objfile {
	return table.objfiles
}

func (table *Table) Add(objfile *Objfile) {
	table.objfiles = append(table.objfiles, objfile)
}

// Remove unlinks and releases the objfile.
func (table *Table) Remove(objfile *Objfile) error {
	for idx, entry := range table.objfiles {
		if entry != objfile {
			continue
		}

		table.objfiles = append(
			table.objfiles[:idx:idx],
			table.objfiles[idx+1:]...)
		objfile.Release()
		return nil
	}

	return fmt.Errorf("%w. objfile %s not found", ErrInvalidArgument, objfile)
}

// OnClearSymtabUsers registers an observer notified whenever symbols held by
// users may have become invalid.
func (table *Table) OnClearSymtabUsers(observer func()) {
	table.clearSymtabObservers = append(table.clearSymtabObservers, observer)
}

func (table *Table) ClearSymtabUsers() {
	table.logger.Debug("clearing symtab users")
	for _, observer := range table.clearSymtabObservers {
		observer()
	}
}

func (table *Table) LookupMinimalSymbol(name string) (*MinimalSymbol, bool) {
	var local *MinimalSymbol
	for _, objfile := range table.objfiles {
		symbol, ok := objfile.LookupMinimalSymbol(name)
		if !ok {
			continue
		}

		if symbol.IsGlobal {
			return symbol, true
		}

		if local == nil {
			local = symbol
		}
	}

	return local, local != nil
}

// MinimalSymbolAt returns the code symbol containing addr.  Sizeless
// symbols only match their own address.
func (table *Table) MinimalSymbolAt(addr VirtualAddress) (*MinimalSymbol, bool) {
	for _, objfile := range table.objfiles {
		for _, symbol := range objfile.MinimalSymbols {
			if symbol.Class != TextSymbol &&
				symbol.Class != IndirectFunctionSymbol {

				continue
			}

			if addr == symbol.Address ||
				(addr > symbol.Address &&
					uint64(addr-symbol.Address) < symbol.Size) {

				return symbol, true
			}
		}
	}
	return nil, false
}

// SymbolAt is MinimalSymbolAt in disassembler lookup form.
func (table *Table) SymbolAt(addr VirtualAddress) (string, VirtualAddress) {
	symbol, ok := table.MinimalSymbolAt(addr)
	if !ok {
		return "", 0
	}
	return symbol.PrettyName(), symbol.Address
}

func (table *Table) LookupSymbol(name string, domain Domain) (*Symbol, bool) {
	for _, objfile := range table.objfiles {
		symbol, ok := objfile.GlobalBlock.LookupLocal(name, domain)
		if ok {
			return symbol, true
		}
	}

	for _, objfile := range table.objfiles {
		symbol, ok := objfile.StaticBlock.LookupLocal(name, domain)
		if ok {
			return symbol, true
		}
	}

	return nil, false
}

func (table *Table) BlockForPC(pc VirtualAddress) (*Block, bool) {
	for _, objfile := range table.objfiles {
		block, ok := objfile.BlockForPC(pc)
		if ok {
			return block, true
		}
	}
	return nil, false
}

// ScopeAt returns the name resolution scope for code within block.  A nil
// block means the global scope.
func (table *Table) ScopeAt(block *Block) Scope {
	return &blockScope{
		block: block,
		table: table,
	}
}

type blockScope struct {
	block *Block
	table *Table
}

func (scope *blockScope) LookupSymbol(
	name string,
	domain Domain,
) (
	*Symbol,
	bool,
) {
	if scope.block != nil {
		symbol, ok := scope.block.Lookup(name, domain)
		if ok {
			return symbol, true
		}
	}

	return scope.table.LookupSymbol(name, domain)
}

func (scope *blockScope) LookupMinimalSymbol(
	name string,
) (
	*MinimalSymbol,
	bool,
) {
	return scope.table.LookupMinimalSymbol(name)
}

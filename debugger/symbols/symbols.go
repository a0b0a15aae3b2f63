package symbols

import (
	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/types"
)

type MinimalSymbolClass string

const (
	TextSymbol             = MinimalSymbolClass("text")
	DataSymbol             = MinimalSymbolClass("data")
	BssSymbol              = MinimalSymbolClass("bss")
	AbsoluteSymbol         = MinimalSymbolClass("abs")
	IndirectFunctionSymbol = MinimalSymbolClass("ifunc")
)

// MinimalSymbol is an elf symbol table entry relocated to its runtime
// address.
type MinimalSymbol struct {
	Name          string // linkage name
	DemangledName string

	Class   MinimalSymbolClass
	Address VirtualAddress
	Size    uint64

	IsGlobal bool

	Objfile *Objfile
}

func (symbol *MinimalSymbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}
	return symbol.Name
}

type SymbolClass string

const (
	// Static storage with a fixed address.
	VariableSymbol = SymbolClass("variable")

	// The symbol's block holds the function body.
	FunctionSymbol = SymbolClass("function")

	TypedefSymbol = SymbolClass("typedef")

	// struct / union / enum tag
	TagSymbol = SymbolClass("tag")

	// Enumerator or other compile time constant.
	ConstantSymbol = SymbolClass("constant")

	// Frame relative storage (locals and parameters).
	ComputedSymbol = SymbolClass("computed")
)

type Domain string

const (
	VarDomain    = Domain("var")
	StructDomain = Domain("struct")
)

type Symbol struct {
	Name  string
	Class SymbolClass
	Type  *types.Type

	Address VirtualAddress // only applicable to variables and functions
	Value   int64          // only applicable to constants

	// Only applicable to functions
	Block *Block

	// Raw dwarf location expression of frame relative (computed) variables,
	// and the frame base expression of functions.
	Location  []byte
	FrameBase []byte

	Objfile *Objfile

	File string
	Line int
}

func (symbol *Symbol) Domain() Domain {
	if symbol.Class == TagSymbol {
		return StructDomain
	}
	return VarDomain
}

type Block struct {
	// nil for global / static blocks.
	Function *Symbol

	Symbols []*Symbol

	Superblock *Block

	AddressRange
}

func (block *Block) IsGlobal() bool {
	return block.Superblock == nil
}

func (block *Block) Add(symbol *Symbol) {
	block.Symbols = append(block.Symbols, symbol)
}

// LookupLocal only searches this block.
func (block *Block) LookupLocal(name string, domain Domain) (*Symbol, bool) {
	for _, symbol := range block.Symbols {
		if symbol.Name == name && symbol.Domain() == domain {
			return symbol, true
		}
	}
	return nil, false
}

// Lookup searches this block, then its superblocks.
func (block *Block) Lookup(name string, domain Domain) (*Symbol, bool) {
	for current := block; current != nil; current = current.Superblock {
		symbol, ok := current.LookupLocal(name, domain)
		if ok {
			return symbol, true
		}
	}
	return nil, false
}

// Scope answers name lookups from within a block of the program.
type Scope interface {
	LookupSymbol(name string, domain Domain) (*Symbol, bool)
	LookupMinimalSymbol(name string) (*MinimalSymbol, bool)
}

package types

// Builtins are the architecture's fundamental types (x86-64 lp64).
type Builtins struct {
	Void          *Type
	Bool          *Type
	Char          *Type
	SignedChar    *Type
	UnsignedChar  *Type
	Short         *Type
	UnsignedShort *Type
	Int           *Type
	UnsignedInt   *Type
	Long          *Type
	UnsignedLong  *Type
	LongLong      *Type
	Float         *Type
	Double        *Type
	LongDouble    *Type

	// Used for types that could not be read from debug info.
	Error *Type

	// "<data variable, no debug info>" / "<text variable, no debug info>"
	NoDebugData *Type
	NoDebugText *Type
}

func NewBuiltins() *Builtins {
	integer := func(name string, size uint64, unsigned bool) *Type {
		return &Type{
			Code:       IntCode,
			Name:       name,
			Size:       size,
			IsUnsigned: unsigned,
		}
	}

	builtins := &Builtins{
		Void: &Type{Code: VoidCode, Name: "void", Size: 1},
		Bool: &Type{Code: BoolCode, Name: "bool", Size: 1, IsUnsigned: true},
		Char: &Type{Code: CharCode, Name: "char", Size: 1},
		SignedChar: &Type{
			Code: CharCode,
			Name: "signed char",
			Size: 1,
		},
		UnsignedChar: &Type{
			Code:       CharCode,
			Name:       "unsigned char",
			Size:       1,
			IsUnsigned: true,
		},
		Short:         integer("short", 2, false),
		UnsignedShort: integer("unsigned short", 2, true),
		Int:           integer("int", 4, false),
		UnsignedInt:   integer("unsigned int", 4, true),
		Long:          integer("long", 8, false),
		UnsignedLong:  integer("unsigned long", 8, true),
		LongLong:      integer("long long", 8, false),
		Float:         &Type{Code: FloatCode, Name: "float", Size: 4},
		Double:        &Type{Code: FloatCode, Name: "double", Size: 8},
		LongDouble:    &Type{Code: FloatCode, Name: "long double", Size: 16},
		Error:         &Type{Code: ErrorCode, Name: "<unknown type>"},
	}

	builtins.NoDebugData = integer("<data variable, no debug info>", 4, false)
	builtins.NoDebugText = &Type{
		Code:   FunctionCode,
		Name:   "<text variable, no debug info>",
		Size:   1,
		Target: builtins.Int,
	}

	return builtins
}

// Builtin is the shared builtin type set.
var Builtin = NewBuiltins()

// IntegerOfSize returns the builtin integer type with the given byte size
// and signedness.
func (builtins *Builtins) IntegerOfSize(size uint64, unsigned bool) *Type {
	switch size {
	case 1:
		if unsigned {
			return builtins.UnsignedChar
		}
		return builtins.SignedChar
	case 2:
		if unsigned {
			return builtins.UnsignedShort
		}
		return builtins.Short
	case 4:
		if unsigned {
			return builtins.UnsignedInt
		}
		return builtins.Int
	case 8:
		if unsigned {
			return builtins.UnsignedLong
		}
		return builtins.Long
	}
	return nil
}

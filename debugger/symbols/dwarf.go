package symbols

import (
	"debug/dwarf"
	stdelf "debug/elf"
	"fmt"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/badc/debugger/common"
	"github.com/pattyshack/badc/debugger/types"
)

const (
	dwOpAddr = 0x03
)

type debugInfoReader struct {
	objfile   *Objfile
	data      *dwarf.Data
	reader    *dwarf.Reader
	converter *types.DwarfConverter
	logger    logrus.FieldLogger

	file string
}

// ReadDebugInfo populates the objfile's global and static blocks from dwarf
// debug info.
//
// Relocatable objects place every section at address zero; variable and
// function addresses are therefore taken from the objfile's minimal symbols
// whenever one exists.
func (objfile *Objfile) ReadDebugInfo(
	data *dwarf.Data,
	logger logrus.FieldLogger,
) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	reader := &debugInfoReader{
		objfile:   objfile,
		data:      data,
		reader:    data.Reader(),
		converter: types.NewDwarfConverter(nil, true),
		logger:    logger.WithField("objfile", objfile.Name),
	}

	for {
		entry, err := reader.reader.Next()
		if err != nil {
			return fmt.Errorf(
				"failed to read debug info for %s: %w",
				objfile.Name,
				err)
		}

		if entry == nil {
			return nil
		}

		if entry.Tag != dwarf.TagCompileUnit {
			if entry.Children {
				reader.reader.SkipChildren()
			}
			continue
		}

		name, _ := entry.Val(dwarf.AttrName).(string)
		reader.file = name

		if !entry.Children {
			continue
		}

		err = reader.readScope(objfile.GlobalBlock, objfile.StaticBlock, "")
		if err != nil {
			return err
		}
	}
}

// OpenDebugInfo reads the dwarf sections of the elf file at path.  Files
// without debug info are not an error.
func (objfile *Objfile) OpenDebugInfo(
	path string,
	logger logrus.FieldLogger,
) error {
	file, err := stdelf.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if file.Section(".debug_info") == nil {
		return nil
	}

	data, err := file.DWARF()
	if err != nil {
		return fmt.Errorf("failed to load debug info for %s: %w", path, err)
	}

	return objfile.ReadDebugInfo(data, logger)
}

func (reader *debugInfoReader) readScope(
	global *Block,
	static *Block,
	prefix string,
) error {
	for {
		entry, err := reader.reader.Next()
		if err != nil {
			return err
		}

		if entry == nil || entry.Tag == 0 {
			return nil
		}

		switch entry.Tag {
		case dwarf.TagNamespace:
			name, _ := entry.Val(dwarf.AttrName).(string)
			if entry.Children {
				err := reader.readScope(global, static, prefix+name+"::")
				if err != nil {
					return err
				}
			}
			continue

		case dwarf.TagSubprogram:
			symbol, err := reader.readFunction(entry, static, prefix)
			if err != nil {
				return err
			}

			if symbol != nil {
				reader.addToScope(symbol, entry, global, static)
			}
			continue

		case dwarf.TagVariable:
			symbol := reader.readVariable(entry, prefix)
			if symbol != nil {
				reader.addToScope(symbol, entry, global, static)
			}

		case dwarf.TagTypedef:
			symbol := reader.readType(entry, TypedefSymbol, prefix)
			if symbol != nil {
				static.Add(symbol)
			}

		case dwarf.TagStructType,
			dwarf.TagUnionType,
			dwarf.TagClassType,
			dwarf.TagEnumerationType:

			isDecl, _ := entry.Val(dwarf.AttrDeclaration).(bool)
			if !isDecl {
				symbol := reader.readType(entry, TagSymbol, prefix)
				if symbol != nil {
					static.Add(symbol)
				}
			}

			if entry.Tag == dwarf.TagEnumerationType && entry.Children {
				err := reader.readEnumerators(entry, static, prefix)
				if err != nil {
					return err
				}
				continue
			}
		}

		if entry.Children {
			reader.reader.SkipChildren()
		}
	}
}

func (reader *debugInfoReader) addToScope(
	symbol *Symbol,
	entry *dwarf.Entry,
	global *Block,
	static *Block,
) {
	symbol.Objfile = reader.objfile

	isExternal, _ := entry.Val(dwarf.AttrExternal).(bool)
	if isExternal {
		global.Add(symbol)
	} else {
		static.Add(symbol)
	}
}

func (reader *debugInfoReader) convertType(entry *dwarf.Entry) *types.Type {
	offset, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return reader.converter.Void
	}

	dt, err := reader.data.Type(offset)
	if err != nil {
		reader.logger.WithError(err).Debug("failed to read type")
		return reader.converter.Error
	}

	return reader.converter.Convert(dt)
}

func (reader *debugInfoReader) readType(
	entry *dwarf.Entry,
	class SymbolClass,
	prefix string,
) *Symbol {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return nil
	}

	dt, err := reader.data.Type(entry.Offset)
	if err != nil {
		reader.logger.WithError(err).WithField("symbol", name).Debug(
			"failed to read type")
		return nil
	}

	return reader.newSymbol(entry, prefix+name, class, reader.converter.Convert(dt))
}

func (reader *debugInfoReader) readEnumerators(
	enum *dwarf.Entry,
	static *Block,
	prefix string,
) error {
	var enumType *types.Type
	dt, err := reader.data.Type(enum.Offset)
	if err == nil {
		enumType = reader.converter.Convert(dt)
	}

	for {
		entry, err := reader.reader.Next()
		if err != nil {
			return err
		}

		if entry == nil || entry.Tag == 0 {
			return nil
		}

		if entry.Tag == dwarf.TagEnumerator && enumType != nil {
			name, _ := entry.Val(dwarf.AttrName).(string)
			value, _ := entry.Val(dwarf.AttrConstValue).(int64)

			symbol := reader.newSymbol(entry, prefix+name, ConstantSymbol, enumType)
			symbol.Value = value
			static.Add(symbol)
		}

		if entry.Children {
			reader.reader.SkipChildren()
		}
	}
}

func (reader *debugInfoReader) newSymbol(
	entry *dwarf.Entry,
	name string,
	class SymbolClass,
	t *types.Type,
) *Symbol {
	line, _ := entry.Val(dwarf.AttrDeclLine).(int64)
	return &Symbol{
		Name:    name,
		Class:   class,
		Type:    t,
		Objfile: reader.objfile,
		File:    reader.file,
		Line:    int(line),
	}
}

// Returns the static address encoded in a DW_OP_addr location.
func staticAddress(entry *dwarf.Entry) (uint64, bool) {
	loc, ok := entry.Val(dwarf.AttrLocation).([]byte)
	if !ok || len(loc) != 9 || loc[0] != dwOpAddr {
		return 0, false
	}

	var addr uint64
	for idx := 8; idx > 0; idx-- {
		addr = addr<<8 | uint64(loc[idx])
	}
	return addr, true
}

func (reader *debugInfoReader) readVariable(
	entry *dwarf.Entry,
	prefix string,
) *Symbol {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return nil
	}

	isDecl, _ := entry.Val(dwarf.AttrDeclaration).(bool)
	if isDecl {
		return nil
	}

	symbol := reader.newSymbol(
		entry,
		prefix+name,
		ComputedSymbol,
		reader.convertType(entry))

	addr, ok := staticAddress(entry)
	if ok {
		symbol.Class = VariableSymbol
		symbol.Address = reader.resolveAddress(symbol.Name, addr)
	} else {
		symbol.Location, _ = entry.Val(dwarf.AttrLocation).([]byte)
	}

	return symbol
}

func (reader *debugInfoReader) resolveAddress(
	name string,
	addr uint64,
) VirtualAddress {
	minSym, ok := reader.objfile.LookupMinimalSymbol(name)
	if ok {
		return minSym.Address
	}
	return reader.objfile.Bias + VirtualAddress(addr)
}

func (reader *debugInfoReader) readFunction(
	entry *dwarf.Entry,
	static *Block,
	prefix string,
) (
	*Symbol,
	error,
) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	isDecl, _ := entry.Val(dwarf.AttrDeclaration).(bool)
	lowPC, hasLowPC := entry.Val(dwarf.AttrLowpc).(uint64)

	fnType := &types.Type{
		Code:         types.FunctionCode,
		Size:         1,
		Target:       reader.convertType(entry),
		ObjfileOwned: true,
	}
	fnType.IsPrototyped, _ = entry.Val(dwarf.AttrPrototyped).(bool)

	block := &Block{Superblock: static}

	if entry.Children {
		err := reader.readFunctionBody(fnType, block, true)
		if err != nil {
			return nil, err
		}
	}

	if name == "" || isDecl || !hasLowPC {
		return nil, nil
	}

	symbol := reader.newSymbol(entry, prefix+name, FunctionSymbol, fnType)
	symbol.Block = block
	symbol.FrameBase, _ = entry.Val(dwarf.AttrFrameBase).([]byte)
	block.Function = symbol

	symbol.Address = reader.resolveAddress(symbol.Name, lowPC)

	size := uint64(0)
	field := entry.AttrField(dwarf.AttrHighpc)
	if field != nil {
		switch val := field.Val.(type) {
		case int64: // offset from low pc
			size = uint64(val)
		case uint64:
			size = val - lowPC
		}
	}

	block.AddressRange = AddressRange{
		Low:  symbol.Address,
		High: symbol.Address + VirtualAddress(size),
	}

	return symbol, nil
}

// Nested lexical blocks are flattened into the function's block.
func (reader *debugInfoReader) readFunctionBody(
	fnType *types.Type,
	block *Block,
	isTopLevel bool,
) error {
	for {
		entry, err := reader.reader.Next()
		if err != nil {
			return err
		}

		if entry == nil || entry.Tag == 0 {
			return nil
		}

		switch entry.Tag {
		case dwarf.TagFormalParameter:
			t := reader.convertType(entry)
			if isTopLevel {
				fnType.Fields = append(fnType.Fields, types.Field{Type: t})
			}

			name, _ := entry.Val(dwarf.AttrName).(string)
			if name != "" {
				symbol := reader.newSymbol(entry, name, ComputedSymbol, t)
				symbol.Location, _ = entry.Val(dwarf.AttrLocation).([]byte)
				block.Add(symbol)
			}

		case dwarf.TagUnspecifiedParameters:
			if isTopLevel {
				fnType.HasVarargs = true
			}

		case dwarf.TagVariable:
			symbol := reader.readVariable(entry, "")
			if symbol != nil {
				block.Add(symbol)
			}

		case dwarf.TagLexDwarfBlock:
			if entry.Children {
				err := reader.readFunctionBody(fnType, block, false)
				if err != nil {
					return err
				}
			}
			continue

		case dwarf.TagTypedef:
			symbol := reader.readType(entry, TypedefSymbol, "")
			if symbol != nil {
				block.Add(symbol)
			}
		}

		if entry.Children {
			reader.reader.SkipChildren()
		}
	}
}

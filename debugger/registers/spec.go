package registers

import (
	"fmt"
	"strings"
)

// The register class determines where the register data is located:
// - GeneralClass -> user::regs (user_regs_struct)
// - FloatingPointClass -> user:i387 (user_fpregs_struct)
type Class string

const (
	GeneralClass       = Class("general")
	FloatingPointClass = Class("floating point")

	stSpace  = "StSpace"
	xmmSpace = "XmmSpace"
)

// Representation is how a register is mirrored in compiled expression code.
type Representation int

const (
	// Not representable as a scalar (flags, vector and x87 registers)
	OpaqueRepresentation = Representation(iota)
	IntegerRepresentation
	PointerRepresentation
)

type Spec struct {
	SortId int

	Name    string
	DwarfId int // -1 for invalid

	Size uintptr // register size in bytes

	Class Class

	Field string

	// Only applicable to 8-bit general register (ah/bh/ch/dh)
	IsHighRegister bool

	// Only applicable to st / mm / xmm registers.
	Index int

	// Set for full width registers that compiled expressions may reference.
	IsRaw bool

	Representation
}

func (reg Spec) String() string {
	return reg.Name
}

func (reg Spec) CanAccept(value Value) error {
	if reg.Size != value.Size() {
		return fmt.Errorf(
			"register (%s) size (%d) does not match value size (%d)",
			reg.Name,
			reg.Size,
			value.Size())
	}

	return nil
}

var (
	OrderedSpecs []Spec
	RawSpecs     []Spec
	NameSpecs    = map[string]Spec{}
	IdSpecs      = map[int]Spec{}

	ProgramCounter Spec
	StackPointer   Spec
	FramePointer   Spec

	// System V amd64 integer argument registers, in order.
	ArgumentRegisters []Spec
	ReturnValue       Spec
)

func ByName(name string) (Spec, bool) {
	reg, ok := NameSpecs[name]
	return reg, ok
}

func ById(id int) (Spec, bool) {
	reg, ok := IdSpecs[id]
	return reg, ok
}

func addRegister(entry Spec) {
	entry.SortId = len(OrderedSpecs)

	_, ok := NameSpecs[entry.Name]
	if ok {
		panic("duplicate register info: " + entry.Name)
	}

	OrderedSpecs = append(OrderedSpecs, entry)
	NameSpecs[entry.Name] = entry

	if entry.IsRaw {
		RawSpecs = append(RawSpecs, entry)
	}

	if entry.DwarfId != -1 {
		_, ok := IdSpecs[entry.DwarfId]
		if ok {
			panic("duplicate register info: " + entry.Name)
		}
		IdSpecs[entry.DwarfId] = entry
	}
}

func init() {
	dwarfIds := map[string]int{
		"rip":    16,
		"eflags": 49,
		"cs":     51,
		"fs":     54,
		"gs":     55,
		"ss":     52,
		"ds":     53,
		"es":     50,
	}

	pointers := map[string]bool{
		"rip": true,
		"rsp": true,
		"rbp": true,
	}

	names := strings.Split(
		"rax rdx rcx rbx rsi rdi rbp rsp "+
			"r8 r9 r10 r11 r12 r13 r14 r15 "+
			"rip eflags cs fs gs ss ds es",
		" ")
	for idx, name := range names {
		dwarfId, isSpecial := dwarfIds[name]
		if !isSpecial {
			dwarfId = idx
		}

		field := strings.ToUpper(name[0:1]) + name[1:]

		repr := IntegerRepresentation
		if pointers[name] {
			repr = PointerRepresentation
		} else if name == "eflags" {
			repr = OpaqueRepresentation
		}

		addRegister(Spec{
			Name:           name,
			DwarfId:        dwarfId,
			Size:           8,
			Class:          GeneralClass,
			Field:          field,
			IsRaw:          true,
			Representation: repr,
		})

		if isSpecial {
			continue
		}

		subRegister := func(name string, size uintptr, isHigh bool) {
			addRegister(Spec{
				Name:           name,
				DwarfId:        -1,
				Size:           size,
				Class:          GeneralClass,
				Field:          field,
				IsHighRegister: isHigh,
				Representation: IntegerRepresentation,
			})
		}

		if strings.ContainsAny(name, "189") { // newer x64 registers
			subRegister(name+"d", 4, false)
			subRegister(name+"w", 2, false)
			subRegister(name+"b", 1, false)
		} else { // legacy x86 extended registers
			subRegister("e"+name[1:], 4, false)
			subRegister(name[1:], 2, false)

			if name[2] == 'x' {
				prefix := name[1:2]
				subRegister(prefix+"h", 1, true)
				subRegister(prefix+"l", 1, false)
			} else {
				subRegister(name[1:]+"l", 1, false)
			}
		}
	}

	addRegister(Spec{
		Name:    "mxcsr",
		DwarfId: 64,
		Size:    4,
		Class:   FloatingPointClass,
		Field:   "Mxcsr",
	})

	for i := 0; i < 8; i++ {
		addRegister(Spec{
			Name:    fmt.Sprintf("st%d", i),
			DwarfId: 33 + i,
			Size:    16,
			Class:   FloatingPointClass,
			Field:   stSpace,
			Index:   i,
			IsRaw:   true,
		})
	}

	for i := 0; i < 16; i++ {
		addRegister(Spec{
			Name:    fmt.Sprintf("xmm%d", i),
			DwarfId: 17 + i,
			Size:    16,
			Class:   FloatingPointClass,
			Field:   xmmSpace,
			Index:   i,
			IsRaw:   true,
		})
	}

	ProgramCounter, _ = ByName("rip")
	StackPointer, _ = ByName("rsp")
	FramePointer, _ = ByName("rbp")
	ReturnValue, _ = ByName("rax")

	for _, name := range []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"} {
		reg, _ := ByName(name)
		ArgumentRegisters = append(ArgumentRegisters, reg)
	}
}

package registers

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Value is a raw (unsigned) register value.  The register's Representation
// decides how the bits are interpreted.
type Value interface {
	Size() uintptr

	// Little endian, Size() bytes.
	ToBytes() []byte

	ToUint64() uint64
	ToUint128() Uint128

	String() string
}

// LowBytes returns the value's low order size bytes, e.g., when a register
// is copied into a narrower struct field.
func LowBytes(value Value, size uint64) ([]byte, error) {
	if uint64(value.Size()) < size {
		return nil, fmt.Errorf(
			"%d bytes requested from a %d byte register value",
			size,
			value.Size())
	}

	return value.ToBytes()[:size], nil
}

type Uint[T uint8 | uint16 | uint32 | uint64] struct {
	Value T
}

func U8(v uint8) Value   { return Uint[uint8]{Value: v} }
func U16(v uint16) Value { return Uint[uint16]{Value: v} }
func U32(v uint32) Value { return Uint[uint32]{Value: v} }
func U64(v uint64) Value { return Uint[uint64]{Value: v} }

func (u Uint[T]) Size() uintptr {
	return unsafe.Sizeof(u.Value)
}

func (u Uint[T]) ToBytes() []byte {
	out := binary.LittleEndian.AppendUint64(nil, uint64(u.Value))
	return out[:u.Size()]
}

func (u Uint[T]) ToUint64() uint64 {
	return uint64(u.Value)
}

func (u Uint[T]) ToUint128() Uint128 {
	return U128(0, uint64(u.Value))
}

func (u Uint[T]) String() string {
	return fmt.Sprintf("0x%0*x", 2*int(u.Size()), u.Value)
}

// Uint128 holds x87 / xmm register contents.
type Uint128 struct {
	High uint64
	Low  uint64
}

func U128(high uint64, low uint64) Uint128 {
	return Uint128{High: high, Low: low}
}

func (Uint128) Size() uintptr {
	return 16
}

func (u Uint128) ToBytes() []byte {
	out := binary.LittleEndian.AppendUint64(nil, u.Low)
	return binary.LittleEndian.AppendUint64(out, u.High)
}

func (u Uint128) ToUint64() uint64 {
	return u.Low
}

func (u Uint128) ToUint128() Uint128 {
	return u
}

func (u Uint128) String() string {
	return fmt.Sprintf("0x%016x:0x%016x", u.High, u.Low)
}

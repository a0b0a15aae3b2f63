package dwarf

import (
	"encoding/binary"
	"fmt"
	"io"
)

type fixedSize interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64
}

// Cursor reads operands from a dwarf byte stream (e.g., a location
// expression block).
type Cursor struct {
	order binary.ByteOrder

	content  []byte
	position int
}

func NewCursor(order binary.ByteOrder, content []byte) *Cursor {
	if order == nil {
		order = binary.LittleEndian
	}

	return &Cursor{
		order:   order,
		content: content,
	}
}

func (cursor *Cursor) Position() int {
	return cursor.position
}

func (cursor *Cursor) HasReachedEnd() bool {
	return cursor.position >= len(cursor.content)
}

func (cursor *Cursor) Bytes(size int) ([]byte, error) {
	remaining := cursor.content[cursor.position:]
	if size < 0 || len(remaining) < size {
		return nil, fmt.Errorf(
			"%d bytes requested at offset %d, %d available: %w",
			size,
			cursor.position,
			len(remaining),
			io.ErrUnexpectedEOF)
	}

	cursor.position += size
	return remaining[:size], nil
}

// Fixed reads a fixed size integer in the cursor's byte order.
func Fixed[T fixedSize](cursor *Cursor) (T, error) {
	var result T
	n, err := binary.Decode(
		cursor.content[cursor.position:],
		cursor.order,
		&result)
	if err != nil {
		return 0, fmt.Errorf(
			"truncated %T at offset %d: %w",
			result,
			cursor.position,
			io.ErrUnexpectedEOF)
	}

	cursor.position += n
	return result, nil
}

func (cursor *Cursor) U8() (uint8, error) {
	return Fixed[uint8](cursor)
}

// leb128 returns the raw value, the number of value bits read, and the last
// byte (whose 0x40 bit is the sign bit).
func (cursor *Cursor) leb128(bitSize int) (uint64, int, byte, error) {
	start := cursor.position

	result := uint64(0)
	shift := 0
	for pos := start; pos < len(cursor.content) && shift < bitSize; pos++ {
		current := cursor.content[pos]
		result |= uint64(current&0x7f) << shift
		shift += 7

		if current&0x80 == 0 {
			cursor.position = pos + 1
			return result, shift, current, nil
		}
	}

	if start == len(cursor.content) {
		return 0, 0, 0, fmt.Errorf("cannot decode LEB128: %w", io.EOF)
	}
	return 0, 0, 0, fmt.Errorf("LEB128 not terminated (%d)", start)
}

func (cursor *Cursor) ULEB128(bitSize int) (uint64, error) {
	result, _, _, err := cursor.leb128(bitSize)
	return result, err
}

func (cursor *Cursor) SLEB128(bitSize int) (int64, error) {
	result, shift, last, err := cursor.leb128(bitSize)
	if err != nil {
		return 0, err
	}

	if shift < 64 && last&0x40 != 0 {
		result |= ^uint64(0) << shift
	}

	return int64(result), nil
}

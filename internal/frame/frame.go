// Package frame implements the binary array frame spoken on the array
// endpoint and the two-outcome reply sent back for every request.
//
// Array frame layout (header integers little-endian):
//
//	offset 0..4    rows      uint32
//	offset 4..8    cols      uint32
//	offset 8       elemSize  uint8 (4 = float32, 8 = float64)
//	offset 9..     payload   rows*cols*elemSize bytes, row-major
//	thereafter     name      non-empty byte string
//
// The package does no I/O and holds no state.
package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	ncerr "arrayd/internal/errors"
)

// HeaderSize is the fixed size of the rows/cols/elemSize header.
const HeaderSize = 9

// DType is the element type of an array, encoded on the wire as its
// width in bytes.
type DType uint8

const (
	Float32 DType = 4
	Float64 DType = 8
)

// Valid reports whether d is a supported element width.
func (d DType) Valid() bool { return d == Float32 || d == Float64 }

// Size returns the element width in bytes.
func (d DType) Size() int { return int(d) }

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Array is a dense row-major matrix.  Values are held as float64;
// float32 arrays are widened on decode and narrowed again on encode,
// which is lossless.  An Array must not be mutated once it has been
// handed to a store.
type Array struct {
	Rows  uint32
	Cols  uint32
	DType DType
	Data  []float64
}

// NewArray builds an Array, checking that data matches the shape.
func NewArray(rows, cols uint32, dtype DType, data []float64) (Array, error) {
	if !dtype.Valid() {
		return Array{}, ncerr.Decode(ncerr.ErrUnsupportedElementSize, "got %d, want 4 or 8", uint8(dtype))
	}
	if uint64(len(data)) != uint64(rows)*uint64(cols) {
		return Array{}, fmt.Errorf("array shape %dx%d needs %d values, got %d",
			rows, cols, uint64(rows)*uint64(cols), len(data))
	}
	return Array{Rows: rows, Cols: cols, DType: dtype, Data: data}, nil
}

// Len returns the number of elements.
func (a Array) Len() int { return len(a.Data) }

// At returns the element at row r, column c.
func (a Array) At(r, c int) float64 { return a.Data[r*int(a.Cols)+c] }

// Matrix returns a copy of the data as a slice of rows.
func (a Array) Matrix() [][]float64 {
	out := make([][]float64, a.Rows)
	for r := range out {
		row := make([]float64, a.Cols)
		copy(row, a.Data[r*int(a.Cols):(r+1)*int(a.Cols)])
		out[r] = row
	}
	return out
}

// Float32Data narrows the values back to float32.
func (a Array) Float32Data() []float32 {
	out := make([]float32, len(a.Data))
	for i, v := range a.Data {
		out[i] = float32(v)
	}
	return out
}

// Equal reports whether a and b have the same shape, dtype and values.
// NaNs compare equal when their bit patterns match.
func (a Array) Equal(b Array) bool {
	if a.Rows != b.Rows || a.Cols != b.Cols || a.DType != b.DType || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if math.Float64bits(a.Data[i]) != math.Float64bits(b.Data[i]) {
			return false
		}
	}
	return true
}

// Decode parses an array frame.  It is a pure function of raw; on
// failure it returns a *errors.DecodeError whose kind is one of
// ErrTooShort, ErrTruncatedPayload, ErrUnsupportedElementSize or
// ErrEmptyName, checked in that order.
func Decode(raw []byte) (Array, string, error) {
	if len(raw) < HeaderSize {
		return Array{}, "", ncerr.Decode(ncerr.ErrTooShort,
			"have %d bytes, need at least %d", len(raw), HeaderSize)
	}

	rows := binary.LittleEndian.Uint32(raw[0:4])
	cols := binary.LittleEndian.Uint32(raw[4:8])
	dtype := DType(raw[8])

	// The payload length uses the raw element size, so truncation is
	// reported before an unsupported size.  rows*cols fits in 64 bits;
	// the multiply by size may not.
	hi, length := bits.Mul64(uint64(rows)*uint64(cols), uint64(raw[8]))
	avail := uint64(len(raw) - HeaderSize)
	if hi != 0 || avail < length {
		return Array{}, "", ncerr.Decode(ncerr.ErrTruncatedPayload,
			"need %d payload bytes, have %d", length, avail)
	}
	if !dtype.Valid() {
		return Array{}, "", ncerr.Decode(ncerr.ErrUnsupportedElementSize,
			"got %d, want 4 or 8", raw[8])
	}

	end := HeaderSize + int(length)
	name := raw[end:]
	if len(name) == 0 {
		return Array{}, "", ncerr.Decode(ncerr.ErrEmptyName, "")
	}

	payload := raw[HeaderSize:end]
	n := int(uint64(rows) * uint64(cols))
	data := make([]float64, n)
	switch dtype {
	case Float32:
		for i := 0; i < n; i++ {
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
		}
	case Float64:
		for i := 0; i < n; i++ {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
		}
	}

	return Array{Rows: rows, Cols: cols, DType: dtype, Data: data}, string(name), nil
}

// Encode serializes a named array into a frame accepted by [Decode].
func Encode(name string, a Array) ([]byte, error) {
	if name == "" {
		return nil, ncerr.Decode(ncerr.ErrEmptyName, "")
	}
	if _, err := NewArray(a.Rows, a.Cols, a.DType, a.Data); err != nil {
		return nil, err
	}

	size := a.DType.Size()
	buf := make([]byte, HeaderSize+len(a.Data)*size+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], a.Rows)
	binary.LittleEndian.PutUint32(buf[4:8], a.Cols)
	buf[8] = byte(a.DType)

	off := HeaderSize
	for _, v := range a.Data {
		if a.DType == Float32 {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		}
		off += size
	}
	copy(buf[off:], name)
	return buf, nil
}

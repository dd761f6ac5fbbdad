package frame

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "arrayd/internal/errors"
)

// header builds a raw 9-byte header the way a client would.
func header(rows, cols uint32, size byte) []byte {
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], rows)
	binary.LittleEndian.PutUint32(h[4:8], cols)
	h[8] = size
	return h
}

func float64Payload(vals ...float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func TestDecode_TwoByTwoFloat64(t *testing.T) {
	raw := append(header(2, 2, 8), float64Payload(1, 2, 3, 4)...)
	raw = append(raw, 'm')

	arr, name, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "m", name)
	assert.Equal(t, uint32(2), arr.Rows)
	assert.Equal(t, uint32(2), arr.Cols)
	assert.Equal(t, Float64, arr.DType)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, arr.Matrix())
	assert.Equal(t, 3.0, arr.At(1, 0))
}

func TestDecode_Float32(t *testing.T) {
	raw := header(1, 3, 4)
	for _, v := range []float32{0.5, -1.25, 3} {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
	}
	raw = append(raw, "vec"...)

	arr, name, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "vec", name)
	assert.Equal(t, Float32, arr.DType)
	assert.Equal(t, []float32{0.5, -1.25, 3}, arr.Float32Data())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		kind error
	}{
		{"empty", nil, ncerr.ErrTooShort},
		{"eight bytes", make([]byte, 8), ncerr.ErrTooShort},
		{"truncated float32", append(append(header(1, 1, 4), 0x01, 0x02), 'm'), ncerr.ErrTruncatedPayload},
		{"truncated no name", append(header(2, 2, 8), float64Payload(1, 2, 3)...), ncerr.ErrTruncatedPayload},
		{"element size 3", append(append(header(1, 1, 3), 1, 2, 3), 'm'), ncerr.ErrUnsupportedElementSize},
		{"element size 0", append(header(1, 1, 0), 'm'), ncerr.ErrUnsupportedElementSize},
		{"element size 16", append(header(1, 1, 16), make([]byte, 17)...), ncerr.ErrUnsupportedElementSize},
		{"element size 16 truncated", append(append(header(1, 1, 16), make([]byte, 8)...), 'm'), ncerr.ErrTruncatedPayload},
		{"element size 255 huge shape", append(header(math.MaxUint32, math.MaxUint32, 255), 'm'), ncerr.ErrTruncatedPayload},
		{"empty name", append(header(1, 2, 8), float64Payload(1, 2)...), ncerr.ErrEmptyName},
		{"zero shape empty name", header(0, 0, 8), ncerr.ErrEmptyName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.True(t, ncerr.IsDecode(err))
		})
	}
}

func TestDecode_HugeHeaderDoesNotOverflow(t *testing.T) {
	raw := append(header(math.MaxUint32, math.MaxUint32, 8), "name"...)
	_, _, err := Decode(raw)
	assert.ErrorIs(t, err, ncerr.ErrTruncatedPayload)
}

func TestDecode_ZeroSizedArray(t *testing.T) {
	arr, name, err := Decode(append(header(0, 5, 4), 'z'))
	require.NoError(t, err)
	assert.Equal(t, "z", name)
	assert.Equal(t, 0, arr.Len())
	assert.Equal(t, uint32(5), arr.Cols)
}

func TestDecode_TrailingBytesBelongToName(t *testing.T) {
	raw := append(header(1, 1, 8), float64Payload(7)...)
	raw = append(raw, "a\x00b"...)

	_, name, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "a\x00b", name)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		arr  Array
	}{
		{"scalar f64", Array{Rows: 1, Cols: 1, DType: Float64, Data: []float64{math.Pi}}},
		{"row f32", Array{Rows: 1, Cols: 4, DType: Float32, Data: []float64{1, 0.5, -2, 1e-3}}},
		{"matrix f64", Array{Rows: 3, Cols: 2, DType: Float64, Data: []float64{1, 2, 3, 4, 5, math.Inf(-1)}}},
		{"nan", Array{Rows: 1, Cols: 2, DType: Float64, Data: []float64{math.NaN(), 0}}},
		{"empty", Array{Rows: 0, Cols: 3, DType: Float32, Data: []float64{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// float32 inputs must already be representable.
			if tt.arr.DType == Float32 {
				for i, v := range tt.arr.Data {
					tt.arr.Data[i] = float64(float32(v))
				}
			}
			raw, err := Encode(tt.name, tt.arr)
			require.NoError(t, err)
			assert.Len(t, raw, HeaderSize+tt.arr.Len()*tt.arr.DType.Size()+len(tt.name))

			got, name, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.True(t, got.Equal(tt.arr), "got %+v, want %+v", got, tt.arr)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode("", Array{Rows: 1, Cols: 1, DType: Float64, Data: []float64{1}})
	assert.ErrorIs(t, err, ncerr.ErrEmptyName)

	_, err = Encode("x", Array{Rows: 2, Cols: 2, DType: Float64, Data: []float64{1}})
	assert.Error(t, err)

	_, err = Encode("x", Array{Rows: 1, Cols: 1, DType: DType(2), Data: []float64{1}})
	assert.ErrorIs(t, err, ncerr.ErrUnsupportedElementSize)
}

func TestDType_String(t *testing.T) {
	assert.Equal(t, "float32", Float32.String())
	assert.Equal(t, "float64", Float64.String())
	assert.Equal(t, "dtype(3)", DType(3).String())
}

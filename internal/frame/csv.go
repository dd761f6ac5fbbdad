package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a numeric matrix, one row per record.  Every row must
// have the same number of columns.  Blank lines are skipped and
// values may be surrounded by spaces.  Float32 input is rounded to
// float32 precision so it survives encoding exactly.
func ReadCSV(r io.Reader, dtype DType) (Array, error) {
	if !dtype.Valid() {
		return Array{}, fmt.Errorf("unsupported dtype %s", dtype)
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		rows, cols int
		data       []float64
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Array{}, err
		}
		if rows == 0 {
			cols = len(rec)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return Array{}, fmt.Errorf("row %d column %d: %w", rows+1, i+1, err)
			}
			if dtype == Float32 {
				v = float64(float32(v))
			}
			data = append(data, v)
		}
		rows++
	}
	if data == nil {
		data = []float64{}
	}
	return NewArray(uint32(rows), uint32(cols), dtype, data)
}

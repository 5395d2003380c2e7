package common

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseProfile reads the first column of a CSV as a series of values. A first
// row that does not parse as a number is treated as a header.
func ParseProfile(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var vals []float64
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("invalid value %q on row %d of profile", rec[0], row+1)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil, errors.New("profile has no values")
	}
	return vals, nil
}

// ReadProfile reads a profile CSV from path.
func ReadProfile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()
	return ParseProfile(f)
}

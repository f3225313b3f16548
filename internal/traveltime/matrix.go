package traveltime

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Format is the layout of a travel time matrix file.
type Format string

// Matrix file layouts.
const (
	// FormatWide has destination ids across the header and one row per source.
	FormatWide Format = "wide"
	// FormatLong has one source,dest,seconds row per pair.
	FormatLong Format = "long"
)

type pairKey struct {
	src, dst string
}

// Matrix is an in-memory travel time matrix. It is populated once with Set
// (or a loader) and is read-only afterwards, so Time is safe for concurrent use.
type Matrix struct {
	times map[pairKey]float64
	pairs []pairKey
}

// NewMatrix returns an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{times: make(map[pairKey]float64)}
}

// Set records the time for a pair, replacing any earlier value.
func (m *Matrix) Set(sourceID, destID string, seconds float64) {
	k := pairKey{sourceID, destID}
	if _, ok := m.times[k]; !ok {
		m.pairs = append(m.pairs, k)
	}
	m.times[k] = seconds
}

// Len returns the number of pairs.
func (m *Matrix) Len() int { return len(m.pairs) }

// Each calls fn for every pair in insertion order.
func (m *Matrix) Each(fn func(sourceID, destID string, seconds float64)) {
	for _, k := range m.pairs {
		fn(k.src, k.dst, m.times[k])
	}
}

// Time implements Provider.
func (m *Matrix) Time(_ context.Context, sourceID, destID string) (float64, error) {
	t, ok := m.times[pairKey{sourceID, destID}]
	if !ok {
		return 0, eris.Wrapf(ErrPairNotFound, "matrix: %s -> %s", sourceID, destID)
	}
	return t, nil
}

func parseSeconds(file string, row, col int, v string) (float64, error) {
	v = strings.TrimSpace(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &MalformedTimeError{File: file, Row: row, Col: col, Value: v}
	}
	return f, nil
}

// ReadMatrixCSV parses a matrix from r in the given layout; name is used in errors.
func ReadMatrixCSV(name string, r io.Reader, format Format) (*Matrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Errorf("matrix: %s has no header row", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "matrix: read header of %s", name)
	}
	header = append([]string(nil), header...)

	m := NewMatrix()
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "matrix: read %s row %d", name, row)
		}

		switch format {
		case FormatLong:
			if len(record) < 3 {
				return nil, eris.Errorf("matrix: %s row %d has %d columns, want source,dest,seconds", name, row, len(record))
			}
			t, err := parseSeconds(name, row, 3, record[2])
			if err != nil {
				return nil, err
			}
			m.Set(strings.TrimSpace(record[0]), strings.TrimSpace(record[1]), t)
		case FormatWide:
			if len(record) != len(header) {
				return nil, eris.Errorf("matrix: %s row %d has %d columns, header has %d", name, row, len(record), len(header))
			}
			src := strings.TrimSpace(record[0])
			for col := 1; col < len(record); col++ {
				t, err := parseSeconds(name, row, col+1, record[col])
				if err != nil {
					return nil, err
				}
				m.Set(src, strings.TrimSpace(header[col]), t)
			}
		default:
			return nil, eris.Errorf("matrix: unknown format %q", format)
		}
	}

	zap.L().Info("matrix: loaded",
		zap.String("file", name),
		zap.String("format", string(format)),
		zap.Int("pairs", m.Len()),
	)
	return m, nil
}

// LoadMatrixCSV reads a matrix file from disk.
func LoadMatrixCSV(path string, format Format) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "matrix: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadMatrixCSV(path, f, format)
}

package points

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
)

// readShapefile reads a point shapefile and its DBF attributes. Column lookups
// are case-insensitive because DBF field names are usually upper case.
func readShapefile(path string) (*rawTable, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Reason: "unable to open shapefile", Err: err}
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	if len(fields) == 0 {
		return nil, &LoadError{File: path, Reason: "dbf not found or has no fields"}
	}
	colIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	t := &rawTable{file: path, colIdx: colIdx, fold: true}
	for reader.Next() {
		n, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			return nil, &LoadError{File: path, Field: "geometry", Row: n + 1, Reason: "shape is not a point"}
		}

		row := make([]string, len(fields))
		for i := range fields {
			row[i] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		t.rows = append(t.rows, row)
		t.coords = append(t.coords, [2]float64{pt.X, pt.Y})
	}
	if err := reader.Err(); err != nil {
		return nil, &LoadError{File: path, Reason: "unable to read shapefile", Err: err}
	}
	if t.coords == nil {
		t.coords = [][2]float64{}
	}
	return t, nil
}

// LoadSourcesShapefile loads source points from a point shapefile. When the
// lat and lon roles are unmapped, coordinates come from the point geometry.
func LoadSourcesShapefile(path string, cols SourceColumns) (*SourceSet, error) {
	t, err := readShapefile(path)
	if err != nil {
		return nil, err
	}
	return buildSources(t, cols)
}

// LoadDestsShapefile loads destination points from a point shapefile.
func LoadDestsShapefile(path string, cols DestColumns, subset []string) (*DestSet, error) {
	t, err := readShapefile(path)
	if err != nil {
		return nil, err
	}
	return buildDests(t, cols, subset)
}

// IsShapefile reports whether a path names a shapefile.
func IsShapefile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".shp")
}

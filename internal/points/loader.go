package points

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// rawTable is a parsed input table before role mapping. coords is set for
// geometry-bearing inputs (shapefiles) and holds lon/lat per row.
type rawTable struct {
	file   string
	colIdx map[string]int
	fold   bool
	rows   [][]string
	coords [][2]float64
}

func (t *rawTable) lookup(col string) (int, bool) {
	col = strings.TrimSpace(col)
	if t.fold {
		col = strings.ToLower(col)
	}
	i, ok := t.colIdx[col]
	return i, ok
}

// require resolves a mandatory role to a column index.
func (t *rawTable) require(role, col string) (int, error) {
	if IsSkipped(col) {
		return -1, &LoadError{File: t.file, Field: role, Reason: "required column not mapped"}
	}
	i, ok := t.lookup(col)
	if !ok {
		return -1, &LoadError{File: t.file, Field: role, Reason: "missing required column " + strconv.Quote(col)}
	}
	return i, nil
}

// optional resolves an optional role; -1 means the role is skipped.
func (t *rawTable) optional(role, col string) (int, error) {
	if IsSkipped(col) {
		return -1, nil
	}
	return t.require(role, col)
}

// coordIndexes resolves lat/lon columns. Geometry-bearing tables may leave both
// unmapped, in which case -1 is returned for each.
func (t *rawTable) coordIndexes(latCol, lonCol string) (int, int, error) {
	if t.coords != nil && IsSkipped(latCol) && IsSkipped(lonCol) {
		return -1, -1, nil
	}
	latIdx, err := t.require("lat", latCol)
	if err != nil {
		return -1, -1, err
	}
	lonIdx, err := t.require("lon", lonCol)
	if err != nil {
		return -1, -1, err
	}
	return latIdx, lonIdx, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *rawTable) float(row []string, r, idx int, role string) (float64, error) {
	v := cell(row, idx)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &LoadError{File: t.file, Field: role, Row: r, Reason: "invalid number " + strconv.Quote(v)}
	}
	return f, nil
}

func (t *rawTable) latLon(r int, latIdx, lonIdx int) (float64, float64, error) {
	if latIdx < 0 {
		c := t.coords[r-1]
		return c[1], c[0], nil
	}
	row := t.rows[r-1]
	lat, err := t.float(row, r, latIdx, "lat")
	if err != nil {
		return 0, 0, err
	}
	lon, err := t.float(row, r, lonIdx, "lon")
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// population parses a population cell. Blank cells count as zero; values such
// as "12.0" are accepted when integral.
func (t *rawTable) population(row []string, r, idx int) (int, error) {
	v := cell(row, idx)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, &LoadError{File: t.file, Field: "population", Row: r, Reason: "negative population " + v}
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 {
		return 0, &LoadError{File: t.file, Field: "population", Row: r, Reason: "invalid population " + strconv.Quote(v)}
	}
	if f >= float64(math.MaxInt) {
		return 0, &LoadError{File: t.file, Field: "population", Row: r, Reason: "population out of range " + strconv.Quote(v)}
	}
	return int(f), nil
}

func buildSources(t *rawTable, cols SourceColumns) (*SourceSet, error) {
	idIdx, err := t.require("id", cols.ID)
	if err != nil {
		return nil, err
	}
	latIdx, lonIdx, err := t.coordIndexes(cols.Lat, cols.Lon)
	if err != nil {
		return nil, err
	}
	popIdx, err := t.optional("population", cols.Population)
	if err != nil {
		return nil, err
	}
	lauIdx, err := t.optional("lower_areal_unit", cols.LowerArealUnit)
	if err != nil {
		return nil, err
	}

	pts := make([]SourcePoint, 0, len(t.rows))
	for i, row := range t.rows {
		r := i + 1
		id := cell(row, idIdx)
		if id == "" {
			return nil, &LoadError{File: t.file, Field: "id", Row: r, Reason: "blank id"}
		}
		lat, lon, err := t.latLon(r, latIdx, lonIdx)
		if err != nil {
			return nil, err
		}

		p := SourcePoint{ID: id, Lat: lat, Lon: lon, Population: 1, LowerArealUnit: DefaultLowerArealUnit}
		if popIdx >= 0 {
			if p.Population, err = t.population(row, r, popIdx); err != nil {
				return nil, err
			}
		}
		if lauIdx >= 0 {
			p.LowerArealUnit = cell(row, lauIdx)
		}
		pts = append(pts, p)
	}

	set, err := NewSourceSet(t.file, pts)
	if err != nil {
		return nil, err
	}
	set.ValidPopulation = popIdx >= 0
	set.ValidLowerArealUnit = lauIdx >= 0

	zap.L().Info("points: loaded sources",
		zap.String("file", t.file),
		zap.Int("sources", set.Len()),
		zap.Bool("valid_population", set.ValidPopulation),
		zap.Bool("valid_lower_areal_unit", set.ValidLowerArealUnit),
	)
	return set, nil
}

func buildDests(t *rawTable, cols DestColumns, subset []string) (*DestSet, error) {
	idIdx, err := t.require("id", cols.ID)
	if err != nil {
		return nil, err
	}
	latIdx, lonIdx, err := t.coordIndexes(cols.Lat, cols.Lon)
	if err != nil {
		return nil, err
	}
	targetIdx, err := t.optional("target", cols.Target)
	if err != nil {
		return nil, err
	}
	catIdx, err := t.optional("category", cols.Category)
	if err != nil {
		return nil, err
	}
	lauIdx, err := t.optional("lower_areal_unit", cols.LowerArealUnit)
	if err != nil {
		return nil, err
	}

	pts := make([]DestPoint, 0, len(t.rows))
	for i, row := range t.rows {
		r := i + 1
		id := cell(row, idIdx)
		if id == "" {
			return nil, &LoadError{File: t.file, Field: "id", Row: r, Reason: "blank id"}
		}
		lat, lon, err := t.latLon(r, latIdx, lonIdx)
		if err != nil {
			return nil, err
		}

		p := DestPoint{ID: id, Lat: lat, Lon: lon, Category: UndefinedCategory, Target: math.NaN(), LowerArealUnit: DefaultLowerArealUnit}
		if targetIdx >= 0 && cell(row, targetIdx) != "" {
			if p.Target, err = t.float(row, r, targetIdx, "target"); err != nil {
				return nil, err
			}
		}
		if catIdx >= 0 {
			if c := cell(row, catIdx); c != "" {
				p.Category = c
			}
		}
		if lauIdx >= 0 {
			p.LowerArealUnit = cell(row, lauIdx)
		}
		pts = append(pts, p)
	}

	set, err := NewDestSet(t.file, pts, subset)
	if err != nil {
		return nil, err
	}
	set.ValidTarget = targetIdx >= 0
	set.ValidCategory = catIdx >= 0
	set.ValidLowerArealUnit = lauIdx >= 0

	zap.L().Info("points: loaded dests",
		zap.String("file", t.file),
		zap.Int("dests", set.Len()),
		zap.Int("dropped_by_subset", len(pts)-set.Len()),
		zap.Strings("categories", set.Categories()),
		zap.Bool("valid_target", set.ValidTarget),
		zap.Bool("valid_category", set.ValidCategory),
	)
	return set, nil
}

// readCSV parses a CSV table with a header row.
func readCSV(name string, r io.Reader) (*rawTable, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &LoadError{File: name, Reason: "unable to parse csv", Err: err}
	}
	if len(records) == 0 {
		return nil, &LoadError{File: name, Reason: "csv has no header row"}
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		colIdx[strings.TrimSpace(col)] = i
	}
	return &rawTable{file: name, colIdx: colIdx, rows: records[1:]}, nil
}

func openCSV(path string) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Reason: "unable to open file", Err: err}
	}
	defer f.Close() //nolint:errcheck
	return readCSV(path, f)
}

// LoadSourcesCSV loads source points from a CSV file using an explicit column map.
func LoadSourcesCSV(path string, cols SourceColumns) (*SourceSet, error) {
	t, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	return buildSources(t, cols)
}

// ReadSourcesCSV loads source points from a CSV stream; name is used in errors.
func ReadSourcesCSV(name string, r io.Reader, cols SourceColumns) (*SourceSet, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	return buildSources(t, cols)
}

// LoadDestsCSV loads destination points from a CSV file using an explicit column
// map, keeping only categories in subset when it is non-empty.
func LoadDestsCSV(path string, cols DestColumns, subset []string) (*DestSet, error) {
	t, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	return buildDests(t, cols, subset)
}

// ReadDestsCSV loads destination points from a CSV stream; name is used in errors.
func ReadDestsCSV(name string, r io.Reader, cols DestColumns, subset []string) (*DestSet, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	return buildDests(t, cols, subset)
}

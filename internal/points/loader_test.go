package points

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blockCols = SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: "pop", LowerArealUnit: "tract"}

var facilityCols = DestColumns{ID: "fid", Lat: "lat", Lon: "lon", Target: "capacity", Category: "type", LowerArealUnit: Skip}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireLoadError(t *testing.T, err error) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected *LoadError, got %T", err)
	return le
}

func TestLoadSourcesCSV(t *testing.T) {
	path := writeFile(t, "blocks.csv", "GEOID,y,x,pop,tract\n"+
		"170310101001,41.98,-87.66,120,010100\n"+
		"170310101002,41.99,-87.67,0,010100\n")

	set, err := LoadSourcesCSV(path, blockCols)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"170310101001", "170310101002"}, set.IDs())
	assert.True(t, set.ValidPopulation)
	assert.True(t, set.ValidLowerArealUnit)

	p, ok := set.Get("170310101001")
	require.True(t, ok)
	assert.InDelta(t, 41.98, p.Lat, 1e-9)
	assert.InDelta(t, -87.66, p.Lon, 1e-9)
	assert.Equal(t, 120, p.Population)
	assert.Equal(t, "010100", p.LowerArealUnit)
	assert.Equal(t, 0, set.Population("170310101002"))
	assert.Equal(t, 0, set.Population("missing"))
}

func TestLoadSourcesCSV_SkippedOptionalColumns(t *testing.T) {
	path := writeFile(t, "blocks.csv", "GEOID,y,x\nA,41.0,-87.0\nB,41.1,-87.1\n")

	set, err := LoadSourcesCSV(path, SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: Skip})
	require.NoError(t, err)

	assert.False(t, set.ValidPopulation)
	assert.False(t, set.ValidLowerArealUnit)
	p, _ := set.Get("B")
	assert.Equal(t, 1, p.Population)
	assert.Equal(t, DefaultLowerArealUnit, p.LowerArealUnit)
}

func TestLoadSourcesCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		cols    SourceColumns
		field   string
		reason  string
	}{
		{
			name:    "missing id column",
			content: "id,y,x\nA,1,2\n",
			cols:    blockCols,
			field:   "id",
			reason:  `missing required column "GEOID"`,
		},
		{
			name:    "unmapped lat",
			content: "GEOID,y,x\nA,1,2\n",
			cols:    SourceColumns{ID: "GEOID", Lon: "x"},
			field:   "lat",
			reason:  "required column not mapped",
		},
		{
			name:    "missing optional column that was mapped",
			content: "GEOID,y,x\nA,1,2\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: "pop"},
			field:   "population",
			reason:  `missing required column "pop"`,
		},
		{
			name:    "duplicate id",
			content: "GEOID,y,x\nA,1,2\nA,3,4\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x"},
			field:   "id",
			reason:  "duplicate id A",
		},
		{
			name:    "bad latitude",
			content: "GEOID,y,x\nA,north,2\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x"},
			field:   "lat",
			reason:  "invalid number",
		},
		{
			name:    "fractional population",
			content: "GEOID,y,x,pop\nA,1,2,2.5\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: "pop"},
			field:   "population",
			reason:  "invalid population",
		},
		{
			name:    "negative population",
			content: "GEOID,y,x,pop\nA,1,2,-4\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: "pop"},
			field:   "population",
			reason:  "negative population",
		},
		{
			name:    "blank id",
			content: "GEOID,y,x\n,1,2\n",
			cols:    SourceColumns{ID: "GEOID", Lat: "y", Lon: "x"},
			field:   "id",
			reason:  "blank id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "sources.csv", tt.content)
			_, err := LoadSourcesCSV(path, tt.cols)
			le := requireLoadError(t, err)
			assert.Equal(t, path, le.File)
			assert.Equal(t, tt.field, le.Field)
			assert.Contains(t, le.Reason, tt.reason)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestLoadSourcesCSV_IntegralFloatPopulation(t *testing.T) {
	path := writeFile(t, "s.csv", "GEOID,y,x,pop\nA,1,2,12.0\nB,1,2,\n")
	set, err := LoadSourcesCSV(path, SourceColumns{ID: "GEOID", Lat: "y", Lon: "x", Population: "pop"})
	require.NoError(t, err)
	assert.Equal(t, 12, set.Population("A"))
	assert.Equal(t, 0, set.Population("B"))
}

func TestLoadSourcesCSV_MissingFile(t *testing.T) {
	_, err := LoadSourcesCSV(filepath.Join(t.TempDir(), "nope.csv"), blockCols)
	le := requireLoadError(t, err)
	assert.Contains(t, le.Reason, "unable to open file")
	assert.NotNil(t, errors.Unwrap(err))
}

func TestReadSourcesCSV_EmptyInput(t *testing.T) {
	_, err := ReadSourcesCSV("empty.csv", strings.NewReader(""), blockCols)
	le := requireLoadError(t, err)
	assert.Equal(t, "empty.csv", le.File)
	assert.Contains(t, le.Reason, "no header row")
}

func TestReadSourcesCSV_BOMHeader(t *testing.T) {
	in := "\ufeffGEOID,y,x\nA,1,2\n"
	set, err := ReadSourcesCSV("bom.csv", strings.NewReader(in), SourceColumns{ID: "GEOID", Lat: "y", Lon: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, set.IDs())
}

func TestLoadDestsCSV(t *testing.T) {
	path := writeFile(t, "facilities.csv", "fid,lat,lon,capacity,type\n"+
		"D1,41.9,-87.6,25,clinic\n"+
		"D2,41.8,-87.7,,school\n"+
		"D3,41.7,-87.8,10,\n")

	set, err := LoadDestsCSV(path, facilityCols, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"D1", "D2", "D3"}, set.IDs())
	assert.Equal(t, []string{UndefinedCategory, "clinic", "school"}, set.Categories())
	assert.True(t, set.ValidTarget)
	assert.True(t, set.ValidCategory)
	assert.False(t, set.ValidLowerArealUnit)

	v, ok := set.Target("D1")
	assert.True(t, ok)
	assert.InDelta(t, 25.0, v, 1e-9)
	_, ok = set.Target("D2")
	assert.False(t, ok, "blank target should be absent")
	assert.Equal(t, UndefinedCategory, set.Category("D3"))
	assert.Equal(t, "", set.Category("missing"))
}

func TestLoadDestsCSV_SkippedCategory(t *testing.T) {
	path := writeFile(t, "facilities.csv", "fid,lat,lon\nD1,41.9,-87.6\nD2,41.8,-87.7\n")

	set, err := LoadDestsCSV(path, DestColumns{ID: "fid", Lat: "lat", Lon: "lon", Target: Skip, Category: Skip}, nil)
	require.NoError(t, err)

	assert.False(t, set.ValidCategory)
	assert.False(t, set.ValidTarget)
	assert.Equal(t, []string{UndefinedCategory}, set.Categories())
	for _, p := range set.Points() {
		assert.Equal(t, UndefinedCategory, p.Category)
		assert.False(t, p.HasTarget())
	}
}

func TestLoadDestsCSV_SubsetFilter(t *testing.T) {
	path := writeFile(t, "facilities.csv", "fid,lat,lon,capacity,type\n"+
		"D1,41.9,-87.6,1,X\n"+
		"D2,41.8,-87.7,1,Y\n"+
		"D3,41.7,-87.8,1,X\n")

	set, err := LoadDestsCSV(path, facilityCols, []string{"X"})
	require.NoError(t, err)

	assert.Equal(t, []string{"X"}, set.Categories())
	assert.Equal(t, []string{"D1", "D3"}, set.IDs())
	_, ok := set.Get("D2")
	assert.False(t, ok)
}

func TestLoadDestsCSV_DuplicateOutsideSubsetStillRejected(t *testing.T) {
	path := writeFile(t, "facilities.csv", "fid,lat,lon,capacity,type\n"+
		"D1,41.9,-87.6,1,Y\n"+
		"D1,41.8,-87.7,1,Y\n")

	_, err := LoadDestsCSV(path, facilityCols, []string{"X"})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Reason, "duplicate id D1")
}

func TestLoadDestsCSV_BadTarget(t *testing.T) {
	path := writeFile(t, "facilities.csv", "fid,lat,lon,capacity,type\nD1,41.9,-87.6,lots,X\n")

	_, err := LoadDestsCSV(path, facilityCols, nil)
	le := requireLoadError(t, err)
	assert.Equal(t, "target", le.Field)
	assert.Equal(t, 1, le.Row)
}

func TestLoadColumnMap(t *testing.T) {
	path := writeFile(t, "columns.yaml", `
sources:
  id: GEOID
  lat: y
  lon: x
  population: skip
dests:
  id: fid
  lat: lat
  lon: lon
  category: type
  target: skip
`)
	cm, err := LoadColumnMap(path)
	require.NoError(t, err)
	assert.Equal(t, "GEOID", cm.Sources.ID)
	assert.True(t, IsSkipped(cm.Sources.Population))
	assert.True(t, IsSkipped(cm.Sources.LowerArealUnit))
	assert.Equal(t, "type", cm.Dests.Category)
	assert.True(t, IsSkipped(cm.Dests.Target))
}

func TestLoadColumnMap_Invalid(t *testing.T) {
	path := writeFile(t, "columns.yaml", "sources: [oops")
	_, err := LoadColumnMap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "points: parse column map")
}

func writePointShapefile(t *testing.T, rows []struct {
	id       string
	x, y     float64
	category string
}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facilities.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("FID", 20),
		shp.StringField("TYPE", 20),
	}))
	for _, r := range rows {
		n := w.Write(&shp.Point{X: r.x, Y: r.y})
		require.NoError(t, w.WriteAttribute(int(n), 0, r.id))
		require.NoError(t, w.WriteAttribute(int(n), 1, r.category))
	}
	w.Close()

	// go-shp v0.1.1 names the attribute file without the dot before "dbf".
	bare := strings.TrimSuffix(path, ".shp") + "dbf"
	if _, err := os.Stat(bare); err == nil {
		require.NoError(t, os.Rename(bare, strings.TrimSuffix(path, ".shp")+".dbf"))
	}
	return path
}

func TestLoadDestsShapefile(t *testing.T) {
	path := writePointShapefile(t, []struct {
		id       string
		x, y     float64
		category string
	}{
		{"D1", -87.6, 41.9, "clinic"},
		{"D2", -87.7, 41.8, "school"},
	})

	set, err := LoadDestsShapefile(path, DestColumns{ID: "fid", Category: "type"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"D1", "D2"}, set.IDs())
	assert.Equal(t, []string{"clinic", "school"}, set.Categories())
	p, ok := set.Get("D2")
	require.True(t, ok)
	assert.InDelta(t, 41.8, p.Lat, 1e-9)
	assert.InDelta(t, -87.7, p.Lon, 1e-9)
	assert.True(t, IsShapefile(path))
	assert.False(t, IsShapefile("facilities.csv"))
}

func TestLoadDestsShapefile_MissingDBF(t *testing.T) {
	path := writePointShapefile(t, []struct {
		id       string
		x, y     float64
		category string
	}{{"D1", -87.6, 41.9, "clinic"}})
	require.NoError(t, os.Remove(strings.TrimSuffix(path, ".shp")+".dbf"))

	_, err := LoadDestsShapefile(path, DestColumns{ID: "fid"}, nil)
	le := requireLoadError(t, err)
	assert.Contains(t, le.Reason, "dbf not found")
}

func TestLoadSourcesShapefile_MissingColumn(t *testing.T) {
	path := writePointShapefile(t, []struct {
		id       string
		x, y     float64
		category string
	}{{"S1", -87.6, 41.9, "x"}})

	_, err := LoadSourcesShapefile(path, SourceColumns{ID: "GEOID"})
	le := requireLoadError(t, err)
	assert.Equal(t, "id", le.Field)
}

func TestReadSourcesCSV_PopulationOutOfRange(t *testing.T) {
	for _, v := range []string{"1e19", "99999999999999999999"} {
		_, err := ReadSourcesCSV("blocks.csv", strings.NewReader("GEOID,y,x,pop,tract\nB1,41.9,-87.6,"+v+",010100\n"), blockCols)
		le := requireLoadError(t, err)
		assert.Equal(t, "population", le.Field, v)
		assert.Equal(t, 1, le.Row, v)
	}
}

func TestReadDestsCSV_DefaultLowerArealUnit(t *testing.T) {
	set, err := ReadDestsCSV("facilities.csv", strings.NewReader("fid,lat,lon,capacity,type\nD1,41.9,-87.6,10,clinic\n"), facilityCols, nil)
	require.NoError(t, err)

	assert.False(t, set.ValidLowerArealUnit)
	p, ok := set.Get("D1")
	require.True(t, ok)
	assert.Equal(t, DefaultLowerArealUnit, p.LowerArealUnit)
}

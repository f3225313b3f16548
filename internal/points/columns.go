package points

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Skip marks an optional role as absent from the input table.
const Skip = "skip"

// SourceColumns maps canonical source roles to column names in the input table.
type SourceColumns struct {
	ID             string `yaml:"id"`
	Lat            string `yaml:"lat"`
	Lon            string `yaml:"lon"`
	Population     string `yaml:"population"`
	LowerArealUnit string `yaml:"lower_areal_unit"`
}

// DestColumns maps canonical destination roles to column names in the input table.
type DestColumns struct {
	ID             string `yaml:"id"`
	Lat            string `yaml:"lat"`
	Lon            string `yaml:"lon"`
	Target         string `yaml:"target"`
	Category       string `yaml:"category"`
	LowerArealUnit string `yaml:"lower_areal_unit"`
}

// ColumnMap holds the column mappings for both point tables.
type ColumnMap struct {
	Sources SourceColumns `yaml:"sources"`
	Dests   DestColumns   `yaml:"dests"`
}

// LoadColumnMap reads a YAML column map with top-level "sources" and "dests" keys.
func LoadColumnMap(path string) (*ColumnMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "points: read column map %s", path)
	}
	var cm ColumnMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return nil, eris.Wrapf(err, "points: parse column map %s", path)
	}
	return &cm, nil
}

// IsSkipped reports whether an optional role is unmapped.
func IsSkipped(col string) bool {
	col = strings.TrimSpace(col)
	return col == "" || strings.EqualFold(col, Skip)
}

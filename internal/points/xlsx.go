package points

import (
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx/v2"
)

// readXLSX reads the first worksheet of a workbook, or the named sheet when
// sheet is set. The first row is the header.
func readXLSX(path, sheet string) (*rawTable, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Reason: "unable to open workbook", Err: err}
	}

	var ws *xlsx.Sheet
	switch {
	case sheet != "":
		s, ok := f.Sheet[sheet]
		if !ok {
			return nil, &LoadError{File: path, Reason: "sheet " + sheet + " not found"}
		}
		ws = s
	case len(f.Sheets) == 0:
		return nil, &LoadError{File: path, Reason: "workbook has no sheets"}
	default:
		ws = f.Sheets[0]
	}
	if len(ws.Rows) == 0 {
		return nil, &LoadError{File: path, Reason: "sheet has no header row"}
	}

	t := &rawTable{file: path, colIdx: make(map[string]int)}
	for i, cell := range ws.Rows[0].Cells {
		t.colIdx[strings.TrimSpace(cell.String())] = i
	}
	for _, row := range ws.Rows[1:] {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
			if cells[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

// LoadSourcesXLSX loads source points from a worksheet using an explicit column map.
func LoadSourcesXLSX(path, sheet string, cols SourceColumns) (*SourceSet, error) {
	t, err := readXLSX(path, sheet)
	if err != nil {
		return nil, err
	}
	return buildSources(t, cols)
}

// LoadDestsXLSX loads destination points from a worksheet.
func LoadDestsXLSX(path, sheet string, cols DestColumns, subset []string) (*DestSet, error) {
	t, err := readXLSX(path, sheet)
	if err != nil {
		return nil, err
	}
	return buildDests(t, cols, subset)
}

// IsWorkbook reports whether a path names an Excel workbook.
func IsWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

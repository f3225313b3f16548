// Package report exports accessibility results as CSV or XLSX tables and
// derives population-weighted CDF series from them.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
)

// Table keywords, used as file names and sheet names.
const (
	KeywordNearest = "near_nbr"
	KeywordInRange = "n_dests_in_range"
	KeywordTime    = "time"
	KeywordEdges   = "edges"
)

// IndexColumn heads the row id column of every table.
const IndexColumn = "source_id"

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}

// WriteCSV writes a source × category table, one row per source. Unknown
// cells are written as marker.
func WriteCSV[T float64 | int](w io.Writer, tbl *access.Table[T], marker string) error {
	cw := csv.NewWriter(w)
	cols := tbl.Columns()
	if err := cw.Write(append([]string{IndexColumn}, cols...)); err != nil {
		return eris.Wrap(err, "report: write header")
	}

	record := make([]string, len(cols)+1)
	for _, src := range tbl.Rows() {
		record[0] = src
		for i, cell := range tbl.Row(src) {
			if cell.Known {
				record[i+1] = formatValue(cell.Value)
			} else {
				record[i+1] = marker
			}
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "report: write row %s", src)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteRawTimesCSV writes the last raw travel time scanned per source, in seconds.
func WriteRawTimesCSV(w io.Writer, res *access.Result, marker string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{IndexColumn, KeywordTime}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, cell := range res.RawTimes() {
		v := marker
		if cell.Known {
			v = formatValue(cell.Value)
		}
		if err := cw.Write([]string{cell.Row, v}); err != nil {
			return eris.Wrapf(err, "report: write row %s", cell.Row)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteEdgesCSV writes every in-range (source, dest, seconds) pair.
func WriteEdgesCSV(w io.Writer, res *access.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{IndexColumn, "dest_id", "seconds"}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, src := range res.SourceIDs() {
		for _, e := range res.SourceEdges(src) {
			if err := cw.Write([]string{src, e.ID, formatValue(e.Seconds)}); err != nil {
				return eris.Wrapf(err, "report: write edge %s", src)
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// Paths lists the files written by WriteTablesCSV.
type Paths struct {
	Nearest string `json:"near_nbr"`
	InRange string `json:"n_dests_in_range"`
	Time    string `json:"time"`
	Edges   string `json:"edges,omitempty"`
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

type tableStep struct {
	keyword string
	dst     *string
	write   func(io.Writer) error
}

// WriteTablesCSV writes the near_nbr, n_dests_in_range and time tables to
// fresh files in dir, plus the edge list when edges is set.
func WriteTablesCSV(dir string, res *access.Result, marker string, edges bool) (*Paths, error) {
	var paths Paths
	steps := []tableStep{
		{KeywordNearest, &paths.Nearest, func(w io.Writer) error { return WriteCSV(w, res.Nearest, marker) }},
		{KeywordInRange, &paths.InRange, func(w io.Writer) error { return WriteCSV(w, res.InRange, marker) }},
		{KeywordTime, &paths.Time, func(w io.Writer) error { return WriteRawTimesCSV(w, res, marker) }},
	}
	if edges {
		steps = append(steps, tableStep{KeywordEdges, &paths.Edges, func(w io.Writer) error { return WriteEdgesCSV(w, res) }})
	}

	for _, s := range steps {
		path, err := OutputFilename(dir, s.keyword, "csv")
		if err != nil {
			return nil, err
		}
		if err := writeFile(path, s.write); err != nil {
			return nil, err
		}
		*s.dst = path
		zap.L().Info("report: wrote table", zap.String("table", s.keyword), zap.String("path", path))
	}
	return &paths, nil
}

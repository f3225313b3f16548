package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
)

func addTableSheet[T float64 | int](f *xlsx.File, name string, tbl *access.Table[T], marker string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	header := sheet.AddRow()
	header.AddCell().SetString(IndexColumn)
	for _, c := range tbl.Columns() {
		header.AddCell().SetString(c)
	}

	for _, src := range tbl.Rows() {
		row := sheet.AddRow()
		row.AddCell().SetString(src)
		for _, cell := range tbl.Row(src) {
			xc := row.AddCell()
			if !cell.Known {
				xc.SetString(marker)
				continue
			}
			switch v := any(cell.Value).(type) {
			case float64:
				xc.SetFloat(v)
			case int:
				xc.SetInt(v)
			}
		}
	}
	return nil
}

// WriteXLSX writes the near_nbr, n_dests_in_range and time tables as sheets
// of one workbook.
func WriteXLSX(path string, res *access.Result, marker string) error {
	f := xlsx.NewFile()
	if err := addTableSheet(f, KeywordNearest, res.Nearest, marker); err != nil {
		return err
	}
	if err := addTableSheet(f, KeywordInRange, res.InRange, marker); err != nil {
		return err
	}

	sheet, err := f.AddSheet(KeywordTime)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %s", KeywordTime)
	}
	header := sheet.AddRow()
	header.AddCell().SetString(IndexColumn)
	header.AddCell().SetString(KeywordTime)
	for _, cell := range res.RawTimes() {
		row := sheet.AddRow()
		row.AddCell().SetString(cell.Row)
		if cell.Known {
			row.AddCell().SetFloat(cell.Value)
		} else {
			row.AddCell().SetString(marker)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	zap.L().Info("report: wrote workbook", zap.String("path", path))
	return nil
}

// Package agency reconciles vendor records across contract headquarters,
// deduplicated link and service location tables, and allocates contract
// dollars across an agency's service locations.
package agency

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Column names shared by the input tables.
const (
	ColClusterID  = "ClusterID"
	ColVendorID   = "CSDS_Vendor_ID"
	ColVendorName = "VendorName"
	ColLinkScore  = "LinkScore"
	ColSourceFile = "SourceFile"
	ColAmount     = "Amount"
	ColSvcID      = "CSDS_Svc_ID"
	ColAddress    = "Address"
)

// table is a header-indexed CSV file.
type table struct {
	file   string
	header []string
	idx    map[string]int
	rows   [][]string
}

// decode wraps r with a decoder for charset. Empty and utf-8 pass through.
func decode(r io.Reader, charset string) (io.Reader, error) {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, eris.Wrapf(err, "agency: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

func parseTable(name string, r io.Reader, charset string, required ...string) (*table, error) {
	r, err := decode(r, charset)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "agency: parse %s", name)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("agency: %s has no header row", name)
	}

	t := &table{file: name, idx: make(map[string]int, len(records[0]))}
	for i, col := range records[0] {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		t.header = append(t.header, col)
		t.idx[col] = i
	}
	for _, col := range required {
		if _, ok := t.idx[col]; !ok {
			return nil, eris.Errorf("agency: %s is missing column %q", name, col)
		}
	}
	t.rows = records[1:]
	return t, nil
}

func readTable(path, charset string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "agency: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return parseTable(path, f, charset, required...)
}

// get returns the trimmed value of col in row, or "" when absent.
func (t *table) get(row []string, col string) string {
	i, ok := t.idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// fields returns every column of row except those in skip.
func (t *table) fields(row []string, skip ...string) map[string]string {
	out := make(map[string]string, len(t.header))
	for _, col := range t.header {
		skipped := false
		for _, s := range skip {
			if col == s {
				skipped = true
				break
			}
		}
		if !skipped {
			out[col] = t.get(row, col)
		}
	}
	return out
}

package agency

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// HQRecord is one contract row of the headquarters table.
type HQRecord struct {
	VendorID   string
	VendorName string
	Amount     float64
	// AgencySummedAmount is the sum of Amount over every row of the vendor.
	AgencySummedAmount float64
	Fields             map[string]string
}

func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadHQ reads the contracts-with-headquarters table and attaches each
// vendor's summed contract amount to its rows.
func ReadHQ(path, charset string) ([]HQRecord, error) {
	t, err := readTable(path, charset, ColVendorID, ColVendorName, ColAmount)
	if err != nil {
		return nil, err
	}

	out := make([]HQRecord, 0, len(t.rows))
	sums := make(map[string]float64)
	for i, row := range t.rows {
		amount, err := parseAmount(t.get(row, ColAmount))
		if err != nil {
			return nil, eris.Errorf("agency: %s row %d: invalid %s %q", path, i+1, ColAmount, t.get(row, ColAmount))
		}
		r := HQRecord{
			VendorID:   t.get(row, ColVendorID),
			VendorName: t.get(row, ColVendorName),
			Amount:     amount,
			Fields:     t.fields(row, ColVendorID, ColVendorName, ColAmount),
		}
		sums[r.VendorID] += amount
		out = append(out, r)
	}
	for i := range out {
		out[i].AgencySummedAmount = sums[out[i].VendorID]
	}

	zap.L().Info("agency: read headquarters", zap.String("file", path), zap.Int("rows", len(out)), zap.Int("vendors", len(sums)))
	return out, nil
}

// hqVendor is the distinct (vendor, name, summed amount) projection of HQ rows.
type hqVendor struct {
	VendorID   string
	VendorName string
	Summed     float64
}

func distinctVendors(hq []HQRecord) []hqVendor {
	seen := make(map[hqVendor]bool)
	var out []hqVendor
	for _, r := range hq {
		v := hqVendor{r.VendorID, r.VendorName, r.AgencySummedAmount}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

package agency

import (
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultLinkThreshold is the minimum LinkScore kept from the deduplicated table.
const DefaultLinkThreshold = 0.34

// LinkRecord is one vendor row of the deduplicated link table.
type LinkRecord struct {
	ClusterID  string
	VendorID   string
	VendorName string
}

// VendorLink pairs two distinct vendors that share a cluster.
type VendorLink struct {
	ClusterID        string
	VendorID         string
	VendorName       string
	LinkedVendorID   string
	LinkedVendorName string
}

// ReadDeduplicated reads the link table, keeping rows whose LinkScore is at
// least threshold. LinkScore and SourceFile are not carried forward.
func ReadDeduplicated(path string, threshold float64, charset string) ([]LinkRecord, error) {
	t, err := readTable(path, charset, ColClusterID, ColVendorID, ColVendorName, ColLinkScore)
	if err != nil {
		return nil, err
	}

	var out []LinkRecord
	for i, row := range t.rows {
		raw := t.get(row, ColLinkScore)
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Errorf("agency: %s row %d: invalid %s %q", path, i+1, ColLinkScore, raw)
		}
		if score < threshold {
			continue
		}
		out = append(out, LinkRecord{
			ClusterID:  t.get(row, ColClusterID),
			VendorID:   t.get(row, ColVendorID),
			VendorName: t.get(row, ColVendorName),
		})
	}

	zap.L().Info("agency: read deduplicated links",
		zap.String("file", path),
		zap.Int("rows", len(t.rows)),
		zap.Int("kept", len(out)),
		zap.Float64("threshold", threshold),
	)
	return out, nil
}

// Link self-joins records on ClusterID and keeps pairs of different vendors.
// Output follows input order on both sides.
func Link(records []LinkRecord) []VendorLink {
	byCluster := make(map[string][]LinkRecord)
	for _, r := range records {
		byCluster[r.ClusterID] = append(byCluster[r.ClusterID], r)
	}

	var out []VendorLink
	for _, r := range records {
		for _, other := range byCluster[r.ClusterID] {
			if other.VendorID == r.VendorID {
				continue
			}
			out = append(out, VendorLink{
				ClusterID:        r.ClusterID,
				VendorID:         r.VendorID,
				VendorName:       r.VendorName,
				LinkedVendorID:   other.VendorID,
				LinkedVendorName: other.VendorName,
			})
		}
	}
	return out
}

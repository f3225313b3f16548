package agency

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
)

// DollarsRow is one service location of a linked vendor with its share of
// the headquarters' contract dollars.
type DollarsRow struct {
	VendorID           string
	VendorName         string
	LinkedVendorID     string
	LinkedVendorName   string
	Address            string
	AgencySummedAmount float64
	NumSvcLocations    int
	DollarsPerLocation float64
}

// DollarsPerLocation joins each distinct headquarters vendor to its linked
// vendors and their service locations, splitting the vendor's summed amount
// evenly across the linked agency's locations. Vendors without a link or a
// linked agency without locations produce no rows.
func DollarsPerLocation(hq []HQRecord, links []VendorLink, svc *Services) []DollarsRow {
	byVendor := make(map[string][]VendorLink)
	for _, l := range links {
		byVendor[l.VendorID] = append(byVendor[l.VendorID], l)
	}

	var out []DollarsRow
	for _, v := range distinctVendors(hq) {
		for _, l := range byVendor[v.VendorID] {
			n := svc.NumLocations(l.LinkedVendorID)
			if n == 0 {
				continue
			}
			for _, loc := range svc.ForVendor(l.LinkedVendorID) {
				out = append(out, DollarsRow{
					VendorID:           v.VendorID,
					VendorName:         v.VendorName,
					LinkedVendorID:     l.LinkedVendorID,
					LinkedVendorName:   l.LinkedVendorName,
					Address:            loc.Address,
					AgencySummedAmount: v.Summed,
					NumSvcLocations:    n,
					DollarsPerLocation: v.Summed / float64(n),
				})
			}
		}
	}
	return out
}

var dollarsHeader = []string{
	ColVendorID, ColVendorName, "LinkedVendorID", "LinkedVendorName", ColAddress,
	"Agency_Summed_Amount", "Num_Svc_Locations", "Dollars_Per_Location",
}

// WriteDollarsCSV writes rows with a header.
func WriteDollarsCSV(w io.Writer, rows []DollarsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dollarsHeader); err != nil {
		return eris.Wrap(err, "agency: write dollars header")
	}
	for _, r := range rows {
		rec := []string{
			r.VendorID, r.VendorName, r.LinkedVendorID, r.LinkedVendorName, r.Address,
			strconv.FormatFloat(r.AgencySummedAmount, 'f', 2, 64),
			strconv.Itoa(r.NumSvcLocations),
			strconv.FormatFloat(r.DollarsPerLocation, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "agency: write dollars row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "agency: flush dollars")
}

// GeocodeRequest is a service address that has no coordinates yet.
type GeocodeRequest struct {
	SvcID   string
	Address string
	City    string
	State   string
	Zip     string
}

// field returns the first non-empty value among the plain and _SVC suffixed
// forms of the given column names.
func field(fields map[string]string, names ...string) string {
	for _, n := range names {
		if v := fields[n]; v != "" {
			return v
		}
		if v := fields[n+"_SVC"]; v != "" {
			return v
		}
	}
	return ""
}

// NeedsGeocoding returns the distinct service addresses missing a latitude
// or longitude, in file order.
func NeedsGeocoding(svc *Services) []GeocodeRequest {
	seen := make(map[GeocodeRequest]bool)
	var out []GeocodeRequest
	for _, loc := range svc.Locations {
		if field(loc.Fields, "Latitude") != "" && field(loc.Fields, "Longitude") != "" {
			continue
		}
		req := GeocodeRequest{
			SvcID:   loc.SvcID,
			Address: loc.Address,
			City:    field(loc.Fields, "City"),
			State:   field(loc.Fields, "State"),
			Zip:     field(loc.Fields, "ZipCode", "Zip"),
		}
		if seen[req] {
			continue
		}
		seen[req] = true
		out = append(out, req)
	}
	return out
}

// WriteGeocodeCSV writes geocoding requests with the Zip column naming
// geocoders expect.
func WriteGeocodeCSV(w io.Writer, reqs []GeocodeRequest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColSvcID, ColAddress, "City", "State", "Zip"}); err != nil {
		return eris.Wrap(err, "agency: write geocode header")
	}
	for _, r := range reqs {
		if err := cw.Write([]string{r.SvcID, r.Address, r.City, r.State, r.Zip}); err != nil {
			return eris.Wrap(err, "agency: write geocode row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "agency: flush geocode")
}

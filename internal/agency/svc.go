package agency

import (
	"go.uber.org/zap"
)

// ServiceLocation is one distinct address of a service agency.
type ServiceLocation struct {
	SvcID   string
	Address string
	// Fields holds the remaining service columns under their original names.
	Fields map[string]string
}

// Services is the deduplicated service location table.
type Services struct {
	Locations []ServiceLocation
	counts    map[string]int
}

// NumLocations returns the number of distinct addresses of a service agency.
func (s *Services) NumLocations(svcID string) int {
	return s.counts[svcID]
}

// ForVendor returns the locations of a service agency in file order.
func (s *Services) ForVendor(svcID string) []ServiceLocation {
	var out []ServiceLocation
	for _, l := range s.Locations {
		if l.SvcID == svcID {
			out = append(out, l)
		}
	}
	return out
}

// ReadServiceLocations reads the service agency table. Within each agency,
// addresses the comparer considers the same are rewritten to the first one
// seen, then duplicate (agency, address) rows are dropped.
func ReadServiceLocations(path, charset string, comparer AddressComparer) (*Services, error) {
	t, err := readTable(path, charset, ColSvcID, ColAddress)
	if err != nil {
		return nil, err
	}
	if comparer == nil {
		comparer = NormalizedComparer{}
	}

	canonical := make(map[string][]string)
	seen := make(map[[2]string]bool)
	svc := &Services{counts: make(map[string]int)}
	for _, row := range t.rows {
		id := t.get(row, ColSvcID)
		addr := t.get(row, ColAddress)
		for _, c := range canonical[id] {
			if comparer.Same(c, addr) {
				addr = c
				break
			}
		}
		key := [2]string{id, addr}
		if seen[key] {
			continue
		}
		seen[key] = true
		canonical[id] = append(canonical[id], addr)
		svc.counts[id]++
		svc.Locations = append(svc.Locations, ServiceLocation{
			SvcID:   id,
			Address: addr,
			Fields:  t.fields(row, ColSvcID, ColAddress),
		})
	}

	zap.L().Info("agency: read service locations",
		zap.String("file", path),
		zap.Int("rows", len(t.rows)),
		zap.Int("locations", len(svc.Locations)),
		zap.Int("agencies", len(svc.counts)),
	)
	return svc, nil
}

package traveltime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/access-cli/internal/points"
)

// OSRMOptions configures the OSRM table-service provider.
type OSRMOptions struct {
	BaseURL    string
	RatePerSec float64
	Timeout    time.Duration
	Client     *http.Client
}

// osrmProfiles maps modes to OSRM routing profiles.
var osrmProfiles = map[Mode]string{
	ModeDrive: "driving",
	ModeWalk:  "foot",
	ModeBike:  "bicycle",
}

// OSRM asks an OSRM server's table service for one source row at a time and
// caches the row. Null durations become Sentinel.
type OSRM struct {
	baseURL string
	profile string
	client  *http.Client
	limiter *rate.Limiter

	sources map[string]points.SourcePoint
	destIdx map[string]int
	// lon,lat;lon,lat... for every destination, in DestSet order.
	destCoords string
	destParam  string

	group singleflight.Group
	mu    sync.RWMutex
	rows  map[string][]float64
}

// NewOSRM builds an OSRM provider over the given point sets.
func NewOSRM(opts OSRMOptions, mode Mode, sources *points.SourceSet, dests *points.DestSet) (*OSRM, error) {
	profile, ok := osrmProfiles[mode]
	if !ok {
		return nil, eris.Errorf("osrm: invalid mode %q", mode)
	}
	if opts.BaseURL == "" {
		return nil, eris.New("osrm: base url is required")
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	o := &OSRM{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		profile: profile,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), burst(opts.RatePerSec)),
		sources: make(map[string]points.SourcePoint, sources.Len()),
		destIdx: make(map[string]int, dests.Len()),
		rows:    make(map[string][]float64),
	}
	for _, p := range sources.Points() {
		o.sources[p.ID] = p
	}

	coords := make([]string, 0, dests.Len())
	idx := make([]string, 0, dests.Len())
	for i, p := range dests.Points() {
		o.destIdx[p.ID] = i
		coords = append(coords, lonLat(p.Lon, p.Lat))
		idx = append(idx, strconv.Itoa(i+1))
	}
	o.destCoords = strings.Join(coords, ";")
	o.destParam = strings.Join(idx, ";")
	return o, nil
}

func lonLat(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
}

// Time implements Provider.
func (o *OSRM) Time(ctx context.Context, sourceID, destID string) (float64, error) {
	col, ok := o.destIdx[destID]
	if !ok {
		return 0, eris.Wrapf(ErrPairNotFound, "osrm: unknown dest %s", destID)
	}
	row, err := o.row(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	return row[col], nil
}

func (o *OSRM) row(ctx context.Context, sourceID string) ([]float64, error) {
	o.mu.RLock()
	row, ok := o.rows[sourceID]
	o.mu.RUnlock()
	if ok {
		return row, nil
	}

	v, err, _ := o.group.Do(sourceID, func() (any, error) {
		row, err := o.fetchRow(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.rows[sourceID] = row
		o.mu.Unlock()
		return row, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

type osrmTableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
}

func (o *OSRM) fetchRow(ctx context.Context, sourceID string) ([]float64, error) {
	src, ok := o.sources[sourceID]
	if !ok {
		return nil, eris.Wrapf(ErrPairNotFound, "osrm: unknown source %s", sourceID)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osrm: rate limit wait")
	}

	q := url.Values{}
	q.Set("sources", "0")
	q.Set("destinations", o.destParam)
	q.Set("annotations", "duration")
	endpoint := o.baseURL + "/table/v1/" + o.profile + "/" + lonLat(src.Lon, src.Lat) + ";" + o.destCoords + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: create request")
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "osrm: table request for %s", sourceID)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("osrm: table request for %s: status %d: %s", sourceID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "osrm: decode table response")
	}
	if out.Code != "Ok" {
		return nil, eris.Errorf("osrm: table request for %s: %s %s", sourceID, out.Code, out.Message)
	}
	if len(out.Durations) != 1 || len(out.Durations[0]) != len(o.destIdx) {
		return nil, eris.Errorf("osrm: table response for %s has unexpected shape", sourceID)
	}

	row := make([]float64, len(out.Durations[0]))
	for i, d := range out.Durations[0] {
		if d == nil {
			row[i] = Sentinel
			continue
		}
		row[i] = *d
	}
	zap.L().Debug("osrm: fetched row", zap.String("source_id", sourceID), zap.Int("dests", len(row)))
	return row, nil
}

func burst(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

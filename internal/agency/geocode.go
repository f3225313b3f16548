package agency

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CensusOneLineURL is the Census Bureau single-address geocoding endpoint.
const CensusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"

const censusBenchmark = "Public_AR_Current"

// Geocoder resolves a service address to coordinates. ok is false when the
// address has no match.
type Geocoder interface {
	Geocode(ctx context.Context, req GeocodeRequest) (lat, lon float64, ok bool, err error)
}

// GeocodeResult is a geocoding request with its outcome.
type GeocodeResult struct {
	GeocodeRequest
	Latitude  float64
	Longitude float64
	Matched   bool
}

// CensusGeocoder queries the Census one-line address API.
type CensusGeocoder struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewCensusGeocoder returns a geocoder limited to rps requests per second.
// An empty baseURL uses CensusOneLineURL.
func NewCensusGeocoder(baseURL string, rps float64, client *http.Client) *CensusGeocoder {
	if baseURL == "" {
		baseURL = CensusOneLineURL
	}
	if rps <= 0 {
		rps = 10
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &CensusGeocoder{baseURL: baseURL, client: client, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// oneLine formats req as "street, city, state zip", skipping empty parts.
func oneLine(req GeocodeRequest) string {
	var parts []string
	for _, p := range []string{req.Address, req.City, strings.TrimSpace(req.State + " " + req.Zip)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Geocode implements Geocoder.
func (g *CensusGeocoder) Geocode(ctx context.Context, req GeocodeRequest) (float64, float64, bool, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, 0, false, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address":   {oneLine(req)},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, false, eris.Wrap(err, "geocode: build request")
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return 0, 0, false, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, 0, false, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	var body censusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, false, eris.Wrap(err, "geocode: parse response")
	}
	if len(body.Result.AddressMatches) == 0 {
		return 0, 0, false, nil
	}
	m := body.Result.AddressMatches[0]
	return m.Coordinates.Y, m.Coordinates.X, true, nil
}

// GeocodeAll resolves reqs in order. A request that fails is logged and left
// unmatched; only context cancellation stops the loop.
func GeocodeAll(ctx context.Context, g Geocoder, reqs []GeocodeRequest) ([]GeocodeResult, error) {
	out := make([]GeocodeResult, 0, len(reqs))
	matched := 0
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geocode: cancelled")
		}
		lat, lon, ok, err := g.Geocode(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
			}
			zap.L().Warn("geocode: request failed",
				zap.String("svc_id", req.SvcID),
				zap.String("address", req.Address),
				zap.Error(err),
			)
		}
		if ok {
			matched++
		}
		out = append(out, GeocodeResult{GeocodeRequest: req, Latitude: lat, Longitude: lon, Matched: ok})
	}

	zap.L().Info("geocode: complete", zap.Int("requests", len(reqs)), zap.Int("matched", matched))
	return out, nil
}

// WriteGeocodeResultsCSV writes results; unmatched rows have empty coordinates.
func WriteGeocodeResultsCSV(w io.Writer, results []GeocodeResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColSvcID, ColAddress, "City", "State", "Zip", "Latitude", "Longitude"}); err != nil {
		return eris.Wrap(err, "agency: write geocode header")
	}
	for _, r := range results {
		lat, lon := "", ""
		if r.Matched {
			lat = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
		}
		if err := cw.Write([]string{r.SvcID, r.Address, r.City, r.State, r.Zip, lat, lon}); err != nil {
			return eris.Wrap(err, "agency: write geocode row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "agency: flush geocode")
}

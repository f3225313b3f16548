package report

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/access-cli/internal/access"
)

// Resolution selects what one CDF sample represents.
type Resolution string

const (
	// ResolutionBlock counts each source once.
	ResolutionBlock Resolution = "block"
	// ResolutionPopulation counts each source once per resident.
	ResolutionPopulation Resolution = "population"
)

// ParseResolution validates a resolution name.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionBlock, ResolutionPopulation:
		return r, nil
	}
	return "", eris.Errorf("report: resolution must be block or population, got %q", s)
}

// CDFQuantiles are the probabilities reported for every series.
var CDFQuantiles = []float64{0.25, 0.5, 0.75, 0.9}

// Step is one point of a cumulative distribution: the fraction of samples
// at or below Minutes.
type Step struct {
	Minutes  float64 `json:"minutes"`
	Fraction float64 `json:"fraction"`
}

// Quantile is the sample value at probability P.
type Quantile struct {
	P       float64 `json:"p"`
	Minutes float64 `json:"minutes"`
}

// Series is the CDF of nearest-destination minutes for one category.
type Series struct {
	Category  string     `json:"category"`
	Samples   int        `json:"samples"`
	Unknown   int        `json:"unknown"`
	Mean      float64    `json:"mean"`
	Steps     []Step     `json:"steps"`
	Quantiles []Quantile `json:"quantiles"`
}

// PopulationWeighted expands a column so each known value appears once per
// resident of its source. Sources with population ≤ 0 contribute nothing.
func PopulationWeighted(column []access.Cell[float64], population func(sourceID string) int) []float64 {
	var out []float64
	for _, c := range column {
		if !c.Known {
			continue
		}
		for range max(population(c.Row), 0) {
			out = append(out, c.Value)
		}
	}
	return out
}

// CDF builds one series per category from the nearest-minutes table. Values
// above the upper bound are capped at it. When categories is empty every
// category of the result is used.
func CDF(res *access.Result, categories []string, resolution Resolution, population func(sourceID string) int) ([]Series, error) {
	if resolution == ResolutionPopulation && population == nil {
		return nil, eris.New("report: population resolution needs a population lookup")
	}
	if len(categories) == 0 {
		categories = res.Categories()
	}
	upper := res.UpperMinutes()

	out := make([]Series, 0, len(categories))
	for _, cat := range categories {
		column := res.Nearest.Column(cat)
		if column == nil {
			return nil, eris.Errorf("report: unknown category %q", cat)
		}

		s := Series{Category: cat}
		capped := make([]access.Cell[float64], 0, len(column))
		for _, c := range column {
			if !c.Known {
				s.Unknown++
				continue
			}
			c.Value = math.Min(c.Value, upper)
			capped = append(capped, c)
		}

		var x []float64
		if resolution == ResolutionPopulation {
			x = PopulationWeighted(capped, population)
		} else {
			x = make([]float64, len(capped))
			for i, c := range capped {
				x[i] = c.Value
			}
		}
		sort.Float64s(x)
		s.Samples = len(x)

		if len(x) > 0 {
			s.Mean = stat.Mean(x, nil)
			n := float64(len(x))
			// x is sorted, so the last index of each run gives the fraction <= v.
			for i, v := range x {
				if i+1 < len(x) && x[i+1] == v {
					continue
				}
				s.Steps = append(s.Steps, Step{Minutes: v, Fraction: float64(i+1) / n})
			}
			for _, p := range CDFQuantiles {
				s.Quantiles = append(s.Quantiles, Quantile{P: p, Minutes: stat.Quantile(p, stat.Empirical, x, nil)})
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteCDFCSV writes the steps of every series as category,minutes,fraction rows.
func WriteCDFCSV(w io.Writer, series []Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"category", "minutes", "fraction"}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, s := range series {
		for _, st := range s.Steps {
			rec := []string{s.Category, formatValue(st.Minutes), strconv.FormatFloat(st.Fraction, 'f', 6, 64)}
			if err := cw.Write(rec); err != nil {
				return eris.Wrapf(err, "report: write cdf %s", s.Category)
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

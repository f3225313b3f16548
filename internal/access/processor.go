// Package access computes per-source, per-category accessibility metrics from
// an all-pairs travel time scan: minutes to the nearest destination of each
// category and the count of destinations within an upper bound.
package access

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/points"
	"github.com/sells-group/access-cli/internal/traveltime"
)

// Policy selects which sources are voided after the scan.
type Policy string

const (
	// PolicyLastSentinel voids a source when the last time scanned for it is
	// negative. Results depend on dest order.
	PolicyLastSentinel Policy = "last"
	// PolicyAnySentinel voids a source when any time scanned for it is negative.
	PolicyAnySentinel Policy = "any"
)

// Options configures a Processor.
type Options struct {
	Mode         traveltime.Mode `validate:"required,oneof=drive walk bike"`
	UpperMinutes float64         `validate:"gt=0"`
	Policy       Policy          `validate:"omitempty,oneof=last any"`
	Workers      int             `validate:"gte=0"`
}

// Processor runs the accessibility scan. The upper bound is fixed for the
// lifetime of the processor.
type Processor struct {
	opts  Options
	upper float64
}

var validate = validator.New()

// NewProcessor validates opts and returns a Processor.
func NewProcessor(opts Options) (*Processor, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, eris.Wrap(err, "access: invalid options")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyLastSentinel
	}
	return &Processor{opts: opts, upper: opts.UpperMinutes * 60}, nil
}

// UpperSeconds returns the upper bound in seconds.
func (p *Processor) UpperSeconds() float64 { return p.upper }

// sourceRow is the private accumulator for one source.
type sourceRow struct {
	nearest []float64
	seen    []bool
	count   []int
	raw     float64
	scanned bool
	anyNeg  bool
	edges   []Edge
}

// Process scans every (source, dest) pair and returns the accessibility
// tables. Any provider failure abandons the whole run.
func (p *Processor) Process(ctx context.Context, sources *points.SourceSet, dests *points.DestSet, provider traveltime.Provider) (*Result, error) {
	var missing []string
	if provider == nil {
		missing = append(missing, "travel time provider")
	}
	if sources == nil {
		missing = append(missing, "sources")
	}
	if dests == nil {
		missing = append(missing, "dests")
	}
	if len(missing) > 0 {
		return nil, &PreconditionError{Missing: missing}
	}

	start := time.Now()
	categories := dests.Categories()
	catIdx := make(map[string]int, len(categories))
	for i, c := range categories {
		catIdx[c] = i
	}
	destIDs := dests.IDs()
	destCat := make([]int, len(destIDs))
	for i, id := range destIDs {
		destCat[i] = catIdx[dests.Category(id)]
	}
	sourceIDs := sources.IDs()

	log := zap.L().With(
		zap.String("mode", string(p.opts.Mode)),
		zap.Float64("upper_seconds", p.upper),
	)
	log.Info("access: scanning pairs",
		zap.Int("sources", len(sourceIDs)),
		zap.Int("dests", len(destIDs)),
		zap.Int("categories", len(categories)),
		zap.Int("workers", p.opts.Workers),
	)

	rows := make([]sourceRow, len(sourceIDs))
	scan := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "access: scan cancelled")
		}
		src := sourceIDs[i]
		row := sourceRow{
			nearest: make([]float64, len(categories)),
			seen:    make([]bool, len(categories)),
			count:   make([]int, len(categories)),
		}
		for j, dst := range destIDs {
			t, err := provider.Time(ctx, src, dst)
			if err != nil {
				return &ProviderError{SourceID: src, DestID: dst, Err: err}
			}
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return &ProviderError{SourceID: src, DestID: dst, Err: eris.Errorf("non-numeric time %v", t)}
			}

			c := destCat[j]
			if t >= 0 {
				if !row.seen[c] || t < row.nearest[c] {
					row.nearest[c] = t
					row.seen[c] = true
				}
				if t <= p.upper {
					row.count[c]++
					row.edges = append(row.edges, Edge{ID: dst, Seconds: t})
				}
			} else {
				row.anyNeg = true
			}
			row.raw = t
			row.scanned = true
		}
		rows[i] = row
		return nil
	}

	if p.opts.Workers <= 1 {
		for i := range sourceIDs {
			if err := scan(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Workers)
		for i := range sourceIDs {
			g.Go(func() error { return scan(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	res := p.assemble(sourceIDs, categories, rows)
	res.Elapsed = time.Since(start)

	log.Info("access: scan complete",
		zap.Int("voided", len(res.voided)),
		zap.String("policy", string(p.opts.Policy)),
		zap.Duration("elapsed", res.Elapsed),
	)
	if len(res.voided) > 0 {
		log.Debug("access: voided sources", zap.String("ids", strings.Join(res.voided, ",")))
	}
	return res, nil
}

func (p *Processor) voided(row *sourceRow) bool {
	if p.opts.Policy == PolicyAnySentinel {
		return row.anyNeg
	}
	return row.scanned && row.raw < 0
}

// assemble builds the immutable Result from per-source accumulators in source order.
func (p *Processor) assemble(sourceIDs, categories []string, rows []sourceRow) *Result {
	res := &Result{
		Mode:         p.opts.Mode,
		UpperSeconds: p.upper,
		Policy:       p.opts.Policy,
		Nearest:      newTable[float64](sourceIDs, categories),
		InRange:      newTable[int](sourceIDs, categories),
		categories:   categories,
		sourceIDs:    sourceIDs,
		raw:          make(map[string]float64, len(sourceIDs)),
		sourceEdges:  make(map[string][]Edge, len(sourceIDs)),
		destEdges:    make(map[string][]Edge),
	}

	for r, src := range sourceIDs {
		row := &rows[r]
		if row.scanned {
			res.raw[src] = row.raw
		}
		if len(row.edges) > 0 {
			res.sourceEdges[src] = row.edges
			for _, e := range row.edges {
				res.destEdges[e.ID] = append(res.destEdges[e.ID], Edge{ID: src, Seconds: e.Seconds})
			}
		}

		if p.voided(row) {
			res.voided = append(res.voided, src)
			continue
		}
		for c := range categories {
			res.Nearest.set(r, c, row.nearest[c]/60, row.seen[c])
			res.InRange.set(r, c, row.count[c], true)
		}
	}
	return res
}

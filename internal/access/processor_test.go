package access

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/points"
	"github.com/sells-group/access-cli/internal/traveltime"
)

func sourceSet(t *testing.T, ids ...string) *points.SourceSet {
	t.Helper()
	pts := make([]points.SourcePoint, len(ids))
	for i, id := range ids {
		pts[i] = points.SourcePoint{ID: id, Population: 1, LowerArealUnit: points.DefaultLowerArealUnit}
	}
	s, err := points.NewSourceSet("sources.csv", pts)
	require.NoError(t, err)
	return s
}

// destSet takes id=category pairs.
func destSet(t *testing.T, subset []string, pairs ...[2]string) *points.DestSet {
	t.Helper()
	pts := make([]points.DestPoint, len(pairs))
	for i, p := range pairs {
		pts[i] = points.DestPoint{ID: p[0], Category: p[1], Target: math.NaN()}
	}
	d, err := points.NewDestSet("dests.csv", pts, subset)
	require.NoError(t, err)
	return d
}

func matrix(times map[[2]string]float64) *traveltime.Matrix {
	m := traveltime.NewMatrix()
	for k, v := range times {
		m.Set(k[0], k[1], v)
	}
	return m
}

func newProcessor(t *testing.T, opts Options) *Processor {
	t.Helper()
	if opts.Mode == "" {
		opts.Mode = traveltime.ModeWalk
	}
	if opts.UpperMinutes == 0 {
		opts.UpperMinutes = 30
	}
	p, err := NewProcessor(opts)
	require.NoError(t, err)
	return p
}

func scenario(t *testing.T) (*points.SourceSet, *points.DestSet, traveltime.Provider) {
	t.Helper()
	sources := sourceSet(t, "S1", "S2")
	dests := destSet(t, nil, [2]string{"D1", "X"}, [2]string{"D2", "Y"})
	provider := matrix(map[[2]string]float64{
		{"S1", "D1"}: 120,
		{"S1", "D2"}: 2000,
		{"S2", "D1"}: -1,
		{"S2", "D2"}: 300,
	})
	return sources, dests, provider
}

func TestProcess_Scenario(t *testing.T) {
	sources, dests, provider := scenario(t)
	p := newProcessor(t, Options{UpperMinutes: 30})

	res, err := p.Process(context.Background(), sources, dests, provider)
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y"}, res.Categories())
	assert.Equal(t, []string{"S1", "S2"}, res.SourceIDs())
	assert.Equal(t, 1800.0, res.UpperSeconds)
	assert.Equal(t, PolicyLastSentinel, res.Policy)

	v, ok := res.Nearest.Value("S1", "X")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	v, ok = res.Nearest.Value("S1", "Y")
	require.True(t, ok)
	assert.InDelta(t, 33.333, v, 0.001)

	n, ok := res.InRange.Value("S1", "X")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	n, ok = res.InRange.Value("S1", "Y")
	require.True(t, ok)
	assert.Equal(t, 0, n)

	// S2's last raw time is 300, so it is not voided.
	assert.Empty(t, res.Voided())
	_, ok = res.Nearest.Value("S2", "X")
	assert.False(t, ok)
	v, ok = res.Nearest.Value("S2", "Y")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
	n, ok = res.InRange.Value("S2", "X")
	require.True(t, ok)
	assert.Equal(t, 0, n)
	n, ok = res.InRange.Value("S2", "Y")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	raw, ok := res.RawTime("S1")
	require.True(t, ok)
	assert.Equal(t, 2000.0, raw)
	raw, ok = res.RawTime("S2")
	require.True(t, ok)
	assert.Equal(t, 300.0, raw)

	assert.Equal(t, []Edge{{ID: "D1", Seconds: 120}}, res.SourceEdges("S1"))
	assert.Equal(t, []Edge{{ID: "D2", Seconds: 300}}, res.SourceEdges("S2"))
	assert.Equal(t, []Edge{{ID: "S2", Seconds: 300}}, res.DestEdges("D2"))
	assert.Empty(t, res.DestEdges("D9"))
}

func TestProcess_SentinelPolicies(t *testing.T) {
	sources := sourceSet(t, "A", "B", "C")
	dests := destSet(t, nil, [2]string{"D1", "X"}, [2]string{"D2", "Y"})
	provider := matrix(map[[2]string]float64{
		{"A", "D1"}: -1, {"A", "D2"}: 60, // negative first
		{"B", "D1"}: 60, {"B", "D2"}: -1, // negative last
		{"C", "D1"}: 60, {"C", "D2"}: 60,
	})

	tests := []struct {
		policy Policy
		voided []string
	}{
		{PolicyLastSentinel, []string{"B"}},
		{PolicyAnySentinel, []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			p := newProcessor(t, Options{Policy: tt.policy})
			res, err := p.Process(context.Background(), sources, dests, provider)
			require.NoError(t, err)
			assert.Equal(t, tt.voided, res.Voided())

			for _, src := range tt.voided {
				for _, c := range res.Categories() {
					_, ok := res.Nearest.Value(src, c)
					assert.False(t, ok, "nearest %s/%s", src, c)
					_, ok = res.InRange.Value(src, c)
					assert.False(t, ok, "count %s/%s", src, c)
				}
			}
			n, ok := res.InRange.Value("C", "X")
			require.True(t, ok)
			assert.Equal(t, 1, n)
		})
	}
}

func TestProcess_NearestKeepsMinimum(t *testing.T) {
	sources := sourceSet(t, "S")
	dests := destSet(t, nil,
		[2]string{"D1", "X"}, [2]string{"D2", "X"}, [2]string{"D3", "X"}, [2]string{"D4", "X"},
	)
	provider := matrix(map[[2]string]float64{
		{"S", "D1"}: 600, {"S", "D2"}: 120, {"S", "D3"}: -1, {"S", "D4"}: 3600,
	})

	p := newProcessor(t, Options{UpperMinutes: 15})
	res, err := p.Process(context.Background(), sources, dests, provider)
	require.NoError(t, err)

	v, ok := res.Nearest.Value("S", "X")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	n, _ := res.InRange.Value("S", "X")
	assert.Equal(t, 2, n)
	assert.Equal(t, []Edge{{ID: "D1", Seconds: 600}, {ID: "D2", Seconds: 120}}, res.SourceEdges("S"))
}

func TestProcess_UpperBoundInclusive(t *testing.T) {
	sources := sourceSet(t, "S")
	dests := destSet(t, nil, [2]string{"D1", "X"}, [2]string{"D2", "X"})
	provider := matrix(map[[2]string]float64{{"S", "D1"}: 600, {"S", "D2"}: 600.5})

	p := newProcessor(t, Options{UpperMinutes: 10})
	res, err := p.Process(context.Background(), sources, dests, provider)
	require.NoError(t, err)

	n, _ := res.InRange.Value("S", "X")
	assert.Equal(t, 1, n)
}

func TestProcess_WorkerCountDoesNotChangeOutput(t *testing.T) {
	var srcIDs []string
	for i := range 25 {
		srcIDs = append(srcIDs, fmt.Sprintf("S%02d", i))
	}
	var pairs [][2]string
	for i := range 12 {
		pairs = append(pairs, [2]string{fmt.Sprintf("D%02d", i), fmt.Sprintf("C%d", i%4)})
	}
	sources := sourceSet(t, srcIDs...)
	dests := destSet(t, nil, pairs...)

	provider := traveltime.FuncProvider(func(_ context.Context, src, dst string) (float64, error) {
		var h int
		for _, r := range src + dst {
			h = h*31 + int(r)
		}
		h %= 4000
		if h < 0 {
			h = -h
		}
		if h%7 == 0 {
			return traveltime.Sentinel, nil
		}
		return float64(h), nil
	})

	ctx := context.Background()
	serial, err := newProcessor(t, Options{Workers: 1}).Process(ctx, sources, dests, provider)
	require.NoError(t, err)
	again, err := newProcessor(t, Options{Workers: 1}).Process(ctx, sources, dests, provider)
	require.NoError(t, err)
	parallel, err := newProcessor(t, Options{Workers: 8}).Process(ctx, sources, dests, provider)
	require.NoError(t, err)

	for _, other := range []*Result{again, parallel} {
		assert.Equal(t, serial.Nearest, other.Nearest)
		assert.Equal(t, serial.InRange, other.InRange)
		assert.Equal(t, serial.RawTimes(), other.RawTimes())
		assert.Equal(t, serial.Voided(), other.Voided())
		for _, d := range dests.IDs() {
			assert.Equal(t, serial.DestEdges(d), other.DestEdges(d))
		}
	}
}

func TestProcess_Invariants(t *testing.T) {
	sources, dests, provider := scenario(t)
	res, err := newProcessor(t, Options{}).Process(context.Background(), sources, dests, provider)
	require.NoError(t, err)

	for _, src := range res.SourceIDs() {
		for _, c := range res.Categories() {
			n, ok := res.InRange.Value(src, c)
			if ok {
				assert.GreaterOrEqual(t, n, 0)
			}
			if v, ok := res.Nearest.Value(src, c); ok {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		}
	}
	assert.Len(t, res.Nearest.Rows(), 2)
	assert.Len(t, res.InRange.Columns(), 2)
}

func TestProcess_SubsetFilter(t *testing.T) {
	sources := sourceSet(t, "S1")
	dests := destSet(t, []string{"X"}, [2]string{"D1", "X"}, [2]string{"D2", "Y"})
	provider := matrix(map[[2]string]float64{{"S1", "D1"}: 60})

	res, err := newProcessor(t, Options{}).Process(context.Background(), sources, dests, provider)
	require.NoError(t, err)

	assert.Equal(t, []string{"X"}, res.Categories())
	_, ok := res.InRange.Value("S1", "Y")
	assert.False(t, ok)
	assert.Nil(t, res.Nearest.Column("Y"))
}

func TestProcess_NoDests(t *testing.T) {
	sources := sourceSet(t, "S1")
	dests := destSet(t, nil)

	res, err := newProcessor(t, Options{}).Process(context.Background(), sources, dests, matrix(nil))
	require.NoError(t, err)
	assert.Empty(t, res.Categories())
	_, ok := res.RawTime("S1")
	assert.False(t, ok)
	assert.Empty(t, res.Voided())
}

func TestProcess_Preconditions(t *testing.T) {
	p := newProcessor(t, Options{})
	sources, dests, provider := scenario(t)

	_, err := p.Process(context.Background(), nil, dests, nil)
	var pre *PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, []string{"travel time provider", "sources"}, pre.Missing)

	_, err = p.Process(context.Background(), sources, nil, provider)
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, []string{"dests"}, pre.Missing)
}

func TestProcess_ProviderErrors(t *testing.T) {
	sources, dests, _ := scenario(t)
	boom := errors.New("boom")

	tests := []struct {
		name     string
		provider traveltime.Provider
		cause    error
	}{
		{
			name: "provider failure",
			provider: traveltime.FuncProvider(func(_ context.Context, src, dst string) (float64, error) {
				if src == "S2" && dst == "D2" {
					return 0, boom
				}
				return 10, nil
			}),
			cause: boom,
		},
		{
			name:     "missing pair",
			provider: matrix(map[[2]string]float64{{"S1", "D1"}: 10, {"S1", "D2"}: 10, {"S2", "D1"}: 10}),
			cause:    traveltime.ErrPairNotFound,
		},
		{
			name: "nan",
			provider: traveltime.FuncProvider(func(_ context.Context, src, dst string) (float64, error) {
				if src == "S2" && dst == "D2" {
					return math.NaN(), nil
				}
				return 10, nil
			}),
		},
	}
	for _, tt := range tests {
		for _, workers := range []int{1, 4} {
			t.Run(fmt.Sprintf("%s/workers=%d", tt.name, workers), func(t *testing.T) {
				res, err := newProcessor(t, Options{Workers: workers}).Process(context.Background(), sources, dests, tt.provider)
				assert.Nil(t, res)
				var perr *ProviderError
				require.True(t, errors.As(err, &perr), "got %v", err)
				assert.Equal(t, "S2", perr.SourceID)
				assert.Equal(t, "D2", perr.DestID)
				if tt.cause != nil {
					assert.True(t, errors.Is(err, tt.cause))
				}
			})
		}
	}
}

func TestProcess_Cancelled(t *testing.T) {
	sources, dests, provider := scenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newProcessor(t, Options{}).Process(ctx, sources, dests, provider)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewProcessor_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"bad mode", Options{Mode: "boat", UpperMinutes: 30}},
		{"missing mode", Options{UpperMinutes: 30}},
		{"zero upper", Options{Mode: traveltime.ModeDrive}},
		{"bad policy", Options{Mode: traveltime.ModeDrive, UpperMinutes: 30, Policy: "first"}},
		{"negative workers", Options{Mode: traveltime.ModeDrive, UpperMinutes: 30, Workers: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "access: invalid options")
		})
	}

	p, err := NewProcessor(Options{Mode: traveltime.ModeBike, UpperMinutes: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 90.0, p.UpperSeconds())
}

func TestTable_Accessors(t *testing.T) {
	tbl := newTable[int]([]string{"r1", "r2"}, []string{"a", "b"})
	tbl.set(0, 1, 7, true)
	tbl.set(1, 0, 3, false)

	v, ok := tbl.Value("r1", "b")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = tbl.Value("r2", "a")
	assert.False(t, ok)
	_, ok = tbl.Value("r9", "a")
	assert.False(t, ok)

	assert.Equal(t, []Cell[int]{{Row: "r1", Value: 0}, {Row: "r2", Value: 3}}, tbl.Column("a"))
	assert.Equal(t, []Cell[int]{{Row: "a"}, {Row: "b", Value: 7, Known: true}}, tbl.Row("r1"))
	assert.Nil(t, tbl.Row("zz"))

	rows := tbl.Rows()
	rows[0] = "mutated"
	assert.Equal(t, []string{"r1", "r2"}, tbl.Rows())
}

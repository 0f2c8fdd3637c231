package nearby

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringPayload(t *testing.T, rings [][][]float64) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"rings": rings})
	require.NoError(t, err)
	return raw
}

// unit square, closed
func squareRing() [][]float64 {
	return [][]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
}

func TestDecodeBoundary_ValidSquare(t *testing.T) {
	p := &CatchmentPolygon{LocationID: 1, DriveTime: 5, Raw: ringPayload(t, [][][]float64{squareRing()})}
	require.NoError(t, p.DecodeBoundary())
	assert.Equal(t, 5, p.VertexCount())
}

func TestDecodeBoundary_OpenRingGetsClosed(t *testing.T) {
	open := [][]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{open})}
	require.NoError(t, p.DecodeBoundary())
	assert.Equal(t, 5, p.VertexCount())
}

func TestDecodeBoundary_IgnoresInnerRings(t *testing.T) {
	hole := [][]float64{{0.4, 0.4}, {0.4, 0.6}, {0.6, 0.6}, {0.6, 0.4}, {0.4, 0.4}}
	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{squareRing(), hole})}
	require.NoError(t, p.DecodeBoundary())

	// A point inside the hole still counts: only the outer ring matters.
	assert.True(t, p.Contains(0.5, 0.5))
}

func TestDecodeBoundary_Unusable(t *testing.T) {
	bowtie := [][]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}
	degenerate := [][]float64{{0, 0}, {1, 1}, {0, 0}}
	collapsed := [][]float64{{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty payload", nil},
		{"malformed json", []byte(`{"rings": [[`)},
		{"no rings key", []byte(`{"paths": []}`)},
		{"empty rings", ringPayload(t, [][][]float64{})},
		{"empty outer ring", ringPayload(t, [][][]float64{{}})},
		{"too few points", ringPayload(t, [][][]float64{degenerate})},
		{"zero area", ringPayload(t, [][][]float64{collapsed})},
		{"self-intersecting", ringPayload(t, [][][]float64{bowtie})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &CatchmentPolygon{LocationID: 7, DriveTime: 10, Raw: tt.raw}
			err := p.DecodeBoundary()
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrNoPolygon), "expected ErrNoPolygon, got: %v", err)
		})
	}
}

func TestContains_InteriorAndExterior(t *testing.T) {
	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{squareRing()})}
	require.NoError(t, p.DecodeBoundary())

	assert.True(t, p.Contains(0.5, 0.5))
	assert.False(t, p.Contains(1.5, 0.5))
	assert.False(t, p.Contains(-0.1, -0.1))
}

func TestContains_BoundaryIsInclusive(t *testing.T) {
	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{squareRing()})}
	require.NoError(t, p.DecodeBoundary())

	// Vertex, edge midpoint, and edge interior all count as members.
	assert.True(t, p.Contains(0, 0))
	assert.True(t, p.Contains(0.5, 0))
	assert.True(t, p.Contains(1, 0.25))
}

func TestContains_UndecodedPolygon(t *testing.T) {
	p := &CatchmentPolygon{}
	assert.False(t, p.Contains(0.5, 0.5))
	assert.Equal(t, 0, p.VertexCount())
}

func TestDecodeBoundary_ExtraCoordinateDimensions(t *testing.T) {
	// Providers may include Z values; only x and y are used.
	ring := [][]float64{{0, 0, 10}, {0, 1, 10}, {1, 1, 10}, {1, 0, 10}, {0, 0, 10}}
	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{ring})}
	require.NoError(t, p.DecodeBoundary())
	assert.True(t, p.Contains(0.5, 0.5))
}

func TestDecodeBoundary_RealisticRing(t *testing.T) {
	// Rough drive-time blob around a center point.
	var ring [][]float64
	center := [2]float64{-77.03, 38.89}
	offsets := [][2]float64{
		{0.05, 0}, {0.04, 0.03}, {0.01, 0.05}, {-0.03, 0.04},
		{-0.05, 0.01}, {-0.04, -0.03}, {0, -0.05}, {0.03, -0.04},
	}
	for _, o := range offsets {
		ring = append(ring, []float64{center[0] + o[0], center[1] + o[1]})
	}
	ring = append(ring, ring[0])

	p := &CatchmentPolygon{Raw: ringPayload(t, [][][]float64{ring})}
	require.NoError(t, p.DecodeBoundary())

	assert.True(t, p.Contains(center[0], center[1]))
	assert.False(t, p.Contains(center[0]+1, center[1]))
}

func TestSegmentsCross(t *testing.T) {
	// Proper crossing.
	assert.True(t, segmentsCross(0, 0, 2, 2, 0, 2, 2, 0))
	// Parallel.
	assert.False(t, segmentsCross(0, 0, 1, 0, 0, 1, 1, 1))
	// Shared endpoint does not count.
	assert.False(t, segmentsCross(0, 0, 1, 1, 1, 1, 2, 0))
	// Collinear touch does not count.
	assert.False(t, segmentsCross(0, 0, 2, 0, 1, 0, 3, 0))
}

func ExampleCatchmentPolygon_Contains() {
	raw, _ := json.Marshal(map[string]any{
		"rings": [][][]float64{{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}},
	})
	p := &CatchmentPolygon{Raw: raw}
	if err := p.DecodeBoundary(); err != nil {
		panic(err)
	}
	fmt.Println(p.Contains(1, 1), p.Contains(3, 3))
	// Output: true false
}

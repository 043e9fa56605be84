package knn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceFunctions(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 0.0, float64(Dot(a, b)), 1e-6)
	assert.InDelta(t, 2.0, float64(SquaredL2(a, b)), 1e-6)
	assert.InDelta(t, 0.0, float64(Cosine(a, b)), 1e-6)
	assert.InDelta(t, 1.0, float64(Cosine(a, a)), 1e-6)
}

func TestFlat_AddValidation(t *testing.T) {
	f := NewFlat(MetricCosine)

	assert.Error(t, f.Add("a", nil))

	require.NoError(t, f.Add("a", []float32{1, 0}))
	assert.Error(t, f.Add("b", []float32{1, 0, 0}))
}

func TestFlat_SearchCosine(t *testing.T) {
	f := NewFlat(MetricCosine)
	require.NoError(t, f.Add("x", []float32{1, 0}))
	require.NoError(t, f.Add("y", []float32{0, 1}))
	require.NoError(t, f.Add("xy", []float32{1, 1}))

	hits, err := f.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x", string(hits[0].ID))
	assert.Equal(t, "xy", string(hits[1].ID))
}

func TestFlat_SearchL2LowerIsBetter(t *testing.T) {
	f := NewFlat(MetricL2)
	require.NoError(t, f.Add("near", []float32{1, 1}))
	require.NoError(t, f.Add("far", []float32{10, 10}))

	hits, err := f.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", string(hits[0].ID))
}

func TestFlat_SearchInvalidArgs(t *testing.T) {
	f := NewFlat(MetricCosine)
	require.NoError(t, f.Add("a", []float32{1, 0}))

	_, err := f.Search([]float32{1, 0}, 0)
	assert.Error(t, err)

	_, err = f.Search([]float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestFlat_UpdateReplacesVector(t *testing.T) {
	f := NewFlat(MetricCosine)
	require.NoError(t, f.Add("a", []float32{1, 0}))
	require.NoError(t, f.Add("a", []float32{0, 1}))

	assert.Equal(t, 1, f.Len())
	v, ok := f.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, v)
}

func TestFlat_DeleteAndReset(t *testing.T) {
	f := NewFlat(MetricCosine)
	require.NoError(t, f.Add("a", []float32{1, 0}))

	f.Delete("a")
	f.Delete("a")
	assert.Zero(t, f.Len())

	// Reset forgets the dimension.
	require.NoError(t, f.Add("b", []float32{1, 0}))
	f.Reset()
	assert.NoError(t, f.Add("c", []float32{1, 2, 3}))
}

func TestFlat_GetReturnsCopy(t *testing.T) {
	f := NewFlat(MetricCosine)
	require.NoError(t, f.Add("a", []float32{1, 0}))

	v, ok := f.Get("a")
	require.True(t, ok)
	v[0] = 99

	again, _ := f.Get("a")
	assert.Equal(t, float32(1), again[0])
}

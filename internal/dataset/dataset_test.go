package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRejectsInconsistentPointShape(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("iq", []complex128{1 + 0i}))
	err := d.Append("iq", []complex128{1, 2})
	assert.Error(t, err)
}

func TestReshapeLaysOutCompletedPointsInOrder(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("iq", []complex128{1 + 1i}))
	require.NoError(t, d.Append("iq", []complex128{2 + 2i}))
	require.NoError(t, d.Append("iq", []complex128{3 + 3i}))

	r, err := d.Reshape("iq", []int{3})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, r.Shape)
	assert.Equal(t, []complex128{1 + 1i, 2 + 2i, 3 + 3i}, r.Data)
}

func TestReshapeZeroFillsIncompleteSweep(t *testing.T) {
	// S4: cancellation mid-run with 2 of 10 points completed.
	d := New()
	require.NoError(t, d.Append("iq", []complex128{1 + 1i}))
	require.NoError(t, d.Append("iq", []complex128{2 + 2i}))

	r, err := d.Reshape("iq", []int{10})
	require.NoError(t, err)
	require.Len(t, r.Data, 10)
	assert.Equal(t, complex128(1+1i), r.Data[0])
	assert.Equal(t, complex128(2+2i), r.Data[1])
	for i := 2; i < 10; i++ {
		assert.Equal(t, complex128(0), r.Data[i], "point %d beyond the completed prefix must be zero-filled", i)
	}
}

func TestReshapeMultiAxisShape(t *testing.T) {
	d := New()
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Append("iq", []complex128{complex(float64(i), 0)}))
	}
	r, err := d.Reshape("iq", []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, r.Shape)
	assert.Len(t, r.Data, 4)
}

func TestFlattenReproducesReshapeDataUpToCompletedPrefix(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("iq", []complex128{9 + 9i}))

	r, err := d.Reshape("iq", []int{5})
	require.NoError(t, err)

	flat := Flatten(r)
	assert.Equal(t, complex128(9+9i), flat[0])
	for i := 1; i < 5; i++ {
		assert.Equal(t, complex128(0), flat[i])
	}
}

func TestReshapeUnknownSignalErrors(t *testing.T) {
	d := New()
	_, err := d.Reshape("missing", []int{1})
	assert.Error(t, err)
}

func TestCountAndSignals(t *testing.T) {
	d := New()
	assert.Equal(t, 0, d.Count("iq"))
	require.NoError(t, d.Append("iq", []complex128{1}))
	require.NoError(t, d.Append("amp", []complex128{1, 2}))
	assert.Equal(t, 1, d.Count("iq"))
	assert.ElementsMatch(t, []string{"iq", "amp"}, d.Signals())
}

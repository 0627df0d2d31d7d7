package attendance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReferenceCacheKeepsOrder(t *testing.T) {
	refs := []StudentReference{
		{ID: "7", Descriptor: descriptor(1, 2)},
		{ID: "3", Descriptor: descriptor(3, 4)},
	}
	c, err := BuildReferenceCache(refs, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"7", "3"}, c.IDs())
	assert.Equal(t, descriptor(3, 4), c.Descriptor(1))
	assert.True(t, c.Contains("3"))
	assert.False(t, c.Contains("4"))

	// Der Cache darf sich nicht mit den Eingabedaten verändern.
	refs[0].Descriptor[0] = 42
	assert.Equal(t, float32(1), c.Descriptor(0)[0])
}

func TestBuildReferenceCacheIsDeterministic(t *testing.T) {
	refs := []StudentReference{
		{ID: "1", Descriptor: descriptor(0.1, 0.2)},
		{ID: "2", Descriptor: descriptor(0.3, 0.4)},
	}
	a, err := BuildReferenceCache(refs, 0)
	require.NoError(t, err)
	b, err := BuildReferenceCache(refs, 0)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestBuildReferenceCacheRejectsMalformedData(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		refs []StudentReference
		dim  int
	}{
		{"empty id", []StudentReference{{ID: "", Descriptor: descriptor(1)}}, 0},
		{"duplicate id", []StudentReference{{ID: "1", Descriptor: descriptor(1)}, {ID: "1", Descriptor: descriptor(2)}}, 0},
		{"missing descriptor", []StudentReference{{ID: "1"}}, 0},
		{"wrong length", []StudentReference{{ID: "1", Descriptor: descriptor(1, 2, 3)}}, 2},
		{"mixed length", []StudentReference{{ID: "1", Descriptor: descriptor(1, 2)}, {ID: "2", Descriptor: descriptor(1)}}, 0},
		{"nan", []StudentReference{{ID: "1", Descriptor: descriptor(nan, 1)}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildReferenceCache(tt.refs, tt.dim)
			assert.Error(t, err)
		})
	}
}

func TestEmptyCache(t *testing.T) {
	c := emptyCache()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.IDs())

	var nilCache *ReferenceCache
	assert.Equal(t, 0, nilCache.Len())
	assert.False(t, nilCache.Contains("1"))
}

package partition

import (
	"testing"

	"github.com/datapunk/lake/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetKnownSystems(t *testing.T) {
	r := NewRegistry()
	for _, sys := range []types.GridSystem{types.GridGeohash, types.GridQuadkey, types.GridS2, types.GridH3} {
		g, err := r.Get(sys)
		require.NoError(t, err)
		assert.Equal(t, sys, g.System())
	}
}

func TestRegistryGetUnsupportedSystem(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(types.GridRTree)
	assert.Error(t, err)
}

func TestKeyForBuildsGridKey(t *testing.T) {
	p := types.GeoPoint{Lat: 40.7128, Lon: -74.0060}
	key, err := KeyFor(types.GridGeohash, p, 7)
	require.NoError(t, err)
	assert.Equal(t, types.PartitionKeyGrid, key.Kind)
	assert.Equal(t, types.GridGeohash, key.System)
	assert.Len(t, key.CellID, 7)
}

func TestGeohashGridChildrenAndParent(t *testing.T) {
	r := NewRegistry()
	g, err := r.Get(types.GridGeohash)
	require.NoError(t, err)

	cell := g.Encode(types.GeoPoint{Lat: 10, Lon: 10}, 5)
	children := g.Children(cell)
	assert.Len(t, children, 32)

	parent, err := g.Parent(children[0])
	require.NoError(t, err)
	assert.Equal(t, cell, parent)
}

func TestQuadkeyGridNeighborsExcludesSelf(t *testing.T) {
	r := NewRegistry()
	g, err := r.Get(types.GridQuadkey)
	require.NoError(t, err)

	cell := g.Encode(types.GeoPoint{Lat: 10, Lon: 10}, 6)
	neighbors, err := g.Neighbors(cell)
	require.NoError(t, err)
	assert.NotContains(t, neighbors, cell)
}

func TestH3GridNeighborsUnsupported(t *testing.T) {
	r := NewRegistry()
	g, err := r.Get(types.GridH3)
	require.NoError(t, err)

	_, err = g.Neighbors("h3-5-1-1")
	assert.Error(t, err)
}

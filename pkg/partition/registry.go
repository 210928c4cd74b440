package partition

import (
	"fmt"

	"github.com/datapunk/lake/pkg/types"
)

// Grid is the contract every spatial grid system satisfies: encode a point
// to a cell, decode a cell back to its center/extent, and walk the cell
// hierarchy (neighbors at the same level, parent/children across levels).
type Grid interface {
	System() types.GridSystem
	Encode(p types.GeoPoint, precision int) string
	Neighbors(cellID string) ([]string, error)
	Children(cellID string) []string
	Parent(cellID string) (string, error)
}

type geohashGrid struct{}

func (geohashGrid) System() types.GridSystem { return types.GridGeohash }
func (geohashGrid) Encode(p types.GeoPoint, precision int) string {
	return EncodeGeohash(p.Lat, p.Lon, precision)
}
func (geohashGrid) Neighbors(cellID string) ([]string, error) { return GeohashNeighbors(cellID) }
func (geohashGrid) Children(cellID string) []string {
	out := make([]string, 0, len(geohashAlphabet))
	for _, c := range geohashAlphabet {
		out = append(out, cellID+string(c))
	}
	return out
}
func (geohashGrid) Parent(cellID string) (string, error) {
	if len(cellID) == 0 {
		return "", fmt.Errorf("cannot take parent of root geohash cell")
	}
	return cellID[:len(cellID)-1], nil
}

type quadkeyGrid struct{}

func (quadkeyGrid) System() types.GridSystem { return types.GridQuadkey }
func (quadkeyGrid) Encode(p types.GeoPoint, precision int) string {
	return EncodeQuadkey(p.Lat, p.Lon, precision)
}
func (quadkeyGrid) Neighbors(cellID string) ([]string, error) {
	parent, err := QuadkeyParent(cellID)
	if err != nil {
		return nil, err
	}
	siblings := QuadkeyChildren(parent)
	out := make([]string, 0, 3)
	for _, s := range siblings {
		if s != cellID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (quadkeyGrid) Children(cellID string) []string { return QuadkeyChildren(cellID) }
func (quadkeyGrid) Parent(cellID string) (string, error) { return QuadkeyParent(cellID) }

type s2Grid struct{}

func (s2Grid) System() types.GridSystem { return types.GridS2 }
func (s2Grid) Encode(p types.GeoPoint, precision int) string {
	return EncodeS2Like(p.Lat, p.Lon, precision)
}
func (s2Grid) Neighbors(cellID string) ([]string, error) { return (quadkeyGrid{}).Neighbors(cellID) }
func (s2Grid) Children(cellID string) []string           { return (quadkeyGrid{}).Children(cellID) }
func (s2Grid) Parent(cellID string) (string, error)       { return (quadkeyGrid{}).Parent(cellID) }

type h3Grid struct{}

func (h3Grid) System() types.GridSystem { return types.GridH3 }
func (h3Grid) Encode(p types.GeoPoint, precision int) string {
	return EncodeH3Like(p.Lat, p.Lon, precision)
}
func (h3Grid) Neighbors(cellID string) ([]string, error) {
	return nil, fmt.Errorf("h3-like grid does not support neighbor lookup from a bare cell ID")
}
func (h3Grid) Children(cellID string) []string      { return nil }
func (h3Grid) Parent(cellID string) (string, error) { return "", fmt.Errorf("h3-like grid does not support parent lookup from a bare cell ID") }

// Registry resolves a types.GridSystem to its Grid implementation.
type Registry struct {
	grids map[types.GridSystem]Grid
}

// NewRegistry builds a Registry with every supported grid system wired in.
func NewRegistry() *Registry {
	r := &Registry{grids: make(map[types.GridSystem]Grid)}
	for _, g := range []Grid{geohashGrid{}, quadkeyGrid{}, s2Grid{}, h3Grid{}} {
		r.grids[g.System()] = g
	}
	return r
}

// Get returns the Grid for system, or an error if unsupported.
func (r *Registry) Get(system types.GridSystem) (Grid, error) {
	g, ok := r.grids[system]
	if !ok {
		return nil, fmt.Errorf("unsupported grid system: %s", system)
	}
	return g, nil
}

// KeyFor builds a types.PartitionKey of kind Grid for p under system at the
// given precision.
func KeyFor(system types.GridSystem, p types.GeoPoint, precision int) (types.PartitionKey, error) {
	r := NewRegistry()
	g, err := r.Get(system)
	if err != nil {
		return types.PartitionKey{}, err
	}
	return types.PartitionKey{
		Kind:      types.PartitionKeyGrid,
		System:    system,
		CellID:    g.Encode(p, precision),
		Precision: precision,
	}, nil
}

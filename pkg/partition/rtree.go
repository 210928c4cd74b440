package partition

import (
	"github.com/datapunk/lake/pkg/types"
)

// rtreeNode is a leaf or internal node in a simple in-memory R-tree used to
// assign points to bounding-box partitions. Unlike the other grid systems,
// R-tree partitioning is data-driven (boxes split on insert) rather than a
// pure function of a point's coordinates, so it lives outside the Registry
// Grid contract and is driven directly by RTreeIndex.
type rtreeNode struct {
	box      BoundingBox
	leaf     bool
	cellID   string
	count    int
	children []*rtreeNode
}

// RTreeIndex partitions points into bounding boxes, splitting a leaf once
// it accumulates more than MaxPerCell points.
type RTreeIndex struct {
	root       *rtreeNode
	maxPerCell int
}

// NewRTreeIndex creates an RTreeIndex covering the whole world, splitting
// leaves once they exceed maxPerCell points.
func NewRTreeIndex(maxPerCell int) *RTreeIndex {
	if maxPerCell <= 0 {
		maxPerCell = 10_000
	}
	root := &rtreeNode{
		box:  BoundingBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180},
		leaf: true,
	}
	root.cellID = RTreeCellID(root.box)
	return &RTreeIndex{root: root, maxPerCell: maxPerCell}
}

// Insert assigns p to a leaf cell, splitting it if it overflows, and
// returns the cell's stable identifier.
func (idx *RTreeIndex) Insert(p types.GeoPoint) string {
	return idx.insert(idx.root, p)
}

func (idx *RTreeIndex) insert(n *rtreeNode, p types.GeoPoint) string {
	if !n.leaf {
		for _, c := range n.children {
			if c.box.Contains(p) {
				return idx.insert(c, p)
			}
		}
		// No child box contains the point; fall back to the first child.
		return idx.insert(n.children[0], p)
	}

	n.count++
	if n.count <= idx.maxPerCell {
		return n.cellID
	}

	idx.split(n)
	n.count = 0
	return idx.insert(n, p)
}

func (idx *RTreeIndex) split(n *rtreeNode) {
	midLat := (n.box.MinLat + n.box.MaxLat) / 2
	midLon := (n.box.MinLon + n.box.MaxLon) / 2

	quadrants := []BoundingBox{
		{MinLat: n.box.MinLat, MinLon: n.box.MinLon, MaxLat: midLat, MaxLon: midLon},
		{MinLat: n.box.MinLat, MinLon: midLon, MaxLat: midLat, MaxLon: n.box.MaxLon},
		{MinLat: midLat, MinLon: n.box.MinLon, MaxLat: n.box.MaxLat, MaxLon: midLon},
		{MinLat: midLat, MinLon: midLon, MaxLat: n.box.MaxLat, MaxLon: n.box.MaxLon},
	}

	n.leaf = false
	n.children = make([]*rtreeNode, 0, 4)
	for _, box := range quadrants {
		n.children = append(n.children, &rtreeNode{
			box:    box,
			leaf:   true,
			cellID: RTreeCellID(box),
		})
	}
}

// Lookup returns the bounding box containing p without mutating the index.
func (idx *RTreeIndex) Lookup(p types.GeoPoint) BoundingBox {
	n := idx.root
	for !n.leaf {
		found := false
		for _, c := range n.children {
			if c.box.Contains(p) {
				n = c
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return n.box
}

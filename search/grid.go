// Package search provides a coarse uniform-grid spatial index over 2D
// points, used by BiverbCombiner to find candidate source eigenverbs near
// a receiver eigenverb without an O(n*m) scan. Generalizes the teacher's
// recursive directory trawl (search/search.go's trawl/FindGsf) from
// "search a tree for name matches" to "search a grid for bbox overlap."
package search

import "math"

type cellKey struct{ i, j int64 }

// Index buckets caller-assigned IDs by their (theta, phi) position into
// cells of a fixed angular size.
type Index struct {
	cellSize float64
	cells    map[cellKey][]int
	points   map[int][2]float64
}

// NewIndex builds an empty Index whose buckets are cellSize radians wide.
func NewIndex(cellSize float64) *Index {
	return &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
		points:   make(map[int][2]float64),
	}
}

func (idx *Index) key(theta, phi float64) cellKey {
	return cellKey{
		i: int64(math.Floor(theta / idx.cellSize)),
		j: int64(math.Floor(phi / idx.cellSize)),
	}
}

// Insert adds id at (theta, phi). Re-inserting an existing id duplicates
// it; callers insert each id once.
func (idx *Index) Insert(id int, theta, phi float64) {
	k := idx.key(theta, phi)
	idx.cells[k] = append(idx.cells[k], id)
	idx.points[id] = [2]float64{theta, phi}
}

// Query returns every inserted id whose bucket falls within radius of
// (theta, phi), a superset of the ids actually within radius — callers
// apply their own precise distance test to the candidates returned.
func (idx *Index) Query(theta, phi, radius float64) []int {
	iLo := int64(math.Floor((theta - radius) / idx.cellSize))
	iHi := int64(math.Floor((theta + radius) / idx.cellSize))
	jLo := int64(math.Floor((phi - radius) / idx.cellSize))
	jHi := int64(math.Floor((phi + radius) / idx.cellSize))

	var out []int
	for i := iLo; i <= iHi; i++ {
		for j := jLo; j <= jHi; j++ {
			out = append(out, idx.cells[cellKey{i, j}]...)
		}
	}
	return out
}

// Point returns the (theta, phi) an id was inserted with.
func (idx *Index) Point(id int) (theta, phi float64) {
	p := idx.points[id]
	return p[0], p[1]
}

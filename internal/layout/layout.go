// Package layout maps logical multi-dimensional coordinates onto linear
// storage offsets. A Layout is a pure coordinate transform: it never owns
// storage and performs no bounds checking against the buffer it will
// eventually index into. Callers verify capacity separately.
package layout

import "fmt"

// Layout describes an N-dimensional coordinate to linear offset mapping.
// The zero value is a rank-0 layout addressing offset 0.
type Layout struct {
	shape  []int
	stride []int
	base   int

	// tile is the tile shape this layout was carved with, nil when the
	// layout has never been tiled. Used to reject unaligned re-tiling.
	tile []int

	// vector is the number of base scalars grouped into one addressed
	// element. 1 for plain scalar layouts.
	vector int
}

// New builds a layout from explicit shape and stride vectors.
func New(shape, stride []int) (Layout, error) {
	if len(shape) != len(stride) {
		return Layout{}, &RankMismatchError{Want: len(shape), Got: len(stride)}
	}
	return Layout{
		shape:  append([]int(nil), shape...),
		stride: append([]int(nil), stride...),
		vector: 1,
	}, nil
}

// RowMajor builds a compact row-major layout: the last dimension is
// contiguous. RowMajor(r, c).Offset(i, j) == i*c + j.
func RowMajor(shape ...int) Layout {
	stride := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	return Layout{shape: append([]int(nil), shape...), stride: stride, vector: 1}
}

// ColMajor builds a compact column-major layout: the first dimension is
// contiguous. ColMajor(r, c).Offset(i, j) == j*r + i.
func ColMajor(shape ...int) Layout {
	stride := make([]int, len(shape))
	acc := 1
	for i := 0; i < len(shape); i++ {
		stride[i] = acc
		acc *= shape[i]
	}
	return Layout{shape: append([]int(nil), shape...), stride: stride, vector: 1}
}

// Rank returns the number of dimensions (flattened for tiled layouts).
func (l Layout) Rank() int { return len(l.shape) }

// Size returns the number of addressable elements.
func (l Layout) Size() int {
	n := 1
	for _, s := range l.shape {
		n *= s
	}
	return n
}

// Shape returns a copy of the per-dimension extents.
func (l Layout) Shape() []int { return append([]int(nil), l.shape...) }

// Stride returns a copy of the per-dimension strides.
func (l Layout) Stride() []int { return append([]int(nil), l.stride...) }

// Vector returns the number of scalars per addressed element.
func (l Layout) Vector() int { return l.vector }

// Base returns the linear offset of coordinate (0, ..., 0).
func (l Layout) Base() int { return l.base }

func (l Layout) String() string {
	return fmt.Sprintf("Layout(shape=%v stride=%v base=%d vec=%d)", l.shape, l.stride, l.base, l.vector)
}

// Offset computes the linear offset of coords. It is constant time in rank
// and does not range-check individual coordinates against the shape.
func (l Layout) Offset(coords ...int) (int, error) {
	if len(coords) != len(l.shape) {
		return 0, &RankMismatchError{Want: len(l.shape), Got: len(coords)}
	}
	off := l.base
	for i, c := range coords {
		off += c * l.stride[i]
	}
	return off, nil
}

// Coord is the inverse of a linear index within the layout's own extent,
// valid for compact layouts (strides form a permutation of prefix products).
// Used to place a thread id inside a thread layout.
func (l Layout) Coord(index int) ([]int, error) {
	if index < 0 || index >= l.Size() {
		return nil, fmt.Errorf("layout: index %d outside extent %d", index, l.Size())
	}
	// Walk dimensions in order of decreasing stride so each division
	// peels off one coordinate.
	order := make([]int, len(l.shape))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if l.stride[order[j]] > l.stride[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	coords := make([]int, len(l.shape))
	rem := index
	for _, d := range order {
		if l.stride[d] == 0 {
			coords[d] = 0
			continue
		}
		coords[d] = rem / l.stride[d]
		rem %= l.stride[d]
	}
	return coords, nil
}

// Tile carves out the rectangular sub-region of shape tileShape whose
// tile-coordinates are tileCoords. The result addresses the same storage
// through the parent's strides; no data moves.
//
// Re-tiling a tiled layout requires the new tile to evenly divide the
// parent's tile boundary in every dimension.
func (l Layout) Tile(tileShape, tileCoords []int) (Layout, error) {
	if len(tileShape) != len(l.shape) {
		return Layout{}, &RankMismatchError{Want: len(l.shape), Got: len(tileShape)}
	}
	if len(tileCoords) != len(l.shape) {
		return Layout{}, &RankMismatchError{Want: len(l.shape), Got: len(tileCoords)}
	}
	if l.tile != nil {
		for i, t := range tileShape {
			if t <= 0 || l.tile[i]%t != 0 {
				return Layout{}, &UnalignedTileError{Dim: i, Extent: l.tile[i], Tile: t}
			}
		}
	}
	base := l.base
	for i, c := range tileCoords {
		base += c * tileShape[i] * l.stride[i]
	}
	return Layout{
		shape:  append([]int(nil), tileShape...),
		stride: append([]int(nil), l.stride...),
		base:   base,
		tile:   append([]int(nil), tileShape...),
		vector: l.vector,
	}, nil
}

// Vectorize groups the innermost (last) axis into fixed-width contiguous
// elements, dividing the addressable extent along that axis by width. The
// axis must be unit-stride and its extent divisible by width.
func (l Layout) Vectorize(width int) (Layout, error) {
	if len(l.shape) == 0 {
		return Layout{}, &RankMismatchError{Want: 1, Got: 0}
	}
	last := len(l.shape) - 1
	if width <= 0 || l.shape[last]%width != 0 || l.stride[last] != 1 {
		return Layout{}, &UnalignedTileError{Dim: last, Extent: l.shape[last], Tile: width}
	}
	out := Layout{
		shape:  append([]int(nil), l.shape...),
		stride: append([]int(nil), l.stride...),
		base:   l.base,
		vector: l.vector * width,
	}
	if l.tile != nil {
		out.tile = append([]int(nil), l.tile...)
	}
	out.shape[last] /= width
	out.stride[last] = width // offsets remain in scalars
	return out, nil
}

// Distribute partitions the layout across threads.Size() execution units and
// returns the fragment owned by tid. Fragments are disjoint and together
// cover the parent exactly; the same (threads, tid) pair always yields the
// same fragment. Each thread-layout extent must divide the matching parent
// extent.
func (l Layout) Distribute(threads Layout, tid int) (Layout, error) {
	if threads.Rank() != len(l.shape) {
		return Layout{}, &RankMismatchError{Want: len(l.shape), Got: threads.Rank()}
	}
	coords, err := threads.Coord(tid)
	if err != nil {
		return Layout{}, err
	}
	frag := Layout{
		shape:  make([]int, len(l.shape)),
		stride: make([]int, len(l.shape)),
		base:   l.base,
		vector: l.vector,
	}
	if l.tile != nil {
		frag.tile = append([]int(nil), l.tile...)
	}
	for i := range l.shape {
		tn := threads.shape[i]
		if tn <= 0 || l.shape[i]%tn != 0 {
			return Layout{}, &UnalignedTileError{Dim: i, Extent: l.shape[i], Tile: tn}
		}
		frag.shape[i] = l.shape[i] / tn
		frag.stride[i] = l.stride[i] * tn
		frag.base += coords[i] * l.stride[i]
	}
	return frag, nil
}

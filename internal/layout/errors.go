package layout

import "fmt"

// RankMismatchError reports a coordinate tuple whose arity does not match
// the layout's declared rank.
type RankMismatchError struct {
	Want int
	Got  int
}

func (e *RankMismatchError) Error() string {
	return fmt.Sprintf("layout: rank mismatch: want %d coordinates, got %d", e.Want, e.Got)
}

// UnalignedTileError reports a tile, vector width, or thread extent that does
// not evenly divide the boundary it is carved from.
type UnalignedTileError struct {
	Dim    int
	Extent int
	Tile   int
}

func (e *UnalignedTileError) Error() string {
	return fmt.Sprintf("layout: tile extent %d does not evenly divide %d in dim %d", e.Tile, e.Extent, e.Dim)
}

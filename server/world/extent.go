package world

import "fmt"

// Extent is the inclusive rectangle of chunk positions a world may address.
// Every chunk access is checked against it before any cache or grid is
// indexed.
type Extent struct {
	Min, Max ChunkPos
}

// DefaultExtent returns a 500x500 chunk extent centred on the origin.
func DefaultExtent() Extent {
	return Extent{Min: ChunkPos{-250, -250}, Max: ChunkPos{249, 249}}
}

// Contains reports if pos lies within the extent.
func (e Extent) Contains(pos ChunkPos) bool {
	return pos[0] >= e.Min[0] && pos[0] <= e.Max[0] && pos[1] >= e.Min[1] && pos[1] <= e.Max[1]
}

// Check returns a *BoundsError if pos lies outside the extent.
func (e Extent) Check(pos ChunkPos) error {
	if !e.Contains(pos) {
		return &BoundsError{Pos: pos, Extent: e}
	}
	return nil
}

// Width returns the number of chunk columns on the X axis.
func (e Extent) Width() int64 {
	return int64(e.Max[0]) - int64(e.Min[0]) + 1
}

// Depth returns the number of chunk rows on the Z axis.
func (e Extent) Depth() int64 {
	return int64(e.Max[1]) - int64(e.Min[1]) + 1
}

// Index returns a dense, zero-based index of pos within the extent, or a
// *BoundsError if pos lies outside it.
func (e Extent) Index(pos ChunkPos) (int64, error) {
	if err := e.Check(pos); err != nil {
		return 0, err
	}
	return (int64(pos[0])-int64(e.Min[0]))*e.Depth() + int64(pos[1]) - int64(e.Min[1]), nil
}

// Validate returns an error if the extent is empty.
func (e Extent) Validate() error {
	if e.Min[0] > e.Max[0] || e.Min[1] > e.Max[1] {
		return fmt.Errorf("empty extent %v..%v", e.Min, e.Max)
	}
	return nil
}

// BoundsError is returned for chunk positions outside the configured extent. It
// unwraps to ErrOutOfBounds.
type BoundsError struct {
	Pos    ChunkPos
	Extent Extent
}

// Error ...
func (e *BoundsError) Error() string {
	return fmt.Sprintf("chunk %v outside extent %v..%v", e.Pos, e.Extent.Min, e.Extent.Max)
}

// Unwrap ...
func (e *BoundsError) Unwrap() error {
	return ErrOutOfBounds
}

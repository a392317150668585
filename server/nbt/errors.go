package nbt

import "errors"

var (
	// ErrFormat is returned when an NBT stream is malformed: truncated data, an
	// unknown tag kind, a negative length or bytes trailing the root tag.
	ErrFormat = errors.New("nbt: malformed data")
	// ErrNotFound is returned by path lookups when a segment names an absent
	// child or descends into a node that is not a Compound.
	ErrNotFound = errors.New("nbt: tag not found")
	// ErrTypeMismatch is returned by typed accessors used against a node of a
	// different kind.
	ErrTypeMismatch = errors.New("nbt: tag type mismatch")
)

// IOError records a filesystem failure while reading or writing an NBT file.
// It unwraps to the underlying error, so errors.Is(err, fs.ErrNotExist) holds
// for missing files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// Error ...
func (e *IOError) Error() string {
	return "nbt: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

// Unwrap ...
func (e *IOError) Unwrap() error {
	return e.Err
}

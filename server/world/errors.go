package world

import "errors"

var (
	// ErrUsernameTaken is returned by World.AddPlayer when the username is
	// already in use and the world rejects duplicate names.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrOutOfBounds is wrapped by every *BoundsError.
	ErrOutOfBounds = errors.New("chunk position out of bounds")
	// ErrClosed is returned by operations on a World that is being or has been
	// destroyed.
	ErrClosed = errors.New("world closed")
	// ErrAlreadyInWorld is returned when adding a player that is still part of
	// a world.
	ErrAlreadyInWorld = errors.New("player already in a world")
	// ErrChunkUnavailable is returned when a chunk query succeeded without any
	// handler providing a chunk, typically because no persistence plugin is
	// enabled.
	ErrChunkUnavailable = errors.New("no chunk provided for position")
	// ErrDisconnected is returned when sending to a player whose connection has
	// been closed.
	ErrDisconnected = errors.New("player disconnected")
	// ErrSendTimeout is returned when a send to a player did not complete
	// within the configured timeout.
	ErrSendTimeout = errors.New("send timed out")
	// ErrSendBusy is returned when a send to a player was skipped because an
	// earlier send to the player has not completed yet.
	ErrSendBusy = errors.New("previous send still in flight")
)

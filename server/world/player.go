package world

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// EntityID is the numeric handle of an entity within a World. The zero value
// means unassigned and is never issued.
type EntityID int32

// Entity is an actor held by a World.
type Entity interface {
	EntityID() EntityID
}

// Conn is the connection of a player, owned by the transport layer. Writes
// are encoded into packets by the transport.
type Conn interface {
	// WriteMessage sends a chat message to the player.
	WriteMessage(msg string) error
	// WriteBuffer sends a pre-encoded packet buffer to the player.
	WriteBuffer(b []byte) error
	// Close closes the connection, showing reason to the player.
	Close(reason string) error
}

// Player is a connected player. A Player is owned by the caller that created
// it; a World only references it while the player is added.
type Player struct {
	id   uuid.UUID
	conn Conn

	mu    sync.Mutex
	name  string
	w     *World
	eid   EntityID
	pos   mgl64.Vec3
	since time.Time

	disconnected atomic.Bool
	// closed is closed by Disconnect.
	closed chan struct{}
	// sending holds a value while a write to conn is in flight. At most one
	// write runs at a time.
	sending chan struct{}
}

// NewPlayer returns a Player with the username passed that is not part of any
// World yet.
func NewPlayer(name string, conn Conn) *Player {
	return &Player{
		id:      uuid.New(),
		name:    name,
		conn:    conn,
		closed:  make(chan struct{}),
		sending: make(chan struct{}, 1),
	}
}

// UUID returns the UUID of the player.
func (p *Player) UUID() uuid.UUID {
	return p.id
}

// Name returns the username of the player. It may have been changed by the
// World the player joined.
func (p *Player) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// World returns the World the player is part of, or nil.
func (p *Player) World() *World {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w
}

// EntityID returns the entity ID of the player, or 0 if it is not part of a
// World.
func (p *Player) EntityID() EntityID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eid
}

// Position returns the current position of the player.
func (p *Player) Position() mgl64.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Move sets the position of the player.
func (p *Player) Move(pos mgl64.Vec3) {
	p.mu.Lock()
	p.pos = pos
	p.mu.Unlock()
}

// JoinedAt returns the time the player was added to its current World.
func (p *Player) JoinedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.since
}

// Connected reports if the connection of the player is still open.
func (p *Player) Connected() bool {
	return !p.disconnected.Load()
}

// Disconnect closes the connection of the player, showing reason. Disconnecting
// a player twice is a no-op. Disconnect does not wait for a write in flight.
func (p *Player) Disconnect(reason string) error {
	if !p.disconnected.CompareAndSwap(false, true) {
		return nil
	}
	close(p.closed)
	if p.conn == nil {
		return nil
	}
	return p.conn.Close(reason)
}

// Message sends a chat message to the player. It waits for a previous write to
// the player to finish first.
func (p *Player) Message(msg string) error {
	return p.send(func(c Conn) error { return c.WriteMessage(msg) }, 0)
}

// send runs f against the connection. Without a timeout, send waits for its
// turn and for f to return. With a positive timeout, send returns ErrSendBusy
// if another write is still in flight, and ErrSendTimeout once the timeout
// elapses. f then keeps running in the background until the transport returns
// and the player is skipped by sends in the meantime.
func (p *Player) send(f func(Conn) error, timeout time.Duration) error {
	if !p.Connected() || p.conn == nil {
		return ErrDisconnected
	}
	if timeout <= 0 {
		select {
		case p.sending <- struct{}{}:
		case <-p.closed:
			return ErrDisconnected
		}
		defer p.release()
		if !p.Connected() {
			return ErrDisconnected
		}
		return f(p.conn)
	}

	select {
	case p.sending <- struct{}{}:
	default:
		return ErrSendBusy
	}
	done := make(chan error, 1)
	go func() {
		defer p.release()
		if !p.Connected() {
			done <- ErrDisconnected
			return
		}
		done <- f(p.conn)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		return ErrSendTimeout
	case <-p.closed:
		return ErrDisconnected
	}
}

func (p *Player) release() {
	<-p.sending
}

package event

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrHandlerPanic is wrapped by the error Dispatch returns when a handler
// panicked. The panic is recovered and dispatch stops at that handler.
var ErrHandlerPanic = errors.New("event handler panicked")

// Event is a value that may be dispatched on a Bus. Kind selects the handlers
// that receive the event.
type Event[K comparable] interface {
	Kind() K
}

// Handler handles a single event. Returning a non-nil error stops dispatch and
// the error is returned to the dispatcher.
type Handler[E any] func(e E) error

// ID identifies a single handler registration on a Bus.
type ID uint64

type registration[E any] struct {
	owner   string
	handler Handler[E]
	id      ID
}

type eventList[E any] struct {
	regs []registration[E]
}

func (l *eventList[E]) removeByID(id ID) bool {
	for i, reg := range l.regs {
		if reg.id == id {
			l.regs = append(l.regs[:i:i], l.regs[i+1:]...)
			return true
		}
	}
	return false
}

func (l *eventList[E]) removeOwner(owner string) {
	if len(l.regs) == 0 {
		return
	}
	regs := make([]registration[E], 0, len(l.regs))
	for _, reg := range l.regs {
		if reg.owner == owner {
			continue
		}
		regs = append(regs, reg)
	}
	l.regs = regs
}

func (l *eventList[E]) rename(oldName, newName string) {
	for i := range l.regs {
		if l.regs[i].owner == oldName {
			l.regs[i].owner = newName
		}
	}
}

// Bus is a synchronous, ordered, fail-fast event dispatcher over a closed set of
// event kinds K. Handlers run on the dispatching goroutine in registration
// order. The Bus applies no locking to the state handlers touch.
//
// Registration is guarded by a mutex, while dispatch reads an immutable
// snapshot of the handler chains and takes no lock.
type Bus[K comparable, E Event[K]] struct {
	log *slog.Logger

	mu     sync.Mutex
	lists  map[K]*eventList[E]
	kinds  map[ID]K
	next   ID
	chains atomic.Pointer[map[K][]registration[E]]

	onPanic atomic.Pointer[func(owner string, reason any)]
}

// New returns an empty Bus. If log is nil, slog.Default() is used.
func New[K comparable, E Event[K]](log *slog.Logger) *Bus[K, E] {
	if log == nil {
		log = slog.Default()
	}
	b := &Bus[K, E]{
		log:   log.With("subsystem", "event"),
		lists: make(map[K]*eventList[E]),
		kinds: make(map[ID]K),
		next:  1,
	}
	b.chains.Store(&map[K][]registration[E]{})
	return b
}

// OnPanic sets a function called with the owner of a handler that panicked and
// the recovered value. The plugin manager uses it to disable the owner.
func (b *Bus[K, E]) OnPanic(f func(owner string, reason any)) {
	if f == nil {
		b.onPanic.Store(nil)
		return
	}
	b.onPanic.Store(&f)
}

// Register appends h to the handlers of kind on behalf of owner and returns the
// ID of the registration. A nil handler is ignored and yields ID 0.
func (b *Bus[K, E]) Register(owner string, kind K, h Handler[E]) ID {
	if h == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	l, ok := b.lists[kind]
	if !ok {
		l = &eventList[E]{}
		b.lists[kind] = l
	}
	l.regs = append(l.regs, registration[E]{owner: owner, handler: h, id: id})
	b.kinds[id] = kind
	b.publish()
	return id
}

// Unregister removes the registration with the ID passed. It reports whether a
// registration was removed.
func (b *Bus[K, E]) Unregister(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok := b.kinds[id]
	if !ok {
		return false
	}
	delete(b.kinds, id)
	if l, ok := b.lists[kind]; ok && l.removeByID(id) {
		b.publish()
		return true
	}
	return false
}

// Clear removes every registration made on behalf of owner.
func (b *Bus[K, E]) Clear(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, l := range b.lists {
		l.removeOwner(owner)
		if len(l.regs) == 0 {
			delete(b.lists, kind)
		}
	}
	maps.DeleteFunc(b.kinds, func(id ID, kind K) bool {
		l, ok := b.lists[kind]
		if !ok {
			return true
		}
		for _, reg := range l.regs {
			if reg.id == id {
				return false
			}
		}
		return true
	})
	b.publish()
}

// Rename moves every registration made on behalf of oldName to newName.
func (b *Bus[K, E]) Rename(oldName, newName string) {
	if newName == "" || oldName == newName {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.lists {
		l.rename(oldName, newName)
	}
	b.publish()
}

// Len returns the number of handlers registered for kind.
func (b *Bus[K, E]) Len(kind K) int {
	return len((*b.chains.Load())[kind])
}

// Dispatch runs the handlers registered for e.Kind() in order. The first handler
// returning an error stops dispatch and its error is returned. Dispatch with no
// handlers registered succeeds.
func (b *Bus[K, E]) Dispatch(e E) error {
	for _, reg := range (*b.chains.Load())[e.Kind()] {
		if err := b.invoke(reg, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus[K, E]) invoke(reg registration[E], e E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panic.", "owner", reg.owner, "kind", fmt.Sprint(e.Kind()), "panic", r, "stack", string(debug.Stack()))
			if f := b.onPanic.Load(); f != nil {
				(*f)(reg.owner, r)
			}
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, reg.owner, r)
		}
	}()
	return reg.handler(e)
}

// publish rebuilds the dispatch snapshot. b.mu must be held.
func (b *Bus[K, E]) publish() {
	chains := make(map[K][]registration[E], len(b.lists))
	for kind, l := range b.lists {
		if len(l.regs) == 0 {
			continue
		}
		chains[kind] = append([]registration[E](nil), l.regs...)
	}
	b.chains.Store(&chains)
}

// Scope registers handlers on a Bus on behalf of a single owner, such as a
// plugin, so that they may be torn down together.
type Scope[K comparable, E Event[K]] struct {
	bus   *Bus[K, E]
	owner string
}

// Scope returns a Scope registering handlers for owner.
func (b *Bus[K, E]) Scope(owner string) *Scope[K, E] {
	return &Scope[K, E]{bus: b, owner: owner}
}

// Owner returns the owner handlers are registered for.
func (s *Scope[K, E]) Owner() string {
	return s.owner
}

// On registers h for kind and returns a function that removes the
// registration. Calling the function more than once has no further effect.
func (s *Scope[K, E]) On(kind K, h Handler[E]) func() {
	id := s.bus.Register(s.owner, kind, h)
	if id == 0 {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.bus.Unregister(id)
		})
	}
}

// Clear removes every handler registered by the owner of s.
func (s *Scope[K, E]) Clear() {
	s.bus.Clear(s.owner)
}

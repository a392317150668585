package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/df-mc/worldcore/server/world"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// countingGenerator sets block (0, 0, 0) to 1 and counts its calls per
// position.
type countingGenerator struct {
	mu    sync.Mutex
	calls map[world.ChunkPos]int
	fail  bool
}

func (g *countingGenerator) GenerateChunk(pos world.ChunkPos, c *world.Chunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("generator broken")
	}
	if g.calls == nil {
		g.calls = make(map[world.ChunkPos]int)
	}
	g.calls[pos]++
	c.SetBlock(0, 0, 0, 1)
	return nil
}

func (g *countingGenerator) count(pos world.ChunkPos) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[pos]
}

type failingBackend struct {
	*MemoryBackend
	loadErr  error
	storeErr atomic.Pointer[error]
}

func (b *failingBackend) LoadChunk(name string, pos world.ChunkPos) (*world.Chunk, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.MemoryBackend.LoadChunk(name, pos)
}

func (b *failingBackend) StoreChunk(name string, pos world.ChunkPos, c *world.Chunk) error {
	if err := b.storeErr.Load(); err != nil {
		return *err
	}
	return b.MemoryBackend.StoreChunk(name, pos, c)
}

func newTestStore(t *testing.T, b Backend, gen world.Generator) *Store {
	t.Helper()
	s := Config{Log: testLogger(), Backend: b}.New()
	if err := s.Open("overworld", world.DefaultExtent(), gen); err != nil {
		t.Fatalf("Open returned %v, want nil", err)
	}
	return s
}

func TestSetThenGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, NewMemoryBackend(), &countingGenerator{})

	c := &world.Chunk{}
	for i := range c.Blocks {
		c.Blocks[i] = byte(i)
	}
	c.SkyLight[100] = 0xab
	pos := world.ChunkPos{-17, 42}
	if err := s.Set("overworld", pos, c); err != nil {
		t.Fatalf("Set returned %v, want nil", err)
	}
	c.Blocks[0] = 99

	got, err := s.Get("overworld", pos)
	if err != nil {
		t.Fatalf("Get returned %v, want nil", err)
	}
	c.Blocks[0] = 0
	if !got.Equal(c) {
		t.Fatalf("Get returned a chunk different from the one set")
	}
	if s.Dirty("overworld") != 1 {
		t.Fatalf("Dirty returned %d, want 1", s.Dirty("overworld"))
	}
}

func TestGenerateOnce(t *testing.T) {
	t.Parallel()
	gen := &countingGenerator{}
	b := NewMemoryBackend()
	s := newTestStore(t, b, gen)
	pos := world.ChunkPos{3, 3}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Load("overworld", pos); err != nil {
				t.Errorf("Load returned %v, want nil", err)
			}
		}()
	}
	wg.Wait()

	if n := gen.count(pos); n != 1 {
		t.Fatalf("chunk generated %d times, want 1", n)
	}
	if !s.Generated("overworld", pos) {
		t.Fatalf("Generated returned false after generation")
	}
	if err := s.Flush("overworld"); err != nil {
		t.Fatalf("Flush returned %v, want nil", err)
	}
	if b.Writes() != 1 {
		t.Fatalf("backend received %d writes, want 1", b.Writes())
	}
	if _, err := s.Load("overworld", pos); err != nil {
		t.Fatalf("Load returned %v, want nil", err)
	}
	if n := gen.count(pos); n != 1 {
		t.Fatalf("chunk generated %d times after flush, want 1", n)
	}
}

func TestLoadFailureFallsBackToGeneration(t *testing.T) {
	t.Parallel()
	gen := &countingGenerator{}
	b := &failingBackend{MemoryBackend: NewMemoryBackend(), loadErr: fmt.Errorf("corrupt chunk")}
	s := newTestStore(t, b, gen)

	c, err := s.Get("overworld", world.ChunkPos{})
	if err != nil {
		t.Fatalf("Get returned %v, want nil", err)
	}
	if c.Block(0, 0, 0) != 1 {
		t.Fatalf("Get returned a chunk that was not generated")
	}
}

func TestGeneratorFailureSurfaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, NewMemoryBackend(), &countingGenerator{fail: true})
	if _, err := s.Get("overworld", world.ChunkPos{1, 1}); err == nil {
		t.Fatalf("Get returned nil error for failing generator")
	}
	if s.Generated("overworld", world.ChunkPos{1, 1}) {
		t.Fatalf("failed generation marked in grid")
	}
}

func TestOutOfBounds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, NewMemoryBackend(), &countingGenerator{})
	ext := world.DefaultExtent()

	for _, pos := range []world.ChunkPos{{ext.Max[0] + 1, 0}, {0, ext.Min[1] - 1}} {
		if _, err := s.Get("overworld", pos); !errors.Is(err, world.ErrOutOfBounds) {
			t.Fatalf("Get(%v) returned %v, want ErrOutOfBounds", pos, err)
		}
		var bErr *world.BoundsError
		if err := s.Set("overworld", pos, &world.Chunk{}); !errors.As(err, &bErr) {
			t.Fatalf("Set(%v) returned %v, want *world.BoundsError", pos, err)
		}
	}
}

func TestFlushFailureKeepsDirty(t *testing.T) {
	t.Parallel()
	b := &failingBackend{MemoryBackend: NewMemoryBackend()}
	storeErr := errors.New("read-only filesystem")
	b.storeErr.Store(&storeErr)
	s := newTestStore(t, b, &countingGenerator{})

	_ = s.Set("overworld", world.ChunkPos{}, &world.Chunk{})
	if err := s.Flush("overworld"); !errors.Is(err, storeErr) {
		t.Fatalf("Flush returned %v, want %v", err, storeErr)
	}
	if s.Dirty("overworld") != 1 {
		t.Fatalf("failed chunk write no longer dirty")
	}

	b.storeErr.Store(nil)
	if err := s.Flush("overworld"); err != nil {
		t.Fatalf("Flush returned %v, want nil", err)
	}
	if s.Dirty("overworld") != 0 {
		t.Fatalf("Dirty returned %d after flush, want 0", s.Dirty("overworld"))
	}
}

func TestCloseDropsWorld(t *testing.T) {
	t.Parallel()
	b := NewMemoryBackend()
	s := newTestStore(t, b, &countingGenerator{})

	_ = s.Set("overworld", world.ChunkPos{2, 2}, &world.Chunk{})
	if err := s.Close("overworld"); err != nil {
		t.Fatalf("Close returned %v, want nil", err)
	}
	if b.Writes() != 1 {
		t.Fatalf("Close wrote %d chunks, want 1", b.Writes())
	}
	if _, err := s.Get("overworld", world.ChunkPos{2, 2}); !errors.Is(err, ErrWorldNotOpen) {
		t.Fatalf("Get after Close returned %v, want ErrWorldNotOpen", err)
	}
	if err := s.Open("overworld", world.DefaultExtent(), nil); err != nil {
		t.Fatalf("reopening returned %v, want nil", err)
	}
	if err := s.Open("overworld", world.DefaultExtent(), nil); !errors.Is(err, ErrWorldOpen) {
		t.Fatalf("opening twice returned %v, want ErrWorldOpen", err)
	}
}

// slowBackend blocks chunk writes until release is closed.
type slowBackend struct {
	*MemoryBackend
	started chan struct{}
	release chan struct{}
	err     error
}

func (b *slowBackend) StoreChunk(name string, pos world.ChunkPos, c *world.Chunk) error {
	b.started <- struct{}{}
	<-b.release
	if b.err != nil {
		return b.err
	}
	return b.MemoryBackend.StoreChunk(name, pos, c)
}

func TestLoadDuringFlush(t *testing.T) {
	t.Parallel()
	for _, storeErr := range []error{nil, errors.New("disk full")} {
		t.Run(fmt.Sprint(storeErr), func(t *testing.T) {
			t.Parallel()
			b := &slowBackend{MemoryBackend: NewMemoryBackend(), started: make(chan struct{}, 1), release: make(chan struct{}), err: storeErr}
			pos := world.ChunkPos{2, 3}
			old := &world.Chunk{}
			old.SetBlock(0, 0, 0, 5)
			if err := b.MemoryBackend.StoreChunk("overworld", pos, old); err != nil {
				t.Fatalf("StoreChunk returned %v, want nil", err)
			}
			s := newTestStore(t, b, &countingGenerator{})

			edit := &world.Chunk{}
			edit.SetBlock(0, 0, 0, 9)
			if err := s.Set("overworld", pos, edit); err != nil {
				t.Fatalf("Set returned %v, want nil", err)
			}
			flushed := make(chan error, 1)
			go func() { flushed <- s.Flush("overworld") }()
			<-b.started

			c, err := s.Load("overworld", pos)
			if err != nil {
				t.Fatalf("Load returned %v, want nil", err)
			}
			if got := c.Block(0, 0, 0); got != 9 {
				t.Fatalf("Load during flush returned block %d, want 9", got)
			}
			close(b.release)
			if err := <-flushed; !errors.Is(err, storeErr) {
				t.Fatalf("Flush returned %v, want %v", err, storeErr)
			}

			wantDirty := 0
			if storeErr != nil {
				wantDirty = 1
			}
			if n := s.Dirty("overworld"); n != wantDirty {
				t.Fatalf("Dirty returned %d, want %d", n, wantDirty)
			}
			if c, _ := s.Get("overworld", pos); c.Block(0, 0, 0) != 9 {
				t.Fatalf("cached chunk holds block %d after flush, want 9", c.Block(0, 0, 0))
			}
		})
	}
}

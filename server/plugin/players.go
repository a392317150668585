package plugin

import (
	"time"

	"github.com/df-mc/worldcore/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// PlayerSummary captures a snapshot of an online player at the moment the summary
// was produced. It allows plugins to inspect players without holding on to
// them.
type PlayerSummary struct {
	UUID      uuid.UUID
	Name      string
	World     string
	EntityID  world.EntityID
	Position  mgl64.Vec3
	JoinedAt  time.Time
	Connected bool
}

// Summarise returns a PlayerSummary of p.
func Summarise(p *world.Player) PlayerSummary {
	s := PlayerSummary{
		UUID:      p.UUID(),
		Name:      p.Name(),
		EntityID:  p.EntityID(),
		Position:  p.Position(),
		JoinedAt:  p.JoinedAt(),
		Connected: p.Connected(),
	}
	if w := p.World(); w != nil {
		s.World = w.Name()
	}
	return s
}

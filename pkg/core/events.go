package core

import "fmt"

// EventKind discriminates GameEvent payloads.
type EventKind uint8

const (
	EventSpawn EventKind = iota + 1
	EventShoot
)

func (k EventKind) String() string {
	switch k {
	case EventSpawn:
		return "spawn"
	case EventShoot:
		return "shoot"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// SpawnPayload describes an entity creation.
type SpawnPayload struct {
	Archetype string
	X         float64
	Y         float64
	// ScrollX is the background scroll offset at spawn time, when the host reports one.
	ScrollX *float64
}

// ShootPayload describes a projectile fired by an already spawned entity.
type ShootPayload struct {
	X     float64
	Y     float64
	VX    float64
	VY    float64
	Delay int // ticks before the projectile becomes active
}

// GameEvent is a non-deterministic occurrence that must be dispatched at Frame
// during replay. Exactly one of Spawn and Shoot is set, matching Kind.
type GameEvent struct {
	Frame    int
	Kind     EventKind
	EntityID int
	Spawn    *SpawnPayload
	Shoot    *ShootPayload
}

// NewSpawnEvent builds a Spawn event.
func NewSpawnEvent(frame, id int, archetype string, x, y float64) GameEvent {
	return GameEvent{
		Frame:    frame,
		Kind:     EventSpawn,
		EntityID: id,
		Spawn:    &SpawnPayload{Archetype: archetype, X: x, Y: y},
	}
}

// NewShootEvent builds a Shoot event for emitter id.
func NewShootEvent(frame, id int, x, y, vx, vy float64, delay int) GameEvent {
	return GameEvent{
		Frame:    frame,
		Kind:     EventShoot,
		EntityID: id,
		Shoot:    &ShootPayload{X: x, Y: y, VX: vx, VY: vy, Delay: delay},
	}
}

// Clone returns a deep copy so callers never share payload pointers.
func (e GameEvent) Clone() GameEvent {
	out := e
	if e.Spawn != nil {
		sp := *e.Spawn
		if e.Spawn.ScrollX != nil {
			v := *e.Spawn.ScrollX
			sp.ScrollX = &v
		}
		out.Spawn = &sp
	}
	if e.Shoot != nil {
		sh := *e.Shoot
		out.Shoot = &sh
	}
	return out
}

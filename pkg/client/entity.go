package client

import (
	"fmt"
	"sort"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// Entity is one networked object: a unique id, the participant that owns it,
// the template it was spawned from, and the application object behind it.
// The Body is where event handlers and stream producers/consumers live; the
// directory itself never interprets it.
type Entity struct {
	ID     int
	Owner  string
	Prefab string
	Body   any
}

// OwnedBy reports whether the entity belongs to the given participant.
func (e *Entity) OwnedBy(playerID string) bool {
	return e.Owner == playerID
}

// Spawner creates and destroys the application objects behind networked
// entities, keyed by a named template plus an initial pose. Implemented by
// the host application; the client only calls it from the dispatch goroutine.
type Spawner interface {
	// Has reports whether a template with the given name exists.
	Has(template string) bool

	// Spawn instantiates a template and returns the application object
	// that becomes the entity body.
	Spawn(template string, position, rotation protocol.Vec3) (any, error)

	// Despawn releases a previously spawned body.
	Despawn(body any)
}

// Directory is the authoritative local registry of networked entities,
// keyed by entity id. It has no network behavior and is accessed only from
// the dispatch goroutine.
type Directory struct {
	entities map[int]*Entity
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entities: make(map[int]*Entity)}
}

// Add registers an entity. Adding the same entity again is a no-op; a
// different entity under an already-taken id is a logic error and is
// surfaced, not resolved.
func (d *Directory) Add(e *Entity) error {
	if existing, ok := d.entities[e.ID]; ok {
		if existing == e {
			return nil
		}
		return fmt.Errorf("%w: %d held by owner %q, claimed by owner %q",
			ErrDuplicateEntity, e.ID, existing.Owner, e.Owner)
	}
	d.entities[e.ID] = e
	return nil
}

// Remove deletes the entity with the given id and returns it. Removing an
// absent id is a no-op and returns nil.
func (d *Directory) Remove(id int) *Entity {
	e, ok := d.entities[id]
	if !ok {
		return nil
	}
	delete(d.entities, id)
	return e
}

// Get returns the entity with the given id, or nil.
func (d *Directory) Get(id int) *Entity {
	return d.entities[id]
}

// OwnedBy returns the entities owned by the given participant, ordered by id.
func (d *Directory) OwnedBy(playerID string) []*Entity {
	var out []*Entity
	for _, e := range d.entities {
		if e.OwnedBy(playerID) {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out
}

// Partition splits the directory into entities owned by the local
// participant and foreign ones, each ordered by id.
func (d *Directory) Partition(localID string) (mine, foreign []*Entity) {
	for _, e := range d.entities {
		if e.OwnedBy(localID) {
			mine = append(mine, e)
		} else {
			foreign = append(foreign, e)
		}
	}
	sortByID(mine)
	sortByID(foreign)
	return mine, foreign
}

// Len returns the number of registered entities.
func (d *Directory) Len() int {
	return len(d.entities)
}

// Clear removes every entity.
func (d *Directory) Clear() {
	d.entities = make(map[int]*Entity)
}

func sortByID(entities []*Entity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
}
